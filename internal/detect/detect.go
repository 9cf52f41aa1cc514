// Package detect finds debug probes that serve the GDB remote protocol on
// a serial port.
package detect

import (
	"encoding/binary"
	"fmt"
	"sort"
	"time"

	"github.com/golang/glog"

	"github.com/bigbag/gdflash/internal/protocol"
	"github.com/bigbag/gdflash/internal/rsp"
	"github.com/bigbag/gdflash/internal/serial"
)

// probeTimeout bounds each question asked while scanning.
const probeTimeout = 500 * time.Millisecond

// Result represents a GDB stub found on a port.
type Result struct {
	Port     string
	Info     serial.PortInfo
	Signal   byte
	DeviceID uint32
}

// Halted reports whether the stub said the core is stopped.
func (r *Result) Halted() bool {
	return r.Signal != 0
}

func (r *Result) String() string {
	s := r.Info.String()
	if s == "" {
		s = r.Port
	}
	switch {
	case r.DeviceID != 0:
		s += fmt.Sprintf(", device id 0x%08X", r.DeviceID)
	case !r.Halted():
		s += ", core running"
	}
	return s
}

// DetectDevice scans available ports and returns the first GDB stub that
// answers. Known probe USB IDs are tried first.
func DetectDevice(baudRate int) (*Result, error) {
	ports, err := scanOrder()
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, info := range ports {
		result, err := tryPort(info, baudRate)
		if err != nil {
			glog.V(1).Infof("%s: %v", info.Name, err)
			lastErr = err
			continue
		}
		return result, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("no GDB stub found (last error: %w)", lastErr)
	}
	return nil, fmt.Errorf("no GDB stub found")
}

// ListDevices scans all ports and returns every GDB stub that answers.
func ListDevices(baudRate int) ([]Result, error) {
	ports, err := scanOrder()
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, info := range ports {
		result, err := tryPort(info, baudRate)
		if err == nil {
			results = append(results, *result)
		}
	}
	return results, nil
}

// scanOrder lists ports with known probes first.
func scanOrder() ([]serial.PortInfo, error) {
	ports, err := serial.ListPortDetails()
	if err != nil {
		names, lerr := serial.ListPorts()
		if lerr != nil {
			return nil, fmt.Errorf("failed to list ports: %w", lerr)
		}
		ports = make([]serial.PortInfo, len(names))
		for i, n := range names {
			ports[i].Name = n
		}
	}
	if len(ports) == 0 {
		return nil, fmt.Errorf("no serial ports found")
	}

	sort.SliceStable(ports, func(i, j int) bool {
		return ports[i].Probe() && !ports[j].Probe()
	})
	return ports, nil
}

func tryPort(info serial.PortInfo, baudRate int) (*Result, error) {
	port, err := serial.Open(info.Name, baudRate)
	if err != nil {
		return nil, err
	}
	defer port.Close()

	port.Flush()
	result, err := Identify(port)
	if err != nil {
		return nil, err
	}
	result.Port = info.Name
	result.Info = info
	return result, nil
}

// Identify asks the stub on conn for its stop reason and, when the core
// is halted, reads the device ID. A failed ID read still counts as found.
func Identify(conn rsp.Conn) (*Result, error) {
	client := rsp.New(conn, rsp.Config{Timeout: probeTimeout, Retries: 1})

	stop, err := client.StopReason()
	if err != nil {
		return nil, fmt.Errorf("no stop reply: %w", err)
	}
	if stop.Exited {
		return nil, fmt.Errorf("stub reports no running process")
	}

	result := &Result{Signal: stop.Signal}
	if !result.Halted() {
		return result, nil
	}

	var id [4]byte
	if err := client.ReadMemory(protocol.DebugIDAddress, id[:]); err != nil {
		glog.V(1).Infof("device id unreadable: %v", err)
		return result, nil
	}
	result.DeviceID = binary.LittleEndian.Uint32(id[:])
	return result, nil
}
