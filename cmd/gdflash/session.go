package main

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/golang/glog"

	"github.com/bigbag/gdflash/internal/detect"
	"github.com/bigbag/gdflash/internal/flasher"
	"github.com/bigbag/gdflash/internal/rsp"
	"github.com/bigbag/gdflash/internal/serial"
	"github.com/bigbag/gdflash/internal/target"
)

const dialTimeout = 5 * time.Second

// session is one connection to a target with a flasher on top.
type session struct {
	name    string
	conn    io.Closer
	flasher *flasher.Flasher
}

// shared is the session kept open by the interactive shell.
var shared *session

func connect() (*session, error) {
	conn, closer, name, err := dial()
	if err != nil {
		return nil, err
	}

	client := rsp.New(conn, rsp.Config{})
	pool := target.NewWorkingAreaPool(workAreaBaseFlag, workAreaSizeFlag)
	remote := target.NewRemote(client, pool)

	if !noHaltFlag {
		if err := remote.Halt(); err != nil {
			closer.Close()
			return nil, err
		}
	}

	var opts []flasher.Option
	if bankSizeFlag != 0 {
		opts = append(opts, flasher.WithBankSize(bankSizeFlag))
	}

	glog.V(1).Infof("connected to %s, working area %s", name, &target.WorkingArea{Address: workAreaBaseFlag, Size: workAreaSizeFlag})
	return &session{
		name:    name,
		conn:    closer,
		flasher: flasher.New(remote, opts...),
	}, nil
}

// dial opens the link selected by the flags.
func dial() (rsp.Conn, io.Closer, string, error) {
	if remoteFlag != "" {
		c, err := net.DialTimeout("tcp", remoteFlag, dialTimeout)
		if err != nil {
			return nil, nil, "", fmt.Errorf("failed to connect to %s: %w", remoteFlag, err)
		}
		fmt.Printf("Remote: %s\n", remoteFlag)
		return rsp.NewNetConn(c), c, remoteFlag, nil
	}

	portName := portFlag
	if portName == "" {
		fmt.Println("Detecting probe...")
		result, err := detect.DetectDevice(baudFlag)
		if err != nil {
			return nil, nil, "", fmt.Errorf("probe detection failed: %w", err)
		}
		portName = result.Port
		fmt.Printf("Found GDB stub on %s\n", result)
	}

	port, err := serial.Open(portName, baudFlag)
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to open port: %w", err)
	}
	fmt.Printf("Port: %s @ %d baud\n", port.PortName(), port.BaudRate())
	return port, port, portName, nil
}

func (s *session) Close() error {
	return s.conn.Close()
}

// withFlasher runs fn on the shell's session, or on a fresh connection
// closed afterwards.
func withFlasher(fn func(f *flasher.Flasher) error) error {
	if shared != nil {
		return fn(shared.flasher)
	}

	s, err := connect()
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s.flasher)
}
