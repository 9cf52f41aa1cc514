package target

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/bigbag/gdflash/internal/rsp"
)

// riscvRegs maps ABI names to gdb register numbers.
var riscvRegs = map[string]int{
	"ra": rsp.RegRA,
	"sp": rsp.RegSP,
	"a0": rsp.RegA0,
	"a1": rsp.RegA0 + 1,
	"a2": rsp.RegA0 + 2,
	"a3": rsp.RegA0 + 3,
	"a4": rsp.RegA0 + 4,
	"a5": rsp.RegA0 + 5,
	"a6": rsp.RegA0 + 6,
	"a7": rsp.RegA0 + 7,
	"pc": rsp.RegPC,
}

var _ Target = (*Remote)(nil)

// Remote is a RISC-V target reached through a GDB stub.
type Remote struct {
	client *rsp.Client
	pool   *WorkingAreaPool
	halted bool
	known  bool
}

// NewRemote creates a target on an RSP client. Working areas are carved
// out of pool.
func NewRemote(client *rsp.Client, pool *WorkingAreaPool) *Remote {
	return &Remote{client: client, pool: pool}
}

// Halt stops the core if it is running.
func (r *Remote) Halt() error {
	halted, err := r.Halted()
	if err != nil {
		return err
	}
	if halted {
		return nil
	}

	if _, err := r.client.Interrupt(); err != nil {
		return fmt.Errorf("failed to halt target: %w", err)
	}
	r.halted = true
	return nil
}

// Halted reports whether the core is stopped in debug mode.
func (r *Remote) Halted() (bool, error) {
	if r.known {
		return r.halted, nil
	}

	reply, err := r.client.StopReason()
	if err != nil {
		return false, fmt.Errorf("failed to query target state: %w", err)
	}
	r.halted = !reply.Exited
	r.known = true
	return r.halted, nil
}

func (r *Remote) ReadU16(addr uint32) (uint16, error) {
	var b [2]byte
	if err := r.client.ReadMemory(addr, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func (r *Remote) ReadU32(addr uint32) (uint32, error) {
	var b [4]byte
	if err := r.client.ReadMemory(addr, b[:]); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(b[:])
	glog.V(4).Infof("read 0x%08X = 0x%08X", addr, v)
	return v, nil
}

func (r *Remote) WriteU32(addr uint32, value uint32) error {
	glog.V(4).Infof("write 0x%08X = 0x%08X", addr, value)
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], value)
	return r.client.WriteMemory(addr, b[:])
}

func (r *Remote) ReadBuffer(addr uint32, p []byte) error {
	return r.client.ReadMemory(addr, p)
}

func (r *Remote) WriteBuffer(addr uint32, p []byte) error {
	return r.client.WriteMemory(addr, p)
}

func (r *Remote) AllocWorkingArea(size uint32) (*WorkingArea, error) {
	return r.pool.Alloc(size)
}

func (r *Remote) FreeWorkingArea(area *WorkingArea) error {
	return r.pool.Free(area)
}

// RunAlgorithm runs code already placed in target memory. The return
// address register is pointed at exit, where the code must hit a
// breakpoint. Core registers touched here are restored afterwards.
func (r *Remote) RunAlgorithm(entry, exit uint32, params []Param, timeout time.Duration) error {
	regs := []int{rsp.RegRA, rsp.RegPC}
	for _, p := range params {
		n, ok := riscvRegs[p.Name]
		if !ok {
			return fmt.Errorf("unknown register %q", p.Name)
		}
		regs = append(regs, n)
	}

	saved := make(map[int]uint32, len(regs))
	for _, n := range regs {
		v, err := r.client.ReadRegister(n)
		if err != nil {
			return fmt.Errorf("failed to save register %d: %w", n, err)
		}
		saved[n] = v
	}
	defer func() {
		for n, v := range saved {
			if err := r.client.WriteRegister(n, v); err != nil {
				glog.Warningf("failed to restore register %d: %v", n, err)
			}
		}
	}()

	for _, p := range params {
		if err := r.client.WriteRegister(riscvRegs[p.Name], p.Value); err != nil {
			return err
		}
	}
	if err := r.client.WriteRegister(rsp.RegRA, exit); err != nil {
		return err
	}
	if err := r.client.WriteRegister(rsp.RegPC, entry); err != nil {
		return err
	}

	glog.V(2).Infof("running algorithm at 0x%08X (exit 0x%08X, timeout %v)", entry, exit, timeout)
	r.halted = false
	reply, err := r.client.Continue(timeout)
	if errors.Is(err, rsp.ErrTimeout) {
		if _, ierr := r.client.Interrupt(); ierr != nil {
			glog.Errorf("failed to halt algorithm: %v", ierr)
			r.known = false
			return fmt.Errorf("%w after %v", ErrAlgorithmTimeout, timeout)
		}
		r.halted = true
		return fmt.Errorf("%w after %v", ErrAlgorithmTimeout, timeout)
	}
	if err != nil {
		r.known = false
		return err
	}
	if reply.Exited {
		r.known = false
		return fmt.Errorf("target exited with status %d while running algorithm", reply.Signal)
	}
	r.halted = true

	pc, err := r.client.ReadRegister(rsp.RegPC)
	if err != nil {
		return err
	}
	if pc != exit {
		return fmt.Errorf("algorithm stopped at 0x%08X, expected 0x%08X (signal %d)", pc, exit, reply.Signal)
	}

	for i := range params {
		if params[i].Dir != DirInOut {
			continue
		}
		v, err := r.client.ReadRegister(riscvRegs[params[i].Name])
		if err != nil {
			return err
		}
		params[i].Value = v
	}
	return nil
}

func (r *Remote) Sleep(d time.Duration) {
	time.Sleep(d)
}
