// Package target defines the access layer the flash driver uses to reach
// the microcontroller: register and memory transfers, halt state, scratch
// memory and algorithm execution.
package target

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrResourceUnavailable is returned when no working area of the
	// requested size can be allocated.
	ErrResourceUnavailable = errors.New("target resource not available")

	// ErrAlgorithmTimeout is returned when an algorithm does not halt
	// within its budget.
	ErrAlgorithmTimeout = errors.New("algorithm timed out")
)

// Direction tells RunAlgorithm whether a parameter is read back.
type Direction int

const (
	DirOut Direction = iota
	DirInOut
)

// Param is a core register handed to an algorithm.
type Param struct {
	Name  string
	Value uint32
	Dir   Direction
}

// WorkingArea is a block of target RAM reserved for the host.
type WorkingArea struct {
	Address uint32
	Size    uint32
}

func (w *WorkingArea) String() string {
	return fmt.Sprintf("0x%08X+%d", w.Address, w.Size)
}

// Target is the primitive read/write/execute capability of a connected
// microcontroller.
type Target interface {
	ReadU16(addr uint32) (uint16, error)
	ReadU32(addr uint32) (uint32, error)
	WriteU32(addr uint32, value uint32) error

	// ReadBuffer and WriteBuffer transfer len(p) bytes of target memory.
	ReadBuffer(addr uint32, p []byte) error
	WriteBuffer(addr uint32, p []byte) error

	Halted() (bool, error)

	AllocWorkingArea(size uint32) (*WorkingArea, error)
	FreeWorkingArea(area *WorkingArea) error

	// RunAlgorithm starts execution at entry with params loaded into their
	// registers and waits for the core to halt at exit. DirInOut params are
	// updated with the values found after the halt.
	RunAlgorithm(entry, exit uint32, params []Param, timeout time.Duration) error

	Sleep(d time.Duration)
}
