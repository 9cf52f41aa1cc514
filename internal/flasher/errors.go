package flasher

import (
	"errors"
	"fmt"

	"github.com/bigbag/gdflash/internal/target"
)

var (
	ErrTargetNotHalted = errors.New("target not halted")
	ErrTimeout         = errors.New("flash controller timed out")
	ErrWriteProtected  = errors.New("flash is write/erase protected")
	ErrFail            = errors.New("flash operation failed")
	ErrAlignment       = errors.New("offset must be word aligned")

	// ErrResourceUnavailable means no usable working area could be
	// allocated for a block write.
	ErrResourceUnavailable = target.ErrResourceUnavailable
)

// Option commit phases reported by CommitError.
const (
	PhaseErase = "erase"
	PhaseWrite = "write"
)

// CommitError reports which phase of an option byte commit failed.
type CommitError struct {
	Phase string
	Err   error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("option byte %s failed: %v", e.Phase, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

// HandshakeError indicates the write agent did not drain the previous chunk.
type HandshakeError struct {
	ReadPointer  uint32
	WritePointer uint32
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("block write handshake mismatch: rp = 0x%08X, wp = 0x%08X",
		e.ReadPointer, e.WritePointer)
}

func (e *HandshakeError) Unwrap() error {
	return ErrFail
}

// ExecError indicates the write agent failed to run to completion.
type ExecError struct {
	Address uint32
	Err     error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("failed to execute write agent at 0x%08X: %v", e.Address, e.Err)
}

func (e *ExecError) Unwrap() []error {
	return []error{ErrFail, e.Err}
}
