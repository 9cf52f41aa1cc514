package rsp

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// RISC-V register numbers as used by gdb.
const (
	RegRA = 1
	RegSP = 2
	RegA0 = 10
	RegPC = 32
)

// Signals reported in stop replies
const (
	SigInt  = 0x02
	SigTrap = 0x05
)

// RemoteError is an Exx reply.
type RemoteError struct {
	Code byte
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error E%02X", e.Code)
}

// StopReply is the decoded answer to '?', 'c' or an interrupt.
type StopReply struct {
	Signal byte
	Exited bool
}

// ReadMemoryCommand returns "m addr,length".
func ReadMemoryCommand(addr uint32, length int) string {
	return fmt.Sprintf("m%x,%x", addr, length)
}

// WriteMemoryCommand returns "M addr,length:XX..." with data hex encoded.
func WriteMemoryCommand(addr uint32, data []byte) string {
	return fmt.Sprintf("M%x,%x:%s", addr, len(data), hex.EncodeToString(data))
}

// ReadRegisterCommand returns "p n".
func ReadRegisterCommand(reg int) string {
	return fmt.Sprintf("p%x", reg)
}

// WriteRegisterCommand returns "P n=value" with value in target byte order.
func WriteRegisterCommand(reg int, value uint32) string {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], value)
	return fmt.Sprintf("P%x=%s", reg, hex.EncodeToString(b[:]))
}

// CheckOK verifies an "OK" reply.
func CheckOK(reply []byte) error {
	if err := ParseError(reply); err != nil {
		return err
	}
	if string(reply) != "OK" {
		return fmt.Errorf("unexpected reply %q", reply)
	}
	return nil
}

// ParseError returns a *RemoteError for an Exx reply and nil otherwise.
func ParseError(reply []byte) error {
	if len(reply) == 3 && reply[0] == 'E' {
		var code [1]byte
		if _, err := hex.Decode(code[:], reply[1:]); err == nil {
			return &RemoteError{Code: code[0]}
		}
	}
	return nil
}

// ParseHexData decodes a memory or register reply.
func ParseHexData(reply []byte) ([]byte, error) {
	if err := ParseError(reply); err != nil {
		return nil, err
	}
	data := make([]byte, hex.DecodedLen(len(reply)))
	if _, err := hex.Decode(data, reply); err != nil {
		return nil, fmt.Errorf("bad hex reply %q: %w", reply, err)
	}
	return data, nil
}

// ParseRegister decodes a 32-bit register value.
func ParseRegister(reply []byte) (uint32, error) {
	data, err := ParseHexData(reply)
	if err != nil {
		return 0, err
	}
	if len(data) < 4 {
		return 0, fmt.Errorf("register reply too short: %q", reply)
	}
	return binary.LittleEndian.Uint32(data), nil
}

// ParseStopReply decodes S, T, W and X packets.
func ParseStopReply(reply []byte) (StopReply, error) {
	if len(reply) < 3 {
		return StopReply{}, fmt.Errorf("stop reply too short: %q", reply)
	}
	var sig [1]byte
	if _, err := hex.Decode(sig[:], reply[1:3]); err != nil {
		return StopReply{}, fmt.Errorf("bad stop reply %q", reply)
	}

	switch reply[0] {
	case 'S', 'T':
		return StopReply{Signal: sig[0]}, nil
	case 'W', 'X':
		return StopReply{Signal: sig[0], Exited: true}, nil
	}
	return StopReply{}, fmt.Errorf("not a stop reply: %q", reply)
}

// isConsoleOutput reports whether a packet is an 'O' console message.
func isConsoleOutput(reply []byte) bool {
	return len(reply) > 1 && reply[0] == 'O' && string(reply) != "OK"
}
