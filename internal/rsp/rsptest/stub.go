// Package rsptest provides an in-memory GDB stub for tests.
package rsptest

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/bigbag/gdflash/internal/rsp"
)

// Stub emulates a halted RISC-V core with sparse memory.
type Stub struct {
	mu      sync.Mutex
	mem     map[uint32]byte
	regs    [33]uint32
	running bool

	// OnContinue runs when the client resumes the core. It may change
	// memory and registers through the Stub methods. Returning false
	// leaves the core running until interrupted.
	OnContinue func(s *Stub) bool

	// Commands records every packet received, in order.
	Commands []string

	// NakNext makes the stub reject the next n packets.
	NakNext int
}

// New returns an empty stub.
func New() *Stub {
	return &Stub{mem: make(map[uint32]byte)}
}

// Start serves the stub on one end of a pipe and returns a client
// connection to it.
func (s *Stub) Start() *rsp.NetConn {
	client, server := net.Pipe()
	go s.serve(server)
	return rsp.NewNetConn(client)
}

// Reg returns a register without locking; call only from OnContinue or
// after the client is done.
func (s *Stub) Reg(n int) uint32 { return s.regs[n] }

// SetReg sets a register; same rules as Reg.
func (s *Stub) SetReg(n int, v uint32) { s.regs[n] = v }

// Mem reads memory.
func (s *Stub) Mem(addr uint32, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = s.mem[addr+uint32(i)]
	}
	return out
}

// SetMem writes memory.
func (s *Stub) SetMem(addr uint32, data []byte) {
	for i, b := range data {
		s.mem[addr+uint32(i)] = b
	}
}

// U32 reads a little-endian word.
func (s *Stub) U32(addr uint32) uint32 {
	return binary.LittleEndian.Uint32(s.Mem(addr, 4))
}

// SetU32 writes a little-endian word.
func (s *Stub) SetU32(addr, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	s.SetMem(addr, b[:])
}

func (s *Stub) serve(conn net.Conn) {
	defer conn.Close()

	var pending []byte
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		pending = append(pending, buf[:n]...)

		for {
			if len(pending) > 0 && pending[0] == rsp.Interrupt {
				pending = pending[1:]
				s.mu.Lock()
				wasRunning := s.running
				s.running = false
				s.mu.Unlock()
				if wasRunning {
					conn.Write(rsp.Encode([]byte(fmt.Sprintf("T%02x", rsp.SigInt))))
				}
				continue
			}

			frame, rest := rsp.ReadFrame(pending)
			if frame == nil {
				// Drop acks and keep any partial packet.
				if i := strings.IndexByte(string(pending), rsp.Start); i > 0 {
					pending = pending[i:]
				} else if i < 0 {
					pending = pending[:0]
				}
				break
			}
			pending = rest

			if s.NakNext > 0 {
				s.NakNext--
				conn.Write([]byte{rsp.Nak})
				continue
			}
			conn.Write([]byte{rsp.Ack})

			data, err := rsp.Decode(frame)
			if err != nil {
				continue
			}
			if reply, ok := s.handle(string(data)); ok {
				conn.Write(rsp.Encode([]byte(reply)))
			}
		}
	}
}

func (s *Stub) handle(cmd string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Commands = append(s.Commands, cmd)

	switch {
	case cmd == "?":
		return fmt.Sprintf("S%02x", rsp.SigTrap), true

	case cmd == "c":
		s.running = true
		if s.OnContinue != nil && !s.OnContinue(s) {
			return "", false
		}
		s.running = false
		return fmt.Sprintf("T%02x", rsp.SigTrap), true

	case strings.HasPrefix(cmd, "m"):
		addr, length, ok := parseAddrLen(cmd[1:])
		if !ok {
			return "E01", true
		}
		return hex.EncodeToString(s.Mem(addr, length)), true

	case strings.HasPrefix(cmd, "M"):
		head, payload, found := strings.Cut(cmd[1:], ":")
		addr, length, ok := parseAddrLen(head)
		if !found || !ok {
			return "E01", true
		}
		data, err := hex.DecodeString(payload)
		if err != nil || len(data) != length {
			return "E02", true
		}
		s.SetMem(addr, data)
		return "OK", true

	case strings.HasPrefix(cmd, "p"):
		n, err := strconv.ParseUint(cmd[1:], 16, 8)
		if err != nil || int(n) >= len(s.regs) {
			return "E03", true
		}
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], s.regs[n])
		return hex.EncodeToString(b[:]), true

	case strings.HasPrefix(cmd, "P"):
		reg, val, found := strings.Cut(cmd[1:], "=")
		n, err := strconv.ParseUint(reg, 16, 8)
		b, herr := hex.DecodeString(val)
		if !found || err != nil || herr != nil || len(b) != 4 || int(n) >= len(s.regs) {
			return "E03", true
		}
		s.regs[n] = binary.LittleEndian.Uint32(b)
		return "OK", true
	}

	return "", true
}

func parseAddrLen(s string) (uint32, int, bool) {
	a, l, found := strings.Cut(s, ",")
	if !found {
		return 0, 0, false
	}
	addr, err := strconv.ParseUint(a, 16, 32)
	if err != nil {
		return 0, 0, false
	}
	length, err := strconv.ParseUint(l, 16, 32)
	if err != nil {
		return 0, 0, false
	}
	return uint32(addr), int(length), true
}
