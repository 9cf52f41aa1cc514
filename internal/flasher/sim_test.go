package flasher

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/bigbag/gdflash/embedded"
	"github.com/bigbag/gdflash/internal/protocol"
	"github.com/bigbag/gdflash/internal/target"
)

const (
	simRAMBase = 0x20000000
	simDevID   = 0x1000F5A1
)

var errTransport = errors.New("transport failure")

type access struct {
	Write bool
	Addr  uint32
	Value uint32
}

type agentRun struct {
	Words   uint32
	Address uint32
}

// simTarget emulates the flash controller, the flash array and a RAM
// window for working areas.
type simTarget struct {
	halted      bool
	flashSizeKB uint16
	flash       []byte
	regs        map[uint32]uint32
	ram         map[uint32]byte
	pool        *target.WorkingAreaPool

	// fault injection
	lockStuck      bool
	obwenStuck     bool
	busyPolls      int // busy reads after each started operation
	busyForever    bool
	wpErrOnStart   bool
	wpErrOnProgram bool
	runErr         error
	skipDrain      bool
	failRead       map[uint32]error
	failWrite      map[uint32]error
	failCtlBits    uint32 // CTL writes with any of these bits fail

	keyStage   int
	obKeyStage int
	pendBusy   int

	trace       []access
	runs        []agentRun
	sleeps      int
	erasedPages []uint32
	massErases  int
	obStarts    int
	reloads     int
	agentLoaded bool
}

func newSimTarget(flashSizeKB uint16, ramSize uint32) *simTarget {
	s := &simTarget{
		halted:      true,
		flashSizeKB: flashSizeKB,
		flash:       bytes.Repeat([]byte{0xFF}, int(flashSizeKB)*1024),
		regs: map[uint32]uint32{
			protocol.RegCtl:    protocol.CtlLock,
			protocol.RegOBR:    protocol.OBRErased,
			protocol.RegOBUser: protocol.OBUserErased,
			protocol.RegOBWRP0: protocol.WRPDisabled,
			protocol.RegOBWRP1: protocol.WRPDisabled,
		},
		ram:       make(map[uint32]byte),
		pool:      target.NewWorkingAreaPool(simRAMBase, ramSize),
		failRead:  make(map[uint32]error),
		failWrite: make(map[uint32]error),
	}
	return s
}

func (s *simTarget) inFlash(addr uint32) bool {
	return addr >= protocol.BankBase && addr < protocol.BankBase+uint32(len(s.flash))
}

func (s *simTarget) writes() []access {
	var out []access
	for _, a := range s.trace {
		if a.Write {
			out = append(out, a)
		}
	}
	return out
}

func (s *simTarget) writesTo(addr uint32) []uint32 {
	var out []uint32
	for _, a := range s.trace {
		if a.Write && a.Addr == addr {
			out = append(out, a.Value)
		}
	}
	return out
}

func (s *simTarget) locked() bool {
	return s.regs[protocol.RegCtl]&protocol.CtlLock != 0
}

func (s *simTarget) start() {
	s.pendBusy = s.busyPolls
	if s.wpErrOnStart {
		s.regs[protocol.RegStat] |= protocol.StatWPErr
	}
}

func (s *simTarget) program(addr, value uint32) {
	if s.locked() || s.regs[protocol.RegCtl]&protocol.CtlPG == 0 {
		s.regs[protocol.RegStat] |= protocol.StatPGErr
		return
	}
	if s.wpErrOnProgram {
		s.regs[protocol.RegStat] |= protocol.StatWPErr
		return
	}
	off := addr - protocol.BankBase
	old := binary.LittleEndian.Uint32(s.flash[off:])
	binary.LittleEndian.PutUint32(s.flash[off:], old&value)
	s.pendBusy = s.busyPolls
}

func (s *simTarget) writeCtl(v uint32) {
	if v&protocol.CtlLock != 0 {
		s.regs[protocol.RegCtl] = protocol.CtlLock
		return
	}
	if s.locked() {
		return
	}
	s.regs[protocol.RegCtl] = v

	if v&protocol.CtlStart != 0 {
		switch {
		case v&protocol.CtlPER != 0:
			addr := s.regs[protocol.RegAddr]
			page := (addr - protocol.BankBase) / protocol.PageSize
			s.erasedPages = append(s.erasedPages, page)
			copy(s.flash[page*protocol.PageSize:(page+1)*protocol.PageSize], bytes.Repeat([]byte{0xFF}, protocol.PageSize))
		case v&protocol.CtlMER != 0:
			s.massErases++
			copy(s.flash, bytes.Repeat([]byte{0xFF}, len(s.flash)))
		}
		s.start()
	}
	if v&protocol.CtlOBStart != 0 && v&protocol.CtlOBWEn != 0 {
		s.obStarts++
		s.start()
	}
	if v&protocol.CtlOBRld != 0 {
		s.reloads++
	}
}

func (s *simTarget) ReadU16(addr uint32) (uint16, error) {
	if err := s.failRead[addr]; err != nil {
		return 0, err
	}
	if addr == protocol.FlashSizeAddress {
		return s.flashSizeKB, nil
	}
	return 0, fmt.Errorf("unexpected 16-bit read at 0x%08X", addr)
}

func (s *simTarget) ReadU32(addr uint32) (uint32, error) {
	if err := s.failRead[addr]; err != nil {
		return 0, err
	}
	s.trace = append(s.trace, access{Addr: addr})

	switch {
	case addr == protocol.DebugIDAddress:
		return simDevID, nil
	case addr == protocol.RegStat:
		stat := s.regs[protocol.RegStat]
		if s.busyForever {
			return stat | protocol.StatBusy, nil
		}
		if s.pendBusy > 0 {
			s.pendBusy--
			return stat | protocol.StatBusy, nil
		}
		return stat, nil
	case s.inFlash(addr):
		return binary.LittleEndian.Uint32(s.flash[addr-protocol.BankBase:]), nil
	case addr >= simRAMBase && addr < protocol.FMCBase:
		var b [4]byte
		for i := range b {
			b[i] = s.ram[addr+uint32(i)]
		}
		return binary.LittleEndian.Uint32(b[:]), nil
	}
	return s.regs[addr], nil
}

func (s *simTarget) WriteU32(addr, value uint32) error {
	if err := s.failWrite[addr]; err != nil {
		return err
	}
	if addr == protocol.RegCtl && value&s.failCtlBits != 0 {
		return errTransport
	}
	s.trace = append(s.trace, access{Write: true, Addr: addr, Value: value})

	switch {
	case addr == protocol.RegKey:
		if value == protocol.UnlockKey0 {
			s.keyStage = 1
		} else if value == protocol.UnlockKey1 && s.keyStage == 1 {
			s.keyStage = 0
			if !s.lockStuck {
				s.regs[protocol.RegCtl] &^= protocol.CtlLock
			}
		} else {
			s.keyStage = 0
		}
	case addr == protocol.RegOBKey:
		if value == protocol.UnlockKey0 {
			s.obKeyStage = 1
		} else if value == protocol.UnlockKey1 && s.obKeyStage == 1 {
			s.obKeyStage = 0
			if !s.obwenStuck && !s.locked() {
				s.regs[protocol.RegCtl] |= protocol.CtlOBWEn
			}
		} else {
			s.obKeyStage = 0
		}
	case addr == protocol.RegCtl:
		s.writeCtl(value)
	case addr == protocol.RegStat:
		s.regs[protocol.RegStat] &^= value
	case s.inFlash(addr):
		s.program(addr, value)
	case addr >= simRAMBase && addr < protocol.FMCBase:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], value)
		for i := range b {
			s.ram[addr+uint32(i)] = b[i]
		}
	default:
		s.regs[addr] = value
	}
	return nil
}

func (s *simTarget) ReadBuffer(addr uint32, p []byte) error {
	for i := range p {
		p[i] = s.ram[addr+uint32(i)]
	}
	return nil
}

func (s *simTarget) WriteBuffer(addr uint32, p []byte) error {
	if err := s.failWrite[addr]; err != nil {
		return err
	}
	for i, b := range p {
		s.ram[addr+uint32(i)] = b
	}
	return nil
}

func (s *simTarget) Halted() (bool, error) {
	return s.halted, nil
}

func (s *simTarget) AllocWorkingArea(size uint32) (*target.WorkingArea, error) {
	return s.pool.Alloc(size)
}

func (s *simTarget) FreeWorkingArea(area *target.WorkingArea) error {
	return s.pool.Free(area)
}

// RunAlgorithm plays the write agent: drain the FIFO into flash until the
// word count is used up or the controller flags an error.
func (s *simTarget) RunAlgorithm(entry, exit uint32, params []target.Param, timeout time.Duration) error {
	reg := make(map[string]uint32)
	for _, p := range params {
		reg[p.Name] = p.Value
	}
	s.runs = append(s.runs, agentRun{Words: reg["a1"], Address: reg["a4"]})

	agent := embedded.WriteAgent()
	code := make([]byte, len(agent))
	s.ReadBuffer(entry-embedded.WriteAgentEntry, code)
	s.agentLoaded = bytes.Equal(code, agent) && exit == entry+embedded.WriteAgentExit

	if s.runErr != nil {
		return s.runErr
	}

	start, end := reg["a2"], reg["a3"]
	wp, _ := s.ReadU32(start)
	rp, _ := s.ReadU32(start + 4)
	addr := reg["a4"]
	words := reg["a1"]
	for words > 0 && !s.skipDrain {
		if rp == wp {
			return fmt.Errorf("agent starved at 0x%08X: %w", rp, target.ErrAlgorithmTimeout)
		}
		v, _ := s.ReadU32(rp)
		s.program(addr, v)
		rp += 4
		addr += 4
		s.pendBusy = 0
		if s.regs[protocol.RegStat]&(protocol.StatWPErr|protocol.StatPGErr) != 0 {
			rp = 0
			s.WriteU32(start+4, rp)
			break
		}
		if rp >= end {
			rp = start + 8
		}
		s.WriteU32(start+4, rp)
		words--
	}

	for i := range params {
		switch params[i].Name {
		case "a0":
			params[i].Value = s.regs[protocol.RegStat]
		case "a4":
			params[i].Value = addr
		}
	}
	return nil
}

func (s *simTarget) Sleep(d time.Duration) {
	s.sleeps++
}
