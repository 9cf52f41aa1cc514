package target

import (
	"errors"
	"testing"
	"time"

	"github.com/bigbag/gdflash/internal/rsp"
	"github.com/bigbag/gdflash/internal/rsp/rsptest"
)

func newRemote(t *testing.T, stub *rsptest.Stub) *Remote {
	t.Helper()
	conn := stub.Start()
	t.Cleanup(func() { conn.Close() })
	client := rsp.New(conn, rsp.Config{Timeout: time.Second})
	return NewRemote(client, NewWorkingAreaPool(0x20000000, 0x8000))
}

func TestRemote_Memory(t *testing.T) {
	stub := rsptest.New()
	stub.SetU32(0x1FFFF7E0, 0x0FFF0400)
	r := newRemote(t, stub)

	v16, err := r.ReadU16(0x1FFFF7E0)
	if err != nil {
		t.Fatalf("ReadU16() error = %v", err)
	}
	if v16 != 0x0400 {
		t.Errorf("ReadU16() = 0x%04X, want 0x0400", v16)
	}

	if err := r.WriteU32(0x40022010, 0x80); err != nil {
		t.Fatalf("WriteU32() error = %v", err)
	}
	v, err := r.ReadU32(0x40022010)
	if err != nil {
		t.Fatalf("ReadU32() error = %v", err)
	}
	if v != 0x80 {
		t.Errorf("ReadU32() = 0x%X, want 0x80", v)
	}
}

func TestRemote_Halted(t *testing.T) {
	r := newRemote(t, rsptest.New())

	halted, err := r.Halted()
	if err != nil {
		t.Fatalf("Halted() error = %v", err)
	}
	if !halted {
		t.Error("Halted() = false, want true")
	}
	if err := r.Halt(); err != nil {
		t.Errorf("Halt() on halted core error = %v", err)
	}
}

func TestRemote_RunAlgorithm(t *testing.T) {
	stub := rsptest.New()
	stub.SetReg(rsp.RegPC, 0x08000100)
	stub.SetReg(rsp.RegA0+4, 0x11111111)

	var sawPC, sawA1 uint32
	stub.OnContinue = func(s *rsptest.Stub) bool {
		sawPC = s.Reg(rsp.RegPC)
		sawA1 = s.Reg(rsp.RegA0 + 1)
		s.SetReg(rsp.RegA0, 0)
		s.SetReg(rsp.RegA0+4, s.Reg(rsp.RegA0+4)+4*s.Reg(rsp.RegA0+1))
		s.SetReg(rsp.RegPC, s.Reg(rsp.RegRA))
		return true
	}
	r := newRemote(t, stub)

	params := []Param{
		{Name: "a0", Value: 0x40022000, Dir: DirInOut},
		{Name: "a1", Value: 16, Dir: DirOut},
		{Name: "a4", Value: 0x08001000, Dir: DirInOut},
	}
	if err := r.RunAlgorithm(0x20000000, 0x20000004, params, time.Second); err != nil {
		t.Fatalf("RunAlgorithm() error = %v", err)
	}

	if sawPC != 0x20000000 || sawA1 != 16 {
		t.Errorf("algorithm saw pc=0x%08X a1=%d, want pc=0x20000000 a1=16", sawPC, sawA1)
	}
	if params[0].Value != 0 {
		t.Errorf("a0 out = 0x%X, want 0", params[0].Value)
	}
	if params[2].Value != 0x08001040 {
		t.Errorf("a4 out = 0x%08X, want 0x08001040", params[2].Value)
	}
	if params[1].Value != 16 {
		t.Errorf("a1 (out only) = %d, want unchanged 16", params[1].Value)
	}

	// registers restored
	if stub.Reg(rsp.RegPC) != 0x08000100 || stub.Reg(rsp.RegA0+4) != 0x11111111 {
		t.Errorf("registers not restored: pc=0x%08X a4=0x%08X", stub.Reg(rsp.RegPC), stub.Reg(rsp.RegA0+4))
	}
}

func TestRemote_RunAlgorithmWrongExit(t *testing.T) {
	stub := rsptest.New()
	stub.OnContinue = func(s *rsptest.Stub) bool {
		s.SetReg(rsp.RegPC, 0x20000040)
		return true
	}
	r := newRemote(t, stub)

	if err := r.RunAlgorithm(0x20000000, 0x20000004, nil, time.Second); err == nil {
		t.Fatal("RunAlgorithm() expected error for wrong halt address, got nil")
	}
}

func TestRemote_RunAlgorithmTimeout(t *testing.T) {
	stub := rsptest.New()
	stub.OnContinue = func(s *rsptest.Stub) bool { return false }
	r := newRemote(t, stub)

	err := r.RunAlgorithm(0x20000000, 0x20000004, nil, 200*time.Millisecond)
	if !errors.Is(err, ErrAlgorithmTimeout) {
		t.Fatalf("RunAlgorithm() error = %v, want ErrAlgorithmTimeout", err)
	}
	if halted, _ := r.Halted(); !halted {
		t.Error("core not halted after algorithm timeout")
	}
}

func TestRemote_UnknownRegister(t *testing.T) {
	r := newRemote(t, rsptest.New())
	err := r.RunAlgorithm(0x20000000, 0x20000004, []Param{{Name: "t9"}}, time.Second)
	if err == nil {
		t.Fatal("RunAlgorithm() with unknown register expected error, got nil")
	}
}

func TestRemote_WorkingAreas(t *testing.T) {
	r := newRemote(t, rsptest.New())

	a, err := r.AllocWorkingArea(0x4000)
	if err != nil {
		t.Fatalf("AllocWorkingArea() error = %v", err)
	}
	if _, err := r.AllocWorkingArea(0x8000); !errors.Is(err, ErrResourceUnavailable) {
		t.Errorf("AllocWorkingArea(too big) error = %v, want ErrResourceUnavailable", err)
	}
	if err := r.FreeWorkingArea(a); err != nil {
		t.Errorf("FreeWorkingArea() error = %v", err)
	}
}
