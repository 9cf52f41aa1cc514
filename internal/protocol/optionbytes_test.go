package protocol

import (
	"strings"
	"testing"
)

func TestDecodeRange(t *testing.T) {
	tests := []struct {
		reg     uint32
		start   uint16
		end     uint16
		enabled bool
	}{
		{WRPDisabled, 0x3FF, 0, false},
		{500<<16 | 5, 5, 500, true},
		{0, 0, 0, true},
		{3<<16 | 4, 4, 3, false},
	}

	for _, tc := range tests {
		r := DecodeRange(tc.reg)
		if r.Start != tc.start || r.End != tc.end {
			t.Errorf("DecodeRange(0x%08X) = (%d, %d), want (%d, %d)", tc.reg, r.Start, r.End, tc.start, tc.end)
		}
		if r.Enabled() != tc.enabled {
			t.Errorf("DecodeRange(0x%08X).Enabled() = %v, want %v", tc.reg, r.Enabled(), tc.enabled)
		}
	}
}

func TestRangeEncode(t *testing.T) {
	r := Range{Start: 10, End: 20}
	if got := r.Encode(); got != 20<<16|10 {
		t.Errorf("Encode() = 0x%08X, want 0x%08X", got, 20<<16|10)
	}
}

func TestRangeContains(t *testing.T) {
	r := Range{Start: 5, End: 500}
	for _, page := range []uint32{5, 6, 250, 500} {
		if !r.Contains(page) {
			t.Errorf("Contains(%d) = false, want true", page)
		}
	}
	for _, page := range []uint32{0, 4, 501, 1023} {
		if r.Contains(page) {
			t.Errorf("Contains(%d) = true, want false", page)
		}
	}

	disabled := DecodeRange(WRPDisabled)
	for page := uint32(0); page < 1024; page++ {
		if disabled.Contains(page) {
			t.Fatalf("disabled range contains page %d", page)
		}
	}
}

func TestRangeString(t *testing.T) {
	if s := DecodeRange(WRPDisabled).String(); s != "disabled" {
		t.Errorf("String() = %q, want %q", s, "disabled")
	}
	if s := (Range{Start: 1, End: 2}).String(); !strings.Contains(s, "1-2") {
		t.Errorf("String() = %q, want pages 1-2", s)
	}
}

func TestMergeSPC(t *testing.T) {
	tests := []struct {
		obr      uint32
		spc      uint8
		expected uint32
	}{
		{OBRErased, SPCNone, 0x00000EAA},
		{OBRErased, SPCLevel1, 0x00000E00},
		{0x12345678, 0xAA, 0x123456AA},
	}

	for _, tc := range tests {
		result := MergeSPC(tc.obr, tc.spc)
		if result != tc.expected {
			t.Errorf("MergeSPC(0x%08X, 0x%02X) = 0x%08X, want 0x%08X", tc.obr, tc.spc, result, tc.expected)
		}
	}
}

func TestDecodeOBStat(t *testing.T) {
	tests := []struct {
		obstat   uint32
		expected ProtectionFlags
	}{
		{0, ProtectionFlags{}},
		{OBStatSPC, ProtectionFlags{Security: true}},
		{OBStatWP, ProtectionFlags{EraseProgram: true}},
		{0xFFFFFFFF, ProtectionFlags{Security: true, EraseProgram: true}},
		{0x01, ProtectionFlags{}},
	}

	for _, tc := range tests {
		result := DecodeOBStat(tc.obstat)
		if result != tc.expected {
			t.Errorf("DecodeOBStat(0x%X) = %+v, want %+v", tc.obstat, result, tc.expected)
		}
		if result.Any() != (tc.expected.Security || tc.expected.EraseProgram) {
			t.Errorf("DecodeOBStat(0x%X).Any() = %v", tc.obstat, result.Any())
		}
	}
}

func TestErased(t *testing.T) {
	ob := Erased()
	if ob.SPC != 0xAA || ob.User != 0xFFFFFFFF || ob.WRP != [2]uint32{0x3FF, 0x3FF} {
		t.Errorf("Erased() = %+v", ob)
	}
}

func TestOptionField(t *testing.T) {
	var ob OptionBytes
	values := map[string]uint32{
		"USER": 0x11223344,
		"SPC":  0x1AA,
		"WRP0": 0x00140005,
		"WRP1": 0x3FF,
	}
	for name, v := range values {
		f, err := ParseOptionField(name)
		if err != nil {
			t.Fatalf("ParseOptionField(%q) error = %v", name, err)
		}
		if err := ob.Set(f, v); err != nil {
			t.Fatalf("Set(%q) error = %v", name, err)
		}
	}

	want := OptionBytes{SPC: 0xAA, User: 0x11223344, WRP: [2]uint32{0x00140005, 0x3FF}}
	if ob != want {
		t.Errorf("OptionBytes = %+v, want %+v", ob, want)
	}

	for _, bad := range []string{"", "user", "WRP2", "OBR"} {
		if _, err := ParseOptionField(bad); err == nil {
			t.Errorf("ParseOptionField(%q) expected error, got nil", bad)
		}
	}
}
