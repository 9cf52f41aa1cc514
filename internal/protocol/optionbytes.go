package protocol

import "fmt"

// OptionBytes is a snapshot of the option byte record.
type OptionBytes struct {
	SPC  uint8
	User uint32
	WRP  [2]uint32
}

// Erased returns the option bytes as left by an option erase.
func Erased() OptionBytes {
	return OptionBytes{
		SPC:  SPCNone,
		User: OBUserErased,
		WRP:  [2]uint32{WRPDisabled, WRPDisabled},
	}
}

// Range is a write protect page range. A range with Start > End is disabled.
type Range struct {
	Start uint16
	End   uint16
}

// DecodeRange splits a FMC_OBWRPx value into its start and end pages.
func DecodeRange(reg uint32) Range {
	return Range{
		Start: uint16(reg & 0xFFFF),
		End:   uint16(reg >> 16),
	}
}

// Encode packs the range into a FMC_OBWRPx value.
func (r Range) Encode() uint32 {
	return uint32(r.End)<<16 | uint32(r.Start)
}

// Enabled reports whether the range protects any page.
func (r Range) Enabled() bool {
	return r.Start <= r.End
}

// Contains reports whether page lies inside an enabled range.
func (r Range) Contains(page uint32) bool {
	return r.Enabled() && uint32(r.Start) <= page && page <= uint32(r.End)
}

func (r Range) String() string {
	if !r.Enabled() {
		return "disabled"
	}
	return fmt.Sprintf("pages %d-%d", r.Start, r.End)
}

// MergeSPC replaces the low byte of a FMC_OBR value with spc.
func MergeSPC(obr uint32, spc uint8) uint32 {
	return obr&0xFFFFFF00 | uint32(spc)
}

// ProtectionFlags is the decoded FMC_OBSTAT.
type ProtectionFlags struct {
	Security     bool
	EraseProgram bool
}

// DecodeOBStat decodes the protection flags from FMC_OBSTAT.
func DecodeOBStat(obstat uint32) ProtectionFlags {
	return ProtectionFlags{
		Security:     obstat&OBStatSPC != 0,
		EraseProgram: obstat&OBStatWP != 0,
	}
}

// Any reports whether either protection is active.
func (p ProtectionFlags) Any() bool {
	return p.Security || p.EraseProgram
}

// OptionField names a field accepted by an option byte write.
type OptionField string

const (
	FieldUser OptionField = "USER"
	FieldSPC  OptionField = "SPC"
	FieldWRP0 OptionField = "WRP0"
	FieldWRP1 OptionField = "WRP1"
)

// ParseOptionField validates an option byte field name.
func ParseOptionField(name string) (OptionField, error) {
	switch f := OptionField(name); f {
	case FieldUser, FieldSPC, FieldWRP0, FieldWRP1:
		return f, nil
	}
	return "", fmt.Errorf("unknown option field %q (want USER, SPC, WRP0 or WRP1)", name)
}

// Set stores value into the named field of the snapshot.
func (o *OptionBytes) Set(field OptionField, value uint32) error {
	switch field {
	case FieldUser:
		o.User = value
	case FieldSPC:
		o.SPC = uint8(value)
	case FieldWRP0:
		o.WRP[0] = value
	case FieldWRP1:
		o.WRP[1] = value
	default:
		return fmt.Errorf("unknown option field %q", field)
	}
	return nil
}
