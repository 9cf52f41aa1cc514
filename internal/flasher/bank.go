package flasher

import (
	"github.com/bigbag/gdflash/internal/protocol"
)

// EraseState is the known erase status of a sector.
type EraseState int

const (
	Unknown EraseState = iota
	Erased
	Dirty
)

func (s EraseState) String() string {
	switch s {
	case Erased:
		return "erased"
	case Dirty:
		return "dirty"
	default:
		return "unknown"
	}
}

// Sector is one erasable page of the bank.
type Sector struct {
	Offset    uint32
	Size      uint32
	Erased    EraseState
	Protected bool
}

// Identity is what the probe learned about the device.
type Identity struct {
	DeviceID    uint32
	FlashSizeKB uint32

	// Configured is set when the size came from configuration rather
	// than the flash size register.
	Configured bool
}

// Bank is the driver's record of the flash bank and its option bytes.
type Bank struct {
	Base     uint32
	Size     uint32
	PageSize uint32
	Sectors  []Sector
	Identity Identity

	// Options is the option byte snapshot. It only reaches the hardware
	// through an option commit.
	Options protocol.OptionBytes
	Flags   protocol.ProtectionFlags

	probed bool
}

// Probed reports whether the geometry is current.
func (b *Bank) Probed() bool {
	return b.probed
}

func (b *Bank) setGeometry(base, size, pageSize uint32) {
	n := size / pageSize
	b.Base = base
	b.PageSize = pageSize
	b.Size = n * pageSize
	b.Sectors = make([]Sector, n)
	for i := range b.Sectors {
		b.Sectors[i] = Sector{
			Offset:    uint32(i) * pageSize,
			Size:      pageSize,
			Erased:    Unknown,
			Protected: true,
		}
	}
}

func (b *Bank) markErased(first, last int) {
	for i := first; i <= last; i++ {
		b.Sectors[i].Erased = Erased
	}
}

// markDirty flags every sector overlapping [offset, offset+n).
func (b *Bank) markDirty(offset, n uint32) {
	if n == 0 || b.PageSize == 0 {
		return
	}
	first := offset / b.PageSize
	last := (offset + n - 1) / b.PageSize
	for i := first; i <= last && int(i) < len(b.Sectors); i++ {
		b.Sectors[i].Erased = Dirty
	}
}

// ProtectedSectors returns the indices of protected sectors as ranges.
func (b *Bank) ProtectedSectors() []protocol.Range {
	var out []protocol.Range
	start := -1
	for i, s := range b.Sectors {
		switch {
		case s.Protected && start < 0:
			start = i
		case !s.Protected && start >= 0:
			out = append(out, protocol.Range{Start: uint16(start), End: uint16(i - 1)})
			start = -1
		}
	}
	if start >= 0 {
		out = append(out, protocol.Range{Start: uint16(start), End: uint16(len(b.Sectors) - 1)})
	}
	return out
}
