package flasher

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/bigbag/gdflash/internal/protocol"
)

// Erase erases sectors first through last. A protected device gets its
// option bytes erased instead, and the erase fails until the device has
// been reset.
func (f *Flasher) Erase(first, last int) error {
	if err := f.prepare(); err != nil {
		return err
	}
	if err := f.checkSectors(first, last); err != nil {
		return err
	}

	glog.Infof("sector erase (%d to %d)", first, last)

	obstat, err := f.tgt.ReadU32(protocol.RegOBStat)
	if err != nil {
		return err
	}
	glog.V(2).Infof("obstat = 0x%08X", obstat)
	if protocol.DecodeOBStat(obstat).Any() {
		glog.Warning("device is protected, erasing option bytes")
		if err := f.obErase(); err != nil {
			return fmt.Errorf("%w: clearing protection: %w", ErrFail, err)
		}
		return fmt.Errorf("%w: protection cleared, reset the device and retry", ErrFail)
	}

	if first == 0 && last == len(f.bank.Sectors)-1 {
		if err := f.massErase(); err != nil {
			return err
		}
		f.bank.markErased(first, last)
		return nil
	}

	if err := f.unlockMain(); err != nil {
		return err
	}
	for i := first; i <= last; i++ {
		if err := f.erasePage(f.bank.Base + f.bank.Sectors[i].Offset); err != nil {
			f.relock()
			return fmt.Errorf("failed to erase sector %d: %w", i, err)
		}
		f.bank.Sectors[i].Erased = Erased
	}

	if err := f.lock(); err != nil {
		return err
	}
	glog.Info("erase ok")
	return nil
}

func (f *Flasher) erasePage(addr uint32) error {
	err := f.writeRegs(
		regWrite{protocol.RegCtl, protocol.CtlPER},
		regWrite{protocol.RegAddr, addr},
		regWrite{protocol.RegCtl, protocol.CtlPER | protocol.CtlStart},
	)
	if err != nil {
		return err
	}
	return f.waitReady(protocol.ReadyTimeout)
}

// MassErase erases the whole bank.
func (f *Flasher) MassErase() error {
	if err := f.prepare(); err != nil {
		return err
	}
	if err := f.massErase(); err != nil {
		return err
	}
	f.bank.markErased(0, len(f.bank.Sectors)-1)
	return nil
}

func (f *Flasher) massErase() error {
	glog.Info("mass erase")
	if err := f.unlockMain(); err != nil {
		return err
	}

	err := f.writeRegs(
		regWrite{protocol.RegCtl, protocol.CtlMER},
		regWrite{protocol.RegCtl, protocol.CtlMER | protocol.CtlStart},
	)
	if err == nil {
		err = f.waitReady(protocol.ReadyTimeout)
	}
	if err != nil {
		f.relock()
		return fmt.Errorf("mass erase failed: %w", err)
	}
	return f.lock()
}

// Protect enables or disables write protection of sectors first through
// last through write protect range 0. Range 1 is always disabled.
func (f *Flasher) Protect(set bool, first, last int) (*Commit, error) {
	if err := f.prepare(); err != nil {
		return nil, err
	}
	if first > last {
		glog.Warningf("the start and end protect sector number are invalid (%d > %d)", first, last)
		return nil, nil
	}
	if err := f.checkSectors(first, last); err != nil {
		return nil, err
	}
	if last > protocol.WRPMaxPage {
		return nil, fmt.Errorf("%w: sector %d beyond the write protect range limit %d", ErrFail, last, protocol.WRPMaxPage)
	}

	wrp0 := uint32(protocol.WRPDisabled)
	if set {
		wrp0 = protocol.Range{Start: uint16(first), End: uint16(last)}.Encode()
	}
	glog.Infof("write protect range 0 = 0x%08X", wrp0)

	return f.applyOptions(func(ob *protocol.OptionBytes) {
		ob.WRP[0] = wrp0
		ob.WRP[1] = protocol.WRPDisabled
	})
}

// ProtectCheck refreshes the protection flags and the protected flag of
// every sector from the write protect ranges.
func (f *Flasher) ProtectCheck() error {
	if err := f.AutoProbe(); err != nil {
		return err
	}
	regs, err := f.readRegs(protocol.RegOBStat, protocol.RegOBWRP0, protocol.RegOBWRP1)
	if err != nil {
		return err
	}

	f.bank.Flags = protocol.DecodeOBStat(regs[0])
	ranges := [2]protocol.Range{protocol.DecodeRange(regs[1]), protocol.DecodeRange(regs[2])}
	units := uint32(len(f.bank.Sectors)) / protocol.WRPPageSize
	for i := range f.bank.Sectors {
		unit := uint32(i) / protocol.WRPPageSize
		f.bank.Sectors[i].Protected = unit < units &&
			(ranges[0].Contains(unit) || ranges[1].Contains(unit))
	}
	glog.V(1).Infof("write protect ranges: %s, %s", ranges[0], ranges[1])
	return nil
}
