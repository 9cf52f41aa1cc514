package flasher

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/bigbag/gdflash/internal/protocol"
)

// Commit is the result of a successful option byte commit. The new
// values only take effect after an option reload or a power cycle.
type Commit struct {
	Options        protocol.OptionBytes
	ReloadRequired bool
}

// OptionReport is the option byte state as read from the controller.
type OptionReport struct {
	OBStat uint32
	OBR    uint32
	User   uint32
	WRP    [2]uint32
	Flags  protocol.ProtectionFlags
}

// SPC returns the protection level byte.
func (r *OptionReport) SPC() uint8 {
	return uint8(r.OBR)
}

// obGet loads the option byte snapshot from the controller.
func (f *Flasher) obGet() error {
	regs, err := f.readRegs(
		protocol.RegOBStat,
		protocol.RegOBUser,
		protocol.RegOBR,
		protocol.RegOBWRP0,
		protocol.RegOBWRP1,
	)
	if err != nil {
		return fmt.Errorf("failed to read option bytes: %w", err)
	}

	f.bank.Flags = protocol.DecodeOBStat(regs[0])
	f.bank.Options = protocol.OptionBytes{
		SPC:  uint8(regs[2]),
		User: regs[1],
		WRP:  [2]uint32{regs[3], regs[4]},
	}

	if f.bank.Flags.Security {
		glog.Info("device level 1 protection bit set")
	} else {
		glog.Info("device no protection level bit set")
	}
	if f.bank.Flags.EraseProgram {
		glog.Info("device erase/program protection bit set")
	} else {
		glog.Info("device no erase/program protection bit set")
	}
	return nil
}

// obStart unlocks both stages, stores writes and starts the option
// operation, then waits for it and relocks.
func (f *Flasher) obStart(writes ...regWrite) error {
	if err := f.unlockMain(); err != nil {
		return err
	}
	if err := f.unlockOption(); err != nil {
		f.relock()
		return err
	}

	err := f.writeRegs(writes...)
	if err == nil {
		err = f.setCtl(protocol.CtlOBStart)
	}
	if err == nil {
		err = f.waitReady(protocol.ReadyTimeout)
	}
	if err != nil {
		f.relock()
		return err
	}

	if glog.V(2) {
		if regs, err := f.readRegs(protocol.RegCtl, protocol.RegOBR); err == nil {
			glog.Infof("ctl = 0x%08X, obr = 0x%08X", regs[0], regs[1])
		}
	}
	return f.lock()
}

// setCtl sets bits in the control register, keeping the others.
func (f *Flasher) setCtl(bits uint32) error {
	ctl, err := f.tgt.ReadU32(protocol.RegCtl)
	if err != nil {
		return err
	}
	return f.tgt.WriteU32(protocol.RegCtl, ctl|bits)
}

// obErase resets every option field to its erased value. The snapshot is
// refreshed first so the user word survives a following obWrite.
func (f *Flasher) obErase() error {
	if err := f.obGet(); err != nil {
		return err
	}

	erased := protocol.Erased()
	err := f.obStart(
		regWrite{protocol.RegOBWRP0, erased.WRP[0]},
		regWrite{protocol.RegOBWRP1, erased.WRP[1]},
		regWrite{protocol.RegOBUser, erased.User},
		regWrite{protocol.RegOBR, protocol.OBRErased},
	)
	if err != nil {
		glog.Errorf("option byte erase failed: %v", err)
		return err
	}

	f.bank.Options.SPC = erased.SPC
	return nil
}

// obWrite programs the snapshot. The protection level is merged into the
// low byte of the current OBR value.
func (f *Flasher) obWrite() error {
	ob := f.bank.Options
	obr, err := f.tgt.ReadU32(protocol.RegOBR)
	if err != nil {
		return err
	}

	err = f.obStart(
		regWrite{protocol.RegOBWRP0, ob.WRP[0]},
		regWrite{protocol.RegOBWRP1, ob.WRP[1]},
		regWrite{protocol.RegOBUser, ob.User},
		regWrite{protocol.RegOBR, protocol.MergeSPC(obr, ob.SPC)},
	)
	if err != nil {
		glog.Errorf("option byte write failed: %v", err)
		return err
	}
	return nil
}

// applyOptions erases the option bytes, lets edit change the snapshot and
// writes it back.
func (f *Flasher) applyOptions(edit func(ob *protocol.OptionBytes)) (*Commit, error) {
	if err := f.obErase(); err != nil {
		return nil, &CommitError{Phase: PhaseErase, Err: err}
	}
	edit(&f.bank.Options)
	return f.commit()
}

func (f *Flasher) commit() (*Commit, error) {
	if err := f.obWrite(); err != nil {
		return nil, &CommitError{Phase: PhaseWrite, Err: err}
	}
	return &Commit{Options: f.bank.Options, ReloadRequired: true}, nil
}

// refreshProtection reloads ranges and user word from the controller,
// keeping the snapshot's protection level.
func (f *Flasher) refreshProtection() error {
	regs, err := f.readRegs(protocol.RegOBWRP0, protocol.RegOBWRP1, protocol.RegOBUser)
	if err != nil {
		return err
	}
	f.bank.Options.WRP = [2]uint32{regs[0], regs[1]}
	f.bank.Options.User = regs[2]
	return nil
}

func (f *Flasher) setSecurity(spc uint8) (*Commit, error) {
	if err := f.checkHalted(); err != nil {
		return nil, err
	}
	f.bank.Options.SPC = spc
	if err := f.refreshProtection(); err != nil {
		return nil, err
	}
	return f.commit()
}

// Lock enables security protection.
func (f *Flasher) Lock() (*Commit, error) {
	return f.setSecurity(protocol.SPCLevel1)
}

// Unlock disables security protection.
func (f *Flasher) Unlock() (*Commit, error) {
	return f.setSecurity(protocol.SPCNone)
}

// WriteOption changes one option field, leaving the others as they are in
// the controller.
func (f *Flasher) WriteOption(field protocol.OptionField, value uint32) (*Commit, error) {
	if err := f.checkHalted(); err != nil {
		return nil, err
	}
	if err := f.obGet(); err != nil {
		return nil, err
	}
	if err := f.bank.Options.Set(field, value); err != nil {
		return nil, err
	}
	glog.Infof("%s = 0x%X", field, value)
	return f.commit()
}

// ReadOptions reports the option byte registers without side effects.
func (f *Flasher) ReadOptions() (*OptionReport, error) {
	regs, err := f.readRegs(
		protocol.RegOBStat,
		protocol.RegOBR,
		protocol.RegOBUser,
		protocol.RegOBWRP0,
		protocol.RegOBWRP1,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read option bytes: %w", err)
	}
	return &OptionReport{
		OBStat: regs[0],
		OBR:    regs[1],
		User:   regs[2],
		WRP:    [2]uint32{regs[3], regs[4]},
		Flags:  protocol.DecodeOBStat(regs[0]),
	}, nil
}

// Reload re-latches the option bytes, which may reset the device. The bank
// must be probed again afterwards.
func (f *Flasher) Reload() error {
	if err := f.checkHalted(); err != nil {
		return err
	}
	if err := f.obGet(); err != nil {
		return err
	}
	if err := f.unlockMain(); err != nil {
		return err
	}
	if err := f.unlockOption(); err != nil {
		f.relock()
		return err
	}
	if err := f.setCtl(protocol.CtlOBRld); err != nil {
		f.relock()
		return err
	}
	f.bank.probed = false
	glog.Info("option bytes reloaded")
	return nil
}
