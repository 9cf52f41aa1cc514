// Package flasher drives the GD32VW55x flash memory controller through a
// target access layer: probing, erase, write protection, option bytes and
// buffered programming through a target-resident write agent.
package flasher

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/bigbag/gdflash/internal/protocol"
	"github.com/bigbag/gdflash/internal/target"
)

// Flasher handles one GD32VW55x flash bank. It is not safe for
// concurrent use.
type Flasher struct {
	tgt  target.Target
	cfg  config
	bank Bank
}

// New creates a new Flasher for the given target.
func New(tgt target.Target, opts ...Option) *Flasher {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Flasher{tgt: tgt, cfg: cfg}
}

// SetProgressCallback sets the progress callback function.
func (f *Flasher) SetProgressCallback(cb ProgressCallback) {
	f.cfg.progress = cb
}

// reportProgress calls the progress callback if set.
func (f *Flasher) reportProgress(current, total int) {
	if f.cfg.progress != nil {
		f.cfg.progress(current, total)
	}
}

// Bank returns the bank record.
func (f *Flasher) Bank() *Bank {
	return &f.bank
}

// Probe reads the device identity and rebuilds the sector table.
func (f *Flasher) Probe() error {
	f.bank.probed = false

	id, err := f.tgt.ReadU32(protocol.DebugIDAddress)
	if err != nil {
		return fmt.Errorf("failed to read device id: %w", err)
	}
	glog.Infof("device id = 0x%08X", id)

	sizeKB := uint32(protocol.DefaultFlashSizeKB)
	raw, err := f.tgt.ReadU16(protocol.FlashSizeAddress)
	switch {
	case err != nil:
		glog.Warningf("failed to read flash size (%v), probe inaccurate - assuming %dk flash", err, sizeKB)
	case raw == 0xFFFF || raw == 0:
		glog.Warningf("flash size register reads 0x%04X, probe inaccurate - assuming %dk flash", raw, sizeKB)
	default:
		sizeKB = uint32(raw)
	}

	identity := Identity{DeviceID: id, FlashSizeKB: sizeKB}
	if f.cfg.bankSize != 0 {
		glog.Info("ignoring flash probed value, using configured bank size")
		identity.FlashSizeKB = f.cfg.bankSize / 1024
		identity.Configured = true
	}
	glog.Infof("flash size = %dkbytes", identity.FlashSizeKB)

	f.bank.Identity = identity
	f.bank.setGeometry(protocol.BankBase, identity.FlashSizeKB*1024, protocol.PageSize)
	f.bank.probed = true
	return nil
}

// AutoProbe probes unless the bank is already probed.
func (f *Flasher) AutoProbe() error {
	if f.bank.probed {
		return nil
	}
	return f.Probe()
}

// checkHalted fails with ErrTargetNotHalted unless the core is halted.
func (f *Flasher) checkHalted() error {
	halted, err := f.tgt.Halted()
	if err != nil {
		return err
	}
	if !halted {
		glog.Error("target not halted")
		return ErrTargetNotHalted
	}
	return nil
}

// prepare is the common entry check of operations that modify the device.
func (f *Flasher) prepare() error {
	if err := f.checkHalted(); err != nil {
		return err
	}
	return f.AutoProbe()
}

func (f *Flasher) checkSectors(first, last int) error {
	if first < 0 || first > last || last >= len(f.bank.Sectors) {
		return fmt.Errorf("%w: sectors %d-%d outside 0-%d", ErrFail, first, last, len(f.bank.Sectors)-1)
	}
	return nil
}
