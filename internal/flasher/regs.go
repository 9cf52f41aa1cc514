package flasher

import (
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/bigbag/gdflash/internal/protocol"
)

type regWrite struct {
	addr  uint32
	value uint32
}

func (f *Flasher) writeRegs(writes ...regWrite) error {
	for _, w := range writes {
		if err := f.tgt.WriteU32(w.addr, w.value); err != nil {
			return err
		}
	}
	return nil
}

func (f *Flasher) readRegs(addrs ...uint32) ([]uint32, error) {
	vals := make([]uint32, len(addrs))
	for i, addr := range addrs {
		v, err := f.tgt.ReadU32(addr)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

// unlockKeys writes the key pair to keyReg until the control register
// satisfies done.
func (f *Flasher) unlockKeys(keyReg uint32, done func(ctl uint32) bool) error {
	for i := 0; i < protocol.UnlockRetries; i++ {
		if err := f.writeRegs(
			regWrite{keyReg, protocol.UnlockKey0},
			regWrite{keyReg, protocol.UnlockKey1},
		); err != nil {
			return err
		}
		ctl, err := f.tgt.ReadU32(protocol.RegCtl)
		if err != nil {
			return err
		}
		if done(ctl) {
			return nil
		}
	}
	return fmt.Errorf("%w after %d unlock attempts", ErrTimeout, protocol.UnlockRetries)
}

// unlockMain unlocks erase and program operations.
func (f *Flasher) unlockMain() error {
	err := f.unlockKeys(protocol.RegKey, func(ctl uint32) bool {
		return ctl&protocol.CtlLock == 0
	})
	if err != nil {
		glog.Errorf("timed out waiting for flash unlock")
		return fmt.Errorf("flash unlock: %w", err)
	}
	return nil
}

// unlockOption enables option byte writes. The main lock must already be open.
func (f *Flasher) unlockOption() error {
	err := f.unlockKeys(protocol.RegOBKey, func(ctl uint32) bool {
		return ctl&protocol.CtlOBWEn != 0
	})
	if err != nil {
		glog.Errorf("timed out waiting for option byte unlock")
		return fmt.Errorf("option byte unlock: %w", err)
	}
	return nil
}

// waitReady polls the busy flag, sleeping one tick between polls. A write
// protect error seen after the operation is cleared and reported.
func (f *Flasher) waitReady(ticks int) error {
	for {
		f.tgt.Sleep(time.Millisecond)
		ticks--
		stat, err := f.tgt.ReadU32(protocol.RegStat)
		if err != nil {
			return err
		}
		glog.V(2).Infof("status: 0x%08X (%s)", stat, protocol.StatusString(stat))
		if stat&protocol.StatBusy == 0 {
			break
		}
		if ticks <= 0 {
			glog.V(1).Info("timed out waiting for flash ready")
			return fmt.Errorf("%w waiting for flash ready", ErrTimeout)
		}
	}

	stat, err := f.tgt.ReadU32(protocol.RegStat)
	if err != nil {
		return err
	}
	if stat&protocol.StatWPErr == 0 {
		return nil
	}

	glog.Error("device is write/erase protected")
	if err := f.tgt.WriteU32(protocol.RegStat, protocol.StatWPErr); err != nil {
		return err
	}
	return ErrWriteProtected
}

// lock re-arms the controller lock.
func (f *Flasher) lock() error {
	return f.tgt.WriteU32(protocol.RegCtl, protocol.CtlLock)
}

// relock locks after a failed sequence; the caller keeps its own error.
func (f *Flasher) relock() {
	if err := f.lock(); err != nil {
		glog.Warningf("failed to relock flash controller: %v", err)
	}
}
