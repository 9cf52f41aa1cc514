package flasher

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/golang/glog"

	"github.com/bigbag/gdflash/internal/protocol"
)

// padWords pads data with 0xFF up to a whole number of words.
func padWords(data []byte) []byte {
	if len(data)%4 == 0 {
		return data
	}
	add := 4 - len(data)%4
	out := make([]byte, len(data), len(data)+add)
	copy(out, data)
	for i := 0; i < add; i++ {
		out = append(out, 0xFF)
	}
	return out
}

// Write programs data at offset from the bank base. The target sectors
// must already be erased. A tail that is not a whole word is padded with
// 0xFF.
func (f *Flasher) Write(offset uint32, data []byte) (err error) {
	if err := f.prepare(); err != nil {
		return err
	}
	if offset&3 != 0 {
		glog.Errorf("offset 0x%X is not word aligned", offset)
		return fmt.Errorf("%w: 0x%X", ErrAlignment, offset)
	}
	if len(data) == 0 {
		return nil
	}

	if len(data)%4 != 0 {
		glog.Info("not words to write, padding with 0xff")
	}
	buf := padWords(data)
	if uint64(offset)+uint64(len(buf)) > uint64(f.bank.Size) {
		return fmt.Errorf("%w: %d bytes at offset 0x%X exceed bank size 0x%X", ErrFail, len(buf), offset, f.bank.Size)
	}

	if err := f.unlockMain(); err != nil {
		return err
	}
	defer func() {
		if lerr := f.lock(); lerr != nil && err == nil {
			err = lerr
		}
	}()
	defer f.bank.markDirty(offset, uint32(len(buf)))

	if err := f.tgt.WriteU32(protocol.RegCtl, protocol.CtlPG); err != nil {
		return err
	}

	glog.Infof("words to be programmed = %d", len(buf)/4)
	err = f.blockWrite(buf, offset)
	if errors.Is(err, ErrResourceUnavailable) {
		glog.Warning("couldn't use block writes, falling back to single memory accesses")
		err = f.wordWrite(buf, offset)
	}
	return err
}

// wordWrite programs one word at a time, waiting for each.
func (f *Flasher) wordWrite(data []byte, offset uint32) error {
	total := len(data)
	for i := 0; i < total; i += 4 {
		addr := f.bank.Base + offset + uint32(i)
		if err := f.tgt.WriteU32(addr, binary.LittleEndian.Uint32(data[i:])); err != nil {
			return fmt.Errorf("failed to program word at 0x%08X: %w", addr, err)
		}
		if err := f.waitReady(protocol.WordTimeout); err != nil {
			return fmt.Errorf("failed to program word at 0x%08X: %w", addr, err)
		}
		if (i+4)%int(f.bank.PageSize) == 0 || i+4 == total {
			f.reportProgress(i+4, total)
		}
	}
	return nil
}
