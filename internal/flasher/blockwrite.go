package flasher

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/bigbag/gdflash/embedded"
	"github.com/bigbag/gdflash/internal/protocol"
	"github.com/bigbag/gdflash/internal/target"
)

// handshakeState tracks one chunk through the write agent buffer.
type handshakeState int

const (
	stateIdle handshakeState = iota
	stateChunkPublished
	stateAgentRunning
	stateDrained
)

func (s handshakeState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateChunkPublished:
		return "chunk published"
	case stateAgentRunning:
		return "agent running"
	case stateDrained:
		return "drained"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// writeSession is the host side of the agent buffer. The buffer holds the
// write pointer cell, the read pointer cell and the FIFO, in that order.
type writeSession struct {
	tgt   target.Target
	code  *target.WorkingArea
	buf   *target.WorkingArea
	state handshakeState

	wpAddr    uint32
	rpAddr    uint32
	fifoStart uint32
	fifoEnd   uint32

	// wp is the write pointer last published.
	wp uint32
}

func newWriteSession(tgt target.Target, code, buf *target.WorkingArea) *writeSession {
	s := &writeSession{
		tgt:       tgt,
		code:      code,
		buf:       buf,
		wpAddr:    buf.Address,
		rpAddr:    buf.Address + 4,
		fifoStart: buf.Address + 8,
		fifoEnd:   buf.Address + buf.Size,
	}
	s.wp = s.fifoStart
	return s
}

// maxChunk is the largest payload handed to the agent in one run.
func (s *writeSession) maxChunk() uint32 {
	return s.fifoEnd - s.fifoStart - 4
}

func (s *writeSession) transition(from []handshakeState, to handshakeState) error {
	for _, st := range from {
		if s.state == st {
			glog.V(3).Infof("block write: %s -> %s", s.state, to)
			s.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: block write cannot go from %s to %s", ErrFail, s.state, to)
}

// start places the read pointer at the FIFO start.
func (s *writeSession) start() error {
	s.state = stateIdle
	return s.tgt.WriteU32(s.rpAddr, s.fifoStart)
}

// drained checks that the agent consumed everything published so far.
func (s *writeSession) drained() error {
	rp, err := s.tgt.ReadU32(s.rpAddr)
	if err != nil {
		glog.Error("failed to get read pointer")
		return err
	}
	if rp != s.wp {
		glog.Errorf("failed to write flash: rp = 0x%08X, wp = 0x%08X", rp, s.wp)
		return &HandshakeError{ReadPointer: rp, WritePointer: s.wp}
	}
	return s.transition([]handshakeState{stateIdle, stateAgentRunning}, stateDrained)
}

// publish resets both pointers and hands chunk to the agent. The read
// pointer goes first and the write pointer last.
func (s *writeSession) publish(chunk []byte) error {
	if err := s.transition([]handshakeState{stateDrained}, stateChunkPublished); err != nil {
		return err
	}
	if err := s.tgt.WriteU32(s.rpAddr, s.fifoStart); err != nil {
		return err
	}
	if err := s.tgt.WriteBuffer(s.fifoStart, chunk); err != nil {
		return err
	}
	s.wp = s.fifoStart + uint32(len(chunk))
	return s.tgt.WriteU32(s.wpAddr, s.wp)
}

// run executes the agent over the published chunk, programming it at address.
func (s *writeSession) run(address uint32, words uint32, timeout time.Duration) error {
	if err := s.transition([]handshakeState{stateChunkPublished}, stateAgentRunning); err != nil {
		return err
	}

	params := []target.Param{
		{Name: "a0", Value: protocol.FMCBase, Dir: target.DirInOut},
		{Name: "a1", Value: words, Dir: target.DirOut},
		{Name: "a2", Value: s.buf.Address, Dir: target.DirOut},
		{Name: "a3", Value: s.buf.Address + s.buf.Size, Dir: target.DirOut},
		{Name: "a4", Value: address, Dir: target.DirInOut},
	}
	entry := s.code.Address + embedded.WriteAgentEntry
	exit := s.code.Address + embedded.WriteAgentExit
	if err := s.tgt.RunAlgorithm(entry, exit, params, timeout); err != nil {
		glog.Errorf("failed to execute algorithm at 0x%08X: %v", s.code.Address, err)
		return &ExecError{Address: address, Err: err}
	}

	stat := params[0].Value
	glog.V(2).Infof("agent status 0x%08X (%s), next address 0x%08X", stat, protocol.StatusString(stat), params[4].Value)
	if stat&protocol.StatWPErr != 0 {
		glog.Errorf("write protect error at 0x%08X", params[4].Value)
		if err := s.tgt.WriteU32(protocol.RegStat, protocol.StatWPErr); err != nil {
			return err
		}
		return ErrWriteProtected
	}
	if stat&protocol.StatPGErr != 0 {
		return fmt.Errorf("%w: program error at 0x%08X", ErrFail, params[4].Value)
	}
	return nil
}

// blockWrite programs data at offset through the write agent. The caller
// unlocks the controller and selects program mode. ErrResourceUnavailable
// means no working area could be had and nothing was written.
func (f *Flasher) blockWrite(data []byte, offset uint32) error {
	agent := embedded.WriteAgent()

	code, err := f.tgt.AllocWorkingArea(uint32(len(agent)))
	if err != nil {
		glog.Warning("no working area for block memory writes")
		return err
	}
	defer f.freeWorkingArea(code)

	if err := f.tgt.WriteBuffer(code.Address, agent); err != nil {
		return fmt.Errorf("failed to load write agent: %w", err)
	}

	buf, err := f.allocBuffer()
	if err != nil {
		return err
	}
	defer f.freeWorkingArea(buf)

	s := newWriteSession(f.tgt, code, buf)
	if err := s.start(); err != nil {
		return err
	}

	address := f.bank.Base + offset
	total := len(data)
	for len(data) > 0 {
		if err := s.drained(); err != nil {
			return err
		}

		n := s.maxChunk()
		if n > uint32(len(data)) {
			n = uint32(len(data))
		}
		if err := s.publish(data[:n]); err != nil {
			return err
		}
		if err := s.run(address, n/4, f.cfg.execTimeout); err != nil {
			return err
		}

		data = data[n:]
		address += n
		f.reportProgress(total-len(data), total)
	}
	return s.drained()
}

// allocBuffer gets the largest agent buffer it can, halving from the
// configured size.
func (f *Flasher) allocBuffer() (*target.WorkingArea, error) {
	size := f.cfg.blockBufferSize
	for {
		buf, err := f.tgt.AllocWorkingArea(size)
		if err == nil {
			glog.V(1).Infof("block write buffer %s", buf)
			return buf, nil
		}
		if !errors.Is(err, target.ErrResourceUnavailable) {
			return nil, err
		}

		size = (size / 2) &^ 3
		if size <= protocol.MinBlockBufferSize {
			glog.Warning("no large enough working area available, can't do block memory writes")
			return nil, fmt.Errorf("block write buffer: %w", ErrResourceUnavailable)
		}
	}
}

func (f *Flasher) freeWorkingArea(area *target.WorkingArea) {
	if err := f.tgt.FreeWorkingArea(area); err != nil {
		glog.Warningf("failed to free working area %s: %v", area, err)
	}
}
