package rsp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang/glog"
)

// ErrTimeout is returned when the stub does not answer in time.
var ErrTimeout = errors.New("timeout waiting for reply")

var errNak = errors.New("packet rejected")

// Config holds client limits.
type Config struct {
	// MaxReadSize and MaxWriteSize bound the payload of one m/M packet.
	MaxReadSize  int
	MaxWriteSize int

	// Timeout is how long to wait for the reply to an ordinary command.
	Timeout time.Duration

	// Retries is the number of resends after a NAK.
	Retries int
}

func (c *Config) setDefaults() {
	if c.MaxReadSize <= 0 {
		c.MaxReadSize = 1024
	}
	if c.MaxWriteSize <= 0 {
		c.MaxWriteSize = 1024
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Second
	}
	if c.Retries <= 0 {
		c.Retries = 3
	}
}

// Client talks to a GDB stub.
type Client struct {
	conn    Conn
	cfg     Config
	pending []byte
}

// New creates a client on an open connection.
func New(conn Conn, cfg Config) *Client {
	cfg.setDefaults()
	return &Client{conn: conn, cfg: cfg}
}

// StopReason asks why the target last stopped.
func (c *Client) StopReason() (StopReply, error) {
	reply, err := c.command("?", c.cfg.Timeout)
	if err != nil {
		return StopReply{}, err
	}
	return ParseStopReply(reply)
}

// ReadMemory fills p from target memory at addr.
func (c *Client) ReadMemory(addr uint32, p []byte) error {
	for off := 0; off < len(p); {
		n := len(p) - off
		if n > c.cfg.MaxReadSize {
			n = c.cfg.MaxReadSize
		}

		reply, err := c.command(ReadMemoryCommand(addr+uint32(off), n), c.cfg.Timeout)
		if err != nil {
			return err
		}
		data, err := ParseHexData(reply)
		if err != nil {
			return fmt.Errorf("read 0x%08X: %w", addr+uint32(off), err)
		}
		if len(data) != n {
			return fmt.Errorf("read 0x%08X: got %d bytes, want %d", addr+uint32(off), len(data), n)
		}
		copy(p[off:], data)
		off += n
	}
	return nil
}

// WriteMemory stores p into target memory at addr.
func (c *Client) WriteMemory(addr uint32, p []byte) error {
	for off := 0; off < len(p); {
		n := len(p) - off
		if n > c.cfg.MaxWriteSize {
			n = c.cfg.MaxWriteSize
		}

		reply, err := c.command(WriteMemoryCommand(addr+uint32(off), p[off:off+n]), c.cfg.Timeout)
		if err != nil {
			return err
		}
		if err := CheckOK(reply); err != nil {
			return fmt.Errorf("write 0x%08X: %w", addr+uint32(off), err)
		}
		off += n
	}
	return nil
}

// ReadRegister returns a 32-bit core register.
func (c *Client) ReadRegister(reg int) (uint32, error) {
	reply, err := c.command(ReadRegisterCommand(reg), c.cfg.Timeout)
	if err != nil {
		return 0, err
	}
	v, err := ParseRegister(reply)
	if err != nil {
		return 0, fmt.Errorf("read register %d: %w", reg, err)
	}
	return v, nil
}

// WriteRegister sets a 32-bit core register.
func (c *Client) WriteRegister(reg int, value uint32) error {
	reply, err := c.command(WriteRegisterCommand(reg, value), c.cfg.Timeout)
	if err != nil {
		return err
	}
	if err := CheckOK(reply); err != nil {
		return fmt.Errorf("write register %d: %w", reg, err)
	}
	return nil
}

// Continue resumes the core and waits up to timeout for it to stop.
func (c *Client) Continue(timeout time.Duration) (StopReply, error) {
	if err := c.send("c"); err != nil {
		return StopReply{}, err
	}
	return c.waitStop(timeout)
}

// Interrupt halts a running core.
func (c *Client) Interrupt() (StopReply, error) {
	glog.V(4).Info("rsp <- ^C")
	if _, err := c.conn.Write([]byte{Interrupt}); err != nil {
		return StopReply{}, err
	}
	return c.waitStop(c.cfg.Timeout)
}

func (c *Client) waitStop(timeout time.Duration) (StopReply, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return StopReply{}, ErrTimeout
		}
		reply, err := c.readPacket(remaining)
		if err != nil {
			return StopReply{}, err
		}
		if isConsoleOutput(reply) {
			glog.V(2).Infof("target output packet %q", reply)
			continue
		}
		return ParseStopReply(reply)
	}
}

// command sends cmd and returns the reply, resending on NAK.
func (c *Client) command(cmd string, timeout time.Duration) ([]byte, error) {
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if err := c.send(cmd); err != nil {
			return nil, err
		}

		reply, err := c.readPacket(timeout)
		if errors.Is(err, errNak) {
			glog.V(2).Infof("rsp: %q rejected, resending", truncate(cmd))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", truncate(cmd), err)
		}
		return reply, nil
	}

	return nil, fmt.Errorf("%s: not acknowledged after %d attempts", truncate(cmd), c.cfg.Retries+1)
}

func (c *Client) send(cmd string) error {
	glog.V(4).Infof("rsp <- %s", truncate(cmd))
	_, err := c.conn.Write(Encode([]byte(cmd)))
	return err
}

// readPacket reads and acknowledges the next packet from the stub.
func (c *Client) readPacket(timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)

	for {
		if frame, remaining := ReadFrame(c.pending); frame != nil {
			c.pending = remaining
			data, err := Decode(frame)
			if err != nil {
				glog.V(2).Infof("rsp: dropping packet: %v", err)
				if _, err := c.conn.Write([]byte{Nak}); err != nil {
					return nil, err
				}
				continue
			}
			if _, err := c.conn.Write([]byte{Ack}); err != nil {
				return nil, err
			}
			glog.V(4).Infof("rsp -> %s", truncate(string(data)))
			return data, nil
		}

		start := bytes.IndexByte(c.pending, Start)
		if i := bytes.IndexByte(c.pending, Nak); i >= 0 && (start < 0 || i < start) {
			c.pending = c.pending[i+1:]
			return nil, errNak
		}
		if start < 0 {
			c.pending = c.pending[:0]
		}

		if !time.Now().Before(deadline) {
			return nil, ErrTimeout
		}

		chunk := make([]byte, 512)
		n, err := c.conn.ReadWithTimeout(chunk, 100*time.Millisecond)
		if n > 0 {
			c.pending = append(c.pending, chunk[:n]...)
		}
		if err != nil && n == 0 {
			if errors.Is(err, io.EOF) {
				return nil, err
			}
			continue
		}
	}
}

func truncate(s string) string {
	if len(s) > 48 {
		return s[:48] + "..."
	}
	return s
}
