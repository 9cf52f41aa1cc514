package rsp

import (
	"errors"
	"io"
	"net"
	"os"
	"time"
)

// Conn is a byte stream to the remote stub. ReadWithTimeout returns
// (0, nil) when nothing arrives in time.
type Conn interface {
	io.ReadWriter
	ReadWithTimeout(buf []byte, timeout time.Duration) (int, error)
}

// NetConn adapts a net.Conn (TCP gdbserver, pipes in tests).
type NetConn struct {
	net.Conn
}

// NewNetConn wraps c.
func NewNetConn(c net.Conn) *NetConn {
	return &NetConn{Conn: c}
}

// ReadWithTimeout reads with a deadline.
func (c *NetConn) ReadWithTimeout(buf []byte, timeout time.Duration) (int, error) {
	if err := c.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}
	defer c.SetReadDeadline(time.Time{})

	n, err := c.Read(buf)
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return n, nil
	}
	return n, err
}
