package transport

import (
	"crypto/tls"
	"net"
	"time"
)

type closeWriter interface {
	CloseWrite() error
}

type client struct {
	conn     net.Conn
	buff     []byte
	pending  []byte
	writeEOF bool
}

func NewClient(conn net.Conn, readBuffSize int) Client {
	return &client{
		conn: conn,
		buff: make([]byte, readBuffSize),
	}
}

// Read reads data into the internal buffer and returns a piece of it back.
func (c *client) Read(deadline time.Time) ([]byte, error) {
	if len(c.pending) > 0 {
		pending := c.pending
		c.pending = nil

		return pending, nil
	}

	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	n, err := c.conn.Read(c.buff)
	if n == 0 {
		return nil, err
	}

	return c.buff[:n], nil
}

func (c *client) Pushback(b []byte) {
	c.pending = b
}

func (c *client) Write(p []byte, deadline time.Time) (int, error) {
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return 0, err
	}

	return c.conn.Write(p)
}

func (c *client) Conn() net.Conn {
	return c.conn
}

func (c *client) Encrypted() bool {
	_, ok := c.conn.(*tls.Conn)
	return ok
}

func (c *client) CloseWrite() error {
	c.writeEOF = true

	if cw, ok := c.conn.(closeWriter); ok {
		return cw.CloseWrite()
	}

	return nil
}

func (c *client) WriteEOF() bool {
	return c.writeEOF
}

func (c *client) Close() error {
	return c.conn.Close()
}
