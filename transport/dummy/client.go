package dummy

import (
	"io"
	"net"
	"os"
	"time"

	"github.com/indigo-web/h1/transport"
)

var _ transport.Client = new(Client)

// Client feeds the data it was initialised with piece by piece and tracks all the
// written data, making it thereby a universal mock suitable for most of the tests.
// Exhausting the data acts as the peer closing the connection, unless the client
// is set to hang, in which case further reads time out instead.
type Client struct {
	hang       bool
	journaling bool
	writeEOF   bool
	closed     bool
	pointer    int
	tmp        []byte
	written    []byte
	data       [][]byte
}

func NewMockClient(data ...[]byte) *Client {
	return &Client{
		data:       data,
		journaling: true,
	}
}

// Hang makes reads past the scripted data report a deadline instead of EOF.
func (c *Client) Hang() *Client {
	c.hang = true
	return c
}

func (c *Client) Journaling(flag bool) *Client {
	c.journaling = flag
	return c
}

func (c *Client) Read(deadline time.Time) (data []byte, err error) {
	if len(c.tmp) > 0 {
		data, c.tmp = c.tmp, nil

		return data, nil
	}

	if c.closed || c.pointer >= len(c.data) {
		if c.hang && !c.closed {
			return nil, os.ErrDeadlineExceeded
		}

		return nil, io.EOF
	}

	piece := c.data[c.pointer]
	c.pointer++

	return piece, nil
}

func (c *Client) Pushback(takeback []byte) {
	c.tmp = takeback
}

func (c *Client) Write(p []byte, deadline time.Time) (int, error) {
	if c.journaling {
		c.written = append(c.written, p...)
	}

	return len(p), nil
}

func (c *Client) Conn() net.Conn {
	return new(Conn).Nop()
}

func (c *Client) Encrypted() bool {
	return false
}

func (c *Client) CloseWrite() error {
	c.writeEOF = true
	return nil
}

func (c *Client) WriteEOF() bool {
	return c.writeEOF
}

func (c *Client) Close() error {
	c.closed = true
	return nil
}

func (c *Client) Written() string {
	if !c.journaling {
		panic("mock client: cannot access written data: journaling is disabled!")
	}

	return string(c.written)
}
