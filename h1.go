// Package h1 implements pipelined HTTP/1.x exchanges over a shared
// connection, from either side of it. The stream package carries the actual
// state machine; this package only wires transports to it.
package h1

import (
	"crypto/tls"
	"net"

	"github.com/indigo-web/h1/config"
	"github.com/indigo-web/h1/stream"
	"github.com/indigo-web/h1/transport"
)

// Dial opens a plaintext connection to addr and wraps it for issuing requests.
func Dial(addr string, cfg *config.Config) (*stream.Conn, error) {
	conn, err := transport.Dial(addr)
	if err != nil {
		return nil, err
	}

	return NewClient(conn, cfg), nil
}

// DialTLS opens a TLS connection to addr and wraps it for issuing requests.
func DialTLS(addr string, tlsconf *tls.Config, cfg *config.Config) (*stream.Conn, error) {
	conn, err := transport.DialTLS(addr, tlsconf)
	if err != nil {
		return nil, err
	}

	return NewClient(conn, cfg), nil
}

// NewClient wraps an established connection for the client role.
func NewClient(conn net.Conn, cfg *config.Config) *stream.Conn {
	cfg = orDefault(cfg)
	return stream.NewClient(transport.NewClient(conn, cfg.NET.ReadBufferSize), cfg)
}

// NewServer wraps an accepted connection for the server role.
func NewServer(conn net.Conn, cfg *config.Config) *stream.Conn {
	cfg = orDefault(cfg)
	return stream.NewServer(transport.NewClient(conn, cfg.NET.ReadBufferSize), cfg)
}

// Serve accepts connections off the listener and hands each one, already
// wrapped for the server role, to handle on its own goroutine. Returns the
// first Accept error encountered.
func Serve(l net.Listener, cfg *config.Config, handle func(*stream.Conn)) error {
	cfg = orDefault(cfg)

	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}

		go handle(NewServer(conn, cfg))
	}
}

func orDefault(cfg *config.Config) *config.Config {
	if cfg == nil {
		cfg = config.Default()
	}

	return cfg
}
