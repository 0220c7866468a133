package stream

import (
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/indigo-web/h1/codec"
	"github.com/indigo-web/h1/config"
	"github.com/indigo-web/h1/http/proto"
	"github.com/indigo-web/h1/transport"
)

// ErrClosed is reported by WriteHeaders on a stream whose sending half has
// already finished, and by a client request once the connection's write side
// has been shut down; it stands in for a broken pipe.
var ErrClosed = errors.New("stream is closed")

type Role uint8

const (
	RoleClient Role = iota + 1
	RoleServer
)

// Conn multiplexes streams over a single transport connection. It owns the
// pipeline: the FIFO of streams whose exchanges are in flight, and the request
// lock serializing whichever side of the conversation must go one at a time
// (sending requests for a client, parsing requests for a server).
//
// The mutex guards all stream and pipeline fields of the connection. It is
// deliberately NOT held across socket I/O: access to the socket is granted by
// owning the request lock or being at the head of the pipeline, so one stream
// may transmit while another receives.
type Conn struct {
	mu      sync.Mutex
	reqCond *sync.Cond

	cfg    *config.Config
	client transport.Client
	codec  *codec.Codec

	role    Role
	version proto.Proto
	// peerProto is sampled off the most recent request or status line read,
	// and seeds the keep-alive decision of exchanges that start before their
	// own peer line arrives.
	peerProto proto.Proto

	pipeline  []*Stream
	reqHolder *Stream
}

// NewClient wraps the connection for issuing requests over it.
func NewClient(client transport.Client, cfg *config.Config) *Conn {
	return newConn(RoleClient, client, cfg)
}

// NewServer wraps the connection for serving requests arriving over it.
func NewServer(client transport.Client, cfg *config.Config) *Conn {
	return newConn(RoleServer, client, cfg)
}

func newConn(role Role, client transport.Client, cfg *config.Config) *Conn {
	if cfg == nil {
		cfg = config.Default()
	}

	c := &Conn{
		cfg:     cfg,
		client:  client,
		codec:   codec.New(client, cfg),
		role:    role,
		version: proto.HTTP11,
	}
	c.reqCond = sync.NewCond(&c.mu)

	return c
}

// Stream spawns a new idle stream on the connection. The stream holds a
// back-reference only; closing the connection remains the caller's duty and
// may be done once all its streams are closed.
func (c *Conn) Stream() *Stream {
	s := &Stream{
		conn:  c,
		state: StateIdle,
	}
	s.stateCond = sync.NewCond(&c.mu)
	s.headersCond = sync.NewCond(&c.mu)
	s.headers = newHeaders()

	return s
}

func (c *Conn) Role() Role {
	return c.role
}

func (c *Conn) Close() error {
	return c.client.Close()
}

// deadline converts a relative timeout into the absolute deadline all inner
// I/O calls share, so each of them naturally gets the residual. Non-positive
// timeouts fall back to the configured default.
func (c *Conn) deadline(timeout time.Duration) time.Time {
	if timeout <= 0 {
		timeout = c.cfg.NET.Timeout
	}

	return time.Now().Add(timeout)
}

// acquireReq takes the request lock on behalf of s, waiting out other holders
// up to the deadline. The mutex must be held.
func (c *Conn) acquireReq(s *Stream, deadline time.Time) error {
	err := wait(c.reqCond, deadline, func() bool { return c.reqHolder == nil })
	if err != nil {
		return err
	}

	if c.role == RoleClient && c.client.WriteEOF() {
		return ErrClosed
	}

	c.reqHolder = s

	return nil
}

// releaseReq hands the request lock back if s owns it. The mutex must be held.
func (c *Conn) releaseReq(s *Stream) {
	if c.reqHolder == s {
		c.reqHolder = nil
		c.reqCond.Broadcast()
	}
}

func (c *Conn) head() *Stream {
	if len(c.pipeline) == 0 {
		return nil
	}

	return c.pipeline[0]
}

func (c *Conn) push(s *Stream) {
	c.pipeline = append(c.pipeline, s)
}

// dequeue removes s from the pipeline wherever it stands. Ordinarily that is
// the head; an abandoned stream may be cut out of the middle.
func (c *Conn) dequeue(s *Stream) {
	for i, e := range c.pipeline {
		if e == s {
			c.pipeline = append(c.pipeline[:i], c.pipeline[i+1:]...)
			c.reqCond.Broadcast()
			return
		}
	}
}

// awaitHead blocks until s reaches the head of the pipeline, i.e. becomes the
// one stream allowed to perform order-sensitive socket I/O. The mutex must be
// held.
func (c *Conn) awaitHead(s *Stream, deadline time.Time) error {
	return wait(c.reqCond, deadline, func() bool { return c.head() == s })
}

// wait blocks on cond until pred holds or the deadline passes. The mutex
// backing cond must be held. A zero deadline means waiting indefinitely.
func wait(cond *sync.Cond, deadline time.Time, pred func() bool) error {
	if pred() {
		return nil
	}

	var timedOut atomic.Bool

	if !deadline.IsZero() {
		left := time.Until(deadline)
		if left <= 0 {
			return os.ErrDeadlineExceeded
		}

		// the flag is flipped under the lock, or a waiter checking it right
		// before suspending could miss the wakeup for good
		timer := time.AfterFunc(left, func() {
			cond.L.Lock()
			timedOut.Store(true)
			cond.L.Unlock()
			cond.Broadcast()
		})
		defer timer.Stop()
	}

	for !pred() {
		if timedOut.Load() {
			return os.ErrDeadlineExceeded
		}

		cond.Wait()
	}

	return nil
}
