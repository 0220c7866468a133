package stream

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/indigo-web/h1/http/method"
	"github.com/indigo-web/h1/http/proto"
	"github.com/indigo-web/h1/http/status"
	"github.com/indigo-web/h1/internal/strutil"
	"github.com/indigo-web/h1/kv"
)

type framingKind uint8

const (
	framingUnset framingKind = iota
	framingChunked
	framingLength
	framingClose
)

// Stream is a single request/response exchange over a shared connection. The
// same object serves both roles: a client stream writes the request and reads
// the response, a server stream reads the request and writes the response.
//
// A stream may be driven by its own goroutine; operations on sibling streams
// interleave at the I/O suspension points exactly like pipelined exchanges
// are supposed to.
type Stream struct {
	conn *Conn

	state       State
	stateCond   *sync.Cond
	headersCond *sync.Cond

	headers      *kv.Storage
	headersDone  bool
	trailersDone bool
	fieldCount   int

	method    method.Method
	peerProto proto.Proto

	wframing      framingKind
	writeLeft     int64
	closeWhenDone bool
	sentBytes     int64

	body bodyReader
}

func newHeaders() *kv.Storage {
	return kv.NewPrealloc(8)
}

// State returns the current lifecycle state.
func (s *Stream) State() State {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()

	return s.state
}

// WaitState blocks until the stream's state is at or past the wanted one or the
// deadline passes. States are compared in the order idle, open, half closed
// (local), half closed (remote), closed; so waiting for half closed (local) also
// returns once the stream is half closed (remote), although it never was half
// closed (local).
func (s *Stream) WaitState(want State, timeout time.Duration) error {
	deadline := s.conn.deadline(timeout)
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()

	return wait(s.stateCond, deadline, func() bool { return s.state >= want })
}

// SentBytes returns the cumulative amount of body bytes written so far.
func (s *Stream) SentBytes() int64 {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()

	return s.sentBytes
}

// Headers returns the message head received from the peer: the request fields
// for a server stream, the response fields for a client one. Pseudo-fields
// describe the start line: :method, :path (or :authority), :scheme on the
// request side and :status on the response side. Field names are lowercased.
//
// The first successful call does the wire work, every following call returns
// the same storage. Trailer fields, if any arrive later, are appended to it.
func (s *Stream) Headers(timeout time.Duration) (*kv.Storage, error) {
	deadline := s.conn.deadline(timeout)
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()

	return s.getHeaders(deadline)
}

func (s *Stream) getHeaders(deadline time.Time) (*kv.Storage, error) {
	c := s.conn

	if s.headersDone {
		return s.headers, nil
	}

	switch {
	case c.role == RoleServer && s.state == StateIdle:
		// only the request lock holder may read the socket, and entering the
		// pipeline here fixes the order responses will go out in.
		if c.reqHolder != s {
			if err := c.acquireReq(s, deadline); err != nil {
				return nil, err
			}
			c.push(s)
		}

		c.mu.Unlock()
		m, target, p, err := c.codec.ReadRequestLine(deadline)
		c.mu.Lock()
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				// timeouts never advance the state machine; the tokens stay
				// with the stream so a retry picks up where it left off
				return nil, err
			}

			// the exchange never started; hand all tokens back
			s.setState(StateClosed)
			return nil, err
		}

		s.method = m
		s.peerProto = p
		c.peerProto = p
		if m == method.CONNECT {
			s.headers.Add(":authority", target)
		} else {
			s.headers.Add(":path", target)
		}
		s.headers.Add(":method", m.String())
		scheme := "http"
		if c.client.Encrypted() {
			scheme = "https"
		}
		s.headers.Add(":scheme", scheme)
		s.setState(StateOpen)

	case c.role == RoleClient && (s.state == StateOpen || s.state == StateHalfClosedLocal) && !s.headers.Has(":status"):
		// responses come back in request order, wait our turn out.
		if err := c.awaitHead(s, deadline); err != nil {
			return nil, err
		}

		c.mu.Unlock()
		p, code, _, err := c.codec.ReadStatusLine(deadline)
		c.mu.Lock()
		if err != nil {
			return nil, err
		}

		s.peerProto = p
		c.peerProto = p
		s.headers.Add(":status", strconv.Itoa(int(code)))

	case c.role == RoleClient && s.state == StateIdle:
		panic("BUG: reading response headers before the request was sent")

	case s.headers.Has(":status"), s.headers.Has(":method"):
		// the start line is in, a previous attempt failed mid-fields; resume

	default:
		return s.headers, nil
	}

	if err := s.readFields(deadline); err != nil {
		return nil, err
	}

	s.headersDone = true
	s.headersCond.Broadcast()

	if s.noBodyExpected() {
		s.finishRemote()
	}

	return s.headers, nil
}

// readFields consumes field lines up to the block terminator, appending them
// to the stream's header storage. Serves both the head section and trailers.
func (s *Stream) readFields(deadline time.Time) error {
	c := s.conn

	for {
		c.mu.Unlock()
		name, value, err := c.codec.ReadField(deadline)
		c.mu.Lock()

		switch err {
		case nil:
		case io.EOF:
			return nil
		default:
			return err
		}

		if s.fieldCount++; s.fieldCount > c.cfg.Headers.MaxNumber {
			return status.ErrTooManyHeaders
		}

		name = strings.ToLower(name)
		if name == "host" {
			name = ":authority"
		}

		s.headers.Add(name, value)
	}
}

// noBodyExpected reports whether the just-parsed head implies the peer sends
// no body at all, in which case the remote direction is already complete.
func (s *Stream) noBodyExpected() bool {
	if s.conn.role == RoleClient {
		return s.method == method.HEAD
	}

	if s.method != method.GET && s.method != method.HEAD {
		return false
	}

	return !s.headers.Has("content-length") &&
		!s.headers.Has("content-type") &&
		!s.headers.Has("transfer-encoding")
}

// WriteHeaders transmits the message head. A client stream takes :method and
// :path (:authority for CONNECT) pseudo-fields, a server stream takes
// :status. Remaining fields go out in iteration order; pseudo-fields are
// suppressed, except that :authority of a non-CONNECT request turns into the
// Host field. endStream declares that no body follows.
//
// The call also fixes the outbound body framing, in order of preference:
// chunked when Transfer-Encoding ends in chunked, length-delimited when
// Content-Length is given, close-delimited otherwise (always so for CONNECT).
// Close-delimited framing is only chosen when the connection closes after the
// exchange anyway or on a server stream, which then closes it; a client request
// with neither field on a persistent connection panics.
func (s *Stream) WriteHeaders(headers *kv.Storage, endStream bool, timeout time.Duration) error {
	deadline := s.conn.deadline(timeout)
	c := s.conn
	c.mu.Lock()
	defer c.mu.Unlock()

	switch s.state {
	case StateClosed, StateHalfClosedLocal:
		return ErrClosed
	}

	var (
		target string
		code   status.Code
	)

	if c.role == RoleClient {
		if s.state != StateIdle {
			panic("BUG: request headers were already sent")
		}

		mstr, found := headers.Get(":method")
		if !found {
			panic("BUG: request headers carry no :method")
		}

		s.method = method.Parse(mstr)
		if s.method == method.Unknown {
			panic(fmt.Sprintf("BUG: unsupported request method: %q", mstr))
		}

		if s.method == method.CONNECT {
			if headers.Has(":path") {
				panic("BUG: a CONNECT request must not carry :path")
			}

			target, found = headers.Get(":authority")
		} else {
			target, found = headers.Get(":path")
		}
		if !found {
			panic("BUG: request headers carry no target")
		}

		if err := c.acquireReq(s, deadline); err != nil {
			return err
		}
		c.push(s)
	} else {
		if s.state == StateIdle {
			panic("BUG: responding on a stream with no request read")
		}

		// responses of pipelined exchanges keep the arrival order.
		if err := c.awaitHead(s, deadline); err != nil {
			return err
		}

		codeStr, found := headers.Get(":status")
		if !found {
			panic("BUG: response headers carry no :status")
		}

		parsed, err := strconv.ParseUint(codeStr, 10, 16)
		if err != nil {
			panic(fmt.Sprintf("BUG: malformed :status value: %q", codeStr))
		}

		code = status.Code(parsed)
	}

	zeroCL := s.chooseWriteFraming(headers, endStream)

	c.mu.Unlock()
	err := s.emitHead(headers, target, code, zeroCL, deadline)
	if err == nil && endStream && s.closeWhenDone {
		err = c.client.CloseWrite()
	}
	c.mu.Lock()

	if c.role == RoleClient && s.state == StateIdle {
		// the request line is on the wire (or at least buffered), the
		// exchange is on
		s.setState(StateOpen)
	}

	if err != nil {
		return err
	}

	if endStream {
		s.finishLocal()
	}

	return nil
}

// chooseWriteFraming fixes body_write_type and close_when_done, once per
// exchange. Returns whether an explicit `Content-Length: 0` must be emitted
// so a bodyless request does not leave the server waiting.
func (s *Stream) chooseWriteFraming(headers *kv.Storage, endStream bool) (zeroCL bool) {
	if s.wframing != framingUnset {
		return false
	}

	if s.method == method.CONNECT {
		s.wframing = framingClose
		s.closeWhenDone = true
		return false
	}

	connection := headers.Value("connection")
	peer := s.peerProto
	if peer == proto.Unknown {
		peer = s.conn.peerProto
	}
	if peer == proto.Unknown {
		// nothing was heard from the peer yet, assume the modern one
		peer = proto.HTTP11
	}

	if peer == proto.HTTP10 {
		s.closeWhenDone = !strutil.HasToken(connection, "keep-alive")
	} else {
		s.closeWhenDone = strutil.HasToken(connection, "close")
	}

	switch {
	case endStream:
		s.wframing = framingLength
		zeroCL = s.conn.role == RoleClient && s.method != method.HEAD &&
			!s.closeWhenDone && !headers.Has("content-length")
	case strutil.CmpFold(strutil.LastToken(headers.Value("transfer-encoding")), "chunked"):
		s.wframing = framingChunked
	case headers.Has("content-length"):
		length, err := parseContentLength(headers.Value("content-length"), s.conn.cfg.Body.MaxContentLengthDigits)
		if err != nil {
			panic(fmt.Sprintf("BUG: malformed Content-Length value: %q", headers.Value("content-length")))
		}

		s.wframing = framingLength
		s.writeLeft = length
	case s.closeWhenDone:
		s.wframing = framingClose
	case s.conn.role == RoleServer:
		// an unsized response can always fall back to closing the connection
		s.wframing = framingClose
		s.closeWhenDone = true
	default:
		panic("BUG: cannot infer request body framing: set Content-Length or Transfer-Encoding")
	}

	return zeroCL
}

// emitHead serializes the start line and the field block. Runs unlocked.
func (s *Stream) emitHead(headers *kv.Storage, target string, code status.Code, zeroCL bool, deadline time.Time) error {
	c := s.conn

	var err error
	if c.role == RoleClient {
		err = c.codec.WriteRequestLine(s.method, target, c.version, deadline)
	} else {
		err = c.codec.WriteStatusLine(c.version, code, status.Text(code), deadline)
	}
	if err != nil {
		return err
	}

	for name, value := range headers.Iter() {
		if len(name) > 0 && name[0] == ':' {
			if strutil.CmpFold(name, ":authority") && s.method != method.CONNECT && c.role == RoleClient {
				if err = c.codec.WriteField("Host", value, deadline); err != nil {
					return err
				}
			}

			continue
		}

		if err = c.codec.WriteField(name, value, deadline); err != nil {
			return err
		}
	}

	if zeroCL {
		if err = c.codec.WriteField("Content-Length", "0", deadline); err != nil {
			return err
		}
	}

	return c.codec.WriteFieldsDone(deadline)
}

// WriteChunk transmits a piece of the message body framed the way WriteHeaders
// chose. endStream terminates the sending direction; under length framing the
// declared size must be fully used up by then.
func (s *Stream) WriteChunk(chunk []byte, endStream bool, timeout time.Duration) error {
	deadline := s.conn.deadline(timeout)
	c := s.conn
	c.mu.Lock()
	defer c.mu.Unlock()

	if s.state != StateOpen && s.state != StateHalfClosedRemote {
		panic(fmt.Sprintf("BUG: writing body in state %q", s.state))
	}

	if c.role == RoleClient {
		if c.reqHolder != s {
			panic("BUG: writing body without the request lock")
		}
	} else if c.head() != s {
		panic("BUG: writing body while not at the head of the pipeline")
	}

	var err error

	switch s.wframing {
	case framingChunked:
		c.mu.Unlock()
		if err = c.codec.WriteChunk(chunk, deadline); err == nil && endStream {
			// empty trailer section terminates the body
			if err = c.codec.WriteLastChunk(deadline); err == nil {
				err = c.codec.WriteFieldsDone(deadline)
			}
		}
		c.mu.Lock()

	case framingLength:
		if int64(len(chunk)) > s.writeLeft {
			panic("BUG: body is longer than the declared Content-Length")
		}

		c.mu.Unlock()
		err = c.codec.WritePlain(chunk, deadline)
		c.mu.Lock()

		if err == nil {
			s.writeLeft -= int64(len(chunk))
			if endStream && s.writeLeft != 0 {
				panic("BUG: body is shorter than the declared Content-Length")
			}
		}

	case framingClose:
		c.mu.Unlock()
		err = c.codec.WritePlain(chunk, deadline)
		c.mu.Lock()

	default:
		panic("BUG: writing body before headers")
	}

	if err != nil {
		return err
	}

	s.sentBytes += int64(len(chunk))

	if endStream {
		if s.closeWhenDone {
			c.mu.Unlock()
			err = c.client.CloseWrite()
			c.mu.Lock()
		}

		s.finishLocal()
	}

	return err
}

// Fetch returns the next piece of the peer's message body. The head section is
// read first if it wasn't yet. io.EOF reports the body is complete, at which
// point trailer fields of a chunked body are available via Headers.
func (s *Stream) Fetch(timeout time.Duration) ([]byte, error) {
	deadline := s.conn.deadline(timeout)
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()

	return s.fetch(deadline)
}

func (s *Stream) fetch(deadline time.Time) ([]byte, error) {
	if s.body == nil {
		if _, err := s.getHeaders(deadline); err != nil {
			return nil, err
		}

		if s.state == StateHalfClosedRemote || s.state == StateClosed {
			// the head already implied an empty body
			return nil, io.EOF
		}

		body, err := s.newBodyReader()
		if err != nil {
			return nil, err
		}

		s.body = body
	}

	piece, err := s.body.fetch(deadline)
	if err == io.EOF {
		s.finishRemote()
		return nil, io.EOF
	}

	return piece, err
}

// Shutdown abandons the exchange, doing its best to leave the connection in a
// defined state: the unread remainder of the inbound body is drained, and a
// server stream at the head of the pipeline which consumed its request and
// started but never completed the response fabricates a terminal body. A server
// stream that never wrote its response head writes nothing. The stream always
// ends up closed.
func (s *Stream) Shutdown() {
	c := s.conn
	c.mu.Lock()
	defer c.mu.Unlock()

	if s.state == StateClosed {
		return
	}

	deadline := time.Now().Add(c.cfg.NET.DrainTimeout)

	if s.state == StateOpen || s.state == StateHalfClosedLocal {
		for {
			if _, err := s.fetch(deadline); err != nil {
				break
			}
		}
	}

	if c.role == RoleServer && s.state == StateHalfClosedRemote && c.head() == s {
		// terminate a half-written response so the peer is not left hanging
		// mid-framing
		filler := s.writeLeft

		c.mu.Unlock()
		switch s.wframing {
		case framingChunked:
			if c.codec.WriteLastChunk(deadline) == nil {
				_ = c.codec.WriteFieldsDone(deadline)
			}
		case framingLength:
			if filler > 0 {
				_ = c.codec.WritePlain(make([]byte, filler), deadline)
			}
		}
		if s.wframing != framingUnset && s.closeWhenDone {
			_ = c.client.CloseWrite()
		}
		c.mu.Lock()

		if s.wframing == framingLength {
			s.sentBytes += filler
			s.writeLeft = 0
		}
	}

	s.setState(StateClosed)
}

// parseContentLength accepts a plain decimal value of at most maxDigits
// digits. Signs, whitespace and value lists are all rejected.
func parseContentLength(value string, maxDigits int) (int64, error) {
	if len(value) == 0 || len(value) > maxDigits {
		return 0, status.ErrBadContentLength
	}

	var length int64
	for i := 0; i < len(value); i++ {
		char := value[i]
		if char < '0' || char > '9' {
			return 0, status.ErrBadContentLength
		}

		length = length*10 + int64(char-'0')
	}

	return length, nil
}
