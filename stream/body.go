package stream

import (
	"io"
	"time"

	"github.com/indigo-web/h1/http/status"
	"github.com/indigo-web/h1/internal/strutil"
	json "github.com/json-iterator/go"
)

// bodyReader is the per-stream handle behind Fetch, constructed lazily from
// the received head. io.EOF reports the message is complete; all readers keep
// reporting it once done. The fetch contract mirrors stream operations: the
// connection mutex is held on entry and around everything but socket I/O.
type bodyReader interface {
	fetch(deadline time.Time) ([]byte, error)
}

// newBodyReader picks the inbound framing: chunked beats content-length beats
// reading until the peer closes.
func (s *Stream) newBodyReader() (bodyReader, error) {
	if te, found := s.headers.Get("transfer-encoding"); found {
		for token := range strutil.WalkTokens(te) {
			if !strutil.CmpFold(token, "chunked") {
				return nil, status.ErrBadTransferEncoding
			}
		}

		return &chunkedReader{stream: s}, nil
	}

	if cl, found := s.headers.Get("content-length"); found {
		length, err := parseContentLength(cl, s.conn.cfg.Body.MaxContentLengthDigits)
		if err != nil {
			return nil, err
		}

		return &lengthReader{stream: s, left: length}, nil
	}

	return &closeReader{stream: s}, nil
}

type chunkedReader struct {
	stream *Stream
	done   bool
}

func (r *chunkedReader) fetch(deadline time.Time) ([]byte, error) {
	if r.done {
		return nil, io.EOF
	}

	c := r.stream.conn
	c.mu.Unlock()
	piece, err := c.codec.ReadChunk(deadline)
	c.mu.Lock()

	if err != io.EOF {
		return piece, err
	}

	// the zero chunk is past, trailer fields follow
	if err = r.stream.readFields(deadline); err != nil {
		return nil, err
	}

	r.stream.trailersDone = true
	r.stream.headersCond.Broadcast()
	r.done = true

	return nil, io.EOF
}

type lengthReader struct {
	stream *Stream
	left   int64
}

func (r *lengthReader) fetch(deadline time.Time) ([]byte, error) {
	if r.left == 0 {
		return nil, io.EOF
	}

	c := r.stream.conn
	c.mu.Unlock()
	piece, err := c.codec.ReadLength(-r.left, deadline)
	c.mu.Lock()

	if err != nil {
		if err == io.EOF {
			// the peer hung up before delivering the declared amount
			err = io.ErrUnexpectedEOF
		}

		return nil, err
	}

	r.left -= int64(len(piece))

	return piece, nil
}

type closeReader struct {
	stream *Stream
}

func (r *closeReader) fetch(deadline time.Time) ([]byte, error) {
	c := r.stream.conn
	c.mu.Unlock()
	piece, err := c.codec.ReadLength(-int64(c.cfg.NET.ReadBufferSize), deadline)
	c.mu.Lock()

	return piece, err
}

// Body is a convenience view over the stream's receive side for when the
// caller wants the message at once rather than piece by piece.
type Body struct {
	stream *Stream
	buff   []byte
}

func (s *Stream) Body() *Body {
	return &Body{stream: s}
}

// Bytes collects the whole remaining body. The returned slice is owned by the
// Body and stays valid until the next call.
func (b *Body) Bytes(timeout time.Duration) ([]byte, error) {
	deadline := b.stream.conn.deadline(timeout)
	b.buff = b.buff[:0]

	for {
		piece, err := b.stream.Fetch(residual(deadline))
		b.buff = append(b.buff, piece...)

		if int64(len(b.buff)) > b.stream.conn.cfg.Body.MaxSize {
			return nil, status.ErrBodyTooLarge
		}

		switch err {
		case nil:
		case io.EOF:
			return b.buff, nil
		default:
			return nil, err
		}
	}
}

func (b *Body) String(timeout time.Duration) (string, error) {
	data, err := b.Bytes(timeout)
	return string(data), err
}

// JSON collects the body and unmarshals it into the model.
func (b *Body) JSON(model any, timeout time.Duration) error {
	data, err := b.Bytes(timeout)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, model)
}

// Callback invokes cb for every piece of the body as it arrives. The callback
// is not invoked on the empty terminal piece; its error, if any, is passed
// back to the caller as-is.
func (b *Body) Callback(cb func([]byte) error, timeout time.Duration) error {
	deadline := b.stream.conn.deadline(timeout)

	for {
		piece, err := b.stream.Fetch(residual(deadline))

		if len(piece) > 0 {
			if cberr := cb(piece); cberr != nil {
				return cberr
			}
		}

		switch err {
		case nil:
		case io.EOF:
			return nil
		default:
			return err
		}
	}
}

// residual keeps an absolute deadline meaningful across repeated calls into
// the timeout-taking operations.
func residual(deadline time.Time) time.Duration {
	left := time.Until(deadline)
	if left <= 0 {
		left = time.Nanosecond
	}

	return left
}
