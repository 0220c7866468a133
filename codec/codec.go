package codec

import (
	"bytes"
	"io"
	"strconv"
	"time"

	"github.com/indigo-web/h1/config"
	"github.com/indigo-web/h1/http/method"
	"github.com/indigo-web/h1/http/proto"
	"github.com/indigo-web/h1/http/status"
	"github.com/indigo-web/h1/internal/hexconv"
	"github.com/indigo-web/h1/internal/strutil"
	"github.com/indigo-web/h1/transport"
	"github.com/indigo-web/utils/uf"
)

const crlf = "\r\n"

// Codec reads and writes the HTTP/1.x wire units a stream is composed of: request
// and status lines, field lines, chunked framing and length-delimited bodies. It
// owns no exchange state besides the current inbound chunk position, so a single
// codec serves all streams of a connection in turn.
//
// The read and the write halves keep separate scratch buffers and may be driven
// by different goroutines at the same time, which pipelining relies on.
type Codec struct {
	cfg    *config.Config
	client transport.Client

	line []byte

	chunkLeft int64
	chunkCRLF bool

	wbuff []byte
}

func New(client transport.Client, cfg *config.Config) *Codec {
	return &Codec{
		cfg:    cfg,
		client: client,
		wbuff:  make([]byte, 0, cfg.NET.WriteBufferSize),
	}
}

// readLine returns the next CRLF-terminated line with the terminator stripped.
// A bare LF is tolerated. The returned slice is valid until the next read.
func (c *Codec) readLine(deadline time.Time) ([]byte, error) {
	c.line = c.line[:0]

	for {
		data, err := c.client.Read(deadline)
		if err != nil {
			if err == io.EOF && len(c.line) > 0 {
				err = io.ErrUnexpectedEOF
			}

			return nil, err
		}

		lf := bytes.IndexByte(data, '\n')
		if lf == -1 {
			if len(c.line)+len(data) > c.cfg.Headers.MaxLineSize {
				return nil, status.ErrTooLongLine
			}

			c.line = append(c.line, data...)
			continue
		}

		c.client.Pushback(data[lf+1:])

		line := data[:lf]
		if len(c.line) > 0 {
			if len(c.line)+len(line) > c.cfg.Headers.MaxLineSize {
				return nil, status.ErrTooLongLine
			}

			c.line = append(c.line, line...)
			line = c.line
		} else if len(line) > c.cfg.Headers.MaxLineSize {
			return nil, status.ErrTooLongLine
		}

		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}

		return line, nil
	}
}

// ReadRequestLine parses `METHOD target HTTP/x.x`.
func (c *Codec) ReadRequestLine(deadline time.Time) (method.Method, string, proto.Proto, error) {
	line, err := c.readLine(deadline)
	if err != nil {
		return method.Unknown, "", proto.Unknown, err
	}

	sp := bytes.IndexByte(line, ' ')
	if sp == -1 {
		return method.Unknown, "", proto.Unknown, status.ErrBadRequest
	}

	m := method.Parse(uf.B2S(line[:sp]))
	if m == method.Unknown {
		return method.Unknown, "", proto.Unknown, status.ErrMethodNotImplemented
	}

	rest := line[sp+1:]
	sp = bytes.LastIndexByte(rest, ' ')
	if sp < 1 {
		return method.Unknown, "", proto.Unknown, status.ErrBadRequest
	}

	p := proto.FromBytes(rest[sp+1:])
	if p == proto.Unknown {
		return method.Unknown, "", proto.Unknown, status.ErrHTTPVersionNotSupported
	}

	return m, string(rest[:sp]), p, nil
}

// ReadStatusLine parses `HTTP/x.x 200 reason`. The reason phrase may be empty and
// may contain spaces.
func (c *Codec) ReadStatusLine(deadline time.Time) (proto.Proto, status.Code, string, error) {
	line, err := c.readLine(deadline)
	if err != nil {
		return proto.Unknown, 0, "", err
	}

	sp := bytes.IndexByte(line, ' ')
	if sp == -1 {
		return proto.Unknown, 0, "", status.ErrBadRequest
	}

	p := proto.FromBytes(line[:sp])
	if p == proto.Unknown {
		return proto.Unknown, 0, "", status.ErrHTTPVersionNotSupported
	}

	rest := line[sp+1:]
	codeStr, reason := rest, []byte(nil)
	if sp = bytes.IndexByte(rest, ' '); sp != -1 {
		codeStr, reason = rest[:sp], rest[sp+1:]
	}

	if len(codeStr) != 3 {
		return proto.Unknown, 0, "", status.ErrBadRequest
	}

	var code status.Code
	for _, char := range codeStr {
		if char < '0' || char > '9' {
			return proto.Unknown, 0, "", status.ErrBadRequest
		}

		code = code*10 + status.Code(char-'0')
	}

	return p, code, string(reason), nil
}

// ReadField parses the next field line. io.EOF is returned at the empty line
// terminating the block; trailer blocks are terminated the same way.
func (c *Codec) ReadField(deadline time.Time) (name, value string, err error) {
	line, err := c.readLine(deadline)
	if err != nil {
		return "", "", err
	}

	if len(line) == 0 {
		return "", "", io.EOF
	}

	colon := bytes.IndexByte(line, ':')
	if colon < 1 {
		return "", "", status.ErrBadRequest
	}

	name = string(line[:colon])
	value = strutil.RStripWS(strutil.LStripWS(string(line[colon+1:])))

	return name, value, nil
}

// ReadChunk returns the next piece of chunk-encoded data. Pieces do not
// necessarily correspond to whole chunks. io.EOF is returned at the zero-length
// chunk; the trailer section that follows is intentionally left unread, so the
// caller collects it via ReadField.
func (c *Codec) ReadChunk(deadline time.Time) ([]byte, error) {
	if c.chunkLeft == 0 {
		if c.chunkCRLF {
			line, err := c.readLine(deadline)
			if err != nil {
				return nil, unexpectEOF(err)
			}

			if len(line) != 0 {
				return nil, status.ErrBadChunk
			}

			c.chunkCRLF = false
		}

		line, err := c.readLine(deadline)
		if err != nil {
			return nil, unexpectEOF(err)
		}

		size, err := c.parseChunkLength(line)
		if err != nil {
			return nil, err
		}

		if size == 0 {
			return nil, io.EOF
		}

		c.chunkLeft = size
	}

	data, err := c.client.Read(deadline)
	if err != nil {
		return nil, unexpectEOF(err)
	}

	if int64(len(data)) >= c.chunkLeft {
		piece := data[:c.chunkLeft]
		c.client.Pushback(data[c.chunkLeft:])
		c.chunkLeft = 0
		c.chunkCRLF = true

		return piece, nil
	}

	c.chunkLeft -= int64(len(data))

	return data, nil
}

// parseChunkLength decodes the hex chunk-size token. A chunk extension, if any,
// is completely ignored.
func (c *Codec) parseChunkLength(line []byte) (int64, error) {
	if ext := bytes.IndexByte(line, ';'); ext != -1 {
		line = line[:ext]
	}

	if len(line) == 0 || len(line) > c.cfg.Body.MaxChunkLengthDigits {
		return 0, status.ErrBadChunk
	}

	var size int64
	for _, char := range line {
		halfbyte := hexconv.Halfbyte[char]
		if halfbyte == 0xFF {
			return 0, status.ErrBadChunk
		}

		size = size<<4 | int64(halfbyte)
	}

	return size, nil
}

// ReadLength reads exactly n bytes when n is positive, accumulating as many
// reads as it takes. Negative n means "up to |n| bytes in a single read", which
// is the streaming mode. Zero yields nothing.
func (c *Codec) ReadLength(n int64, deadline time.Time) ([]byte, error) {
	switch {
	case n == 0:
		return nil, nil
	case n < 0:
		data, err := c.client.Read(deadline)
		if err != nil {
			return nil, err
		}

		if max := -n; int64(len(data)) > max {
			c.client.Pushback(data[max:])
			data = data[:max]
		}

		return data, nil
	}

	buff := make([]byte, 0, n)
	for int64(len(buff)) < n {
		data, err := c.client.Read(deadline)
		if err != nil {
			return nil, unexpectEOF(err)
		}

		if need := n - int64(len(buff)); int64(len(data)) > need {
			c.client.Pushback(data[need:])
			data = data[:need]
		}

		buff = append(buff, data...)
	}

	return buff, nil
}

func (c *Codec) WriteRequestLine(m method.Method, target string, p proto.Proto, deadline time.Time) error {
	c.wbuff = append(c.wbuff, m.String()...)
	c.wbuff = append(c.wbuff, ' ')
	c.wbuff = append(c.wbuff, target...)
	c.wbuff = append(c.wbuff, ' ')
	c.wbuff = append(c.wbuff, p.String()...)
	c.wbuff = append(c.wbuff, crlf...)

	return nil
}

func (c *Codec) WriteStatusLine(p proto.Proto, code status.Code, reason string, deadline time.Time) error {
	c.wbuff = append(c.wbuff, p.String()...)
	c.wbuff = append(c.wbuff, ' ')
	c.wbuff = strconv.AppendUint(c.wbuff, uint64(code), 10)
	c.wbuff = append(c.wbuff, ' ')
	c.wbuff = append(c.wbuff, reason...)
	c.wbuff = append(c.wbuff, crlf...)

	return nil
}

func (c *Codec) WriteField(name, value string, deadline time.Time) error {
	c.wbuff = append(c.wbuff, name...)
	c.wbuff = append(c.wbuff, ':', ' ')
	c.wbuff = append(c.wbuff, value...)
	c.wbuff = append(c.wbuff, crlf...)

	if len(c.wbuff) >= c.cfg.NET.WriteBufferSize {
		return c.flush(deadline)
	}

	return nil
}

// WriteFieldsDone terminates a field block, both the head section and a trailer
// section, and flushes everything buffered so far.
func (c *Codec) WriteFieldsDone(deadline time.Time) error {
	c.wbuff = append(c.wbuff, crlf...)

	return c.flush(deadline)
}

// WriteChunk frames b as a single chunk. Empty input is skipped entirely, as a
// zero length would terminate the body.
func (c *Codec) WriteChunk(b []byte, deadline time.Time) error {
	if len(b) == 0 {
		return nil
	}

	c.wbuff = strconv.AppendUint(c.wbuff, uint64(len(b)), 16)
	c.wbuff = append(c.wbuff, crlf...)

	if len(c.wbuff)+len(b)+len(crlf) <= cap(c.wbuff) {
		c.wbuff = append(c.wbuff, b...)
		c.wbuff = append(c.wbuff, crlf...)

		return c.flush(deadline)
	}

	if err := c.flush(deadline); err != nil {
		return err
	}

	if _, err := c.client.Write(b, deadline); err != nil {
		return err
	}

	_, err := c.client.Write([]byte(crlf), deadline)

	return err
}

// WriteLastChunk emits the zero-length terminator chunk. The trailer block
// terminator is a separate WriteFieldsDone call.
func (c *Codec) WriteLastChunk(deadline time.Time) error {
	c.wbuff = append(c.wbuff, '0')
	c.wbuff = append(c.wbuff, crlf...)

	return nil
}

// WritePlain transmits b as-is, for both length-delimited and close-delimited
// bodies.
func (c *Codec) WritePlain(b []byte, deadline time.Time) error {
	if err := c.flush(deadline); err != nil {
		return err
	}

	if len(b) == 0 {
		return nil
	}

	_, err := c.client.Write(b, deadline)

	return err
}

func (c *Codec) flush(deadline time.Time) (err error) {
	if len(c.wbuff) > 0 {
		_, err = c.client.Write(c.wbuff, deadline)
		c.wbuff = c.wbuff[:0]
	}

	return err
}

func unexpectEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}

	return err
}
