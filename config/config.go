package config

import "time"

type (
	Headers struct {
		// MaxNumber limits how many header fields a single message may carry,
		// trailer fields included.
		MaxNumber int
		// MaxLineSize limits the length of a single line: a request line, a status
		// line or a field line. Lines are accumulated in memory until complete, so
		// the limit also bounds the codec's scratch buffer growth.
		MaxLineSize int
	}

	Body struct {
		// MaxSize caps the amount of body bytes the convenience collectors
		// (stream.Body) are willing to hold in memory at once. The streaming
		// interface is not affected.
		MaxSize int64
		// MaxChunkLengthDigits bounds the hex chunk-size token. 8 digits set the
		// implicit limit of a single chunk to 4GiB, which is supposedly enough.
		MaxChunkLengthDigits int
		// MaxContentLengthDigits bounds the decimal Content-Length value.
		MaxContentLengthDigits int
	}

	NET struct {
		// ReadBufferSize is a size of the buffer in bytes used to read from the
		// socket.
		ReadBufferSize int
		// WriteBufferSize stores serialized head sections before they are flushed.
		WriteBufferSize int
		// Timeout is a default deadline for operations invoked with no explicit
		// timeout.
		Timeout time.Duration
		// DrainTimeout bounds how long Stream.Shutdown spends discarding the
		// remainder of an inbound body.
		DrainTimeout time.Duration
	}
)

// Config holds settings used across the module, mainly restrictions, limitations
// and pre-allocations.
//
// You must ALWAYS modify defaults (returned via Default()) and NEVER try to
// initialize the config manually, as zero limits reject everything.
type Config struct {
	Headers Headers
	Body    Body
	NET     NET
}

// Default returns the default config. Initially well-balanced, limits are fairly
// permitting.
func Default() *Config {
	return &Config{
		Headers: Headers{
			MaxNumber:   100,
			MaxLineSize: 16 * 1024, // there might be extremely long cookies.
		},
		Body: Body{
			MaxSize:                512 * 1024 * 1024, // 512 megabytes
			MaxChunkLengthDigits:   8,
			MaxContentLengthDigits: 12,
		},
		NET: NET{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 4 * 1024,
			Timeout:         90 * time.Second,
			DrainTimeout:    500 * time.Millisecond,
		},
	}
}
