package stream

import (
	"testing"
	"time"

	"github.com/indigo-web/h1/kv"
	"github.com/stretchr/testify/require"
)

// Two pipelined client streams: B's request must wait out A holding the
// request lock, and B's response must wait out A leaving the pipeline head.
func TestPipelining(t *testing.T) {
	conn, client := newClientConn(
		[]byte("HTTP/1.1 200 OK\r\nContent-Length: 1\r\n\r\nA"),
		[]byte("HTTP/1.1 200 OK\r\nContent-Length: 1\r\n\r\nB"),
	)
	a, b := conn.Stream(), conn.Stream()

	headA := kv.New().
		Add(":method", "POST").
		Add(":path", "/a").
		Add("content-length", "1")
	require.NoError(t, a.WriteHeaders(headA, false, tick))

	bSent := make(chan error, 1)
	go func() {
		bSent <- b.WriteHeaders(get("/b"), true, tick)
	}()

	// B is stuck on the request lock for as long as A keeps sending
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, StateIdle, b.State())

	require.NoError(t, a.WriteChunk([]byte("x"), true, tick))
	require.NoError(t, <-bSent)

	// requests went out strictly in lock-acquisition order
	require.Equal(t,
		"POST /a HTTP/1.1\r\ncontent-length: 1\r\n\r\nx"+
			"GET /b HTTP/1.1\r\nHost: h\r\nContent-Length: 0\r\n\r\n",
		client.Written())

	// B's read is parked until A drains its response and leaves the head
	bBody := make(chan string, 1)
	go func() {
		data, err := b.Body().Bytes(tick)
		if err != nil {
			bBody <- err.Error()
			return
		}
		bBody <- string(data)
	}()

	time.Sleep(50 * time.Millisecond)
	select {
	case <-bBody:
		t.Fatal("B read its response ahead of A")
	default:
	}

	aData, err := a.Body().Bytes(tick)
	require.NoError(t, err)
	require.Equal(t, "A", string(aData))
	require.Equal(t, StateClosed, a.State())

	require.Equal(t, "B", <-bBody)
	require.Equal(t, StateClosed, b.State())
}

// The request lock has a single holder at any moment, and timing out on it
// leaves the waiter untouched.
func TestRequestLockTimeout(t *testing.T) {
	conn, _ := newClientConn()
	a, b := conn.Stream(), conn.Stream()

	headA := kv.New().
		Add(":method", "POST").
		Add(":path", "/a").
		Add("content-length", "1")
	require.NoError(t, a.WriteHeaders(headA, false, tick))

	err := b.WriteHeaders(get("/b"), true, 50*time.Millisecond)
	require.Error(t, err)
	require.Equal(t, StateIdle, b.State())

	// once A finishes sending, B goes through
	require.NoError(t, a.WriteChunk([]byte("x"), true, tick))
	require.NoError(t, b.WriteHeaders(get("/b"), true, tick))
}

// Server streams respond in request arrival order even when the later
// exchange is ready first.
func TestServerResponseOrdering(t *testing.T) {
	conn, client := newServerConn(
		[]byte("GET /1 HTTP/1.1\r\nHost: h\r\n\r\n"),
		[]byte("GET /2 HTTP/1.1\r\nHost: h\r\n\r\n"),
	)

	first := conn.Stream()
	_, err := first.Headers(tick)
	require.NoError(t, err)

	second := conn.Stream()
	_, err = second.Headers(tick)
	require.NoError(t, err)

	// the later stream tries to respond first and is parked
	secondSent := make(chan error, 1)
	go func() {
		resp := kv.New().Add(":status", "200").Add("Content-Length", "1")
		if err := second.WriteHeaders(resp, false, tick); err != nil {
			secondSent <- err
			return
		}
		secondSent <- second.WriteChunk([]byte("2"), true, tick)
	}()

	time.Sleep(50 * time.Millisecond)
	select {
	case <-secondSent:
		t.Fatal("the second response jumped the queue")
	default:
	}

	resp := kv.New().Add(":status", "200").Add("Content-Length", "1")
	require.NoError(t, first.WriteHeaders(resp, false, tick))
	require.NoError(t, first.WriteChunk([]byte("1"), true, tick))
	require.NoError(t, <-secondSent)

	require.Equal(t,
		"HTTP/1.1 200 OK\r\nContent-Length: 1\r\n\r\n1"+
			"HTTP/1.1 200 OK\r\nContent-Length: 1\r\n\r\n2",
		client.Written())
}
