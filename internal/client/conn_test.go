package client

import (
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvbench/kvcompare/internal/resp"
	"github.com/kvbench/kvcompare/internal/resptest"
)

func dialTestServer(t *testing.T, srv *resptest.Server) *Conn {
	t.Helper()
	host, port := srv.Addr(t)
	conn, err := Dial(host, port, 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// deadPort grabs a free port and closes the listener so nothing answers.
func deadPort(t *testing.T) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, _ := strconv.Atoi(portStr)
	ln.Close()
	return host, port
}

func TestConnPingSetGet(t *testing.T) {
	srv := resptest.Start(t)
	conn := dialTestServer(t, srv)

	require.NoError(t, conn.Ping())
	require.NoError(t, conn.Set("foo", []byte("bar")))

	val, found, err := conn.Get("foo")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("bar"), val)

	_, found, err = conn.Get("missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestConnGetEmptyValueIsFound(t *testing.T) {
	srv := resptest.Start(t)
	conn := dialTestServer(t, srv)

	require.NoError(t, conn.Set("empty", []byte{}))
	val, found, err := conn.Get("empty")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Len(t, val, 0)
}

func TestConnServerErrorDoesNotFailConnection(t *testing.T) {
	srv := resptest.Start(t)
	conn := dialTestServer(t, srv)

	reply, err := conn.Exchange(resp.NewCommand("FLUSHEVERYTHING"))
	require.NoError(t, err)
	require.Equal(t, resp.Error, reply.Kind)

	var srvErr *resp.ServerError
	assert.ErrorAs(t, reply.Err(), &srvErr)

	// Error replies keep the stream in sync; the connection stays usable.
	assert.False(t, conn.Failed())
	assert.NoError(t, conn.Ping())
}

func TestConnDialFailure(t *testing.T) {
	host, port := deadPort(t)
	_, err := Dial(host, port, 500*time.Millisecond)
	assert.Error(t, err)
}

func TestConnExchangeTimeout(t *testing.T) {
	// A listener that accepts but never replies.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			defer nc.Close()
			io.Copy(io.Discard, nc)
		}
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, _ := strconv.Atoi(portStr)

	conn, err := Dial(host, port, 100*time.Millisecond)
	require.NoError(t, err)
	defer conn.Close()

	err = conn.Ping()
	require.Error(t, err)
	assert.True(t, conn.Failed())

	// Subsequent exchanges fail immediately without touching the socket.
	_, err = conn.Exchange(resp.Ping())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestConnPeerCloseIsIOFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		nc, err := ln.Accept()
		if err != nil {
			return
		}
		nc.Close()
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, _ := strconv.Atoi(portStr)

	conn, err := Dial(host, port, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	err = conn.Ping()
	require.Error(t, err)
	assert.True(t, conn.Failed())
}

func TestConnCloseIdempotent(t *testing.T) {
	srv := resptest.Start(t)
	conn := dialTestServer(t, srv)

	require.NoError(t, conn.Close())
	assert.NoError(t, conn.Close())

	_, err := conn.Exchange(resp.Ping())
	assert.ErrorIs(t, err, ErrClosed)
}
