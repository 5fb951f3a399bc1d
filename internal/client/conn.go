// Package client provides the raw per-worker connection to a target server.
// Each Conn owns exactly one TCP socket and runs one blocking request/response
// exchange at a time: no pooling, no pipelining, no internal retries. Retry
// policy belongs to the caller.
package client

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/kvbench/kvcompare/internal/resp"
)

// ErrClosed is returned when an exchange is attempted on a closed or failed
// connection.
var ErrClosed = errors.New("connection closed")

// ErrProtocol wraps reply-shape mismatches (e.g. a SET that did not answer
// +OK). The stream stays in sync after a protocol error, so the connection
// remains usable.
var ErrProtocol = errors.New("protocol error")

// Conn is the exclusive owner of one socket. It is not safe for concurrent
// use: the benchmark gives each worker goroutine its own Conn.
type Conn struct {
	nc      net.Conn
	reader  *resp.Reader
	writer  *bufio.Writer
	timeout time.Duration
	closed  bool
	failed  bool
}

// Dial opens a TCP connection to host:port with the given timeout, which also
// becomes the per-exchange I/O deadline.
func Dial(host string, port int, timeout time.Duration) (*Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	d := net.Dialer{Timeout: timeout}
	nc, err := d.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	if tc, ok := nc.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}
	return &Conn{
		nc:      nc,
		reader:  resp.NewReader(nc),
		writer:  bufio.NewWriter(nc),
		timeout: timeout,
	}, nil
}

// Exchange writes the full encoded command, then blocks until one complete
// reply is decoded. A write/read error or deadline expiry marks the
// connection failed; the caller must not reuse it afterwards.
func (c *Conn) Exchange(cmd resp.Command) (resp.Reply, error) {
	if c.closed || c.failed {
		return resp.Reply{}, ErrClosed
	}

	if c.timeout > 0 {
		if err := c.nc.SetDeadline(time.Now().Add(c.timeout)); err != nil {
			c.failed = true
			return resp.Reply{}, fmt.Errorf("set deadline: %w", err)
		}
	}

	if err := resp.WriteCommand(c.writer, cmd); err != nil {
		c.failed = true
		return resp.Reply{}, fmt.Errorf("write: %w", err)
	}
	if err := c.writer.Flush(); err != nil {
		c.failed = true
		return resp.Reply{}, fmt.Errorf("write: %w", err)
	}

	reply, err := c.reader.ReadReply()
	if err != nil {
		c.failed = true
		return resp.Reply{}, fmt.Errorf("read: %w", err)
	}
	return reply, nil
}

// Ping performs a PING exchange and validates the +PONG reply.
func (c *Conn) Ping() error {
	reply, err := c.Exchange(resp.Ping())
	if err != nil {
		return err
	}
	if reply.Kind == resp.Error {
		return reply.Err()
	}
	if reply.Kind != resp.SimpleString || reply.Str != "PONG" {
		return fmt.Errorf("%w: PING answered %s", ErrProtocol, reply.Kind)
	}
	return nil
}

// Set performs a SET exchange and validates the +OK reply.
func (c *Conn) Set(key string, value []byte) error {
	reply, err := c.Exchange(resp.Set(key, value))
	if err != nil {
		return err
	}
	if reply.Kind == resp.Error {
		return reply.Err()
	}
	if reply.Kind != resp.SimpleString || reply.Str != "OK" {
		return fmt.Errorf("%w: SET answered %s", ErrProtocol, reply.Kind)
	}
	return nil
}

// Get performs a GET exchange. The bool reports whether the key existed: a
// null bulk reply means "not found" and is not an error.
func (c *Conn) Get(key string) ([]byte, bool, error) {
	reply, err := c.Exchange(resp.Get(key))
	if err != nil {
		return nil, false, err
	}
	if reply.Kind == resp.Error {
		return nil, false, reply.Err()
	}
	if reply.Kind != resp.BulkString {
		return nil, false, fmt.Errorf("%w: GET answered %s", ErrProtocol, reply.Kind)
	}
	if reply.Null {
		return nil, false, nil
	}
	return reply.Bulk, true, nil
}

// Failed reports whether an I/O error has made the connection unusable.
func (c *Conn) Failed() bool {
	return c.failed
}

// Close releases the socket. It is idempotent.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.nc.Close()
}
