// Package resptest provides an in-process key-value server speaking the wire
// protocol, for codec, connection and benchmark tests.
package resptest

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvbench/kvcompare/internal/resp"
)

// Server is a minimal in-memory KV server on a loopback listener. It
// understands PING, SET and GET and counts the operations it serves.
type Server struct {
	ln   net.Listener
	wg   sync.WaitGroup
	mu   sync.Mutex
	data map[string][]byte
	sets int64
	gets int64

	// FailWrites makes every SET answer with an error reply while leaving
	// the stream in sync.
	FailWrites atomic.Bool
}

// Start launches the server and registers its shutdown as a test cleanup.
func Start(t testing.TB) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &Server{ln: ln, data: make(map[string][]byte)}
	s.wg.Add(1)
	go s.acceptLoop()
	t.Cleanup(func() {
		s.ln.Close()
		s.wg.Wait()
	})
	return s
}

// Addr returns the server's host and port.
func (s *Server) Addr(t testing.TB) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(s.ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

// Counts returns how many SET and GET commands the server has served.
func (s *Server) Counts() (sets, gets int64) {
	return atomic.LoadInt64(&s.sets), atomic.LoadInt64(&s.gets)
}

// Value looks up a stored key.
func (s *Server) Value(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serve(nc)
		}()
	}
}

func (s *Server) serve(nc net.Conn) {
	defer nc.Close()
	reader := resp.NewReader(nc)
	writer := bufio.NewWriter(nc)

	for {
		req, err := reader.ReadReply()
		if err != nil {
			return
		}
		s.reply(writer, req)
		if err := writer.Flush(); err != nil {
			return
		}
	}
}

func (s *Server) reply(writer *bufio.Writer, req resp.Reply) {
	if req.Kind != resp.Array || len(req.Elems) == 0 {
		fmt.Fprintf(writer, "-ERR bad request\r\n")
		return
	}

	switch string(req.Elems[0].Bulk) {
	case "PING":
		fmt.Fprintf(writer, "+PONG\r\n")
	case "SET":
		atomic.AddInt64(&s.sets, 1)
		if len(req.Elems) < 3 {
			fmt.Fprintf(writer, "-ERR wrong number of arguments for 'set' command\r\n")
			return
		}
		if s.FailWrites.Load() {
			fmt.Fprintf(writer, "-ERR writes disabled\r\n")
			return
		}
		s.mu.Lock()
		s.data[string(req.Elems[1].Bulk)] = append([]byte(nil), req.Elems[2].Bulk...)
		s.mu.Unlock()
		fmt.Fprintf(writer, "+OK\r\n")
	case "GET":
		atomic.AddInt64(&s.gets, 1)
		if len(req.Elems) < 2 {
			fmt.Fprintf(writer, "-ERR wrong number of arguments for 'get' command\r\n")
			return
		}
		s.mu.Lock()
		val, ok := s.data[string(req.Elems[1].Bulk)]
		s.mu.Unlock()
		if !ok {
			fmt.Fprintf(writer, "$-1\r\n")
			return
		}
		fmt.Fprintf(writer, "$%d\r\n", len(val))
		writer.Write(val)
		writer.WriteString("\r\n")
	default:
		fmt.Fprintf(writer, "-ERR unknown command '%s'\r\n", req.Elems[0].Bulk)
	}
}
