// Package resp implements the minimal subset of the RESP wire protocol the
// benchmark needs: encoding commands as arrays of bulk strings and decoding
// the five reply types from a byte stream.
package resp

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// Kind identifies the type of a decoded reply.
type Kind int

const (
	SimpleString Kind = iota
	Error
	Integer
	BulkString
	Array
)

func (k Kind) String() string {
	switch k {
	case SimpleString:
		return "simple string"
	case Error:
		return "error"
	case Integer:
		return "integer"
	case BulkString:
		return "bulk string"
	case Array:
		return "array"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Reply is a decoded server reply. Exactly one of the payload fields is
// meaningful depending on Kind. A null bulk string has Kind BulkString and
// Null set; it is distinct from an empty (zero-length) bulk.
type Reply struct {
	Kind  Kind
	Str   string  // SimpleString and Error payload
	Int   int64   // Integer payload
	Bulk  []byte  // BulkString payload
	Null  bool    // set for $-1 (and *-1) replies
	Elems []Reply // Array payload
}

// Err converts an Error reply into a *ServerError. It returns nil for every
// other kind.
func (r Reply) Err() error {
	if r.Kind != Error {
		return nil
	}
	return &ServerError{Message: r.Str}
}

// ServerError is an error reply sent by the target server (a "-" line).
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "server error: " + e.Message
}

// DecodeError reports a malformed byte stream.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "resp: " + e.Reason
}

func decodeErrf(format string, args ...interface{}) error {
	return &DecodeError{Reason: fmt.Sprintf(format, args...)}
}

// Command is an ordered sequence of string arguments, immutable once built.
// Arguments are binary-safe: they are written as raw bytes with no escaping.
type Command struct {
	args []string
}

func NewCommand(args ...string) Command {
	return Command{args: args}
}

// Ping builds a PING command.
func Ping() Command {
	return NewCommand("PING")
}

// Set builds a SET command. The value bytes are carried verbatim.
func Set(key string, value []byte) Command {
	return NewCommand("SET", key, string(value))
}

// Get builds a GET command.
func Get(key string) Command {
	return NewCommand("GET", key)
}

// Args returns a copy of the argument vector.
func (c Command) Args() []string {
	out := make([]string, len(c.args))
	copy(out, c.args)
	return out
}

// Len returns the argument count.
func (c Command) Len() int {
	return len(c.args)
}

// Append encodes the command in request format and appends it to dst:
// *<argc>\r\n followed by $<len>\r\n<bytes>\r\n per argument.
func (c Command) Append(dst []byte) []byte {
	dst = append(dst, '*')
	dst = strconv.AppendInt(dst, int64(len(c.args)), 10)
	dst = append(dst, '\r', '\n')
	for _, arg := range c.args {
		dst = append(dst, '$')
		dst = strconv.AppendInt(dst, int64(len(arg)), 10)
		dst = append(dst, '\r', '\n')
		dst = append(dst, arg...)
		dst = append(dst, '\r', '\n')
	}
	return dst
}

// WriteCommand encodes cmd and writes it to w. The caller is responsible for
// flushing if w is buffered.
func WriteCommand(w io.Writer, cmd Command) error {
	_, err := w.Write(cmd.Append(nil))
	return err
}

// Reader decodes replies from a byte stream. It consumes exactly the bytes of
// each reply, leaving the stream positioned at the next reply boundary.
type Reader struct {
	br *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// ReadReply decodes one complete reply. An io.EOF before the first byte means
// the peer closed the connection cleanly; a truncated reply surfaces as
// io.ErrUnexpectedEOF.
func (r *Reader) ReadReply() (Reply, error) {
	prefix, err := r.br.ReadByte()
	if err != nil {
		return Reply{}, err
	}

	switch prefix {
	case '+':
		line, err := r.readLine()
		if err != nil {
			return Reply{}, err
		}
		return Reply{Kind: SimpleString, Str: string(line)}, nil

	case '-':
		line, err := r.readLine()
		if err != nil {
			return Reply{}, err
		}
		return Reply{Kind: Error, Str: string(line)}, nil

	case ':':
		line, err := r.readLine()
		if err != nil {
			return Reply{}, err
		}
		n, err := strconv.ParseInt(string(line), 10, 64)
		if err != nil {
			return Reply{}, decodeErrf("bad integer %q", line)
		}
		return Reply{Kind: Integer, Int: n}, nil

	case '$':
		length, err := r.readLength()
		if err != nil {
			return Reply{}, err
		}
		if length == -1 {
			return Reply{Kind: BulkString, Null: true}, nil
		}
		buf := make([]byte, length)
		if _, err := io.ReadFull(r.br, buf); err != nil {
			return Reply{}, unexpectedEOF(err)
		}
		if err := r.discardTerminator(); err != nil {
			return Reply{}, err
		}
		return Reply{Kind: BulkString, Bulk: buf}, nil

	case '*':
		count, err := r.readLength()
		if err != nil {
			return Reply{}, err
		}
		if count == -1 {
			return Reply{Kind: Array, Null: true}, nil
		}
		elems := make([]Reply, 0, count)
		for i := int64(0); i < count; i++ {
			elem, err := r.ReadReply()
			if err != nil {
				return Reply{}, unexpectedEOF(err)
			}
			elems = append(elems, elem)
		}
		return Reply{Kind: Array, Elems: elems}, nil
	}

	return Reply{}, decodeErrf("unknown reply prefix %q", prefix)
}

// readLine reads up to the CRLF terminator, returning the payload without it.
func (r *Reader) readLine() ([]byte, error) {
	line, err := r.br.ReadBytes('\n')
	if err != nil {
		return nil, unexpectedEOF(err)
	}
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return nil, decodeErrf("line missing CRLF terminator")
	}
	return line[:len(line)-2], nil
}

// readLength parses the decimal length that follows a $ or * prefix. Only -1
// is a valid negative value (the null marker).
func (r *Reader) readLength() (int64, error) {
	line, err := r.readLine()
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(string(line), 10, 64)
	if err != nil {
		return 0, decodeErrf("bad length %q", line)
	}
	if n < -1 {
		return 0, decodeErrf("negative length %d", n)
	}
	return n, nil
}

// discardTerminator consumes the CRLF that follows a bulk payload.
func (r *Reader) discardTerminator() error {
	crlf := make([]byte, 2)
	if _, err := io.ReadFull(r.br, crlf); err != nil {
		return unexpectedEOF(err)
	}
	if crlf[0] != '\r' || crlf[1] != '\n' {
		return decodeErrf("bulk payload missing CRLF terminator")
	}
	return nil
}

// unexpectedEOF maps a mid-reply EOF to io.ErrUnexpectedEOF so callers can
// tell a truncated reply from a clean close between replies.
func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
