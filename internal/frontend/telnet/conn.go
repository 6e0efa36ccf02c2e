package telnet

import (
	"bufio"
	"errors"
	"net"
	"sync"
	"time"
)

// Telnet command bytes (RFC 854). Packet clients never send them, but
// operators poking at a channel with a telnet client do.
const (
	IAC  byte = 255
	DONT byte = 254
	DO   byte = 253
	WONT byte = 252
	WILL byte = 251
	SB   byte = 250
	GA   byte = 249
	NOP  byte = 241
	SE   byte = 240
)

// Option codes seen in client negotiation.
const (
	OptEcho            byte = 1
	OptSuppressGoAhead byte = 3
	OptTerminalType    byte = 24
	OptLinemode        byte = 34
)

// MaxLineLength bounds a single inbound packet line.
const MaxLineLength = 4096

// ErrLineTooLong is returned by ReadLine when a line exceeds MaxLineLength.
var ErrLineTooLong = errors.New("line too long")

type iacState uint8

const (
	iacData iacState = iota
	iacCommand
	iacOption
	iacSub
	iacSubEscape
)

// iacFilter strips telnet commands from a byte stream. It keeps its state
// between calls so a sequence split across reads is still removed.
type iacFilter struct {
	state iacState
}

// pass reports whether b is payload. An escaped IAC IAC passes one 0xFF.
func (f *iacFilter) pass(b byte) bool {
	switch f.state {
	case iacCommand:
		switch b {
		case IAC:
			f.state = iacData
			return true
		case WILL, WONT, DO, DONT:
			f.state = iacOption
		case SB:
			f.state = iacSub
		default:
			f.state = iacData
		}
		return false
	case iacOption:
		f.state = iacData
		return false
	case iacSub:
		if b == IAC {
			f.state = iacSubEscape
		}
		return false
	case iacSubEscape:
		f.state = iacSub
		if b == SE {
			f.state = iacData
		}
		return false
	}
	if b == IAC {
		f.state = iacCommand
		return false
	}
	return true
}

// FilterIAC removes telnet command sequences from input.
func FilterIAC(input []byte) []byte {
	var f iacFilter
	out := make([]byte, 0, len(input))
	for _, b := range input {
		if f.pass(b) {
			out = append(out, b)
		}
	}
	return out
}

// Conn is a TCP connection read and written as CRLF-terminated text lines.
// Writes are serialized; reads must come from a single goroutine.
type Conn struct {
	raw     net.Conn
	reader  *bufio.Reader
	filter  iacFilter
	afterCR bool

	readTimeout  time.Duration
	writeTimeout time.Duration

	wmu  sync.Mutex
	wbuf []byte
}

// NewConn wraps raw. Zero timeouts disable the deadlines.
func NewConn(raw net.Conn, readTimeout, writeTimeout time.Duration) *Conn {
	return &Conn{
		raw:          raw,
		reader:       bufio.NewReaderSize(raw, MaxLineLength),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

// ReadLine returns the next line without its terminator. CR, LF and CRLF
// all end a line. Telnet commands and control bytes other than tab are
// dropped.
//
// Postcondition: Returns the line, or io.EOF, a timeout or ErrLineTooLong.
func (c *Conn) ReadLine() (string, error) {
	if c.readTimeout > 0 {
		_ = c.raw.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	line := make([]byte, 0, 64)
	for {
		b, err := c.reader.ReadByte()
		if err != nil {
			return string(line), err
		}
		if !c.filter.pass(b) {
			continue
		}
		afterCR := c.afterCR
		c.afterCR = false
		switch {
		case b == '\n' && afterCR && len(line) == 0:
			continue
		case b == '\n':
			return string(line), nil
		case b == '\r':
			c.afterCR = true
			return string(line), nil
		case b < ' ' && b != '\t':
			continue
		}
		if len(line) >= MaxLineLength {
			return "", ErrLineTooLong
		}
		line = append(line, b)
	}
}

// WriteLine sends text followed by CRLF.
//
// Precondition: text must not contain a line terminator.
func (c *Conn) WriteLine(text string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	c.wbuf = append(append(c.wbuf[:0], text...), '\r', '\n')
	_, err := c.raw.Write(c.wbuf)
	return err
}

// Close closes the underlying TCP connection.
func (c *Conn) Close() error { return c.raw.Close() }

// RemoteAddr returns the client's address.
func (c *Conn) RemoteAddr() net.Addr { return c.raw.RemoteAddr() }
