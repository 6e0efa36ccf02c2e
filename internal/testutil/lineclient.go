package testutil

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"
)

// LineClient is a packet-line test client for acceptor and gateway tests.
type LineClient struct {
	conn   net.Conn
	reader *bufio.Reader
	t      *testing.T
}

// NewLineClient dials addr and returns a connected client, closed on test
// cleanup.
//
// Precondition: addr must be a "host:port" with a listening server.
func NewLineClient(t *testing.T, addr string) *LineClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting to %s: %v", addr, err)
	}
	t.Cleanup(func() { conn.Close() })
	return &LineClient{conn: conn, reader: bufio.NewReader(conn), t: t}
}

// Send writes text followed by CRLF.
func (c *LineClient) Send(text string) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := fmt.Fprintf(c.conn, "%s\r\n", text); err != nil {
		c.t.Fatalf("sending %q: %v", text, err)
	}
}

// ReadLine returns the next line without its terminator, failing the test
// after timeout.
func (c *LineClient) ReadLine(timeout time.Duration) string {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	line, err := c.reader.ReadString('\n')
	if err != nil {
		c.t.Fatalf("reading line: got %q, error: %v", line, err)
	}
	return strings.TrimRight(line, "\r\n")
}

// ReadUntil reads lines until one starts with prefix and returns it. Lines
// before it are discarded.
func (c *LineClient) ReadUntil(prefix string, timeout time.Duration) string {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.t.Fatalf("no line starting with %q within %s", prefix, timeout)
		}
		if line := c.ReadLine(remaining); strings.HasPrefix(line, prefix) {
			return line
		}
	}
}

// ExpectClosed fails the test unless the server closes the connection
// within timeout.
func (c *LineClient) ExpectClosed(timeout time.Duration) {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	for {
		if _, err := c.reader.ReadString('\n'); err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				c.t.Fatalf("connection still open after %s", timeout)
			}
			return
		}
	}
}

// Close closes the connection.
func (c *LineClient) Close() {
	c.conn.Close()
}
