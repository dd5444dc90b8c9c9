package gateway

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

// MaxLineLength is the longest line, terminator included, a client may send.
const MaxLineLength = 4096

// Client is a player connected to the gateway.
type Client struct {
	ID string

	connection *net.TCPConn
	scanner    *bufio.Scanner
	ipAddr     string
	port       string
}

func NewClient(id string, connection *net.TCPConn) *Client {
	host, port, _ := net.SplitHostPort(connection.RemoteAddr().String())
	scanner := bufio.NewScanner(connection)
	scanner.Buffer(make([]byte, 0, 512), MaxLineLength)
	return &Client{
		ID:         id,
		connection: connection,
		scanner:    scanner,
		ipAddr:     host,
		port:       port,
	}
}

func (c *Client) IPAddr() string { return c.ipAddr }
func (c *Client) Port() string   { return c.port }

// ReadLine blocks until the client sends a full line and returns it without
// the line terminator. A zero timeout waits indefinitely. Lines longer than
// MaxLineLength fail with bufio.ErrTooLong. The client is unusable after any
// error.
func (c *Client) ReadLine(timeout time.Duration) (string, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := c.connection.SetReadDeadline(deadline); err != nil {
		return "", err
	}

	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimRight(c.scanner.Text(), "\r"), nil
}

// Send writes a single line to the client.
func (c *Client) Send(format string, args ...interface{}) error {
	if _, err := fmt.Fprintf(c.connection, format+"\n", args...); err != nil {
		return fmt.Errorf("failed to send to client %v: %w", c.IPAddr(), err)
	}
	return nil
}

// Close the TCP connection.
func (c *Client) Close() error {
	return c.connection.Close()
}
