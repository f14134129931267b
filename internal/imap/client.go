package imap

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/client"
)

// DialOptions carries the three connection timeouts from configuration.
type DialOptions struct {
	UseTLS          bool
	ConnectTimeout  time.Duration
	GreetingTimeout time.Duration
	SocketTimeout   time.Duration
}

// Connect dials the IMAP server and waits for the greeting.
// ConnectTimeout bounds the TCP/TLS dial, GreetingTimeout bounds the
// server greeting read, and SocketTimeout applies to every command
// issued on the returned client afterwards.
// useTLS false is for tests against the in-memory server only.
func Connect(host string, port int, opts DialOptions) (*client.Client, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	dialer := &net.Dialer{Timeout: opts.ConnectTimeout}

	var conn net.Conn
	var err error
	if opts.UseTLS {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: host})
	} else {
		conn, err = dialer.Dial("tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	if opts.GreetingTimeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(opts.GreetingTimeout)); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to set greeting deadline: %w", err)
		}
	}

	c, err := client.New(conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to read greeting: %w", err)
	}

	if err := conn.SetDeadline(time.Time{}); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("failed to clear greeting deadline: %w", err)
	}

	c.Timeout = opts.SocketTimeout
	return c, nil
}

// Login authenticates with the IMAP server.
func Login(c *client.Client, username, password string) error {
	if err := c.Login(username, password); err != nil {
		return fmt.Errorf("failed to authenticate: %w", err)
	}

	return nil
}
