// Package client provides a typed wrapper around a rhoserve connection.
package client

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/pollardlab/rhoserve/internal/wire"
)

// Client is a type-safe, lower-boilerplate way to talk to a rhoserve
// server. It hides the frame codec and collects streamed walk items, which
// introduces less noise in the workload and in tests.
//
// Clients are not safe for concurrent use.
type Client struct {
	conn    net.Conn
	connErr error
}

// Dial connects to a server and completes the connection handshake.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	c := &Client{conn: conn}
	if err := c.handshake(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) handshake() error {
	resp, err := c.readResponse()
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	if _, ok := resp.(wire.ConnectionOk); !ok {
		return fmt.Errorf("unexpected handshake response type: %T", resp)
	}
	return nil
}

// Prime asks the server to test p for primality. The response is either
// wire.Prime or wire.NotPrime.
func (c *Client) Prime(p uint64) (wire.Response, error) {
	if c.connErr != nil {
		return nil, fmt.Errorf("conn unusable: %w", c.connErr)
	}
	if err := c.writeRequest(wire.PrimeRequest{P: p}); err != nil {
		return nil, err
	}
	resp, err := c.readResponse()
	if err != nil {
		return nil, err
	}
	switch resp.(type) {
	case wire.Prime, wire.NotPrime:
		return resp, nil
	default:
		return nil, fmt.Errorf("unexpected prime response type: %T", resp)
	}
}

// Log asks the server to solve g^e = h (mod p), returning the streamed
// walk items and the terminal record (wire.SuccessfulLog or
// wire.UnsuccessfulLog).
func (c *Client) Log(g, h, p uint64) ([]wire.LogItem, wire.Response, error) {
	if c.connErr != nil {
		return nil, nil, fmt.Errorf("conn unusable: %w", c.connErr)
	}
	if err := c.writeRequest(wire.LogRequest{G: g, H: h, P: p}); err != nil {
		return nil, nil, err
	}
	var items []wire.LogItem
	for {
		resp, err := c.readResponse()
		if err != nil {
			return nil, nil, err
		}
		switch r := resp.(type) {
		case wire.LogItem:
			items = append(items, r)
		case wire.SuccessfulLog, wire.UnsuccessfulLog:
			return items, resp, nil
		default:
			return nil, nil, fmt.Errorf("unexpected log response type: %T", r)
		}
	}
}

// RSA asks the server to factor n, returning the streamed walk items and
// the terminal record (wire.SuccessfulRSA or wire.UnsuccessfulRSA). The
// exponent rides along for wire compatibility.
func (c *Client) RSA(n, e uint64) ([]wire.RSAItem, wire.Response, error) {
	if c.connErr != nil {
		return nil, nil, fmt.Errorf("conn unusable: %w", c.connErr)
	}
	if err := c.writeRequest(wire.RSARequest{N: n, E: e}); err != nil {
		return nil, nil, err
	}
	var items []wire.RSAItem
	for {
		resp, err := c.readResponse()
		if err != nil {
			return nil, nil, err
		}
		switch r := resp.(type) {
		case wire.RSAItem:
			items = append(items, r)
		case wire.SuccessfulRSA, wire.UnsuccessfulRSA:
			return items, resp, nil
		default:
			return nil, nil, fmt.Errorf("unexpected rsa response type: %T", r)
		}
	}
}

// Quit announces the disconnect to the server.
func (c *Client) Quit() error {
	if c.connErr != nil {
		return fmt.Errorf("conn unusable: %w", c.connErr)
	}
	return c.writeRequest(wire.QuitRequest{})
}

func (c *Client) writeRequest(req wire.Request) error {
	if err := wire.WriteRequest(c.conn, req); err != nil {
		c.fail(err)
		return fmt.Errorf("write request: %w", err)
	}
	return nil
}

func (c *Client) readResponse() (wire.Response, error) {
	resp, err := wire.ReadResponse(c.conn)
	if err != nil {
		c.fail(err)
		return nil, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}

func (c *Client) fail(err error) {
	c.connErr = err
	_ = c.conn.Close()
}

// Close the underlying connection.
func (c *Client) Close() error {
	if c.connErr != nil {
		return fmt.Errorf("conn unusable: %w", c.connErr)
	}
	return c.conn.Close()
}

// CloseAndLog closes the underlying connection and logs any errors.
func (c *Client) CloseAndLog(logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("close client", "err", err)
	}
}
