package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/Mr-Dark-debug/layerlens/internal/database"
)

// ErrRejected is returned when the daemon acknowledges a message with AckError.
var ErrRejected = errors.New("daemon rejected message")

// Client sends records to a running daemon. Each send waits for the
// acknowledgement byte, so a nil error means the record was accepted.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
}

// Dial connects to the daemon at addr over the platform's network.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout(Network(), addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) SendRun(r *database.Run) error               { return c.send(MsgRun, r) }
func (c *Client) SendLayer(l *database.LayerInfo) error       { return c.send(MsgLayer, l) }
func (c *Client) SendActivation(a *database.Activation) error { return c.send(MsgActivation, a) }
func (c *Client) SendBatch(b *BatchMessage) error             { return c.send(MsgBatch, b) }

func (c *Client) send(t MessageType, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := writeFrame(c.conn, t, payload); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	ack := make([]byte, 1)
	if _, err := io.ReadFull(c.conn, ack); err != nil {
		return fmt.Errorf("reading ack: %w", err)
	}
	if ack[0] != AckOK {
		return ErrRejected
	}
	return nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
