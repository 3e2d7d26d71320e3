package websocket

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSlowConsumer     = errors.New("send buffer full, connection dropped")
)

var _ contract.Connection = (*Client)(nil)

// Client is one websocket session. Outbound frames go through a bounded buffer drained
// by the write pump; a client that cannot keep up is disconnected.
type Client struct {
	id       domain.ConnectionID
	username string
	conn     *gws.Conn
	log      *slog.Logger
	send     chan []byte
	done     chan struct{}
	once     sync.Once
}

func newClient(log *slog.Logger, conn *gws.Conn, username string, bufferSize int) *Client {
	id := domain.NewConnectionID()
	return &Client{
		id:       id,
		username: username,
		conn:     conn,
		log:      log.With("connection_id", id, "username", username),
		send:     make(chan []byte, bufferSize),
		done:     make(chan struct{}),
	}
}

func (c *Client) ID() domain.ConnectionID { return c.id }

func (c *Client) Username() string { return c.username }

// Consume queues e for writing without ever blocking the caller.
func (c *Client) Consume(_ context.Context, e event.DomainEvent) error {
	payload, err := encodeEvent(e)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		c.log.Warn("Slow consumer, dropping connection")
		c.close()
		return ErrSlowConsumer
	}
}

// close stops the write pump, which closes the socket; the read pump then fails.
func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

// readPump blocks until the connection fails, passing every frame to handle.
func (c *Client) readPump(maxMessageSize int64, handle func(Envelope, error)) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if gws.IsUnexpectedCloseError(err, gws.CloseGoingAway, gws.CloseNormalClosure, gws.CloseNoStatusReceived) {
				c.log.Debug("Unexpected close", "error", err)
			}
			return
		}
		var env Envelope
		err = unmarshalEnvelope(payload, &env)
		handle(env, err)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(gws.CloseMessage, []byte{})
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(gws.TextMessage, payload); err != nil {
				c.log.Debug("Write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(gws.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
