package signal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"meshchat/native/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const defaultPingInterval = 30 * time.Second

type connState int

const (
	stateIdle connState = iota
	stateConnected
	stateClosed
)

// Client manages the WebSocket connection to the relay.
type Client struct {
	url          string
	handler      domain.ChannelHandler
	pingInterval time.Duration
	dialer       *websocket.Dialer
	log          zerolog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	state  connState
	queue  [][]byte
	closed chan struct{}
}

// NewClient creates a relay client. handler receives every inbound envelope
// and the connection lifecycle notifications.
func NewClient(url string, handler domain.ChannelHandler, pingInterval time.Duration, log zerolog.Logger) *Client {
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	return &Client{
		url:          url,
		handler:      handler,
		pingInterval: pingInterval,
		dialer:       websocket.DefaultDialer,
		log:          log,
		closed:       make(chan struct{}),
	}
}

// Connect dials the relay, flushes anything queued by Send and starts the
// read and ping loops.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != stateIdle {
		c.mu.Unlock()
		return domain.ErrChannelClosed
	}
	c.mu.Unlock()

	c.log.Info().Str("url", c.url).Msg("connecting")

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		err = fmt.Errorf("websocket dial: %w", err)
		c.markClosed()
		c.handler.OnError(err)
		c.handler.OnDisconnected(err)
		return err
	}

	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		conn.Close()
		return domain.ErrChannelClosed
	}
	c.conn = conn
	c.state = stateConnected
	queued := c.queue
	c.queue = nil
	for _, data := range queued {
		c.writeLocked(data)
	}
	c.mu.Unlock()

	c.handler.OnConnected()

	go c.readLoop(conn)
	go c.pingLoop(conn)

	return nil
}

// Send writes one envelope. Before Connect completes the envelope is queued;
// after the connection is gone it fails with domain.ErrChannelClosed. Write
// errors on a live connection are logged, not returned.
func (c *Client) Send(env domain.Envelope) error {
	data, err := Encode(env)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case stateClosed:
		return domain.ErrChannelClosed
	case stateIdle:
		c.queue = append(c.queue, data)
	default:
		c.writeLocked(data)
	}
	return nil
}

// Connected reports whether the relay connection is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateConnected
}

func (c *Client) writeLocked(data []byte) {
	c.log.Debug().RawJSON("frame", data).Msg(">>>")
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.log.Warn().Err(err).Msg("write error")
	}
}

// Close shuts down the WebSocket connection. The read loop reports the
// disconnect to the handler.
func (c *Client) Close() {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return
	}
	c.state = stateClosed
	c.queue = nil
	close(c.closed)
	conn := c.conn
	if conn != nil {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
	}
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// markClosed flips the state to closed and reports whether this call did it.
func (c *Client) markClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateClosed {
		return false
	}
	c.state = stateClosed
	c.queue = nil
	close(c.closed)
	return true
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.markClosed() {
				// Remote side went away.
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.log.Warn().Err(err).Msg("read error")
					c.handler.OnError(err)
				}
				conn.Close()
			} else {
				err = nil
			}
			c.log.Info().Msg("disconnected")
			c.handler.OnDisconnected(err)
			return
		}

		c.log.Debug().Bytes("frame", data).Msg("<<<")

		env, err := Decode(data)
		if err != nil {
			c.log.Warn().Err(err).Msg("dropping envelope")
			continue
		}

		c.handler.OnEnvelope(env)
	}
}

func (c *Client) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.state != stateConnected {
				c.mu.Unlock()
				return
			}
			err := conn.WriteControl(
				websocket.PingMessage,
				[]byte{},
				time.Now().Add(5*time.Second),
			)
			c.mu.Unlock()
			if err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					c.log.Warn().Err(err).Msg("ping error")
				}
				return
			}
		}
	}
}
