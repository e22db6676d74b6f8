package channel

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/randalmurphal/claudebridge/supervisor"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxFrameBytes  = 64 << 20
	sendBufferSize = 64
)

// ErrClosed is returned by Send after the connection has gone away.
var ErrClosed = errors.New("connection closed")

// Conn is one client connection. It implements supervisor.Sink; every unit
// the connection starts sends through it, and a single write pump keeps
// frames whole and in the order they were sent.
type Conn struct {
	id   string
	ws   *websocket.Conn
	log  *slog.Logger
	send chan []byte
	done chan struct{}
	once sync.Once

	// ctx is the parent of every unit the connection starts. It is
	// cancelled when the client disconnects.
	ctx    context.Context
	cancel context.CancelFunc
}

func newConn(id string, ws *websocket.Conn, log *slog.Logger) *Conn {
	c := &Conn{
		id:   id,
		ws:   ws,
		log:  log,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// ID returns the connection id.
func (c *Conn) ID() string {
	return c.id
}

// Send queues an event for the client. It blocks while the queue is full
// and fails once the connection is closed.
func (c *Conn) Send(ev supervisor.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Context is cancelled when the client disconnects.
func (c *Conn) Context() context.Context {
	return c.ctx
}

func (c *Conn) close() {
	c.once.Do(func() {
		close(c.done)
		c.cancel()
	})
}

// writePump is the only writer on the socket.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
		c.ws.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug("write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.flush()
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// flush writes whatever was queued before the connection closed.
func (c *Conn) flush() {
	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}
