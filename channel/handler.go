package channel

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/randalmurphal/claudebridge/supervisor"
)

// Supervisor is the part of supervisor.Supervisor the handler drives.
type Supervisor interface {
	Start(ctx context.Context, req supervisor.StartRequest, sink supervisor.Sink) (*supervisor.Unit, error)
	Abort(id string) bool
}

// Handler upgrades HTTP requests to websocket connections and dispatches
// their commands.
type Handler struct {
	sup       Supervisor
	validator *Validator
	upgrader  websocket.Upgrader
	origins   []string
	log       *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithAllowedOrigins restricts upgrades to the given Origin values. "*"
// allows any origin. Without this option only same-host origins are
// accepted.
func WithAllowedOrigins(origins ...string) Option {
	return func(h *Handler) { h.origins = origins }
}

// WithLogger sets the handler's logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// NewHandler creates a Handler that starts units on sup.
func NewHandler(sup Supervisor, opts ...Option) (*Handler, error) {
	v, err := NewValidator()
	if err != nil {
		return nil, err
	}
	h := &Handler{
		sup:       sup,
		validator: v,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.With("component", "channel")
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	if len(h.origins) > 0 {
		h.upgrader.CheckOrigin = h.checkOrigin
	}
	return h, nil
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(h.origins, "*") {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return slices.ContainsFunc(h.origins, func(o string) bool {
		return strings.EqualFold(strings.TrimSuffix(o, "/"), origin)
	})
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.log.Debug("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	id := uuid.NewString()
	c := newConn(id, ws, h.log.With("conn", id))
	c.log.Info("client connected", "remote", r.RemoteAddr)

	go c.writePump()
	h.readLoop(c)

	c.close()
	c.log.Info("client disconnected")
}

func (h *Handler) readLoop(c *Conn) {
	c.ws.SetReadLimit(maxFrameBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("read failed", "error", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		if kind != websocket.TextMessage {
			h.reply(c, supervisor.Failure("", "binary frames are not supported"))
			continue
		}
		h.dispatch(c, data)
	}
}

func (h *Handler) dispatch(c *Conn, data []byte) {
	cmd, err := h.validator.Decode(data)
	if err != nil {
		c.log.Debug("rejected frame", "error", err)
		h.reply(c, supervisor.Failure("", err.Error()))
		return
	}

	switch cmd.Type {
	case TypePing:
		h.reply(c, supervisor.Event{Type: EventPong})
	case TypeAbortSession:
		ok := h.sup.Abort(cmd.SessionID)
		c.log.Info("abort requested", "sessionID", cmd.SessionID, "found", ok)
		h.reply(c, supervisor.Aborted(cmd.SessionID, ok))
	case TypeClaudeCommand:
		req := cmd.StartRequest()
		u, err := h.sup.Start(c.Context(), req, c)
		if err != nil {
			msg := err.Error()
			if errors.Is(err, supervisor.ErrShutdown) {
				msg = "server is shutting down"
			}
			h.reply(c, supervisor.Failure(req.SessionID, msg))
			return
		}
		c.log.Info("unit started", "sessionID", u.ID(), "resume", req.Resume)
	}
}

func (h *Handler) reply(c *Conn, ev supervisor.Event) {
	if err := c.Send(ev); err != nil {
		c.log.Debug("reply dropped", "type", ev.Type, "error", err)
	}
}
