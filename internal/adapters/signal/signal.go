// Package signal serves the moderation websocket of a room.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/dkeye/Moderation/internal/app"
	"github.com/dkeye/Moderation/internal/app/orch"
	"github.com/dkeye/Moderation/internal/config"
	"github.com/dkeye/Moderation/internal/core"
	"github.com/dkeye/Moderation/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

type SignalWSController struct {
	Orch   *orch.Orchestrator
	Cfg    config.Signal
	Policy app.Policy
	Limits *UserRateLimiter
}

func NewSignalWSController(o *orch.Orchestrator, cfg config.Signal) *SignalWSController {
	policy := o.Policy
	if policy == nil {
		policy = app.SimplePolicy{DisconnectSlow: cfg.Backpressure == "disconnect"}
	}
	return &SignalWSController{
		Orch:   o,
		Cfg:    cfg,
		Policy: policy,
		Limits: NewUserRateLimiter(cfg.EventsPerSecond, cfg.EventBurst),
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
	reason string
}

func (c *WsSignalConn) TrySend(f []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

// SetCloseReason keeps the first reason; it is sent in the close frame.
func (c *WsSignalConn) SetCloseReason(reason string) {
	c.mu.Lock()
	if c.reason == "" {
		c.reason = reason
	}
	c.mu.Unlock()
}

func (c *WsSignalConn) closeReason() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reason
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades GET /api/rooms/:id/ws. Errors returned happen
// before the upgrade, so the caller can still answer with JSON.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) error {
	sid := core.SessionID(c.GetString("client_token"))
	roomID := domain.RoomID(c.Param("id"))

	session, err := ctl.Orch.Open(sid, roomID)
	if err != nil {
		return err
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("ws upgrade")
		return nil
	}
	ws.SetReadLimit(ctl.Cfg.ReadLimit)

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan []byte, ctl.Cfg.SendBuffer),
	}

	ctx, cancel := context.WithCancel(ctx)
	connID, err := ctl.Orch.Registry.BindConn(sid, roomID, cancel)
	if err != nil {
		cancel()
		conn.Close()
		return nil
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(roomID)).Str("user", string(session.User)).Msg("new WS connection")

	go func() {
		err := session.Run(ctx)
		if errors.Is(err, orch.ErrEvicted) {
			conn.SetCloseReason("evicted")
		}
		log.Info().Str("module", "signal").Str("sid", string(sid)).AnErr("reason", err).Msg("session stopped")
		cancel()
	}()
	go func() {
		<-ctx.Done()
		ctl.Orch.Registry.UnbindConn(sid, connID)
		if ctl.Orch.Registry.UserConnCount(session.User) == 0 {
			ctl.Limits.Forget(session.User)
		}
	}()

	go ctl.writePump(ctx, cancel, sid, conn)
	go ctl.forward(ctx, cancel, session, conn)
	go ctl.readPump(ctx, cancel, session, conn)
	return nil
}
