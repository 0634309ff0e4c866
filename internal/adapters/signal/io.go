package signal

import (
	"context"
	"time"

	"github.com/dkeye/Moderation/internal/app"
	"github.com/dkeye/Moderation/internal/app/orch"
	"github.com/dkeye/Moderation/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// writePump owns the socket's write side and closes the socket on exit.
func (ctl *SignalWSController) writePump(ctx context.Context, cancel context.CancelFunc, sid core.SessionID, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.Cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		reason := c.closeReason()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(ctl.Cfg.WriteWait))
		c.Close()
		log.Info().Str("module", "signal").Str("sid", string(sid)).Str("reason", reason).Msg("writePump closed")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Cfg.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.Cfg.WriteWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("ping failed")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, s *orch.Session, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(s.SID)).Msg("readPump closing")
		cancel()
	}()

	pongWait := ctl.Cfg.PongWait()
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("module", "signal").Str("sid", string(s.SID)).Msg("readPump read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if !ctl.Limits.Allow(s.User) {
			ctl.send(cancel, s.SID, c, EncodeError(CodeRateLimited, "slow down"))
			continue
		}
		ctl.handleSignal(ctx, cancel, s, c, data)
	}
}

// forward turns presenter snapshots into frames until ctx is done.
func (ctl *SignalWSController) forward(ctx context.Context, cancel context.CancelFunc, s *orch.Session, c *WsSignalConn) {
	modStates, unsubscribeMod := s.Moderation.Subscribe()
	defer unsubscribeMod()
	roleStates, unsubscribeRoles := s.Roles.Subscribe()
	defer unsubscribeRoles()

	ctl.sendJSON(cancel, s.SID, c, TypeCapabilities, s.Capabilities(ctx))

	for modStates != nil || roleStates != nil {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-modStates:
			if !ok {
				modStates = nil
				continue
			}
			ctl.sendJSON(cancel, s.SID, c, TypeModerationState, st)
		case st, ok := <-roleStates:
			if !ok {
				roleStates = nil
				continue
			}
			ctl.sendJSON(cancel, s.SID, c, TypeRolesState, st)
			if st.ChangeOwnRoleAction.IsSuccess() {
				ctl.sendJSON(cancel, s.SID, c, TypeCapabilities, s.Capabilities(ctx))
			}
		}
	}
}

func (ctl *SignalWSController) sendJSON(cancel context.CancelFunc, sid core.SessionID, c *WsSignalConn, typ string, v any) {
	b, err := EncodeFrame(typ, v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("type", typ).Msg("sendJSON marshal")
		return
	}
	ctl.send(cancel, sid, c, b)
}

func (ctl *SignalWSController) send(cancel context.CancelFunc, sid core.SessionID, c *WsSignalConn, b []byte) {
	err := c.TrySend(b)
	if err == nil || err == ErrConnClosed {
		return
	}
	switch ctl.Policy.OnBackPressure(sid) {
	case app.Disconnect:
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("slow client disconnected")
		c.SetCloseReason("backpressure")
		cancel()
	case app.DropFrame:
		log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("frame dropped")
	}
}
