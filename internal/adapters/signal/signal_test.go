package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Moderation/internal/app"
	"github.com/dkeye/Moderation/internal/app/featureflag"
	"github.com/dkeye/Moderation/internal/app/orch"
	"github.com/dkeye/Moderation/internal/config"
	"github.com/dkeye/Moderation/internal/core"
	"github.com/dkeye/Moderation/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	modID = "@mod:example.org"
	eveID = "@eve:example.org"
)

type frame struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

type wireState struct {
	SelectedRoomMember *domain.Member `json:"selected_room_member"`
	Actions            []struct {
		Kind string `json:"kind"`
	} `json:"actions"`
	KickUserAsyncAction struct {
		State string `json:"state"`
	} `json:"kick_user_async_action"`
	BanUserAsyncAction struct {
		State string `json:"state"`
	} `json:"ban_user_async_action"`
}

func testSignalConfig() config.Signal {
	return config.Signal{
		ReadLimit:       4096,
		PingPeriod:      time.Second,
		WriteWait:       time.Second,
		SendBuffer:      32,
		EventsPerSecond: 100,
		EventBurst:      100,
		Backpressure:    "drop",
	}
}

type fixture struct {
	srv    *httptest.Server
	orch   *orch.Orchestrator
	roomID domain.RoomID
}

func newFixture(t *testing.T, cfg config.Signal) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(core.DefaultPowerLevels(), nil),
		Flags:    featureflag.NewService(nil),
	}
	room, err := o.Rooms.Create(ctx, "general", false)
	require.NoError(t, err)
	id := room.Room().ID
	_, err = o.AddMember(ctx, modID, id, orch.MemberRequest{UserID: modID, Membership: domain.MembershipJoined, Role: domain.RoleModerator})
	require.NoError(t, err)
	_, err = o.AddMember(ctx, eveID, id, orch.MemberRequest{UserID: eveID, Membership: domain.MembershipJoined, Role: domain.RoleUser})
	require.NoError(t, err)
	o.Registry.Login("mod-sid", modID)
	o.Registry.Login("eve-sid", eveID)

	ctl := NewSignalWSController(o, cfg)
	r := gin.New()
	r.GET("/api/rooms/:id/ws", func(c *gin.Context) {
		c.Set("client_token", c.Query("sid"))
		if err := ctl.HandleSignal(ctx, c); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		}
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, orch: o, roomID: id}
}

func (f *fixture) dial(t *testing.T, sid string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/api/rooms/" + string(f.roomID) + "/ws?sid=" + sid
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, resp, err
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

// await reads frames until match accepts one.
func await(t *testing.T, conn *websocket.Conn, match func(frame) bool) frame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var f frame
		err := conn.ReadJSON(&f)
		require.NoError(t, err)
		if match(f) {
			return f
		}
	}
}

func moderationState(pred func(wireState) bool) func(frame) bool {
	return func(f frame) bool {
		if f.Type != TypeModerationState {
			return false
		}
		var s wireState
		if err := json.Unmarshal(f.Data, &s); err != nil {
			return false
		}
		return pred(s)
	}
}

func ofType(typ string) func(frame) bool {
	return func(f frame) bool { return f.Type == typ }
}

func TestSignal_KickFlow(t *testing.T) {
	f := newFixture(t, testSignalConfig())
	mod, _, err := f.dial(t, "mod-sid")
	require.NoError(t, err)
	eve, _, err := f.dial(t, "eve-sid")
	require.NoError(t, err)

	caps := await(t, mod, ofType(TypeCapabilities))
	assert.Contains(t, string(caps.Data), `"can_display_moderation_actions":true`)
	await(t, mod, ofType(TypeRolesState))

	send(t, mod, Inbound{Type: TypeSelectMember, UserID: eveID})
	await(t, mod, moderationState(func(s wireState) bool {
		return s.SelectedRoomMember != nil && s.SelectedRoomMember.UserID == eveID && len(s.Actions) == 3
	}))

	send(t, mod, Inbound{Type: TypeKick})
	await(t, mod, moderationState(func(s wireState) bool {
		return s.KickUserAsyncAction.State == "success" && s.SelectedRoomMember == nil
	}))

	// the kicked user's socket is closed with a reason
	require.NoError(t, eve.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, _, err := eve.ReadMessage()
		if err == nil {
			continue
		}
		var closeErr *websocket.CloseError
		require.ErrorAs(t, err, &closeErr)
		assert.Equal(t, "evicted", closeErr.Text)
		break
	}
}

func TestSignal_BanNeedsConfirmation(t *testing.T) {
	f := newFixture(t, testSignalConfig())
	mod, _, err := f.dial(t, "mod-sid")
	require.NoError(t, err)

	send(t, mod, Inbound{Type: TypeSelectMember, UserID: eveID})
	send(t, mod, Inbound{Type: TypeBan})
	await(t, mod, moderationState(func(s wireState) bool { return s.BanUserAsyncAction.State == "confirming" }))

	send(t, mod, Inbound{Type: TypeBan})
	await(t, mod, moderationState(func(s wireState) bool { return s.BanUserAsyncAction.State == "success" }))

	room, _ := f.orch.Rooms.GetRoom(f.roomID)
	m, _ := room.Member(eveID)
	assert.True(t, m.IsBanned())
}

func TestSignal_ErrorFrames(t *testing.T) {
	f := newFixture(t, testSignalConfig())
	mod, _, err := f.dial(t, "mod-sid")
	require.NoError(t, err)

	send(t, mod, Inbound{Type: "teleport"})
	got := await(t, mod, ofType(TypeError))
	assert.Equal(t, CodeUnknownType, got.Error)

	send(t, mod, Inbound{Type: TypeSelectMember, UserID: "@ghost:example.org"})
	got = await(t, mod, ofType(TypeError))
	assert.Equal(t, CodeNotFound, got.Error)

	send(t, mod, Inbound{Type: TypeDemoteSelf, Role: "overlord"})
	got = await(t, mod, ofType(TypeError))
	assert.Equal(t, CodeBadPayload, got.Error)

	send(t, mod, Inbound{Type: TypePing})
	await(t, mod, ofType(TypePong))
}

func TestSignal_RateLimited(t *testing.T) {
	cfg := testSignalConfig()
	cfg.EventsPerSecond = 0.001
	cfg.EventBurst = 1
	f := newFixture(t, cfg)
	mod, _, err := f.dial(t, "mod-sid")
	require.NoError(t, err)

	send(t, mod, Inbound{Type: TypePing})
	send(t, mod, Inbound{Type: TypePing})
	await(t, mod, ofType(TypePong))
	got := await(t, mod, ofType(TypeError))
	assert.Equal(t, CodeRateLimited, got.Error)
}

func TestSignal_DemoteSelf(t *testing.T) {
	f := newFixture(t, testSignalConfig())
	mod, _, err := f.dial(t, "mod-sid")
	require.NoError(t, err)

	send(t, mod, Inbound{Type: TypeChangeOwnRole})
	send(t, mod, Inbound{Type: TypeDemoteSelf, Role: "user"})
	await(t, mod, func(fr frame) bool {
		return fr.Type == TypeCapabilities && strings.Contains(string(fr.Data), `"role":"user"`)
	})
}

func TestSignal_RejectsStrangers(t *testing.T) {
	f := newFixture(t, testSignalConfig())
	f.orch.Registry.Login("stranger-sid", "@stranger:example.org")

	_, resp, err := f.dial(t, "stranger-sid")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSignal_SlowClientDisconnected(t *testing.T) {
	cfg := testSignalConfig()
	cfg.SendBuffer = 1
	cfg.Backpressure = "disconnect"
	ctl := NewSignalWSController(&orch.Orchestrator{Registry: app.NewRegistry()}, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &WsSignalConn{send: make(chan []byte, cfg.SendBuffer)}

	ctl.send(cancel, "eve-sid", c, []byte(`{"type":"snapshot"}`))
	require.NoError(t, ctx.Err())
	ctl.send(cancel, "eve-sid", c, []byte(`{"type":"snapshot"}`))

	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.Equal(t, "backpressure", c.closeReason())
	assert.Len(t, c.send, 1)
}

func TestSignal_SlowClientDropsFrames(t *testing.T) {
	cfg := testSignalConfig()
	cfg.SendBuffer = 1
	ctl := NewSignalWSController(&orch.Orchestrator{Registry: app.NewRegistry()}, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &WsSignalConn{send: make(chan []byte, cfg.SendBuffer)}

	ctl.send(cancel, "eve-sid", c, []byte("first"))
	ctl.send(cancel, "eve-sid", c, []byte("second"))

	require.NoError(t, ctx.Err())
	assert.Empty(t, c.closeReason())
	assert.Equal(t, []byte("first"), <-c.send)
}
