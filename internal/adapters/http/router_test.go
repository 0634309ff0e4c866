package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"

	"github.com/dkeye/Moderation/internal/app"
	"github.com/dkeye/Moderation/internal/app/featureflag"
	"github.com/dkeye/Moderation/internal/app/orch"
	"github.com/dkeye/Moderation/internal/config"
	"github.com/dkeye/Moderation/internal/core"
	"github.com/dkeye/Moderation/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type client struct {
	t    *testing.T
	base string
	http *http.Client
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg, err := config.LoadFile("does-not-exist.yaml")
	require.NoError(t, err)
	cfg.Mode = "test"
	cfg.Secret = "test-secret"

	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(core.DefaultPowerLevels(), nil),
		Flags:    featureflag.NewService(cfg.Features),
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv := httptest.NewServer(SetupRouter(ctx, cfg, o))
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T, srv *httptest.Server) *client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &client{t: t, base: srv.URL, http: &http.Client{Jar: jar}}
}

func (c *client) do(method, path string, body any, out any) int {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, c.base+path, &buf)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	srv := newServer(t)
	var body map[string]any
	assert.Equal(t, http.StatusOK, newClient(t, srv).do(http.MethodGet, "/healthz", nil, &body))
	assert.Equal(t, "ok", body["status"])
}

func TestSessionLifecycle(t *testing.T) {
	c := newClient(t, newServer(t))
	var errBody map[string]string

	assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/api/session", nil, &errBody))
	assert.NotEmpty(t, errBody["error"])

	assert.Equal(t, http.StatusBadRequest, c.do(http.MethodPost, "/api/session", map[string]string{"user_id": "  "}, &errBody))

	var who map[string]string
	assert.Equal(t, http.StatusOK, c.do(http.MethodPost, "/api/session", map[string]string{"user_id": "@alice:example.org"}, &who))
	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/session", nil, &who))
	assert.Equal(t, "@alice:example.org", who["user_id"])

	assert.Equal(t, http.StatusNoContent, c.do(http.MethodDelete, "/api/session", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/api/session", nil, &errBody))
}

func TestRoomsAndMembers(t *testing.T) {
	srv := newServer(t)
	admin := newClient(t, srv)
	eve := newClient(t, srv)
	require.Equal(t, http.StatusOK, admin.do(http.MethodPost, "/api/session", map[string]string{"user_id": "@admin:example.org"}, nil))
	require.Equal(t, http.StatusOK, eve.do(http.MethodPost, "/api/session", map[string]string{"user_id": "@eve:example.org"}, nil))

	var room core.RoomInfo
	require.Equal(t, http.StatusCreated, admin.do(http.MethodPost, "/api/rooms", map[string]any{"name": "general"}, &room))
	assert.Equal(t, 1, room.MemberCount)

	var errBody map[string]string
	assert.Equal(t, http.StatusBadRequest, admin.do(http.MethodPost, "/api/rooms", map[string]any{"name": ""}, &errBody))

	path := "/api/rooms/" + string(room.ID)
	require.Equal(t, http.StatusCreated, admin.do(http.MethodPost, path+"/members",
		map[string]string{"user_id": "@eve:example.org", "display_name": "Eve"}, nil))
	assert.Equal(t, http.StatusBadRequest, admin.do(http.MethodPost, path+"/members",
		map[string]string{"user_id": "@x:example.org", "membership": "banned"}, &errBody))

	var members struct {
		Members []map[string]any `json:"members"`
	}
	require.Equal(t, http.StatusOK, admin.do(http.MethodGet, path+"/members", nil, &members))
	assert.Len(t, members.Members, 2)

	var caps orch.Capabilities
	require.Equal(t, http.StatusOK, admin.do(http.MethodGet, path+"/capabilities", nil, &caps))
	assert.True(t, caps.CanDisplayModerationActions)
	require.Equal(t, http.StatusOK, eve.do(http.MethodGet, path+"/capabilities", nil, &caps))
	assert.False(t, caps.CanDisplayModerationActions)

	assert.Equal(t, http.StatusNoContent, eve.do(http.MethodPost, path+"/leave", nil, nil))
	assert.Equal(t, http.StatusForbidden, eve.do(http.MethodPost, path+"/leave", nil, &errBody))
	assert.Equal(t, http.StatusForbidden, eve.do(http.MethodGet, path+"/capabilities", nil, &errBody))

	assert.Equal(t, http.StatusNotFound, admin.do(http.MethodGet, "/api/rooms/missing", nil, &errBody))
	assert.Equal(t, http.StatusForbidden, eve.do(http.MethodDelete, path, nil, &errBody))
	assert.Equal(t, http.StatusNoContent, admin.do(http.MethodDelete, path, nil, nil))
	assert.Equal(t, http.StatusNotFound, admin.do(http.MethodGet, path, nil, &errBody))
}

func TestCreateRoomNeedsLogin(t *testing.T) {
	c := newClient(t, newServer(t))
	var errBody map[string]string
	assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodPost, "/api/rooms", map[string]any{"name": "general"}, &errBody))

	var rooms struct {
		Rooms []core.RoomInfo `json:"rooms"`
	}
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/rooms", nil, &rooms))
	assert.Empty(t, rooms.Rooms)
}

func TestAddMemberRoles(t *testing.T) {
	srv := newServer(t)
	admin := newClient(t, srv)
	mal := newClient(t, srv)
	anon := newClient(t, srv)
	require.Equal(t, http.StatusOK, admin.do(http.MethodPost, "/api/session", map[string]string{"user_id": "@admin:example.org"}, nil))
	require.Equal(t, http.StatusOK, mal.do(http.MethodPost, "/api/session", map[string]string{"user_id": "@mal:example.org"}, nil))

	var room core.RoomInfo
	require.Equal(t, http.StatusCreated, admin.do(http.MethodPost, "/api/rooms", map[string]any{"name": "general"}, &room))
	path := "/api/rooms/" + string(room.ID)
	var errBody map[string]string

	assert.Equal(t, http.StatusUnauthorized, anon.do(http.MethodPost, path+"/members",
		map[string]string{"user_id": "@anon:example.org"}, &errBody))

	// joining yourself above user is rejected, then allowed as user
	assert.Equal(t, http.StatusForbidden, mal.do(http.MethodPost, path+"/members",
		map[string]string{"user_id": "@mal:example.org", "role": "admin"}, &errBody))
	var member map[string]any
	require.Equal(t, http.StatusCreated, mal.do(http.MethodPost, path+"/members",
		map[string]string{"user_id": "@mal:example.org"}, &member))
	assert.EqualValues(t, 0, member["power_level"])

	assert.Equal(t, http.StatusForbidden, mal.do(http.MethodPost, path+"/members",
		map[string]string{"user_id": "@friend:example.org", "role": "moderator"}, &errBody))
	assert.Equal(t, http.StatusForbidden, mal.do(http.MethodPost, path+"/members",
		map[string]string{"user_id": "@friend:example.org"}, &errBody))
	assert.Equal(t, http.StatusForbidden, mal.do(http.MethodPost, path+"/members",
		map[string]string{"user_id": "@admin:example.org"}, &errBody))
	assert.Equal(t, http.StatusConflict, mal.do(http.MethodPost, path+"/members",
		map[string]string{"user_id": "@mal:example.org"}, &errBody))
	assert.Equal(t, http.StatusForbidden, mal.do(http.MethodDelete, path, nil, &errBody))

	// the owner keeps their level when re-added
	assert.Equal(t, http.StatusConflict, admin.do(http.MethodPost, path+"/members",
		map[string]string{"user_id": "@admin:example.org"}, &errBody))
	var caps orch.Capabilities
	require.Equal(t, http.StatusOK, admin.do(http.MethodGet, path+"/capabilities", nil, &caps))
	assert.Equal(t, domain.RoleAdmin, caps.Role)

	require.Equal(t, http.StatusCreated, admin.do(http.MethodPost, path+"/members",
		map[string]string{"user_id": "@friend:example.org", "role": "moderator"}, &member))
	assert.EqualValues(t, 50, member["power_level"])
}

func TestFeatures(t *testing.T) {
	c := newClient(t, newServer(t))

	var list struct {
		Features []featureflag.FlagState `json:"features"`
	}
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/features", nil, &list))
	require.NotEmpty(t, list.Features)

	var errBody map[string]string
	assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodPut, "/api/features/room_moderation", map[string]bool{"enabled": false}, &errBody))
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/api/session", map[string]string{"user_id": "@ops:example.org"}, nil))

	var flag featureflag.FlagState
	require.Equal(t, http.StatusOK, c.do(http.MethodPut, "/api/features/room_moderation", map[string]bool{"enabled": false}, &flag))
	assert.False(t, flag.Enabled)

	assert.Equal(t, http.StatusBadRequest, c.do(http.MethodPut, "/api/features/room_moderation", map[string]string{}, &errBody))
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusOf(core.ErrBanned))
	assert.Equal(t, http.StatusConflict, statusOf(core.ErrAlreadyMember))
	assert.Equal(t, http.StatusForbidden, statusOf(core.ErrNotInRoom))
	assert.Equal(t, http.StatusInternalServerError, statusOf(assert.AnError))
}
