package http

import (
	"errors"
	"net/http"

	"github.com/dkeye/Moderation/internal/app"
	"github.com/dkeye/Moderation/internal/app/featureflag"
	"github.com/dkeye/Moderation/internal/app/orch"
	"github.com/dkeye/Moderation/internal/core"
	"github.com/dkeye/Moderation/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var errBadRequest = errors.New("bad request")

type handlers struct {
	orch *orch.Orchestrator
}

func sessionID(c *gin.Context) core.SessionID {
	return core.SessionID(c.GetString(clientTokenKey))
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, domain.ErrUserIDEmpty),
		errors.Is(err, domain.ErrUserIDTooLong),
		errors.Is(err, domain.ErrDisplayNameTooLong),
		errors.Is(err, domain.ErrRoomNameEmpty),
		errors.Is(err, domain.ErrRoomNameTooLong):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrNotLoggedIn):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrRoomNotFound), errors.Is(err, core.ErrMemberNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrForbidden), errors.Is(err, core.ErrNotInRoom):
		return http.StatusForbidden
	case errors.Is(err, core.ErrBanned), errors.Is(err, core.ErrNotBanned), errors.Is(err, core.ErrAlreadyMember):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "rooms": len(h.orch.Rooms.List())})
}

func (h *handlers) whoAmI(c *gin.Context) {
	user, ok := h.orch.Registry.UserOf(sessionID(c))
	if !ok {
		writeError(c, app.ErrNotLoggedIn)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": user})
}

func (h *handlers) login(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errBadRequest)
		return
	}
	id, err := domain.ParseUserID(req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	h.orch.Registry.Login(sessionID(c), id)
	c.JSON(http.StatusOK, gin.H{"user_id": id})
}

func (h *handlers) logout(c *gin.Context) {
	h.orch.Registry.Logout(sessionID(c))
	c.Status(http.StatusNoContent)
}

func (h *handlers) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.orch.Rooms.List()})
}

func roomInfo(room core.RoomService) core.RoomInfo {
	return core.RoomInfo{
		ID:          room.Room().ID,
		Name:        room.Room().Name,
		IsDirect:    room.IsDirect(),
		MemberCount: room.MemberCount(),
	}
}

// createRoom makes the signed-in creator the room's admin. A room whose
// creator cannot be added is stopped again.
func (h *handlers) createRoom(c *gin.Context) {
	var req struct {
		Name   string `json:"name"`
		Direct bool   `json:"direct"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errBadRequest)
		return
	}
	user, ok := h.orch.Registry.UserOf(sessionID(c))
	if !ok {
		writeError(c, app.ErrNotLoggedIn)
		return
	}
	ctx := c.Request.Context()
	room, err := h.orch.Rooms.Create(ctx, req.Name, req.Direct)
	if err != nil {
		writeError(c, err)
		return
	}
	_, err = h.orch.AddMember(ctx, user, room.Room().ID, orch.MemberRequest{
		UserID:     string(user),
		Membership: domain.MembershipJoined,
		Role:       domain.RoleAdmin,
	})
	if err != nil {
		if stopErr := h.orch.Rooms.StopRoom(ctx, room.Room().ID); stopErr != nil {
			log.Error().Err(stopErr).Str("module", "adapters.http").Str("room", string(room.Room().ID)).Msg("stop room")
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, roomInfo(room))
}

func (h *handlers) room(c *gin.Context) (core.RoomService, bool) {
	id := domain.RoomID(c.Param("id"))
	room, ok := h.orch.Rooms.GetRoom(id)
	if !ok {
		writeError(c, core.ErrRoomNotFound)
	}
	return room, ok
}

func (h *handlers) getRoom(c *gin.Context) {
	room, ok := h.room(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, roomInfo(room))
}

// deleteRoom is reserved to admins of the room.
func (h *handlers) deleteRoom(c *gin.Context) {
	room, ok := h.room(c)
	if !ok {
		return
	}
	user, ok := h.orch.Registry.UserOf(sessionID(c))
	if !ok {
		writeError(c, app.ErrNotLoggedIn)
		return
	}
	ctx := c.Request.Context()
	role, err := room.RoleOf(ctx, user)
	if err != nil {
		writeError(c, err)
		return
	}
	if role != domain.RoleAdmin {
		writeError(c, core.ErrForbidden)
		return
	}
	if err := h.orch.EvictRoom(ctx, room.Room().ID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) listMembers(c *gin.Context) {
	room, ok := h.room(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": room.MembersSnapshot()})
}

// addMember lets a signed-in user join as a user. Adding anyone else or
// granting a higher role is checked by the room against the caller.
func (h *handlers) addMember(c *gin.Context) {
	actor, ok := h.orch.Registry.UserOf(sessionID(c))
	if !ok {
		writeError(c, app.ErrNotLoggedIn)
		return
	}
	var req struct {
		UserID      string `json:"user_id"`
		DisplayName string `json:"display_name"`
		Membership  string `json:"membership"`
		Role        string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errBadRequest)
		return
	}
	membership := domain.MembershipJoined
	if req.Membership != "" {
		m, err := domain.ParseMembership(req.Membership)
		if err != nil || !m.IsActive() {
			writeError(c, errBadRequest)
			return
		}
		membership = m
	}
	role := domain.RoleUser
	if req.Role != "" {
		r, err := domain.ParseRole(req.Role)
		if err != nil {
			writeError(c, errBadRequest)
			return
		}
		role = r
	}
	m, err := h.orch.AddMember(c.Request.Context(), actor, domain.RoomID(c.Param("id")), orch.MemberRequest{
		UserID:      req.UserID,
		DisplayName: req.DisplayName,
		Membership:  membership,
		Role:        role,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *handlers) leave(c *gin.Context) {
	room, ok := h.room(c)
	if !ok {
		return
	}
	user, ok := h.orch.Registry.UserOf(sessionID(c))
	if !ok {
		writeError(c, app.ErrNotLoggedIn)
		return
	}
	if err := room.Leave(c.Request.Context(), user); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) capabilities(c *gin.Context) {
	caps, err := h.orch.Capabilities(c.Request.Context(), sessionID(c), domain.RoomID(c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, caps)
}

func (h *handlers) listFeatures(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"features": h.orch.Flags.All()})
}

func (h *handlers) setFeature(c *gin.Context) {
	if _, ok := h.orch.Registry.UserOf(sessionID(c)); !ok {
		writeError(c, app.ErrNotLoggedIn)
		return
	}
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		writeError(c, errBadRequest)
		return
	}
	f := featureflag.Feature(c.Param("name"))
	h.orch.Flags.Set(f, *req.Enabled)
	c.JSON(http.StatusOK, featureflag.FlagState{Name: f, Enabled: *req.Enabled})
}
