package core

import (
	"context"

	"github.com/dkeye/Moderation/internal/domain"
)

// SessionRoom is a room seen through one signed-in user. Presenters talk
// to it instead of RoomService so they never pick the actor themselves.
type SessionRoom struct {
	room  RoomService
	actor domain.UserID
}

func BindSession(room RoomService, actor domain.UserID) *SessionRoom {
	return &SessionRoom{room: room, actor: actor}
}

func (s *SessionRoom) SessionUserID() domain.UserID { return s.actor }

func (s *SessionRoom) RoomID() domain.RoomID { return s.room.Room().ID }

func (s *SessionRoom) IsDirect() bool { return s.room.IsDirect() }

func (s *SessionRoom) CurrentUserCanKick(ctx context.Context) (bool, error) {
	return s.room.CanKick(ctx, s.actor)
}

func (s *SessionRoom) CurrentUserCanBan(ctx context.Context) (bool, error) {
	return s.room.CanBan(ctx, s.actor)
}

func (s *SessionRoom) CurrentUserRole(ctx context.Context) (domain.Role, error) {
	return s.room.RoleOf(ctx, s.actor)
}

func (s *SessionRoom) KickUser(ctx context.Context, id domain.UserID) error {
	return s.room.Kick(ctx, s.actor, id, "")
}

func (s *SessionRoom) BanUser(ctx context.Context, id domain.UserID) error {
	return s.room.Ban(ctx, s.actor, id, "")
}

func (s *SessionRoom) UnbanUser(ctx context.Context, id domain.UserID) error {
	return s.room.Unban(ctx, s.actor, id)
}

func (s *SessionRoom) ChangeOwnRole(ctx context.Context, role domain.Role) error {
	return s.room.SetRole(ctx, s.actor, s.actor, role)
}

func (s *SessionRoom) MembersState() (<-chan []domain.Member, func()) {
	return s.room.SubscribeMembers()
}

// SessionID identifies one client (browser or console) across requests.
type SessionID string
