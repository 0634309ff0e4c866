package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Moderation/internal/app"
	"github.com/dkeye/Moderation/internal/app/featureflag"
	"github.com/dkeye/Moderation/internal/app/moderation"
	"github.com/dkeye/Moderation/internal/app/roles"
	"github.com/dkeye/Moderation/internal/core"
	"github.com/dkeye/Moderation/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ErrEvicted ends a session whose user no longer belongs to the room.
var ErrEvicted = errors.New("no longer in room")

type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomFactory
	Flags    *featureflag.Service
	Policy   app.Policy
}

// Session is one user's moderation view of one room.
type Session struct {
	SID        core.SessionID
	User       domain.UserID
	Room       core.RoomService
	View       *core.SessionRoom
	Moderation *moderation.Presenter
	Roles      *roles.Presenter
}

type Capabilities struct {
	CanDisplayModerationActions bool        `json:"can_display_moderation_actions"`
	CanKick                     bool        `json:"can_kick"`
	CanBan                      bool        `json:"can_ban"`
	Role                        domain.Role `json:"role"`
}

// Open resolves sid to its user and binds the user to roomID. The user
// must be an active member of the room.
func (o *Orchestrator) Open(sid core.SessionID, roomID domain.RoomID) (*Session, error) {
	user, ok := o.Registry.UserOf(sid)
	if !ok {
		return nil, app.ErrNotLoggedIn
	}
	room, ok := o.Rooms.GetRoom(roomID)
	if !ok {
		return nil, fmt.Errorf("room %s: %w", roomID, core.ErrRoomNotFound)
	}
	m, ok := room.Member(user)
	if !ok || !m.Membership.IsActive() {
		return nil, fmt.Errorf("user %s: %w", user, core.ErrNotInRoom)
	}
	view := core.BindSession(room, user)
	return &Session{
		SID:        sid,
		User:       user,
		Room:       room,
		View:       view,
		Moderation: moderation.NewPresenter(view, o.Flags),
		Roles:      roles.NewPresenter(view),
	}, nil
}

// Capabilities answers the permission queries without running presenters.
func (o *Orchestrator) Capabilities(ctx context.Context, sid core.SessionID, roomID domain.RoomID) (Capabilities, error) {
	s, err := o.Open(sid, roomID)
	if err != nil {
		return Capabilities{}, err
	}
	return s.Capabilities(ctx), nil
}

// Run drives both presenters until ctx is done or the session's user
// leaves the room, in which case it returns ErrEvicted.
func (s *Session) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Moderation.Run(gctx) })
	g.Go(func() error { return s.Roles.Run(gctx) })
	g.Go(func() error { return s.watchMembership(gctx) })
	return g.Wait()
}

func (s *Session) watchMembership(ctx context.Context) error {
	updates, unsubscribe := s.Room.SubscribeMembers()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case list, ok := <-updates:
			if !ok {
				return ErrEvicted
			}
			if !activeIn(list, s.User) {
				log.Info().Str("module", "orch").Str("sid", string(s.SID)).Str("user", string(s.User)).Str("room", string(s.View.RoomID())).Msg("session evicted")
				return ErrEvicted
			}
		}
	}
}

func activeIn(list []domain.Member, id domain.UserID) bool {
	for _, m := range list {
		if m.UserID == id {
			return m.Membership.IsActive()
		}
	}
	return false
}

// SelectMember looks the member up in the room and selects its current snapshot.
func (s *Session) SelectMember(ctx context.Context, id domain.UserID) error {
	m, ok := s.Room.Member(id)
	if !ok {
		return fmt.Errorf("select %s: %w", id, core.ErrMemberNotFound)
	}
	return s.Moderation.Dispatch(ctx, moderation.SelectRoomMember{Member: m})
}

func (s *Session) Capabilities(ctx context.Context) Capabilities {
	c := Capabilities{CanDisplayModerationActions: s.Moderation.CanDisplayModerationActions(ctx)}
	c.CanKick, _ = s.View.CurrentUserCanKick(ctx)
	c.CanBan, _ = s.View.CurrentUserCanBan(ctx)
	c.Role, _ = s.View.CurrentUserRole(ctx)
	return c
}
