package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/Moderation/internal/core"
	"github.com/dkeye/Moderation/internal/domain"
	"github.com/rs/zerolog/log"
)

type MemberRequest struct {
	UserID      string
	DisplayName string
	Membership  domain.Membership
	Role        domain.Role
}

// AddMember joins or invites a user with the power level of the given role
// on behalf of actor. It returns the member as the room stored it.
func (o *Orchestrator) AddMember(ctx context.Context, actor domain.UserID, roomID domain.RoomID, req MemberRequest) (domain.Member, error) {
	room, ok := o.Rooms.GetRoom(roomID)
	if !ok {
		return domain.Member{}, fmt.Errorf("room %s: %w", roomID, core.ErrRoomNotFound)
	}
	id, err := domain.ParseUserID(req.UserID)
	if err != nil {
		return domain.Member{}, err
	}
	user, err := domain.NewUser(id, req.DisplayName)
	if err != nil {
		return domain.Member{}, err
	}
	m := domain.NewMember(user, req.Membership, req.Role.PowerLevel())
	if err := room.Admit(ctx, actor, m); err != nil {
		return domain.Member{}, err
	}
	if stored, ok := room.Member(id); ok {
		m = stored
	}
	log.Info().Str("module", "orch").Str("room", string(roomID)).Str("actor", string(actor)).Str("user", string(id)).Str("membership", req.Membership.String()).Msg("member added")
	return m, nil
}

// EvictRoom closes the room's live connections and stops the room.
func (o *Orchestrator) EvictRoom(ctx context.Context, roomID domain.RoomID) error {
	closed := o.Registry.CancelRoom(roomID)
	if err := o.Rooms.StopRoom(ctx, roomID); err != nil {
		return err
	}
	log.Info().Str("module", "orch").Str("room", string(roomID)).Int("closed", closed).Msg("room evicted")
	return nil
}
