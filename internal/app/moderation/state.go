package moderation

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/Moderation/internal/app/async"
	"github.com/dkeye/Moderation/internal/domain"
)

type ActionKind int

const (
	ActionDisplayProfile ActionKind = iota
	ActionKickUser
	ActionBanUser
	ActionUnbanUser
)

func (k ActionKind) String() string {
	switch k {
	case ActionDisplayProfile:
		return "display_profile"
	case ActionKickUser:
		return "kick_user"
	case ActionBanUser:
		return "ban_user"
	case ActionUnbanUser:
		return "unban_user"
	}
	return fmt.Sprintf("action(%d)", int(k))
}

func (k ActionKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// Action is one entry of the menu offered for the selected member.
type Action struct {
	Kind   ActionKind    `json:"kind"`
	UserID domain.UserID `json:"user_id"`
}

type State struct {
	SelectedRoomMember   *domain.Member           `json:"selected_room_member"`
	Actions              []Action                 `json:"actions"`
	KickUserAsyncAction  async.Action[async.Unit] `json:"kick_user_async_action"`
	BanUserAsyncAction   async.Action[async.Unit] `json:"ban_user_async_action"`
	UnbanUserAsyncAction async.Action[async.Unit] `json:"unban_user_async_action"`
}

// clone detaches a snapshot from the presenter's working copy.
func (s State) clone() State {
	out := s
	if s.SelectedRoomMember != nil {
		m := *s.SelectedRoomMember
		out.SelectedRoomMember = &m
	}
	if s.Actions != nil {
		out.Actions = append([]Action(nil), s.Actions...)
	}
	return out
}

func (s *State) slot(kind ActionKind) *async.Action[async.Unit] {
	switch kind {
	case ActionKickUser:
		return &s.KickUserAsyncAction
	case ActionBanUser:
		return &s.BanUserAsyncAction
	case ActionUnbanUser:
		return &s.UnbanUserAsyncAction
	}
	return nil
}
