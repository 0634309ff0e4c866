package moderation

import "github.com/dkeye/Moderation/internal/domain"

// Event is the closed set of intents the presenter reduces.
type Event interface{ moderationEvent() }

type SelectRoomMember struct {
	Member domain.Member
}

type KickUser struct{}

// BanUser must be sent twice: the first one asks for confirmation.
type BanUser struct{}

type UnbanUser struct{}

type Reset struct{}

// actionCompleted is posted back to the loop by a finished mutation.
type actionCompleted struct {
	kind   ActionKind
	gen    uint64
	target domain.UserID
	err    error
}

func (SelectRoomMember) moderationEvent() {}
func (KickUser) moderationEvent()         {}
func (BanUser) moderationEvent()          {}
func (UnbanUser) moderationEvent()        {}
func (Reset) moderationEvent()            {}
func (actionCompleted) moderationEvent()  {}
