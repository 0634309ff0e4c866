package core

import (
	"context"

	"github.com/dkeye/Moderation/internal/domain"
)

// PowerLevels are the thresholds a room checks mutations against.
type PowerLevels struct {
	Kick         int64 `mapstructure:"kick" json:"kick"`
	Ban          int64 `mapstructure:"ban" json:"ban"`
	ChangeRoles  int64 `mapstructure:"change_roles" json:"change_roles"`
	UsersDefault int64 `mapstructure:"users_default" json:"users_default"`
}

func DefaultPowerLevels() PowerLevels {
	return PowerLevels{
		Kick:         domain.PowerLevelModerator,
		Ban:          domain.PowerLevelModerator,
		ChangeRoles:  domain.PowerLevelAdmin,
		UsersDefault: domain.PowerLevelUser,
	}
}

// RoomService is the core-facing API of a room.
// Every permission query and mutation names the acting user explicitly;
// SessionRoom binds one actor for presenters.
type RoomService interface {
	Room() *domain.Room
	IsDirect() bool
	PowerLevels() PowerLevels
	MemberCount() int
	Member(id domain.UserID) (domain.Member, bool)
	MembersSnapshot() []domain.Member
	// SubscribeMembers delivers the current member list right away and
	// then every change. Slow readers only see the latest list.
	SubscribeMembers() (<-chan []domain.Member, func())

	// AddMember records m without an acting user. An active member is
	// never overwritten and a returning member keeps their power level.
	AddMember(ctx context.Context, m domain.Member) error
	// Admit is AddMember on behalf of actor. Anyone may join as a user;
	// other targets or higher levels need the ChangeRoles level and
	// cannot exceed the actor's own. An empty room admits anything.
	Admit(ctx context.Context, actor domain.UserID, m domain.Member) error
	Leave(ctx context.Context, id domain.UserID) error

	RoleOf(ctx context.Context, actor domain.UserID) (domain.Role, error)
	CanKick(ctx context.Context, actor domain.UserID) (bool, error)
	CanBan(ctx context.Context, actor domain.UserID) (bool, error)
	Kick(ctx context.Context, actor, target domain.UserID, reason string) error
	Ban(ctx context.Context, actor, target domain.UserID, reason string) error
	Unban(ctx context.Context, actor, target domain.UserID) error
	SetRole(ctx context.Context, actor, target domain.UserID, role domain.Role) error
}

type RoomInfo struct {
	ID          domain.RoomID   `json:"id"`
	Name        domain.RoomName `json:"name"`
	IsDirect    bool            `json:"is_direct"`
	MemberCount int             `json:"member_count"`
}

type RoomFactory interface {
	Create(ctx context.Context, name string, direct bool) (RoomService, error)
	GetRoom(id domain.RoomID) (RoomService, bool)
	List() []RoomInfo
	StopRoom(ctx context.Context, id domain.RoomID) error
	Restore(ctx context.Context) error
}

// MemberStore persists rooms and memberships. Implementations must be
// safe for concurrent use.
type MemberStore interface {
	SaveRoom(ctx context.Context, room domain.Room) error
	DeleteRoom(ctx context.Context, id domain.RoomID) error
	SaveMember(ctx context.Context, roomID domain.RoomID, m domain.Member) error
	LoadRooms(ctx context.Context) ([]domain.Room, error)
	LoadMembers(ctx context.Context, roomID domain.RoomID) ([]domain.Member, error)
}
