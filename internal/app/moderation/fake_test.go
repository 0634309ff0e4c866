package moderation

import (
	"context"
	"sync"

	"github.com/dkeye/Moderation/internal/app/featureflag"
	"github.com/dkeye/Moderation/internal/domain"
)

type result[T any] struct {
	value T
	err   error
}

// fakeRoom is a scripted Room. Mutations succeed unless told otherwise;
// a non-nil gate holds them until the test closes it.
type fakeRoom struct {
	mu sync.Mutex

	isDirect   bool
	canKick    result[bool]
	canBan     result[bool]
	role       result[domain.Role]
	kickResult error
	banResult  error
	unbanRes   error
	gate       chan struct{}

	kicked   []domain.UserID
	banned   []domain.UserID
	unbanned []domain.UserID

	members chan []domain.Member
}

func newFakeRoom() *fakeRoom {
	return &fakeRoom{
		role:    result[domain.Role]{value: domain.RoleUser},
		members: make(chan []domain.Member, 1),
	}
}

func (r *fakeRoom) givenCanKick(v bool, err error) *fakeRoom {
	r.canKick = result[bool]{v, err}
	return r
}

func (r *fakeRoom) givenCanBan(v bool, err error) *fakeRoom {
	r.canBan = result[bool]{v, err}
	return r
}

func (r *fakeRoom) givenRole(role domain.Role, err error) *fakeRoom {
	r.role = result[domain.Role]{role, err}
	return r
}

func (r *fakeRoom) IsDirect() bool { return r.isDirect }

func (r *fakeRoom) CurrentUserCanKick(context.Context) (bool, error) {
	return r.canKick.value, r.canKick.err
}

func (r *fakeRoom) CurrentUserCanBan(context.Context) (bool, error) {
	return r.canBan.value, r.canBan.err
}

func (r *fakeRoom) CurrentUserRole(context.Context) (domain.Role, error) {
	return r.role.value, r.role.err
}

func (r *fakeRoom) wait(ctx context.Context) error {
	r.mu.Lock()
	gate := r.gate
	r.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *fakeRoom) KickUser(ctx context.Context, id domain.UserID) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kicked = append(r.kicked, id)
	return r.kickResult
}

func (r *fakeRoom) BanUser(ctx context.Context, id domain.UserID) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.banned = append(r.banned, id)
	return r.banResult
}

func (r *fakeRoom) UnbanUser(ctx context.Context, id domain.UserID) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unbanned = append(r.unbanned, id)
	return r.unbanRes
}

func (r *fakeRoom) MembersState() (<-chan []domain.Member, func()) {
	return r.members, func() {}
}

func (r *fakeRoom) calls() (kicked, banned, unbanned int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.kicked), len(r.banned), len(r.unbanned)
}

type fakeFlags map[featureflag.Feature]bool

func (f fakeFlags) IsEnabled(_ context.Context, flag featureflag.Feature) bool { return f[flag] }

func moderationEnabled() fakeFlags {
	return fakeFlags{featureflag.RoomModeration: true}
}

func aVictor() domain.Member {
	return domain.Member{
		UserID:      "@victor:example.org",
		DisplayName: "Victor",
		Membership:  domain.MembershipJoined,
		PowerLevel:  domain.PowerLevelUser,
	}
}

func aRoomMember(id domain.UserID, membership domain.Membership, powerLevel int64) domain.Member {
	return domain.Member{UserID: id, Membership: membership, PowerLevel: powerLevel}
}
