package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/Moderation/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory room.
// When a store is set every mutation is written through before it is
// applied in memory; a failed write leaves the room untouched.
type roomImpl struct {
	room   *domain.Room
	levels PowerLevels
	store  MemberStore

	mu      sync.RWMutex
	members map[domain.UserID]domain.Member
	order   []domain.UserID

	subMu  sync.Mutex
	subs   map[int]chan []domain.Member
	nextID int
}

func NewRoomService(room *domain.Room, levels PowerLevels, store MemberStore) RoomService {
	return &roomImpl{
		room:    room,
		levels:  levels,
		store:   store,
		members: make(map[domain.UserID]domain.Member),
		subs:    make(map[int]chan []domain.Member),
	}
}

// RestoreRoomService rebuilds a room from persisted members without
// writing them back.
func RestoreRoomService(room *domain.Room, levels PowerLevels, store MemberStore, members []domain.Member) RoomService {
	r := NewRoomService(room, levels, store).(*roomImpl)
	for _, m := range members {
		r.put(m)
	}
	return r
}

func (r *roomImpl) Room() *domain.Room { return r.room }

func (r *roomImpl) IsDirect() bool { return r.room.IsDirect }

func (r *roomImpl) PowerLevels() PowerLevels { return r.levels }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, m := range r.members {
		if m.Membership.IsActive() {
			n++
		}
	}
	return n
}

func (r *roomImpl) Member(id domain.UserID) (domain.Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[id]
	return m, ok
}

func (r *roomImpl) MembersSnapshot() []domain.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *roomImpl) snapshotLocked() []domain.Member {
	out := make([]domain.Member, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.members[id])
	}
	return out
}

func (r *roomImpl) SubscribeMembers() (<-chan []domain.Member, func()) {
	ch := make(chan []domain.Member, 1)
	// r.mu orders registration against publish, so no change is missed.
	r.mu.RLock()
	r.subMu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[id] = ch
	ch <- r.snapshotLocked()
	r.subMu.Unlock()
	r.mu.RUnlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.subMu.Lock()
			delete(r.subs, id)
			r.subMu.Unlock()
		})
	}
}

// publish hands the latest list to every subscriber, replacing a list
// the subscriber has not read yet.
func (r *roomImpl) publish(snap []domain.Member) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, ch := range r.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (r *roomImpl) put(m domain.Member) {
	if _, ok := r.members[m.UserID]; !ok {
		r.order = append(r.order, m.UserID)
	}
	r.members[m.UserID] = m
}

// apply persists m, stores it and notifies subscribers. Caller holds r.mu.
func (r *roomImpl) apply(ctx context.Context, m domain.Member) error {
	if r.store != nil {
		if err := r.store.SaveMember(ctx, r.room.ID, m); err != nil {
			return fmt.Errorf("save member %s: %w", m.UserID, err)
		}
	}
	r.put(m)
	r.publish(r.snapshotLocked())
	return nil
}

func (r *roomImpl) AddMember(ctx context.Context, m domain.Member) error {
	if m.UserID == "" {
		return domain.ErrUserIDEmpty
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.admitLocked(ctx, m, false)
}

func (r *roomImpl) Admit(ctx context.Context, actor domain.UserID, m domain.Member) error {
	if m.UserID == "" {
		return domain.ErrUserIDEmpty
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	privileged := len(r.members) == 0
	self := actor == m.UserID
	if !privileged && !(self && m.PowerLevel <= domain.PowerLevelUser) {
		level, err := r.actorLevelLocked(actor)
		if err != nil {
			return fmt.Errorf("add %s: %w", m.UserID, err)
		}
		if level < r.levels.ChangeRoles || m.PowerLevel > level {
			return fmt.Errorf("add %s: %w", m.UserID, ErrForbidden)
		}
		if prev, ok := r.members[m.UserID]; ok && !self && prev.PowerLevel >= level {
			return fmt.Errorf("add %s: %w", m.UserID, ErrForbidden)
		}
		privileged = true
	}
	return r.admitLocked(ctx, m, privileged)
}

// admitLocked keeps the previous power level of a known user unless
// setLevel is true. Accepting an invite is the only change allowed to an
// active member. Caller holds r.mu.
func (r *roomImpl) admitLocked(ctx context.Context, m domain.Member, setLevel bool) error {
	if prev, ok := r.members[m.UserID]; ok {
		switch {
		case prev.IsBanned() && m.Membership != domain.MembershipBanned:
			return fmt.Errorf("add %s: %w", m.UserID, ErrBanned)
		case prev.Membership == domain.MembershipInvited && m.Membership == domain.MembershipJoined:
			m.PowerLevel = prev.PowerLevel
		case prev.Membership.IsActive():
			return fmt.Errorf("add %s: %w", m.UserID, ErrAlreadyMember)
		case !setLevel:
			m.PowerLevel = prev.PowerLevel
		}
	}
	if err := r.apply(ctx, m); err != nil {
		return err
	}
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("user", string(m.UserID)).Str("membership", m.Membership.String()).Int64("power_level", m.PowerLevel).Msg("member added")
	return nil
}

func (r *roomImpl) Leave(ctx context.Context, id domain.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[id]
	if !ok {
		return fmt.Errorf("leave %s: %w", id, ErrMemberNotFound)
	}
	if !m.Membership.IsActive() {
		return fmt.Errorf("leave %s: %w", id, ErrNotInRoom)
	}
	m.Membership = domain.MembershipLeft
	if err := r.apply(ctx, m); err != nil {
		return err
	}
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("user", string(id)).Msg("member left")
	return nil
}

// actorLevelLocked returns the power level of an active member.
func (r *roomImpl) actorLevelLocked(actor domain.UserID) (int64, error) {
	m, ok := r.members[actor]
	if !ok || !m.Membership.IsActive() {
		return 0, fmt.Errorf("actor %s: %w", actor, ErrNotInRoom)
	}
	return m.PowerLevel, nil
}

func (r *roomImpl) RoleOf(_ context.Context, actor domain.UserID) (domain.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	level, err := r.actorLevelLocked(actor)
	if err != nil {
		return domain.RoleUser, err
	}
	return domain.RoleForPowerLevel(level), nil
}

func (r *roomImpl) CanKick(_ context.Context, actor domain.UserID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	level, err := r.actorLevelLocked(actor)
	if err != nil {
		return false, err
	}
	return level >= r.levels.Kick, nil
}

func (r *roomImpl) CanBan(_ context.Context, actor domain.UserID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	level, err := r.actorLevelLocked(actor)
	if err != nil {
		return false, err
	}
	return level >= r.levels.Ban, nil
}

func (r *roomImpl) Kick(ctx context.Context, actor, target domain.UserID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	level, err := r.actorLevelLocked(actor)
	if err != nil {
		return fmt.Errorf("kick %s: %w", target, err)
	}
	m, ok := r.members[target]
	if !ok {
		return fmt.Errorf("kick %s: %w", target, ErrMemberNotFound)
	}
	if level < r.levels.Kick || m.PowerLevel >= level {
		return fmt.Errorf("kick %s: %w", target, ErrForbidden)
	}
	if !m.Membership.IsActive() {
		return fmt.Errorf("kick %s: %w", target, ErrNotInRoom)
	}
	m.Membership = domain.MembershipLeft
	if err := r.apply(ctx, m); err != nil {
		return err
	}
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("actor", string(actor)).Str("user", string(target)).Str("reason", reason).Msg("member kicked")
	return nil
}

// Ban also accepts users the room has never seen; they are recorded as
// banned with the default power level.
func (r *roomImpl) Ban(ctx context.Context, actor, target domain.UserID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	level, err := r.actorLevelLocked(actor)
	if err != nil {
		return fmt.Errorf("ban %s: %w", target, err)
	}
	m, ok := r.members[target]
	if !ok {
		m = domain.Member{UserID: target, PowerLevel: r.levels.UsersDefault}
	}
	if level < r.levels.Ban || m.PowerLevel >= level {
		return fmt.Errorf("ban %s: %w", target, ErrForbidden)
	}
	if m.IsBanned() {
		return nil
	}
	m.Membership = domain.MembershipBanned
	if err := r.apply(ctx, m); err != nil {
		return err
	}
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("actor", string(actor)).Str("user", string(target)).Str("reason", reason).Msg("member banned")
	return nil
}

func (r *roomImpl) Unban(ctx context.Context, actor, target domain.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	level, err := r.actorLevelLocked(actor)
	if err != nil {
		return fmt.Errorf("unban %s: %w", target, err)
	}
	m, ok := r.members[target]
	if !ok {
		return fmt.Errorf("unban %s: %w", target, ErrMemberNotFound)
	}
	if level < r.levels.Ban {
		return fmt.Errorf("unban %s: %w", target, ErrForbidden)
	}
	if !m.IsBanned() {
		return fmt.Errorf("unban %s: %w", target, ErrNotBanned)
	}
	m.Membership = domain.MembershipLeft
	if err := r.apply(ctx, m); err != nil {
		return err
	}
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("actor", string(actor)).Str("user", string(target)).Msg("member unbanned")
	return nil
}

func (r *roomImpl) SetRole(ctx context.Context, actor, target domain.UserID, role domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	level, err := r.actorLevelLocked(actor)
	if err != nil {
		return fmt.Errorf("set role of %s: %w", target, err)
	}
	m, ok := r.members[target]
	if !ok {
		return fmt.Errorf("set role of %s: %w", target, ErrMemberNotFound)
	}
	newLevel := role.PowerLevel()
	if actor == target {
		if newLevel > level {
			return fmt.Errorf("set own role: %w", ErrForbidden)
		}
	} else if level < r.levels.ChangeRoles || m.PowerLevel >= level || newLevel > level {
		return fmt.Errorf("set role of %s: %w", target, ErrForbidden)
	}
	if m.PowerLevel == newLevel {
		return nil
	}
	m.PowerLevel = newLevel
	if err := r.apply(ctx, m); err != nil {
		return err
	}
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("actor", string(actor)).Str("user", string(target)).Str("role", role.String()).Msg("role changed")
	return nil
}
