// Package roles lets the signed-in user step down from their own role
// and shows how many admins and moderators a room has.
package roles

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/dkeye/Moderation/internal/app/async"
	"github.com/dkeye/Moderation/internal/app/snapshot"
	"github.com/dkeye/Moderation/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrStopped        = errors.New("presenter stopped")
	ErrAlreadyRunning = errors.New("presenter already running")
)

type Room interface {
	ChangeOwnRole(ctx context.Context, role domain.Role) error
	MembersState() (<-chan []domain.Member, func())
}

type Event interface{ rolesEvent() }

// ChangeOwnRole opens the confirmation step.
type ChangeOwnRole struct{}

type DemoteSelfTo struct {
	Role domain.Role
}

type CancelPendingAction struct{}

type roleChanged struct {
	gen  uint64
	role domain.Role
	err  error
}

func (ChangeOwnRole) rolesEvent()       {}
func (DemoteSelfTo) rolesEvent()        {}
func (CancelPendingAction) rolesEvent() {}
func (roleChanged) rolesEvent()         {}

type State struct {
	AdminCount          int                      `json:"admin_count"`
	ModeratorCount      int                      `json:"moderator_count"`
	ChangeOwnRoleAction async.Action[async.Unit] `json:"change_own_role_action"`
}

type Presenter struct {
	room   Room
	logger zerolog.Logger

	events  chan Event
	done    chan struct{}
	feed    *snapshot.Feed[State]
	running atomic.Bool

	state State
	gen   uint64
}

func NewPresenter(room Room) *Presenter {
	return &Presenter{
		room:   room,
		logger: log.With().Str("module", "app.roles").Logger(),
		events: make(chan Event, 16),
		done:   make(chan struct{}),
		feed:   snapshot.NewFeed(State{}, snapshot.DefaultBuffer),
	}
}

func (p *Presenter) State() State { return p.feed.Latest() }

func (p *Presenter) Subscribe() (<-chan State, func()) { return p.feed.Subscribe() }

func (p *Presenter) Dispatch(ctx context.Context, ev Event) error {
	select {
	case <-p.done:
		return ErrStopped
	default:
	}
	select {
	case p.events <- ev:
		return nil
	case <-p.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Presenter) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer p.feed.Close()
	defer close(p.done)

	members, unsubscribe := p.room.MembersState()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-p.events:
			p.present(ctx, ev)
		case list, ok := <-members:
			if !ok {
				members = nil
				continue
			}
			p.onMembers(list)
		}
	}
}

func (p *Presenter) present(ctx context.Context, ev Event) {
	switch ev := ev.(type) {
	case ChangeOwnRole:
		if p.state.ChangeOwnRoleAction.IsLoading() {
			return
		}
		p.state.ChangeOwnRoleAction = async.Confirming[async.Unit]()
		p.publish()
	case DemoteSelfTo:
		if p.state.ChangeOwnRoleAction.IsLoading() {
			return
		}
		p.state.ChangeOwnRoleAction = async.Loading[async.Unit]()
		p.publish()
		gen := p.gen
		go func() {
			err := p.room.ChangeOwnRole(ctx, ev.Role)
			select {
			case p.events <- roleChanged{gen: gen, role: ev.Role, err: err}:
			case <-p.done:
			case <-ctx.Done():
			}
		}()
	case CancelPendingAction:
		p.gen++
		p.state.ChangeOwnRoleAction = async.Uninitialized[async.Unit]()
		p.publish()
	case roleChanged:
		if ev.gen != p.gen {
			return
		}
		if ev.err != nil {
			p.logger.Warn().Err(ev.err).Str("role", ev.role.String()).Msg("change own role failed")
		} else {
			p.logger.Info().Str("role", ev.role.String()).Msg("changed own role")
		}
		p.state.ChangeOwnRoleAction = async.FromResult(async.Unit{}, ev.err)
		p.publish()
	default:
		p.logger.Warn().Msgf("unhandled event %T", ev)
	}
}

func (p *Presenter) onMembers(list []domain.Member) {
	admins, moderators := 0, 0
	for _, m := range list {
		if !m.Membership.IsActive() {
			continue
		}
		switch m.Role() {
		case domain.RoleAdmin:
			admins++
		case domain.RoleModerator:
			moderators++
		}
	}
	if admins == p.state.AdminCount && moderators == p.state.ModeratorCount {
		return
	}
	p.state.AdminCount = admins
	p.state.ModeratorCount = moderators
	p.publish()
}

func (p *Presenter) publish() {
	if dropped := p.feed.Publish(p.state); dropped > 0 {
		p.logger.Warn().Int("dropped", dropped).Msg("slow state subscribers")
	}
}
