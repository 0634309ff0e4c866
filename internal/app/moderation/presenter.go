// Package moderation reduces moderation intents for the members of one
// room, as seen by the signed-in user, into state snapshots.
package moderation

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/dkeye/Moderation/internal/app/async"
	"github.com/dkeye/Moderation/internal/app/featureflag"
	"github.com/dkeye/Moderation/internal/app/snapshot"
	"github.com/dkeye/Moderation/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrStopped        = errors.New("presenter stopped")
	ErrAlreadyRunning = errors.New("presenter already running")
)

// Room is the room as seen by the signed-in user.
type Room interface {
	IsDirect() bool
	CurrentUserCanKick(ctx context.Context) (bool, error)
	CurrentUserCanBan(ctx context.Context) (bool, error)
	CurrentUserRole(ctx context.Context) (domain.Role, error)
	KickUser(ctx context.Context, id domain.UserID) error
	BanUser(ctx context.Context, id domain.UserID) error
	UnbanUser(ctx context.Context, id domain.UserID) error
	MembersState() (<-chan []domain.Member, func())
}

type FeatureFlags interface {
	IsEnabled(ctx context.Context, f featureflag.Feature) bool
}

const eventBuffer = 16

type Presenter struct {
	room   Room
	flags  FeatureFlags
	logger zerolog.Logger

	events  chan Event
	done    chan struct{}
	feed    *snapshot.Feed[State]
	running atomic.Bool

	// owned by the Run goroutine
	state State
	gen   uint64
}

func NewPresenter(room Room, flags FeatureFlags) *Presenter {
	return &Presenter{
		room:   room,
		flags:  flags,
		logger: log.With().Str("module", "app.moderation").Logger(),
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
		feed:   snapshot.NewFeed(State{}, snapshot.DefaultBuffer),
	}
}

// CanDisplayModerationActions reports whether the signed-in user gets a
// moderation menu at all. Permission query errors count as "no".
func (p *Presenter) CanDisplayModerationActions(ctx context.Context) bool {
	if !p.flags.IsEnabled(ctx, featureflag.RoomModeration) {
		return false
	}
	if p.room.IsDirect() {
		return false
	}
	return p.permission(ctx, "kick", p.room.CurrentUserCanKick) ||
		p.permission(ctx, "ban", p.room.CurrentUserCanBan)
}

// State returns the latest snapshot.
func (p *Presenter) State() State { return p.feed.Latest() }

// Subscribe streams snapshots, starting with the latest one. The stream
// closes when the presenter stops.
func (p *Presenter) Subscribe() (<-chan State, func()) { return p.feed.Subscribe() }

// Dispatch is the event sink. Events are reduced in arrival order.
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

// Run consumes events until ctx is done. Mutations started by the loop
// run under ctx as well, so they only stop when the presenter does.
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
	case SelectRoomMember:
		p.selectMember(ctx, ev.Member)
	case KickUser:
		p.startAction(ctx, ActionKickUser)
	case BanUser:
		if p.state.SelectedRoomMember == nil {
			p.logger.Debug().Msg("ban without selected member ignored")
			return
		}
		if !p.state.BanUserAsyncAction.IsConfirming() {
			p.state.BanUserAsyncAction = async.Confirming[async.Unit]()
			p.publish()
			return
		}
		p.startAction(ctx, ActionBanUser)
	case UnbanUser:
		p.startAction(ctx, ActionUnbanUser)
	case Reset:
		// in-flight calls keep running, their results are dropped
		p.gen++
		p.state = State{}
		p.publish()
	case actionCompleted:
		p.complete(ev)
	default:
		p.logger.Warn().Msgf("unhandled event %T", ev)
	}
}

func (p *Presenter) selectMember(ctx context.Context, m domain.Member) {
	p.gen++
	next := State{SelectedRoomMember: &m}
	if m.IsBanned() {
		next.UnbanUserAsyncAction = async.Confirming[async.Unit]()
	} else {
		next.Actions = p.actionsFor(ctx, m)
	}
	p.state = next
	p.publish()
}

func (p *Presenter) actionsFor(ctx context.Context, m domain.Member) []Action {
	actions := []Action{{Kind: ActionDisplayProfile, UserID: m.UserID}}

	role, err := p.room.CurrentUserRole(ctx)
	if err != nil {
		p.logger.Debug().Err(err).Msg("current user role unavailable")
		role = domain.RoleUser
	}
	if m.PowerLevel >= role.PowerLevel() {
		return actions
	}
	if p.permission(ctx, "kick", p.room.CurrentUserCanKick) {
		actions = append(actions, Action{Kind: ActionKickUser, UserID: m.UserID})
	}
	if p.permission(ctx, "ban", p.room.CurrentUserCanBan) {
		actions = append(actions, Action{Kind: ActionBanUser, UserID: m.UserID})
	}
	return actions
}

func (p *Presenter) permission(ctx context.Context, name string, query func(context.Context) (bool, error)) bool {
	ok, err := query(ctx)
	if err != nil {
		p.logger.Debug().Err(err).Str("permission", name).Msg("permission query failed")
		return false
	}
	return ok
}

func (p *Presenter) startAction(ctx context.Context, kind ActionKind) {
	sel := p.state.SelectedRoomMember
	if sel == nil {
		p.logger.Debug().Str("action", kind.String()).Msg("no selected member, ignored")
		return
	}
	target := sel.UserID

	p.state = State{}
	*p.state.slot(kind) = async.Loading[async.Unit]()
	p.publish()

	call := p.mutation(kind)
	gen := p.gen
	go func() {
		err := call(ctx, target)
		p.post(ctx, actionCompleted{kind: kind, gen: gen, target: target, err: err})
	}()
}

func (p *Presenter) mutation(kind ActionKind) func(context.Context, domain.UserID) error {
	switch kind {
	case ActionKickUser:
		return p.room.KickUser
	case ActionBanUser:
		return p.room.BanUser
	default:
		return p.room.UnbanUser
	}
}

func (p *Presenter) post(ctx context.Context, ev Event) {
	select {
	case p.events <- ev:
	case <-p.done:
	case <-ctx.Done():
	}
}

func (p *Presenter) complete(ev actionCompleted) {
	if ev.gen != p.gen {
		p.logger.Debug().Str("action", ev.kind.String()).Str("user", string(ev.target)).Msg("abandoned action finished")
		return
	}
	if ev.err != nil {
		p.logger.Warn().Err(ev.err).Str("action", ev.kind.String()).Str("user", string(ev.target)).Msg("moderation action failed")
	} else {
		p.logger.Info().Str("action", ev.kind.String()).Str("user", string(ev.target)).Msg("moderation action done")
	}
	*p.state.slot(ev.kind) = async.FromResult(async.Unit{}, ev.err)
	p.state.SelectedRoomMember = nil
	p.state.Actions = nil
	p.publish()
}

// onMembers keeps the selected member in step with the room.
func (p *Presenter) onMembers(list []domain.Member) {
	sel := p.state.SelectedRoomMember
	if sel == nil {
		return
	}
	for _, m := range list {
		if m.UserID != sel.UserID {
			continue
		}
		if m != *sel {
			fresh := m
			p.state.SelectedRoomMember = &fresh
			p.publish()
		}
		return
	}
}

func (p *Presenter) publish() {
	if dropped := p.feed.Publish(p.state.clone()); dropped > 0 {
		p.logger.Warn().Int("dropped", dropped).Msg("slow state subscribers")
	}
}
