package app

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/Moderation/internal/core"
	"github.com/dkeye/Moderation/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrNotLoggedIn = errors.New("not logged in")

type ConnID uint64

type connEntry struct {
	RoomID domain.RoomID
	Cancel context.CancelFunc
}

type sessionEntry struct {
	UserID domain.UserID
	Conns  map[ConnID]connEntry
}

// Registry maps client sessions to the user they act as and tracks
// their live connections, so logging out can tear them down.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
	nextConn ConnID
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
	}
}

// Login binds sid to user. Switching user closes the old user's connections.
func (r *Registry) Login(sid core.SessionID, user domain.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[sid]; ok {
		if e.UserID == user {
			return
		}
		cancelAll(e)
	}
	r.sessions[sid] = &sessionEntry{UserID: user, Conns: make(map[ConnID]connEntry)}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("user", string(user)).Msg("logged in")
}

func (r *Registry) UserOf(sid core.SessionID) (domain.UserID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.UserID, true
	}
	return "", false
}

func (r *Registry) BindConn(sid core.SessionID, roomID domain.RoomID, cancel context.CancelFunc) (ConnID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return 0, ErrNotLoggedIn
	}
	r.nextConn++
	id := r.nextConn
	e.Conns[id] = connEntry{RoomID: roomID, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(roomID)).Uint64("conn", uint64(id)).Msg("bound connection")
	return id, nil
}

func (r *Registry) UnbindConn(sid core.SessionID, id ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[sid]; ok {
		delete(e.Conns, id)
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Uint64("conn", uint64(id)).Msg("unbind connection")
}

func (r *Registry) ConnCount(sid core.SessionID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return len(e.Conns)
	}
	return 0
}

// UserConnCount counts live connections of user across all sessions.
func (r *Registry) UserConnCount(user domain.UserID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.sessions {
		if e.UserID == user {
			n += len(e.Conns)
		}
	}
	return n
}

// Logout forgets sid and cancels its live connections.
func (r *Registry) Logout(sid core.SessionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	cancelAll(e)
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("logged out")
	return true
}

func cancelAll(e *sessionEntry) {
	for id, c := range e.Conns {
		if c.Cancel != nil {
			c.Cancel()
		}
		delete(e.Conns, id)
	}
}

// CancelRoom closes every live connection bound to roomID.
func (r *Registry) CancelRoom(roomID domain.RoomID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.sessions {
		for id, c := range e.Conns {
			if c.RoomID != roomID {
				continue
			}
			if c.Cancel != nil {
				c.Cancel()
			}
			delete(e.Conns, id)
			n++
		}
	}
	return n
}
