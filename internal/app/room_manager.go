package app

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dkeye/Moderation/internal/core"
	"github.com/dkeye/Moderation/internal/domain"
	"github.com/rs/zerolog/log"
)

type RoomManagerImpl struct {
	mu     sync.RWMutex
	rooms  map[domain.RoomID]core.RoomService
	levels core.PowerLevels
	store  core.MemberStore
}

// NewRoomManager keeps rooms in memory; store may be nil.
func NewRoomManager(levels core.PowerLevels, store core.MemberStore) core.RoomFactory {
	return &RoomManagerImpl{
		rooms:  make(map[domain.RoomID]core.RoomService),
		levels: levels,
		store:  store,
	}
}

func (f *RoomManagerImpl) Create(ctx context.Context, name string, direct bool) (core.RoomService, error) {
	room, err := domain.NewRoom(name, direct)
	if err != nil {
		return nil, err
	}
	if f.store != nil {
		if err := f.store.SaveRoom(ctx, *room); err != nil {
			return nil, fmt.Errorf("save room: %w", err)
		}
	}
	svc := core.NewRoomService(room, f.levels, f.store)
	f.mu.Lock()
	f.rooms[room.ID] = svc
	f.mu.Unlock()
	log.Info().Str("module", "app.rooms").Str("room", string(room.ID)).Str("name", string(room.Name)).Bool("direct", direct).Msg("room created")
	return svc, nil
}

func (f *RoomManagerImpl) GetRoom(id domain.RoomID) (core.RoomService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	r, ok := f.rooms[id]
	return r, ok
}

func (f *RoomManagerImpl) List() []core.RoomInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(f.rooms))
	for id, r := range f.rooms {
		out = append(out, core.RoomInfo{
			ID:          id,
			Name:        r.Room().Name,
			IsDirect:    r.IsDirect(),
			MemberCount: r.MemberCount(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (f *RoomManagerImpl) StopRoom(ctx context.Context, id domain.RoomID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rooms[id]; !ok {
		return fmt.Errorf("stop %s: %w", id, core.ErrRoomNotFound)
	}
	if f.store != nil {
		if err := f.store.DeleteRoom(ctx, id); err != nil {
			return fmt.Errorf("delete room: %w", err)
		}
	}
	delete(f.rooms, id)
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room stopped")
	return nil
}

// Restore loads every persisted room. Without a store it does nothing.
func (f *RoomManagerImpl) Restore(ctx context.Context) error {
	if f.store == nil {
		return nil
	}
	rooms, err := f.store.LoadRooms(ctx)
	if err != nil {
		return fmt.Errorf("load rooms: %w", err)
	}
	restored := make(map[domain.RoomID]core.RoomService, len(rooms))
	for i := range rooms {
		room := rooms[i]
		members, err := f.store.LoadMembers(ctx, room.ID)
		if err != nil {
			return fmt.Errorf("load members of %s: %w", room.ID, err)
		}
		restored[room.ID] = core.RestoreRoomService(&room, f.levels, f.store, members)
	}
	f.mu.Lock()
	for id, r := range restored {
		f.rooms[id] = r
	}
	f.mu.Unlock()
	log.Info().Str("module", "app.rooms").Int("rooms", len(restored)).Msg("rooms restored")
	return nil
}
