// Package featureflag answers whether optional features are switched on.
package featureflag

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

type Feature string

const RoomModeration Feature = "room_moderation"

// Known lists every flag the service reports on, with its default.
var Known = map[Feature]bool{
	RoomModeration: true,
}

type Service struct {
	mu    sync.RWMutex
	flags map[Feature]bool
}

// NewService seeds the flags from configuration. Keys that are not in
// Known are kept so operators can stage flags ahead of code.
func NewService(initial map[string]bool) *Service {
	flags := make(map[Feature]bool, len(Known)+len(initial))
	for f, v := range Known {
		flags[f] = v
	}
	for k, v := range initial {
		flags[Feature(k)] = v
	}
	return &Service{flags: flags}
}

// IsEnabled reports false for flags nobody has defined.
func (s *Service) IsEnabled(_ context.Context, f Feature) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags[f]
}

func (s *Service) Set(f Feature, enabled bool) {
	s.mu.Lock()
	s.flags[f] = enabled
	s.mu.Unlock()
	log.Info().Str("module", "app.featureflag").Str("flag", string(f)).Bool("enabled", enabled).Msg("flag updated")
}

type FlagState struct {
	Name    Feature `json:"name"`
	Enabled bool    `json:"enabled"`
}

func (s *Service) All() []FlagState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]FlagState, 0, len(s.flags))
	for f, v := range s.flags {
		out = append(out, FlagState{Name: f, Enabled: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
