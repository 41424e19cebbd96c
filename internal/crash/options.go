package crash

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Clock returns the current time. Values are normalized to UTC second precision.
type Clock func() time.Time

// IDGenerator returns a fresh, collision-free identifier.
type IDGenerator func() uuid.UUID

// GroupCache is the read-model cache that must forget a group after it changes.
type GroupCache interface {
	InvalidateCrashGroup(ctx context.Context, id uuid.UUID) error
}

type settings struct {
	now    Clock
	newID  IDGenerator
	cache  GroupCache
	logger *slog.Logger
}

// Option configures the components built by NewIngestor and NewSessionRegistry.
type Option func(*settings)

func WithClock(c Clock) Option {
	return func(s *settings) {
		s.now = c
	}
}

func WithIDGenerator(g IDGenerator) Option {
	return func(s *settings) {
		s.newID = g
	}
}

func WithGroupCache(c GroupCache) Option {
	return func(s *settings) {
		s.cache = c
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		s.logger = l
	}
}

func newSettings(opts []Option) *settings {
	s := &settings{
		now:    time.Now,
		newID:  uuid.New,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// stamp reads the clock at the precision stored and emitted on the wire.
func (s *settings) stamp() time.Time {
	return s.now().UTC().Truncate(time.Second)
}
