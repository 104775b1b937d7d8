package booth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/manash/chronosnap/internal/log"
	"github.com/manash/chronosnap/internal/metrics"
)

var ErrSessionNotFound = errors.New("session not found")

// Factory builds the controller for a new session id.
type Factory func(id string) *Controller

// Registry keeps live sessions in memory. Nothing survives a restart.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Controller
	factory  Factory
	now      func() time.Time
	logger   zerolog.Logger
}

func NewRegistry(factory Factory) *Registry {
	return &Registry{
		sessions: make(map[string]*Controller),
		factory:  factory,
		now:      time.Now,
		logger:   log.WithComponent("registry"),
	}
}

func (r *Registry) Create() *Controller {
	id := uuid.New().String()
	c := r.factory(id)

	r.mu.Lock()
	r.sessions[id] = c
	n := len(r.sessions)
	r.mu.Unlock()

	metrics.SetActiveSessions(n)
	r.logger.Debug().Str("session", id).Int("active", n).Msg("session created")
	return c
}

func (r *Registry) Get(id string) (*Controller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return c, nil
}

// Delete removes the session and closes it, which cancels any in-flight
// call and releases its camera.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	c, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	n := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	c.Close()
	metrics.SetActiveSessions(n)
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep closes sessions that have been idle longer than idle and returns how
// many were removed. Sessions with an operation in flight are kept.
func (r *Registry) Sweep(idle time.Duration) int {
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	var stale []*Controller
	for id, c := range r.sessions {
		if c.LastActive().After(cutoff) || c.Snapshot().InFlight() {
			continue
		}
		stale = append(stale, c)
		delete(r.sessions, id)
	}
	n := len(r.sessions)
	r.mu.Unlock()

	for _, c := range stale {
		c.Close()
	}
	if len(stale) > 0 {
		metrics.SetActiveSessions(n)
		r.logger.Info().Int("removed", len(stale)).Int("active", n).Msg("swept idle sessions")
	}
	return len(stale)
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval, idle time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Sweep(idle)
		}
	}
}

// Close tears down every session.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Controller)
	r.mu.Unlock()

	for _, c := range sessions {
		c.Close()
	}
	metrics.SetActiveSessions(0)
}
