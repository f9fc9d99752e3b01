package session

import (
	"context"
	"time"

	"github.com/deskpro/signaling-server/internal/audit"
	"github.com/deskpro/signaling-server/internal/metrics"
	"github.com/deskpro/signaling-server/internal/model"
	"github.com/rs/zerolog"
)

const (
	// DefaultMaxAge is how long a session may live regardless of activity.
	DefaultMaxAge = 24 * time.Hour

	// DefaultSweepInterval is how often the reaper scans the registry.
	DefaultSweepInterval = time.Hour
)

// ReaperConfig holds configuration for the session reaper.
type ReaperConfig struct {
	MaxAge   time.Duration
	Interval time.Duration
	Logger   *zerolog.Logger
	Metrics  *metrics.Metrics
	Recorder audit.Recorder
}

// Reaper evicts sessions older than MaxAge. Evicted sessions are dropped
// without notifying their members.
type Reaper struct {
	registry *Registry
	maxAge   time.Duration
	interval time.Duration
	log      zerolog.Logger
	metrics  *metrics.Metrics
	recorder audit.Recorder
}

// NewReaper creates a reaper for the registry.
func NewReaper(registry *Registry, config ReaperConfig) *Reaper {
	if config.MaxAge <= 0 {
		config.MaxAge = DefaultMaxAge
	}
	if config.Interval <= 0 {
		config.Interval = DefaultSweepInterval
	}
	if config.Recorder == nil {
		config.Recorder = audit.Nop{}
	}

	log := zerolog.Nop()
	if config.Logger != nil {
		log = *config.Logger
	}

	return &Reaper{
		registry: registry,
		maxAge:   config.MaxAge,
		interval: config.Interval,
		log:      log,
		metrics:  config.Metrics,
		recorder: config.Recorder,
	}
}

// Run sweeps on every interval tick until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info().Dur("max_age", r.maxAge).Dur("interval", r.interval).Msg("session reaper started")

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("session reaper stopped")
			return
		case <-ticker.C:
			r.SweepOnce(r.registry.Now())
		}
	}
}

// SweepOnce evicts every session older than the retention window at now
// and returns the evicted IDs.
func (r *Reaper) SweepOnce(now time.Time) []string {
	removed := r.registry.SweepOlderThan(r.maxAge, now)

	for _, id := range removed {
		r.log.Info().Str("session_id", id).Msg("cleaning up old session")
		r.recorder.Record(model.AuditEvent{
			SessionID: id,
			Kind:      model.AuditSessionEvicted,
			Detail:    "max age exceeded",
			CreatedAt: now,
		})
	}
	r.metrics.Add(metrics.SessionsEvicted, uint64(len(removed)))

	return removed
}
