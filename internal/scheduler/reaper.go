// ABOUTME: Background reaper that closes sessions left open past the idle limit.
// ABOUTME: Runs on a gocron scheduler for as long as the MCP server is up.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// SessionCloser closes sessions idle for longer than idle and returns how
// many it closed.
type SessionCloser interface {
	CloseStaleSessions(ctx context.Context, idle time.Duration) (int64, error)
}

// Reaper periodically closes stale sessions for every user.
type Reaper struct {
	scheduler *gocron.Scheduler
	closer    SessionCloser
	idle      time.Duration
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
}

// NewReaper creates a reaper that runs every interval.
func NewReaper(closer SessionCloser, idle, interval time.Duration, logger *slog.Logger) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Reaper{
		scheduler: s,
		closer:    closer,
		idle:      idle,
		interval:  interval,
		timeout:   time.Minute,
		logger:    logger,
	}
}

// Start schedules the reaper and returns immediately. The first run happens
// right away.
func (r *Reaper) Start() error {
	if r.idle <= 0 || r.interval <= 0 {
		return fmt.Errorf("reaper needs positive idle and interval, got %v and %v", r.idle, r.interval)
	}
	if _, err := r.scheduler.Every(r.interval).Do(r.tick); err != nil {
		return fmt.Errorf("schedule reaper: %w", err)
	}
	r.scheduler.StartAsync()
	r.logger.Info("session reaper started", "idle", r.idle, "interval", r.interval)
	return nil
}

// Stop terminates the scheduler.
func (r *Reaper) Stop() {
	r.scheduler.Stop()
}

// RunOnce closes stale sessions now.
func (r *Reaper) RunOnce(ctx context.Context) (int64, error) {
	n, err := r.closer.CloseStaleSessions(ctx, r.idle)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Info("closed stale sessions", "count", n, "idle", r.idle)
	}
	return n, nil
}

func (r *Reaper) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if _, err := r.RunOnce(ctx); err != nil {
		r.logger.Error("session reaper failed", "error", err)
	}
}
