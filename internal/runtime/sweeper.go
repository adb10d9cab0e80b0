package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/soochol/chatflow/internal/chatflow/ports"
)

// TimeoutHandler resolves an expired wait.
type TimeoutHandler interface {
	HandleTimeout(ctx context.Context, key, waitID string) (*Turn, error)
}

// Sweeper periodically scans the deadline index and fires timeouts for
// expired waits. Each wait is resolved at most once by the handler, so
// overlapping sweeps across replicas are harmless.
type Sweeper struct {
	cron    *cron.Cron
	store   ports.ConversationStore
	handler TimeoutHandler
	spec    string
	batch   int
	now     func() time.Time

	mu      sync.Mutex
	running bool
	baseCtx context.Context
}

// NewSweeper creates a sweeper that runs on the given cron spec, e.g.
// "@every 1s".
func NewSweeper(store ports.ConversationStore, handler TimeoutHandler, spec string, batch int) *Sweeper {
	if spec == "" {
		spec = "@every 1s"
	}
	if batch <= 0 {
		batch = 100
	}
	return &Sweeper{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		store:   store,
		handler: handler,
		spec:    spec,
		batch:   batch,
		now:     time.Now,
	}
}

// Start registers the sweep job and starts the scheduler. Sweeps use ctx
// for store and handler calls.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.baseCtx = ctx
	if _, err := s.cron.AddFunc(s.spec, func() { s.Sweep(s.baseCtx) }); err != nil {
		return fmt.Errorf("invalid sweep spec %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.running = true
	slog.Info("sweeper: started", "spec", s.spec)
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	running := s.running
	s.running = false
	s.mu.Unlock()
	if !running {
		return
	}
	<-s.cron.Stop().Done()
	slog.Info("sweeper: stopped")
}

// Sweep fires every due wait once and returns how many were handled.
func (s *Sweeper) Sweep(ctx context.Context) int {
	due, err := s.store.DueWaits(ctx, s.now(), s.batch)
	if err != nil {
		slog.Warn("sweeper: listing due waits failed", "err", err)
		return 0
	}
	handled := 0
	for _, d := range due {
		if ctx.Err() != nil {
			break
		}
		if _, err := s.handler.HandleTimeout(ctx, d.Key, d.WaitID); err != nil {
			slog.Error("sweeper: timeout failed", "key", d.Key, "wait", d.WaitID, "err", err)
			continue
		}
		handled++
	}
	if handled > 0 {
		slog.Debug("sweeper: fired timeouts", "count", handled)
	}
	return handled
}

// SetClock overrides time.Now for due-wait scans.
func (s *Sweeper) SetClock(now func() time.Time) { s.now = now }
