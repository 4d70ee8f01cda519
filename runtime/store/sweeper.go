package store

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/codeforge/assistant/runtime/telemetry"
)

// Sweeper periodically evicts idle/over-cap sessions from an in-memory
// ConversationStore, implementing spec.md §5's "Session store (C9) uses
// LRU/TTL with caps: max_sessions_cached = 100, ttl = 1h." It is a no-op
// against durable backends (mongoconv, sqliteconv) that don't implement
// Evictor, since those have nothing to drop from memory.
//
// Grounded on haasonsaas-nexus's internal/cron package: a robfig/cron/v3
// parser/scheduler driving periodic housekeeping, rather than a hand-rolled
// ticker loop.
type Sweeper struct {
	cron        *cron.Cron
	conv        ConversationStore
	maxSessions int
	ttl         time.Duration
	logger      telemetry.Logger
}

// NewSweeper constructs a Sweeper. sweepEvery controls how often the sweep
// runs; maxSessions/ttl are the caps it enforces.
func NewSweeper(conv ConversationStore, maxSessions int, ttl, sweepEvery time.Duration, logger telemetry.Logger) *Sweeper {
	if sweepEvery <= 0 {
		sweepEvery = time.Minute
	}
	s := &Sweeper{
		cron:        cron.New(),
		conv:        conv,
		maxSessions: maxSessions,
		ttl:         ttl,
		logger:      logger,
	}
	spec := fmt.Sprintf("@every %s", sweepEvery.String())
	_, _ = s.cron.AddFunc(spec, s.sweepOnce)
	return s
}

// Start begins the periodic sweep in a background goroutine managed by the
// underlying cron.Cron scheduler.
func (s *Sweeper) Start() { s.cron.Start() }

// Stop halts the scheduler, waiting for any in-flight sweep to finish.
func (s *Sweeper) Stop() { <-s.cron.Stop().Done() }

func (s *Sweeper) sweepOnce() {
	evictor, ok := s.conv.(Evictor)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	evicted, err := evictor.Sweep(ctx, s.maxSessions, s.ttl)
	if err != nil {
		s.logger.Warn(ctx, "session sweep failed", "err", err)
		return
	}
	if len(evicted) > 0 {
		s.logger.Info(ctx, "session sweep evicted idle sessions", "count", len(evicted))
	}
}
