// Package sweeper re-drives due pending notifications through the dispatch
// engine on a fixed period.
package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/getailigned/notification-service/internal/common/logger"
	"github.com/getailigned/notification-service/internal/common/metrics"
	"github.com/getailigned/notification-service/internal/dispatch"
	"github.com/getailigned/notification-service/internal/notification"
)

// Claimer atomically claims due pending requests, transitioning them to
// sending so no overlapping tick or concurrent direct dispatch can pick
// them up again.
type Claimer interface {
	ClaimDue(ctx context.Context, limit int) ([]*notification.Request, error)
}

// Sweeper owns the periodic re-drive loop. Ticks are serialized: a tick
// that fires while the previous one is still draining is skipped, and the
// claim query is the authoritative guard against double dispatch.
type Sweeper struct {
	claimer     Claimer
	engine      *dispatch.Engine
	log         logger.Logger
	interval    time.Duration
	pageSize    int
	concurrency int

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(claimer Claimer, engine *dispatch.Engine, interval time.Duration, pageSize, concurrency int, log logger.Logger) *Sweeper {
	return &Sweeper{
		claimer:     claimer,
		engine:      engine,
		log:         log.WithFields(map[string]interface{}{"component": "sweeper"}),
		interval:    interval,
		pageSize:    pageSize,
		concurrency: concurrency,
	}
}

// Start launches the periodic loop. Calling Start on a running sweeper is a
// no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(loopCtx)
	s.log.Info("sweeper started", map[string]interface{}{
		"interval": s.interval.String(),
		"pageSize": s.pageSize,
	})
}

// Stop cancels the periodic loop and waits for an in-flight tick to drain.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.log.Info("sweeper stopped", nil)
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				metrics.SweepErrors.Inc()
				s.log.Error("sweep tick failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}
}

// tick claims one page of due work and feeds it through the bulk
// controller. Errors and panics are contained so the next tick always runs.
func (s *Sweeper) tick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sweep panic: %v", r)
		}
	}()

	claimed, err := s.claimer.ClaimDue(ctx, s.pageSize)
	if err != nil {
		return err
	}
	metrics.SweepClaimed.Observe(float64(len(claimed)))
	if len(claimed) == 0 {
		return nil
	}

	s.log.Info("sweep claimed pending notifications", map[string]interface{}{"count": len(claimed)})
	result := s.engine.Bulk(ctx, claimed, s.concurrency)
	s.log.Info("sweep finished", map[string]interface{}{
		"processed":  result.Processed,
		"successful": result.Successful,
		"failed":     result.Failed,
	})
	return nil
}
