package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/news-comb/app/news"
	"github.com/lysyi3m/news-comb/app/source"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

const (
	DefaultWorkerCount     = 5
	DefaultTickInterval    = 30 * time.Second
	DefaultStoreTimeout    = 5 * time.Second
	DefaultMonitorInterval = time.Minute
)

type Options struct {
	WorkerCount     int
	TickInterval    time.Duration
	StoreTimeout    time.Duration
	WindowSize      int
	MonitorInterval time.Duration
}

type Scheduler struct {
	registry   *source.Registry
	fetcher    Fetcher
	parser     Parser
	filterer   *news.Filterer
	resolver   Resolver
	bookkeeper Bookkeeper
	opts       Options
	pool       *admissionPool
	window     *OutcomeWindow
	now        func() time.Time

	stateMu sync.Mutex
	state   State
	tickMu  sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(registry *source.Registry, fetcher Fetcher, parser Parser, filterer *news.Filterer,
	resolver Resolver, bookkeeper Bookkeeper, opts Options) *Scheduler {
	if opts.WorkerCount <= 0 {
		opts.WorkerCount = DefaultWorkerCount
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.MonitorInterval <= 0 {
		opts.MonitorInterval = DefaultMonitorInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		registry:   registry,
		fetcher:    fetcher,
		parser:     parser,
		filterer:   filterer,
		resolver:   resolver,
		bookkeeper: bookkeeper,
		opts:       opts,
		pool:       newAdmissionPool(opts.WorkerCount),
		window:     NewOutcomeWindow(opts.WindowSize),
		now:        time.Now,
		state:      StateIdle,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Restore seeds the registry with bookkeeping persisted by earlier runs.
func (s *Scheduler) Restore(ctx context.Context) error {
	if s.bookkeeper == nil {
		return nil
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	records, err := s.bookkeeper.ListBookkeeping(storeCtx)
	if err != nil {
		return fmt.Errorf("failed to load bookkeeping: %w", err)
	}

	seeded := s.registry.Seed(records)
	slog.Debug("Restored source bookkeeping", "records", len(records), "seeded", seeded)
	return nil
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.opts.TickInterval)
		defer ticker.Stop()

		s.Tick(s.ctx, s.now())

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.Tick(s.ctx, s.now())
			}
		}
	}()

	s.wg.Add(1)
	go s.monitor()
}

// Stop cancels in-flight dispatches and waits for the loop to exit.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *Scheduler) Window() *OutcomeWindow {
	return s.window
}

// Tick runs one full dispatch cycle at the given instant and returns the
// outcomes of every source dispatched in it.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) []Outcome {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	s.transition(StateSelecting)
	due := s.registry.ListDue(now)
	if len(due) == 0 || ctx.Err() != nil {
		s.transition(StateIdle)
		return nil
	}

	s.transition(StateDispatching)
	results := make(chan Outcome, s.pool.size())
	dispatched := 0
	for _, desc := range due {
		slot, ok := s.pool.admit(desc.ID)
		if !ok {
			continue
		}
		dispatched++

		task := NewIngestSourceTask(desc, s.fetcher, s.parser, s.filterer, s.resolver)
		go func() {
			outcome := task.Execute(ctx)
			s.pool.release(slot)
			results <- outcome
		}()
	}

	if waiting := len(due) - dispatched; waiting > 0 {
		slog.Debug("Sources waiting for a free worker", "due", len(due), "dispatched", dispatched, "waiting", waiting)
	}

	s.transition(StateCollecting)
	outcomes := make([]Outcome, 0, dispatched)
	for i := 0; i < dispatched; i++ {
		outcome := <-results
		s.collect(ctx, outcome, now)
		outcomes = append(outcomes, outcome)
	}

	s.transition(StateIdle)
	return outcomes
}

func (s *Scheduler) collect(ctx context.Context, outcome Outcome, now time.Time) {
	s.window.Add(outcome)

	if outcome.Status == StatusCancelled {
		slog.Debug("Dispatch cancelled, attempt not recorded", "source", outcome.SourceID, "id", outcome.DispatchID)
		return
	}

	// Validators are only advanced when every article was stored; after a
	// partial outcome the next fetch must return the full document again.
	result := source.AttemptResult{Success: outcome.Succeeded()}
	if outcome.Status == StatusSuccess {
		result.ETag = outcome.ETag
		result.LastModified = outcome.LastModified
	}

	desc, err := s.registry.RecordAttempt(outcome.SourceID, result, now)
	if err != nil {
		slog.Error("Failed to record attempt", "source", outcome.SourceID, "error", err)
		return
	}

	quarantined := s.registry.Policy().Quarantined(desc.ConsecutiveFailures)
	if outcome.Succeeded() {
		slog.Info("Task completed",
			"type", string(TaskTypeIngestSource),
			"source", outcome.SourceID,
			"status", string(outcome.Status),
			"duration", outcome.Duration,
			"new", outcome.New,
			"updated", outcome.Updated,
			"duplicates", outcome.Duplicate,
			"filtered", outcome.Filtered,
			"failed", outcome.Failed,
			"not_modified", outcome.NotModified)
	} else {
		slog.Warn("Task failed",
			"type", string(TaskTypeIngestSource),
			"source", outcome.SourceID,
			"duration", outcome.Duration,
			"consecutive_failures", desc.ConsecutiveFailures,
			"quarantined", quarantined,
			"next_cadence", s.registry.EffectiveCadence(desc),
			"error", outcome.Err)
	}

	if s.bookkeeper == nil {
		return
	}

	// Bookkeeping for a finished attempt is written even during shutdown.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.StoreTimeout)
	defer cancel()

	if err := s.bookkeeper.UpdateBookkeeping(storeCtx, bookkeepingFor(desc, outcome, now)); err != nil {
		slog.Error("Failed to update bookkeeping", "source", outcome.SourceID, "error", err)
	}
}

func bookkeepingFor(desc source.Descriptor, outcome Outcome, now time.Time) source.Bookkeeping {
	record := source.Bookkeeping{
		SourceID:            desc.ID,
		ConsecutiveFailures: desc.ConsecutiveFailures,
		ETag:                desc.ETag,
		LastModified:        desc.LastModified,
		LastStatus:          string(outcome.Status),
		LastError:           outcome.ErrorString(),
		UpdatedAt:           now.UTC(),
	}
	if !desc.LastAttemptAt.IsZero() {
		lastAttempt := desc.LastAttemptAt
		record.LastAttemptAt = &lastAttempt
	}
	if !desc.LastSuccessAt.IsZero() {
		lastSuccess := desc.LastSuccessAt
		record.LastSuccessAt = &lastSuccess
	}
	return record
}

func (s *Scheduler) transition(to State) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if err := ValidateStateTransition(s.state, to); err != nil {
		slog.Error("Unexpected scheduler state change", "error", err)
	}
	s.state = to
}

func (s *Scheduler) monitor() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			stats := s.window.Stats()
			slog.Info("Scheduler stats",
				"state", string(s.State()),
				"in_flight", s.pool.inFlight(),
				"workers", s.pool.size(),
				"outcomes", stats.Outcomes,
				"success", stats.Success,
				"partial", stats.Partial,
				"failed", stats.Failed,
				"new", stats.New,
				"updated", stats.Updated,
				"duplicates", stats.Duplicate,
				"filtered", stats.Filtered)
		}
	}
}
