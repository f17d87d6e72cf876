package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"aibot/backend/internal/model"
	"aibot/backend/internal/service/simulator"
	"aibot/backend/pkg/logger"
)

// SchedulerConfig holds the trade scheduler's timing knobs
type SchedulerConfig struct {
	Interval        time.Duration
	LeaseTTL        time.Duration
	MinTradeSpacing time.Duration
}

// TradeScheduler runs a trade cycle for every tradeable subscription of every
// active bot on a fixed interval. It owns its own lifecycle; several
// independent schedulers can coexist.
type TradeScheduler struct {
	bots       BotStore
	subs       SubscriptionStore
	guard      SubscriptionGuard
	reconciler *Reconciler
	cfg        SchedulerConfig
	now        func() time.Time
	log        *logger.Logger

	// lifecycle
	mu     sync.Mutex
	ticker *time.Ticker
	done   chan struct{}
	wg     sync.WaitGroup

	inFlight   atomic.Bool
	lastRunAt  *time.Time
	lastReport *model.BatchReport
}

func NewTradeScheduler(
	bots BotStore,
	subs SubscriptionStore,
	guard SubscriptionGuard,
	reconciler *Reconciler,
	cfg SchedulerConfig,
) *TradeScheduler {
	return &TradeScheduler{
		bots:       bots,
		subs:       subs,
		guard:      guard,
		reconciler: reconciler,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
		log:        logger.GetLogger().Component("trade_scheduler"),
	}
}

// Start begins ticking. Returns false if the scheduler was already running.
func (s *TradeScheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		s.log.Info("Trade scheduler already running")
		return false
	}

	s.ticker = time.NewTicker(s.cfg.Interval)
	s.done = make(chan struct{})

	s.wg.Add(1)
	go s.loop(s.ticker, s.done)

	s.log.Infof("Trade scheduler started (interval %s)", s.cfg.Interval)
	return true
}

// Stop halts ticking. A batch already executing runs to completion.
// Returns false if the scheduler was not running.
func (s *TradeScheduler) Stop() bool {
	s.mu.Lock()
	if s.done == nil {
		s.mu.Unlock()
		s.log.Info("Trade scheduler already stopped")
		return false
	}
	s.ticker.Stop()
	close(s.done)
	s.ticker, s.done = nil, nil
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("Trade scheduler stopped")
	return true
}

// IsRunning reports whether the scheduler is ticking
func (s *TradeScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done != nil
}

func (s *TradeScheduler) loop(ticker *time.Ticker, done chan struct{}) {
	defer s.wg.Done()
	for {
		select {
		case <-ticker.C:
			if _, err := s.RunOnce(context.Background()); errors.Is(err, ErrRunInProgress) {
				s.log.Warn("Skipping tick: previous run still in progress")
			}
		case <-done:
			return
		}
	}
}

// Status returns the scheduler state and the last batch report
func (s *TradeScheduler) Status() model.SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := model.SchedulerStatus{
		State:           model.SchedulerStateStopped,
		IntervalSeconds: int(s.cfg.Interval / time.Second),
		RunInProgress:   s.inFlight.Load(),
		LastRunAt:       s.lastRunAt,
		LastReport:      s.lastReport,
	}
	if s.done != nil {
		status.State = model.SchedulerStateRunning
	}
	return status
}

// RunOnce executes one batch now. It is what every tick calls and what the
// admin "distribute profits now" action calls. Returns ErrRunInProgress if a
// batch is already executing in this process.
func (s *TradeScheduler) RunOnce(ctx context.Context) (*model.BatchReport, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer s.inFlight.Store(false)

	report := s.runBatch(ctx)

	s.mu.Lock()
	s.lastRunAt = &report.StartedAt
	s.lastReport = report
	s.mu.Unlock()

	s.log.WithFields(map[string]interface{}{
		"processed": report.Processed,
		"expired":   report.Expired,
		"skipped":   report.Skipped,
		"errors":    len(report.Errors),
		"duration":  report.FinishedAt.Sub(report.StartedAt).String(),
	}).Info("Trade cycle finished")

	return report, nil
}

func (s *TradeScheduler) runBatch(ctx context.Context) (report *model.BatchReport) {
	report = &model.BatchReport{
		StartedAt: s.now(),
		Trades:    []model.TradeSummary{},
		Errors:    []string{},
	}
	defer func() {
		if rec := recover(); rec != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("Fatal: %v", rec))
		}
		report.FinishedAt = s.now()
	}()

	bots, err := s.bots.ListActive(ctx)
	if err != nil {
		s.log.Error("Failed to load active bots", err)
		report.Errors = append(report.Errors, fmt.Sprintf("Fatal: %v", err))
		return report
	}

	for _, bot := range bots {
		subs, err := s.subs.ListByBot(ctx, bot.ID)
		if err != nil {
			s.log.Errorf("Failed to load subscriptions of bot %s: %v", bot.ID, err)
			report.Errors = append(report.Errors, fmt.Sprintf("bot %s: %v", bot.ID, err))
			continue
		}

		for _, sub := range subs {
			s.processSubscription(ctx, bot, sub, report)
		}
	}

	return report
}

// processSubscription applies the filter chain to one subscription and
// routes it to expiry or a trade. Failures and panics only touch this
// subscription's report entry.
func (s *TradeScheduler) processSubscription(ctx context.Context, bot *model.Bot, sub *model.Subscription, report *model.BatchReport) {
	log := s.log.WithFields(map[string]interface{}{
		"subscription_id": sub.ID,
		"user_id":         sub.UserID,
	})
	fail := func(err interface{}) {
		log.Errorf("Subscription processing failed: %v", err)
		report.Errors = append(report.Errors, fmt.Sprintf("subscription %s (user %s): %v", sub.ID, sub.UserID, err))
	}
	defer func() {
		if rec := recover(); rec != nil {
			fail(fmt.Sprintf("panic: %v", rec))
		}
	}()

	now := s.now()

	if sub.IsStopped || sub.IsPaused {
		report.Skipped++
		return
	}

	if sub.IsExpired(now) {
		if !sub.IsActive() {
			report.Skipped++
			return
		}
		var changed bool
		err := s.withLease(ctx, sub.ID, func() error {
			var err error
			changed, err = s.reconciler.Expire(ctx, sub)
			return err
		})
		switch {
		case errors.Is(err, ErrLeaseHeld):
			report.Skipped++
		case err != nil:
			fail(err)
		case changed:
			report.Expired++
		default:
			report.Skipped++
		}
		return
	}

	if !sub.IsActive() || sub.TradedWithin(now, s.cfg.MinTradeSpacing) {
		report.Skipped++
		return
	}

	var summary *model.TradeSummary
	err := s.withLease(ctx, sub.ID, func() error {
		var err error
		summary, err = s.reconciler.Reconcile(ctx, sub, bot)
		return err
	})
	switch {
	case errors.Is(err, ErrLeaseHeld),
		errors.Is(err, simulator.ErrNothingToTrade),
		errors.Is(err, ErrSubscriptionNotTradeable):
		log.Debugf("Subscription skipped: %v", err)
		report.Skipped++
	case err != nil:
		fail(err)
	default:
		report.Processed++
		report.Trades = append(report.Trades, *summary)
	}
}

// withLease runs fn while holding the subscription's processing lease
func (s *TradeScheduler) withLease(ctx context.Context, subscriptionID string, fn func() error) error {
	if s.guard == nil {
		return fn()
	}

	token, ok, err := s.guard.Acquire(ctx, subscriptionID, s.cfg.LeaseTTL)
	if err != nil {
		return fmt.Errorf("acquire lease: %w", err)
	}
	if !ok {
		return ErrLeaseHeld
	}
	defer func() {
		if err := s.guard.Release(ctx, subscriptionID, token); err != nil {
			s.log.Warnf("Failed to release lease of subscription %s: %v", subscriptionID, err)
		}
	}()

	return fn()
}
