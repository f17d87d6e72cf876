package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"aibot/backend/internal/model"
	"aibot/backend/internal/service/simulator"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testBot(id, minPct, maxPct, roi string) *model.Bot {
	return &model.Bot{
		ID:               id,
		Name:             "Bot " + id,
		IsActive:         true,
		MinProfitPercent: minPct,
		MaxProfitPercent: maxPct,
		ExpectedROI:      roi,
	}
}

func testSub(id, userID, botID, remaining string) *model.Subscription {
	expiry := time.Now().UTC().Add(24 * time.Hour)
	return &model.Subscription{
		ID:                  id,
		UserID:              userID,
		BotID:               botID,
		AllocatedAmount:     dec(remaining),
		RemainingAllocation: dec(remaining),
		Status:              model.SubscriptionStatusActive,
		ExpiryDate:          &expiry,
	}
}

func newTestEngine(l *ledger, seed uint64, oracle PriceOracle) (*TradeScheduler, *Reconciler) {
	rec := NewReconciler(l.subs, l.balances, l.portfolio, l.trades, oracle,
		WithRand(simulator.NewSeededRand(seed)),
		WithMinTradeSpacing(time.Minute),
	)
	sched := NewTradeScheduler(l.bots, l.subs, l.leases, rec, SchedulerConfig{
		Interval:        time.Hour,
		LeaseTTL:        time.Minute,
		MinTradeSpacing: time.Minute,
	})
	return sched, rec
}

func assertBalanceIdentity(t *testing.T, b model.Balance) {
	t.Helper()
	if !b.TotalBalanceUSD.Equal(b.AvailableBalanceUSD.Add(b.LockedBalanceUSD)) {
		t.Errorf("balance identity broken: total %s != available %s + locked %s",
			b.TotalBalanceUSD, b.AvailableBalanceUSD, b.LockedBalanceUSD)
	}
}

func TestRunOnce_WinScenario(t *testing.T) {
	bot := testBot("b1", "2", "4", "100")
	sub := testSub("s1", "u1", "b1", "1000.00000000")
	l := newLedger([]*model.Bot{bot}, []*model.Subscription{sub})
	l.balances.set("u1", 0, 1000)

	sched, _ := newTestEngine(l, 11, fakeOracle{prices: map[string]decimal.Decimal{"bitcoin": dec("50000")}})

	report, err := sched.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if report.Processed != 1 || len(report.Errors) != 0 {
		t.Fatalf("report = %+v, want 1 processed and no errors", report)
	}

	got := l.subs.get("s1")
	if !got.RemainingAllocation.Equal(dec("1000")) {
		t.Errorf("RemainingAllocation = %s, want 1000", got.RemainingAllocation)
	}
	if got.LastTradeDate == nil || got.LastProfitDate == nil {
		t.Error("trade dates not stamped")
	}

	bal := l.balances.get("u1")
	gain := bal.AvailableBalanceUSD
	if !gain.GreaterThan(dec("1")) || !gain.LessThan(dec("6")) {
		t.Errorf("available increase = %s, want strictly between 1 and 6", gain)
	}
	if !bal.LockedBalanceUSD.Equal(dec("1000")) {
		t.Errorf("locked = %s, want unchanged 1000", bal.LockedBalanceUSD)
	}
	assertBalanceIdentity(t, bal)
	if !got.CurrentProfit.Equal(gain) || !got.TotalProfitDistributed.Equal(gain) {
		t.Errorf("profit tracking = %s / %s, want %s", got.CurrentProfit, got.TotalProfitDistributed, gain)
	}

	trades := l.trades.forSubscription("s1")
	if len(trades) != 1 || trades[0].TradeResult != model.TradeResultWin {
		t.Fatalf("trades = %+v, want one win", trades)
	}
	if trades[0].Asset != model.DefaultAsset {
		t.Errorf("traded asset = %+v, want default", trades[0].Asset)
	}
	if !trades[0].AssetPrice.Valid || !trades[0].AssetPrice.Decimal.Equal(dec("50000")) {
		t.Errorf("asset price = %+v, want 50000", trades[0].AssetPrice)
	}

	h, ok := l.portfolio.get("u1", "BTC")
	if !ok {
		t.Fatal("no BTC holding booked")
	}
	if !h.AverageBuyPrice.Equal(dec("50000")) || !h.Amount.IsPositive() {
		t.Errorf("holding = %+v", h)
	}
}

func TestRunOnce_ExpiryScenario(t *testing.T) {
	bot := testBot("b1", "2", "4", "70")
	sub := testSub("s1", "u1", "b1", "250.00000000")
	past := time.Now().UTC().Add(-time.Hour)
	sub.ExpiryDate = &past

	l := newLedger([]*model.Bot{bot}, []*model.Subscription{sub})
	l.balances.set("u1", 0, 500)
	sched, _ := newTestEngine(l, 1, nil)

	report, err := sched.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if report.Expired != 1 || report.Processed != 0 || len(report.Errors) != 0 {
		t.Fatalf("report = %+v, want 1 expired", report)
	}

	bal := l.balances.get("u1")
	if !bal.LockedBalanceUSD.Equal(dec("250")) || !bal.AvailableBalanceUSD.Equal(dec("250")) {
		t.Errorf("balance = locked %s available %s, want 250/250", bal.LockedBalanceUSD, bal.AvailableBalanceUSD)
	}
	assertBalanceIdentity(t, bal)

	got := l.subs.get("s1")
	if got.Status != model.SubscriptionStatusCompleted || !got.RemainingAllocation.IsZero() {
		t.Errorf("subscription = %s remaining %s, want completed/0", got.Status, got.RemainingAllocation)
	}
	if len(l.trades.forSubscription("s1")) != 0 {
		t.Error("expired subscription must not trade")
	}

	// second pass must not move money again
	report, _ = sched.RunOnce(context.Background())
	if report.Expired != 0 {
		t.Errorf("second run expired %d, want 0", report.Expired)
	}
	if again := l.balances.get("u1"); !again.LockedBalanceUSD.Equal(dec("250")) || !again.AvailableBalanceUSD.Equal(dec("250")) {
		t.Errorf("second run changed balance to %+v", again)
	}
}

func TestExpire_Idempotent(t *testing.T) {
	sub := testSub("s1", "u1", "b1", "100")
	l := newLedger(nil, []*model.Subscription{sub})
	l.balances.set("u1", 10, 100)
	_, rec := newTestEngine(l, 1, nil)
	ctx := context.Background()

	changed, err := rec.Expire(ctx, sub)
	if err != nil || !changed {
		t.Fatalf("first Expire() = %v, %v", changed, err)
	}
	first := l.balances.get("u1")

	changed, err = rec.Expire(ctx, sub)
	if err != nil || changed {
		t.Fatalf("second Expire() = %v, %v; want no-op", changed, err)
	}
	second := l.balances.get("u1")
	if !first.AvailableBalanceUSD.Equal(second.AvailableBalanceUSD) || !first.LockedBalanceUSD.Equal(second.LockedBalanceUSD) {
		t.Errorf("second Expire moved funds: %+v -> %+v", first, second)
	}
	if !second.AvailableBalanceUSD.Equal(dec("110")) || !second.LockedBalanceUSD.IsZero() {
		t.Errorf("balance = %+v, want available 110 locked 0", second)
	}
}

func TestExpire_DrainedSubscriptionIsNoop(t *testing.T) {
	sub := testSub("s1", "u1", "b1", "0")
	past := time.Now().UTC().Add(-time.Hour)
	sub.ExpiryDate = &past
	l := newLedger(nil, []*model.Subscription{sub})
	l.balances.set("u1", 10, 40)
	_, rec := newTestEngine(l, 1, nil)

	changed, err := rec.Expire(context.Background(), sub)
	if err != nil || changed {
		t.Fatalf("Expire() = %v, %v; want no-op", changed, err)
	}
	if got := l.subs.get("s1"); got.Status != model.SubscriptionStatusActive {
		t.Errorf("status = %s, want untouched active", got.Status)
	}
	if bal := l.balances.get("u1"); !bal.AvailableBalanceUSD.Equal(dec("10")) || !bal.LockedBalanceUSD.Equal(dec("40")) {
		t.Errorf("balance = %+v, want untouched", bal)
	}
}

func TestRunOnce_ExpiredClosedSubscriptionsSkipLease(t *testing.T) {
	past := time.Now().UTC().Add(-time.Hour)
	completed := testSub("completed", "u1", "b1", "0")
	completed.Status = model.SubscriptionStatusCompleted
	completed.ExpiryDate = &past
	drained := testSub("drained", "u1", "b1", "0")
	drained.ExpiryDate = &past

	l := newLedger([]*model.Bot{testBot("b1", "1", "5", "70")}, []*model.Subscription{completed, drained})
	l.balances.set("u1", 0, 100)
	sched, _ := newTestEngine(l, 1, nil)

	report, err := sched.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if report.Expired != 0 || report.Skipped != 2 || len(report.Errors) != 0 {
		t.Errorf("report = expired %d skipped %d errors %v, want 0/2/none", report.Expired, report.Skipped, report.Errors)
	}
	if l.leases.attempts != 1 {
		t.Errorf("lease attempts = %d, want 1 (closed subscription must not take a lease)", l.leases.attempts)
	}
}

func TestExpire_ReleasesNoMoreThanLocked(t *testing.T) {
	sub := testSub("s1", "u1", "b1", "300")
	l := newLedger(nil, []*model.Subscription{sub})
	l.balances.set("u1", 0, 120)
	_, rec := newTestEngine(l, 1, nil)

	if _, err := rec.Expire(context.Background(), sub); err != nil {
		t.Fatalf("Expire() error = %v", err)
	}
	bal := l.balances.get("u1")
	if !bal.AvailableBalanceUSD.Equal(dec("120")) || !bal.LockedBalanceUSD.IsZero() {
		t.Errorf("balance = %+v, want all 120 released", bal)
	}
}

func TestRunOnce_ErrorIsolation(t *testing.T) {
	bot := testBot("b1", "1", "5", "100")
	subs := []*model.Subscription{
		testSub("s1", "u1", "b1", "100"),
		testSub("s2", "u2", "b1", "100"),
		testSub("s3", "u3", "b1", "100"),
	}
	l := newLedger([]*model.Bot{bot}, subs)
	for _, u := range []string{"u1", "u2", "u3"} {
		l.balances.set(u, 0, 100)
	}
	l.balances.failFor["u2"] = errors.New("connection reset")

	sched, _ := newTestEngine(l, 5, nil)
	report, err := sched.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if report.Processed != 2 {
		t.Errorf("Processed = %d, want 2", report.Processed)
	}
	if len(report.Errors) != 1 {
		t.Fatalf("Errors = %v, want exactly 1", report.Errors)
	}
	if !strings.Contains(report.Errors[0], "subscription s2 (user u2)") || !strings.Contains(report.Errors[0], "connection reset") {
		t.Errorf("error entry = %q", report.Errors[0])
	}

	for _, id := range []string{"s1", "s3"} {
		sub := l.subs.get(id)
		if sub.LastTradeDate == nil || !sub.CurrentProfit.IsPositive() {
			t.Errorf("%s not updated: %+v", id, sub)
		}
	}
	for _, u := range []string{"u1", "u3"} {
		if bal := l.balances.get(u); !bal.AvailableBalanceUSD.IsPositive() {
			t.Errorf("%s balance not credited: %+v", u, bal)
		}
	}

	// accepted partial application: s2's own record stays written
	if l.subs.get("s2").LastTradeDate == nil {
		t.Error("s2 subscription update should remain applied")
	}
	if bal := l.balances.get("u2"); !bal.AvailableBalanceUSD.IsZero() {
		t.Errorf("u2 balance changed despite failure: %+v", bal)
	}
}

func TestRunOnce_PanicIsolated(t *testing.T) {
	bot := testBot("b1", "1", "5", "100")
	l := newLedger([]*model.Bot{bot}, []*model.Subscription{
		testSub("s1", "u1", "b1", "100"),
		testSub("s2", "u2", "b1", "100"),
	})
	l.balances.set("u1", 0, 100)
	l.balances.set("u2", 0, 100)
	l.balances.panicFor["u1"] = true

	sched, _ := newTestEngine(l, 5, nil)
	report, _ := sched.RunOnce(context.Background())

	if report.Processed != 1 || len(report.Errors) != 1 {
		t.Fatalf("report = %+v, want 1 processed 1 error", report)
	}
	if !strings.Contains(report.Errors[0], "subscription s1") || !strings.Contains(report.Errors[0], "panic") {
		t.Errorf("error entry = %q", report.Errors[0])
	}
}

func TestRunOnce_FatalAndBotErrors(t *testing.T) {
	t.Run("bot list unavailable", func(t *testing.T) {
		l := newLedger(nil, nil)
		l.bots.listErr = errors.New("store down")
		sched, _ := newTestEngine(l, 1, nil)

		report, err := sched.RunOnce(context.Background())
		if err != nil {
			t.Fatalf("RunOnce() error = %v", err)
		}
		if len(report.Errors) != 1 || report.Errors[0] != "Fatal: store down" {
			t.Errorf("Errors = %v, want single Fatal entry", report.Errors)
		}
	})

	t.Run("one bot fails", func(t *testing.T) {
		l := newLedger(
			[]*model.Bot{testBot("b1", "1", "5", "100"), testBot("b2", "1", "5", "100")},
			[]*model.Subscription{testSub("s2", "u2", "b2", "100")},
		)
		l.balances.set("u2", 0, 100)
		l.subs.errByBot["b1"] = errors.New("index corrupt")
		sched, _ := newTestEngine(l, 1, nil)

		report, _ := sched.RunOnce(context.Background())
		if report.Processed != 1 {
			t.Errorf("Processed = %d, want 1", report.Processed)
		}
		if len(report.Errors) != 1 || report.Errors[0] != "bot b1: index corrupt" {
			t.Errorf("Errors = %v", report.Errors)
		}
	})
}

func TestRunOnce_Filters(t *testing.T) {
	recent := time.Now().UTC().Add(-10 * time.Second)

	paused := testSub("paused", "u1", "b1", "100")
	paused.IsPaused = true
	stopped := testSub("stopped", "u1", "b1", "100")
	stopped.IsStopped = true
	cancelled := testSub("cancelled", "u1", "b1", "100")
	cancelled.Status = model.SubscriptionStatusCancelled
	traded := testSub("traded", "u1", "b1", "100")
	traded.LastTradeDate = &recent
	drained := testSub("drained", "u1", "b1", "0")
	leased := testSub("leased", "u1", "b1", "100")

	l := newLedger(
		[]*model.Bot{testBot("b1", "1", "5", "100")},
		[]*model.Subscription{paused, stopped, cancelled, traded, drained, leased},
	)
	l.balances.set("u1", 0, 1000)
	l.leases.held["leased"] = "other-worker"

	sched, _ := newTestEngine(l, 1, nil)
	report, err := sched.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if report.Processed != 0 || report.Skipped != 6 || len(report.Errors) != 0 {
		t.Errorf("report = processed %d skipped %d errors %v, want 0/6/none",
			report.Processed, report.Skipped, report.Errors)
	}
	if len(l.trades.trades) != 0 {
		t.Errorf("%d trades written, want none", len(l.trades.trades))
	}
	if bal := l.balances.get("u1"); !bal.LockedBalanceUSD.Equal(dec("1000")) {
		t.Errorf("balance changed: %+v", bal)
	}
}

func TestRunOnce_SpacingMakesCycleIdempotent(t *testing.T) {
	l := newLedger(
		[]*model.Bot{testBot("b1", "1", "5", "100")},
		[]*model.Subscription{testSub("s1", "u1", "b1", "100")},
	)
	l.balances.set("u1", 0, 100)
	sched, _ := newTestEngine(l, 1, nil)

	first, _ := sched.RunOnce(context.Background())
	second, _ := sched.RunOnce(context.Background())

	if first.Processed != 1 || second.Processed != 0 || second.Skipped != 1 {
		t.Errorf("runs = %+v then %+v, want second run skipped", first, second)
	}
	if n := len(l.trades.forSubscription("s1")); n != 1 {
		t.Errorf("%d trades, want 1", n)
	}
}

func TestReconcile_LossInvariants(t *testing.T) {
	sub := testSub("s1", "u1", "b1", "500")
	bot := testBot("b1", "20", "60", "0") // always lose, big swings
	l := newLedger([]*model.Bot{bot}, []*model.Subscription{sub})
	l.balances.set("u1", 50, 300)

	rec := NewReconciler(l.subs, l.balances, l.portfolio, l.trades, nil,
		WithRand(simulator.NewSeededRand(99)))
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		before := l.subs.get("s1")
		balBefore := l.balances.get("u1")
		ceiling := decimal.Min(before.RemainingAllocation, balBefore.LockedBalanceUSD)

		summary, err := rec.Reconcile(ctx, &before, bot)
		if errors.Is(err, simulator.ErrNothingToTrade) {
			break
		}
		if err != nil {
			t.Fatalf("cycle %d: Reconcile() error = %v", i, err)
		}

		after := l.subs.get("s1")
		if after.RemainingAllocation.IsNegative() || after.RemainingAllocation.GreaterThan(before.RemainingAllocation) {
			t.Fatalf("cycle %d: remaining %s -> %s", i, before.RemainingAllocation, after.RemainingAllocation)
		}
		if summary.Loss.GreaterThan(ceiling) {
			t.Fatalf("cycle %d: loss %s exceeds ceiling %s", i, summary.Loss, ceiling)
		}
		if !summary.Profit.IsZero() {
			t.Fatalf("cycle %d: profit %s on a forced loss", i, summary.Profit)
		}

		bal := l.balances.get("u1")
		assertBalanceIdentity(t, bal)
		if bal.LockedBalanceUSD.IsNegative() || bal.AvailableBalanceUSD.IsNegative() {
			t.Fatalf("cycle %d: negative tier %+v", i, bal)
		}
	}

	if _, ok := l.portfolio.get("u1", "BTC"); ok {
		t.Error("losses must not book portfolio holdings")
	}
}

func TestReconcile_RejectsStaleAllocation(t *testing.T) {
	bot := testBot("b1", "20", "60", "0")
	l := newLedger([]*model.Bot{bot}, []*model.Subscription{testSub("s1", "u1", "b1", "500")})
	l.balances.set("u1", 0, 500)
	_, rec := newTestEngine(l, 5, nil)
	ctx := context.Background()

	snapshot := l.subs.get("s1")
	if _, err := l.subs.Mutate(ctx, "s1", func(s *model.Subscription) error {
		s.RemainingAllocation = dec("10")
		return nil
	}); err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}

	if _, err := rec.Reconcile(ctx, &snapshot, bot); !errors.Is(err, ErrSubscriptionNotTradeable) {
		t.Fatalf("Reconcile() error = %v, want ErrSubscriptionNotTradeable", err)
	}
	if got := l.subs.get("s1"); !got.RemainingAllocation.Equal(dec("10")) {
		t.Errorf("remaining = %s, want 10", got.RemainingAllocation)
	}
	if len(l.trades.forSubscription("s1")) != 0 {
		t.Error("stale snapshot must not record a trade")
	}
	if bal := l.balances.get("u1"); !bal.LockedBalanceUSD.Equal(dec("500")) {
		t.Errorf("balance = %+v, want untouched", bal)
	}
}

func TestApplyTradeToBalance_LossSpillsIntoAvailable(t *testing.T) {
	b := &model.Balance{
		AvailableBalanceUSD: dec("10"),
		LockedBalanceUSD:    dec("3"),
		TotalBalanceUSD:     dec("13"),
	}
	applyTradeToBalance(b, simulator.Outcome{Loss: dec("5"), Profit: decimal.Zero})

	if !b.LockedBalanceUSD.IsZero() || !b.AvailableBalanceUSD.Equal(dec("8")) || !b.TotalBalanceUSD.Equal(dec("8")) {
		t.Errorf("balance = %+v, want locked 0 available 8 total 8", b)
	}
}

func TestAddToPortfolio_WeightedAverage(t *testing.T) {
	l := newLedger(nil, nil)
	rec := NewReconciler(l.subs, l.balances, l.portfolio, l.trades, nil)
	ctx := context.Background()
	eth := model.TradingAsset{ID: "ethereum", Symbol: "ETH", Name: "Ethereum"}

	if err := rec.addToPortfolio(ctx, "u1", eth, dec("100"), dec("50")); err != nil {
		t.Fatalf("addToPortfolio() error = %v", err)
	}
	if err := rec.addToPortfolio(ctx, "u1", eth, dec("100"), dec("100")); err != nil {
		t.Fatalf("addToPortfolio() error = %v", err)
	}

	h, ok := l.portfolio.get("u1", "ETH")
	if !ok {
		t.Fatal("holding missing")
	}
	if !h.Amount.Equal(dec("3")) {
		t.Errorf("Amount = %s, want 3", h.Amount)
	}
	if !h.AverageBuyPrice.Equal(dec("66.66666667")) {
		t.Errorf("AverageBuyPrice = %s, want 66.66666667", h.AverageBuyPrice)
	}
	if !h.CurrentValue.Equal(dec("300")) || h.AssetID != "ethereum" {
		t.Errorf("holding = %+v", h)
	}
}

func TestTradeScheduler_StartStopIdempotent(t *testing.T) {
	l := newLedger(nil, nil)
	sched, _ := newTestEngine(l, 1, nil)

	if sched.Status().State != model.SchedulerStateStopped {
		t.Fatal("new scheduler should be stopped")
	}
	if !sched.Start() {
		t.Fatal("first Start() = false")
	}
	if sched.Start() {
		t.Error("second Start() = true, want no-op")
	}
	if st := sched.Status(); st.State != model.SchedulerStateRunning || st.IntervalSeconds != 3600 {
		t.Errorf("Status() = %+v", st)
	}
	if !sched.Stop() {
		t.Fatal("first Stop() = false")
	}
	if sched.Stop() {
		t.Error("second Stop() = true, want no-op")
	}
	if sched.IsRunning() {
		t.Error("IsRunning() after Stop()")
	}

	// restartable
	if !sched.Start() {
		t.Error("Start() after Stop() = false")
	}
	sched.Stop()
}

func TestTradeScheduler_TicksRunBatches(t *testing.T) {
	l := newLedger(
		[]*model.Bot{testBot("b1", "1", "5", "100")},
		[]*model.Subscription{testSub("s1", "u1", "b1", "100")},
	)
	l.balances.set("u1", 0, 100)

	sched, _ := newTestEngine(l, 1, nil)
	sched.cfg.Interval = 10 * time.Millisecond
	sched.Start()
	defer sched.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st := sched.Status(); st.LastReport != nil {
			if st.LastRunAt == nil {
				t.Fatal("LastRunAt not recorded")
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("scheduler never ran a batch")
}
