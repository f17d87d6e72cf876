package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"aibot/backend/internal/model"
	"aibot/backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// In-memory ledger used by the engine tests. Each Mutate applies fn to a
// copy and stores it only on success, like the Redis transactions do.

type fakeBots struct {
	mu      sync.Mutex
	bots    map[string]*model.Bot
	listErr error
}

func newFakeBots(bots ...*model.Bot) *fakeBots {
	f := &fakeBots{bots: map[string]*model.Bot{}}
	for _, b := range bots {
		f.bots[b.ID] = b
	}
	return f
}

func (f *fakeBots) ListActive(ctx context.Context) ([]*model.Bot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := []*model.Bot{}
	for _, b := range f.bots {
		if b.IsActive {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeBots) GetByID(ctx context.Context, botID string) (*model.Bot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bots[botID]
	if !ok {
		return nil, fmt.Errorf("bot %s: %w", botID, repository.ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

type fakeSubs struct {
	mu       sync.Mutex
	subs     map[string]*model.Subscription
	order    []string
	errByBot map[string]error
}

func newFakeSubs(subs ...*model.Subscription) *fakeSubs {
	f := &fakeSubs{subs: map[string]*model.Subscription{}, errByBot: map[string]error{}}
	for _, s := range subs {
		f.subs[s.ID] = s
		f.order = append(f.order, s.ID)
	}
	return f
}

func (f *fakeSubs) list(match func(*model.Subscription) bool) []*model.Subscription {
	out := []*model.Subscription{}
	for _, id := range f.order {
		if s := f.subs[id]; match(s) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out
}

func (f *fakeSubs) ListByBot(ctx context.Context, botID string) ([]*model.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errByBot[botID]; err != nil {
		return nil, err
	}
	return f.list(func(s *model.Subscription) bool { return s.BotID == botID }), nil
}

func (f *fakeSubs) ListByUser(ctx context.Context, userID string) ([]*model.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.list(func(s *model.Subscription) bool { return s.UserID == userID }), nil
}

func (f *fakeSubs) GetByID(ctx context.Context, id string) (*model.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[id]
	if !ok {
		return nil, fmt.Errorf("subscription %s: %w", id, repository.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSubs) Create(ctx context.Context, sub *model.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	if _, ok := f.subs[sub.ID]; ok {
		return repository.ErrAlreadyExists
	}
	cp := *sub
	f.subs[sub.ID] = &cp
	f.order = append(f.order, sub.ID)
	return nil
}

func (f *fakeSubs) Mutate(ctx context.Context, id string, fn func(sub *model.Subscription) error) (*model.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[id]
	if !ok {
		return nil, fmt.Errorf("subscription %s: %w", id, repository.ErrNotFound)
	}
	cp := *s
	if err := fn(&cp); err != nil {
		return nil, err
	}
	f.subs[id] = &cp
	out := cp
	return &out, nil
}

func (f *fakeSubs) get(id string) model.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.subs[id]
}

type fakeBalances struct {
	mu       sync.Mutex
	balances map[string]*model.Balance
	failFor  map[string]error
	panicFor map[string]bool
}

func newFakeBalances() *fakeBalances {
	return &fakeBalances{
		balances: map[string]*model.Balance{},
		failFor:  map[string]error{},
		panicFor: map[string]bool{},
	}
}

func (f *fakeBalances) set(userID string, available, locked int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, l := decimal.NewFromInt(available), decimal.NewFromInt(locked)
	f.balances[userID] = &model.Balance{
		UserID:              userID,
		AvailableBalanceUSD: a,
		LockedBalanceUSD:    l,
		TotalBalanceUSD:     a.Add(l),
	}
}

func (f *fakeBalances) get(userID string) model.Balance {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.balances[userID]; ok {
		return *b
	}
	return *model.NewBalance(userID)
}

func (f *fakeBalances) Get(ctx context.Context, userID string) (*model.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicFor[userID] {
		panic("balance row corrupted")
	}
	b, ok := f.balances[userID]
	if !ok {
		return nil, fmt.Errorf("balance %s: %w", userID, repository.ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBalances) Mutate(ctx context.Context, userID string, fn func(b *model.Balance) error) (*model.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[userID]; err != nil {
		return nil, err
	}
	cp := *model.NewBalance(userID)
	if b, ok := f.balances[userID]; ok {
		cp = *b
	}
	if err := fn(&cp); err != nil {
		return nil, err
	}
	cp.UpdatedAt = time.Now().UTC()
	f.balances[userID] = &cp
	out := cp
	return &out, nil
}

type fakePortfolio struct {
	mu       sync.Mutex
	holdings map[string]*model.PortfolioHolding // userID|SYMBOL
}

func newFakePortfolio() *fakePortfolio {
	return &fakePortfolio{holdings: map[string]*model.PortfolioHolding{}}
}

func (f *fakePortfolio) key(userID, symbol string) string {
	return userID + "|" + strings.ToUpper(symbol)
}

func (f *fakePortfolio) get(userID, symbol string) (model.PortfolioHolding, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.holdings[f.key(userID, symbol)]
	if !ok {
		return model.PortfolioHolding{}, false
	}
	return *h, true
}

func (f *fakePortfolio) ListByUser(ctx context.Context, userID string) ([]*model.PortfolioHolding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*model.PortfolioHolding{}
	for _, h := range f.holdings {
		if h.UserID == userID {
			cp := *h
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (f *fakePortfolio) Upsert(ctx context.Context, userID, symbol string, fn func(h *model.PortfolioHolding, exists bool) error) (*model.PortfolioHolding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := f.key(userID, symbol)
	var cp model.PortfolioHolding
	existing, exists := f.holdings[k]
	if exists {
		cp = *existing
	} else {
		cp = model.PortfolioHolding{ID: uuid.New().String(), UserID: userID, Symbol: strings.ToUpper(symbol)}
	}
	if err := fn(&cp, exists); err != nil {
		return nil, err
	}
	f.holdings[k] = &cp
	out := cp
	return &out, nil
}

type fakeTrades struct {
	mu     sync.Mutex
	trades []*model.TradeRecord
}

func (f *fakeTrades) Append(ctx context.Context, trade *model.TradeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.trades {
		if t.ID == trade.ID {
			return repository.ErrAlreadyExists
		}
	}
	cp := *trade
	f.trades = append(f.trades, &cp)
	return nil
}

func (f *fakeTrades) ListByUser(ctx context.Context, userID string, offset, limit int) ([]*model.TradeRecord, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mine := []*model.TradeRecord{}
	for i := len(f.trades) - 1; i >= 0; i-- {
		if f.trades[i].UserID == userID {
			mine = append(mine, f.trades[i])
		}
	}
	total := int64(len(mine))
	if offset >= len(mine) {
		return []*model.TradeRecord{}, total, nil
	}
	end := offset + limit
	if end > len(mine) {
		end = len(mine)
	}
	return mine[offset:end], total, nil
}

func (f *fakeTrades) forSubscription(id string) []*model.TradeRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*model.TradeRecord{}
	for _, t := range f.trades {
		if t.SubscriptionID == id {
			out = append(out, t)
		}
	}
	return out
}

type fakeLeases struct {
	mu       sync.Mutex
	held     map[string]string
	attempts int
}

func newFakeLeases() *fakeLeases {
	return &fakeLeases{held: map[string]string{}}
}

func (f *fakeLeases) Acquire(ctx context.Context, subscriptionID string, ttl time.Duration) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if _, ok := f.held[subscriptionID]; ok {
		return "", false, nil
	}
	token := uuid.New().String()
	f.held[subscriptionID] = token
	return token, true, nil
}

func (f *fakeLeases) Release(ctx context.Context, subscriptionID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[subscriptionID] == token {
		delete(f.held, subscriptionID)
	}
	return nil
}

type fakeOracle struct {
	prices map[string]decimal.Decimal
}

func (f fakeOracle) GetPrice(ctx context.Context, assetID string) (decimal.Decimal, bool) {
	p, ok := f.prices[assetID]
	return p, ok
}

// ledger bundles the fakes behind one engine
type ledger struct {
	bots      *fakeBots
	subs      *fakeSubs
	balances  *fakeBalances
	portfolio *fakePortfolio
	trades    *fakeTrades
	leases    *fakeLeases
}

func newLedger(bots []*model.Bot, subs []*model.Subscription) *ledger {
	return &ledger{
		bots:      newFakeBots(bots...),
		subs:      newFakeSubs(subs...),
		balances:  newFakeBalances(),
		portfolio: newFakePortfolio(),
		trades:    &fakeTrades{},
		leases:    newFakeLeases(),
	}
}
