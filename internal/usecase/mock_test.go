//go:build !integration

package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vpn-checkout/internal/domain"
	"vpn-checkout/internal/domain/model"
	"vpn-checkout/internal/domain/ports/adapter"
	"vpn-checkout/internal/domain/ports/repository"
	"vpn-checkout/internal/infra/i18n"
)

// -----------------------------
// Utilities
// -----------------------------

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func ruMessages(t *testing.T) *i18n.Translator {
	t.Helper()
	tr, err := i18n.NewTranslator(i18n.LocalesFS, "ru")
	if err != nil {
		t.Fatalf("load translator: %v", err)
	}
	return tr
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// =============================
// Upstream gateways
// =============================

type buyCall struct{ UserID, PlanID string }

// MockUpstream implements every gateway port with overridable funcs.
type MockUpstream struct {
	mu sync.Mutex

	Plans []model.Plan

	BuyFunc     func(userID, planID string) domain.Result[model.PurchaseResult]
	TopupFunc   func(userID string, amount int64) domain.Result[model.TopupOrder]
	StatusFunc  func(orderID string) domain.Result[model.TopupOrder]
	BalanceFunc func(userID string) domain.Result[int64]

	BuyCalls     []buyCall
	TopupAmounts []int64
	StatusCalls  int
	ListCalls    int
}

var _ adapter.Upstream = (*MockUpstream)(nil)

func (m *MockUpstream) ListPlans(ctx context.Context) domain.Result[[]model.Plan] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListCalls++
	return domain.Ok(append([]model.Plan(nil), m.Plans...))
}

func (m *MockUpstream) Buy(ctx context.Context, userID, planID string) domain.Result[model.PurchaseResult] {
	m.mu.Lock()
	m.BuyCalls = append(m.BuyCalls, buyCall{userID, planID})
	fn := m.BuyFunc
	m.mu.Unlock()
	if fn == nil {
		return domain.Fail[model.PurchaseResult](domain.CodeNetwork, "no buy func", 0)
	}
	return fn(userID, planID)
}

func (m *MockUpstream) CreateTopup(ctx context.Context, userID string, amount int64) domain.Result[model.TopupOrder] {
	m.mu.Lock()
	m.TopupAmounts = append(m.TopupAmounts, amount)
	fn := m.TopupFunc
	m.mu.Unlock()
	if fn == nil {
		return domain.Ok(model.TopupOrder{OrderID: "ord-1", Amount: amount, PaymentURL: "https://pay.example/ord-1", Status: model.TopupStatusPending})
	}
	return fn(userID, amount)
}

func (m *MockUpstream) TopupStatus(ctx context.Context, orderID string) domain.Result[model.TopupOrder] {
	m.mu.Lock()
	m.StatusCalls++
	fn := m.StatusFunc
	m.mu.Unlock()
	if fn == nil {
		return domain.Ok(model.TopupOrder{OrderID: orderID, Status: model.TopupStatusPending})
	}
	return fn(orderID)
}

func (m *MockUpstream) User(ctx context.Context, userID string) domain.Result[model.UserAccount] {
	return domain.Ok(model.UserAccount{TelegramID: userID})
}

func (m *MockUpstream) Balance(ctx context.Context, userID string) domain.Result[int64] {
	if m.BalanceFunc == nil {
		return domain.Fail[int64](domain.CodeNetwork, "no balance func", 0)
	}
	return m.BalanceFunc(userID)
}

func (m *MockUpstream) Subscriptions(ctx context.Context, userID string, active *bool) domain.Result[[]model.Subscription] {
	return domain.Ok([]model.Subscription{})
}

func (m *MockUpstream) buys() []buyCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]buyCall(nil), m.BuyCalls...)
}

func (m *MockUpstream) topups() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.TopupAmounts...)
}

func (m *MockUpstream) setStatus(fn func(orderID string) domain.Result[model.TopupOrder]) {
	m.mu.Lock()
	m.StatusFunc = fn
	m.mu.Unlock()
}

func (m *MockUpstream) setBuy(fn func(userID, planID string) domain.Result[model.PurchaseResult]) {
	m.mu.Lock()
	m.BuyFunc = fn
	m.mu.Unlock()
}

func okPurchase(planName string) domain.Result[model.PurchaseResult] {
	return domain.Ok(model.PurchaseResult{
		Subscription: model.Subscription{
			ID:               77,
			PlanName:         planName,
			EndDate:          "2026-12-01",
			IsActive:         true,
			SubscriptionURL:  "https://vpn.example/a",
			SubscriptionURL2: "https://vpn.example/b",
		},
		NewBalance: 10,
		Charged:    290,
	})
}

func insufficient() domain.Result[model.PurchaseResult] {
	return domain.Fail[model.PurchaseResult](domain.CodeInsufficientBalance, "Недостаточно средств", 400)
}

func completed(orderID string) domain.Result[model.TopupOrder] {
	return domain.Ok(model.TopupOrder{OrderID: orderID, Status: model.TopupStatusCompleted})
}

// =============================
// Repositories
// =============================

type MockPendingStore struct {
	mu    sync.Mutex
	items map[string]model.PendingPurchase
}

var _ repository.PendingPurchaseStore = (*MockPendingStore)(nil)

func NewMockPendingStore() *MockPendingStore {
	return &MockPendingStore{items: map[string]model.PendingPurchase{}}
}

func (m *MockPendingStore) Save(ctx context.Context, p *model.PendingPurchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[p.UserID] = *p
	return nil
}

func (m *MockPendingStore) Load(ctx context.Context, userID string) (*model.PendingPurchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (m *MockPendingStore) Clear(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, userID)
	return nil
}

func (m *MockPendingStore) get(userID string) (model.PendingPurchase, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[userID]
	return p, ok
}

type MockLocker struct {
	mu   sync.Mutex
	held map[string]string
	n    int
}

var _ repository.Locker = (*MockLocker)(nil)

func NewMockLocker() *MockLocker { return &MockLocker{held: map[string]string{}} }

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return "", domain.ErrInvalidState
	}
	l.n++
	tok := key + "#" + time.Now().String()
	l.held[key] = tok
	return tok, nil
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

type MockRateLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	Err    error
}

func (m *MockRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	m.counts[key]++
	return m.counts[key] <= limit, nil
}

// =============================
// Telegram
// =============================

type sentMessage struct {
	ChatID int64
	Text   string
	Rows   [][]adapter.InlineButton
}

type MockTelegramBot struct {
	mu   sync.Mutex
	Sent []sentMessage
	Err  error
}

var _ adapter.TelegramBotAdapter = (*MockTelegramBot)(nil)

func (m *MockTelegramBot) SendMessage(ctx context.Context, chatID int64, text string) error {
	return m.SendButtons(ctx, chatID, text, nil)
}

func (m *MockTelegramBot) SendButtons(ctx context.Context, chatID int64, text string, rows [][]adapter.InlineButton) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, sentMessage{chatID, text, rows})
	return m.Err
}

func (m *MockTelegramBot) sent() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.Sent...)
}

type MockNotifier struct {
	mu    sync.Mutex
	Calls []model.Subscription
}

func (m *MockNotifier) NotifyPurchaseAsync(ident model.Identity, sub model.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, sub)
}

func (m *MockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
