// File: internal/usecase/checkout_uc.go
package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"vpn-checkout/internal/domain"
	"vpn-checkout/internal/domain/model"
	"vpn-checkout/internal/domain/ports/adapter"
	"vpn-checkout/internal/domain/ports/repository"
	"vpn-checkout/internal/infra/i18n"
	"vpn-checkout/internal/infra/logging"
	"vpn-checkout/internal/infra/metrics"
)

// Compile-time check
var _ CheckoutUseCase = (*checkoutUC)(nil)

// CheckoutUseCase drives a purchase from plan selection to an issued
// subscription, detouring through a balance top-up when funds are short.
// Every method except Start and Resume is scoped to the session owner.
type CheckoutUseCase interface {
	Start(ctx context.Context, ident model.Identity, planID string) (model.CheckoutView, error)
	Get(ctx context.Context, ident model.Identity, sessionID string) (model.CheckoutView, error)
	// CreateTopup opens a top-up order; amount 0 tops up the current shortfall.
	CreateTopup(ctx context.Context, ident model.Identity, sessionID string, amount int64) (model.CheckoutView, error)
	Retry(ctx context.Context, ident model.Identity, sessionID string) (model.CheckoutView, error)
	// Resume rebuilds a checkout from the pending snapshot after a reload.
	// priorUserID is the id the browser used before, if it differs.
	Resume(ctx context.Context, ident model.Identity, priorUserID string) (model.CheckoutView, error)
	Close(ctx context.Context, ident model.Identity, sessionID string) error
	CloseIdle(ttl time.Duration) int
	Shutdown()
}

// PurchaseNotifier is told about every successful purchase; it must not block.
type PurchaseNotifier interface {
	NotifyPurchaseAsync(ident model.Identity, sub model.Subscription)
}

type CheckoutDeps struct {
	Catalog   CatalogUseCase
	Purchases adapter.PurchaseGateway
	Topups    adapter.TopupGateway
	Accounts  adapter.AccountGateway
	Pending   repository.PendingPurchaseStore
	Locker    repository.Locker // optional
	Poller    *TopupPoller
	Notifier  PurchaseNotifier // optional
	Messages  *i18n.Translator
}

type checkoutUC struct {
	deps    CheckoutDeps
	log     *zerolog.Logger
	now     func() time.Time
	lockTTL time.Duration

	mu       sync.RWMutex
	sessions map[string]*checkoutSession
	resumeMu sync.Mutex
}

func NewCheckoutUseCase(deps CheckoutDeps, logger *zerolog.Logger) *checkoutUC {
	l := logger.With().Str("component", "CheckoutUC").Logger()
	return &checkoutUC{
		deps:     deps,
		log:      &l,
		now:      time.Now,
		lockTTL:  30 * time.Second,
		sessions: make(map[string]*checkoutSession),
	}
}

// checkoutSession is one purchase attempt. op serializes state-changing
// operations; mu guards the fields read by views.
type checkoutSession struct {
	id    string
	ident model.Identity

	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger

	op sync.Mutex

	mu           sync.RWMutex
	closed       bool
	state        model.CheckoutState
	planID       string
	plan         *model.Plan
	order        *model.TopupOrder
	subscription *model.Subscription
	newBalance   int64
	charged      int64
	errCode      string
	message      string
	recovery     model.RecoveryAction
	updatedAt    time.Time
	lastSeen     time.Time
	poll         *PollHandle
}

func (s *checkoutSession) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *checkoutSession) currentState() model.CheckoutState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (uc *checkoutUC) newSession(ctx context.Context, ident model.Identity, planID string, initial model.CheckoutState) *checkoutSession {
	id := ulid.MustNew(ulid.Timestamp(uc.now()), rand.Reader).String()
	// the session outlives the request that created it
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sctx = logging.WithSessID(logging.WithUserID(sctx, ident.UserID), id)

	now := uc.now()
	s := &checkoutSession{
		id:        id,
		ident:     ident,
		ctx:       sctx,
		cancel:    cancel,
		log:       *logging.With(sctx, uc.log),
		state:     initial,
		planID:    planID,
		updatedAt: now,
		lastSeen:  now,
	}

	uc.mu.Lock()
	uc.sessions[id] = s
	n := len(uc.sessions)
	uc.mu.Unlock()
	metrics.SetCheckoutSessions(n)
	metrics.IncCheckoutTransition(string(initial))
	return s
}

// lookup returns an owned, open session and marks it as seen.
func (uc *checkoutUC) lookup(ident model.Identity, sessionID string) (*checkoutSession, error) {
	uc.mu.RLock()
	s, ok := uc.sessions[sessionID]
	uc.mu.RUnlock()
	if !ok || s.ident.UserID != ident.UserID {
		return nil, domain.ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, domain.ErrSessionClosed
	}
	s.lastSeen = uc.now()
	return s, nil
}

// --- state changes (callers hold s.op) ---

type outcome struct {
	state    model.CheckoutState
	code     string
	message  string
	recovery model.RecoveryAction
}

func (uc *checkoutUC) transition(s *checkoutSession, o outcome, mutate func()) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}
	if s.state != o.state && !s.state.CanTransition(o.state) {
		from := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidState, from, o.state)
	}
	from := s.state
	s.state = o.state
	s.errCode = o.code
	s.message = o.message
	s.recovery = o.recovery
	s.updatedAt = uc.now()
	if mutate != nil {
		mutate()
	}
	s.mu.Unlock()

	if from != o.state {
		metrics.IncCheckoutTransition(string(o.state))
		s.log.Info().Str("from", string(from)).Str("to", string(o.state)).Str("code", o.code).Msg("checkout transition")
	}
	return nil
}

func (uc *checkoutUC) failureMessage(code string) string {
	t := uc.deps.Messages
	switch code {
	case domain.CodeInvalidPlan:
		return t.T("checkout.invalid_plan")
	case domain.CodeNetwork:
		return t.T("checkout.network_error")
	case domain.CodeConfig:
		return t.T("checkout.config_error")
	case domain.CodeUnauthorized:
		return t.T("checkout.unauthorized")
	}
	return t.T("checkout.failed")
}

func (uc *checkoutUC) failed(code string) outcome {
	o := outcome{state: model.CheckoutFailed, code: code, message: uc.failureMessage(code), recovery: model.RecoveryRetry}
	if code == domain.CodeInvalidPlan {
		o.recovery = model.RecoveryReselectPlan
	}
	return o
}

// resolvePlan makes sure the session knows its plan; it reports false after
// moving the session to Failed.
func (uc *checkoutUC) resolvePlan(s *checkoutSession) bool {
	s.mu.RLock()
	known := s.plan != nil
	planID := s.planID
	s.mu.RUnlock()
	if known {
		return true
	}

	res := uc.deps.Catalog.Find(s.ctx, planID)
	if !res.OK {
		if res.Code == domain.CodeInvalidPlan {
			uc.clearPending(s)
		}
		_ = uc.transition(s, uc.failed(res.Code), nil)
		return false
	}
	plan := res.Data
	s.mu.Lock()
	s.plan = &plan
	s.mu.Unlock()
	return true
}

// attemptPurchase charges the user's balance for the session plan.
func (uc *checkoutUC) attemptPurchase(s *checkoutSession) error {
	if err := uc.transition(s, outcome{state: model.CheckoutCharging, message: uc.deps.Messages.T("checkout.charging")}, nil); err != nil {
		return err
	}

	s.mu.RLock()
	planID, userID := s.planID, s.ident.UserID
	var price int64
	if s.plan != nil {
		price = s.plan.Price
	}
	s.mu.RUnlock()

	if uc.deps.Locker != nil {
		key := "checkout_lock:" + userID
		token, err := uc.deps.Locker.TryLock(s.ctx, key, uc.lockTTL)
		if err != nil {
			s.log.Warn().Err(err).Msg("another charge is in flight for this user")
			return uc.transition(s, uc.failed(""), nil)
		}
		defer func() {
			if err := uc.deps.Locker.Unlock(context.WithoutCancel(s.ctx), key, token); err != nil {
				s.log.Warn().Err(err).Msg("release charge lock")
			}
		}()
	}

	res := uc.deps.Purchases.Buy(s.ctx, userID, planID)
	switch {
	case res.OK:
		pr := res.Data
		sub := pr.Subscription
		msg := uc.deps.Messages.T("checkout.succeeded", sub.PlanName, sub.EndDate)
		err := uc.transition(s, outcome{state: model.CheckoutSucceeded, message: msg}, func() {
			s.subscription = &sub
			s.newBalance = pr.NewBalance
			s.charged = pr.Charged
		})
		if err != nil {
			return err
		}
		uc.stopPolling(s)
		uc.clearPending(s)
		if uc.deps.Notifier != nil && !s.ident.Temporary {
			uc.deps.Notifier.NotifyPurchaseAsync(s.ident, sub)
		}
		return nil

	case res.Code == domain.CodeInsufficientBalance:
		msg := uc.deps.Messages.T("checkout.insufficient_balance", price)
		return uc.transition(s, outcome{
			state:    model.CheckoutInsufficientBalance,
			code:     res.Code,
			message:  msg,
			recovery: model.RecoveryTopup,
		}, nil)

	case res.Code == domain.CodeInvalidPlan:
		uc.clearPending(s)
		return uc.transition(s, uc.failed(res.Code), nil)

	default:
		s.log.Warn().Str("code", res.Code).Str("detail", res.Message).Msg("charge failed")
		return uc.transition(s, uc.failed(res.Code), nil)
	}
}

func (uc *checkoutUC) clearPending(s *checkoutSession) {
	if err := uc.deps.Pending.Clear(context.WithoutCancel(s.ctx), s.ident.UserID); err != nil {
		s.log.Warn().Err(err).Msg("clear pending purchase")
	}
}

func (uc *checkoutUC) stopPolling(s *checkoutSession) {
	s.mu.Lock()
	h := s.poll
	s.poll = nil
	s.mu.Unlock()
	if h != nil {
		h.Cancel()
	}
}

func (uc *checkoutUC) startPolling(s *checkoutSession, orderID string) {
	uc.stopPolling(s)
	h := uc.deps.Poller.Start(s.ctx, orderID, func(o model.TopupOrder) { uc.onTopupTerminal(s, o) })
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		h.Cancel()
		return
	}
	s.poll = h
	s.mu.Unlock()
}

// onTopupTerminal runs on the poller goroutine.
func (uc *checkoutUC) onTopupTerminal(s *checkoutSession, o model.TopupOrder) {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	stale := s.closed || s.state != model.CheckoutAwaitingTopup || s.order == nil || s.order.OrderID != o.OrderID
	if !stale {
		if s.order.Status.CanTransition(o.Status) {
			s.order.Status = o.Status
		}
		s.order.CompletedAt = o.CompletedAt
		s.order.Expired = o.Expired
		s.poll = nil
	}
	s.mu.Unlock()
	if stale {
		return
	}

	switch {
	case o.Expired:
		_ = uc.transition(s, outcome{
			state:    model.CheckoutCheckLater,
			message:  uc.deps.Messages.T("checkout.check_later"),
			recovery: model.RecoveryCheckLater,
		}, nil)
	case o.Status == model.TopupStatusFailed:
		uc.clearPending(s)
		_ = uc.transition(s, outcome{
			state:    model.CheckoutTopupFailed,
			code:     "TOPUP_FAILED",
			message:  uc.deps.Messages.T("checkout.topup_failed"),
			recovery: model.RecoveryTopup,
		}, nil)
	case o.Status == model.TopupStatusCompleted:
		if err := uc.attemptPurchase(s); err != nil && !errors.Is(err, domain.ErrSessionClosed) {
			s.log.Error().Err(err).Msg("automatic charge after top-up")
		}
	}
}

// --- public operations ---

func (uc *checkoutUC) Start(ctx context.Context, ident model.Identity, planID string) (model.CheckoutView, error) {
	defer logging.TraceDuration(uc.log, "CheckoutUC.Start")()
	if ident.UserID == "" {
		return model.CheckoutView{}, fmt.Errorf("%w: %s", domain.ErrInvalidArgument, uc.deps.Messages.T("checkout.no_user"))
	}
	if planID == "" {
		return model.CheckoutView{}, fmt.Errorf("%w: planId is required", domain.ErrInvalidArgument)
	}

	s := uc.newSession(ctx, ident, planID, model.CheckoutSelectingPlan)
	s.op.Lock()
	defer s.op.Unlock()

	if uc.resolvePlan(s) {
		if err := uc.attemptPurchase(s); err != nil && !errors.Is(err, domain.ErrSessionClosed) {
			return model.CheckoutView{}, err
		}
	}
	return uc.view(s), nil
}

func (uc *checkoutUC) Get(ctx context.Context, ident model.Identity, sessionID string) (model.CheckoutView, error) {
	s, err := uc.lookup(ident, sessionID)
	if err != nil {
		return model.CheckoutView{}, err
	}
	return uc.view(s), nil
}

func (uc *checkoutUC) CreateTopup(ctx context.Context, ident model.Identity, sessionID string, amount int64) (model.CheckoutView, error) {
	if amount < 0 {
		return model.CheckoutView{}, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidArgument)
	}
	s, err := uc.lookup(ident, sessionID)
	if err != nil {
		return model.CheckoutView{}, err
	}
	s.op.Lock()
	defer s.op.Unlock()

	from := s.currentState()
	if !from.CanTransition(model.CheckoutAwaitingTopup) {
		return uc.view(s), fmt.Errorf("%w: cannot top up from %s", domain.ErrInvalidState, from)
	}

	if amount == 0 {
		amount = uc.shortfall(ctx, s)
	}
	if amount <= 0 {
		return uc.view(s), fmt.Errorf("%w: amount must be positive", domain.ErrInvalidArgument)
	}

	res := uc.deps.Topups.CreateTopup(ctx, s.ident.UserID, amount)
	if !res.OK {
		s.log.Warn().Str("code", res.Code).Str("detail", res.Message).Msg("top-up creation failed")
		msg := uc.deps.Messages.T("checkout.topup_create_failed")
		_ = uc.transition(s, outcome{state: from, code: res.Code, message: msg, recovery: model.RecoveryTopup}, nil)
		return uc.view(s), res.Err()
	}

	order := res.Data
	snap := &model.PendingPurchase{
		OrderID:   order.OrderID,
		PlanID:    s.planID,
		UserID:    s.ident.UserID,
		Amount:    order.Amount,
		CreatedAt: uc.now().UTC(),
	}
	if err := uc.deps.Pending.Save(ctx, snap); err != nil {
		// the checkout still works, it just cannot survive a reload
		s.log.Warn().Err(err).Msg("save pending purchase")
	}

	err = uc.transition(s, outcome{
		state:   model.CheckoutAwaitingTopup,
		message: uc.deps.Messages.T("checkout.awaiting_topup"),
	}, func() { s.order = &order })
	if err != nil {
		return uc.view(s), err
	}
	s.log.Info().Str("order_id", order.OrderID).Int64("amount", order.Amount).Msg("top-up created")
	uc.startPolling(s, order.OrderID)
	return uc.view(s), nil
}

// shortfall asks for the balance and falls back to the full price.
func (uc *checkoutUC) shortfall(ctx context.Context, s *checkoutSession) int64 {
	s.mu.RLock()
	var price int64
	if s.plan != nil {
		price = s.plan.Price
	}
	s.mu.RUnlock()
	if uc.deps.Accounts == nil || s.ident.Temporary {
		return price
	}
	bal := uc.deps.Accounts.Balance(ctx, s.ident.UserID)
	if !bal.OK {
		return price
	}
	if d := model.Shortfall(price, bal.Data); d > 0 {
		return d
	}
	return price
}

func (uc *checkoutUC) Retry(ctx context.Context, ident model.Identity, sessionID string) (model.CheckoutView, error) {
	s, err := uc.lookup(ident, sessionID)
	if err != nil {
		return model.CheckoutView{}, err
	}
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.RLock()
	state, code := s.state, s.errCode
	var orderID string
	if s.order != nil {
		orderID = s.order.OrderID
	}
	s.mu.RUnlock()

	switch state {
	case model.CheckoutFailed:
		if code == domain.CodeInvalidPlan {
			return uc.view(s), fmt.Errorf("%w: choose another plan", domain.ErrInvalidState)
		}
		if !uc.resolvePlan(s) {
			return uc.view(s), nil
		}
		err = uc.attemptPurchase(s)
	case model.CheckoutCheckLater:
		// the order may still complete; watch it again
		err = uc.transition(s, outcome{state: model.CheckoutAwaitingTopup, message: uc.deps.Messages.T("checkout.awaiting_topup")}, func() {
			s.order.Expired = false
		})
		if err == nil {
			uc.startPolling(s, orderID)
		}
	case model.CheckoutInsufficientBalance, model.CheckoutTopupFailed:
		err = uc.attemptPurchase(s)
	default:
		err = fmt.Errorf("%w: nothing to retry in %s", domain.ErrInvalidState, state)
	}
	return uc.view(s), err
}

func (uc *checkoutUC) Resume(ctx context.Context, ident model.Identity, priorUserID string) (model.CheckoutView, error) {
	if ident.UserID == "" {
		return model.CheckoutView{}, fmt.Errorf("%w: user id is required", domain.ErrInvalidArgument)
	}
	log := logging.With(ctx, uc.log)

	uc.resumeMu.Lock()
	defer uc.resumeMu.Unlock()

	if priorUserID != "" && priorUserID != ident.UserID {
		if prev, err := uc.deps.Pending.Load(ctx, priorUserID); err == nil {
			for _, old := range uc.sessionsForOrder(priorUserID, prev.OrderID) {
				uc.retire(old)
			}
			if err := uc.deps.Pending.Clear(ctx, priorUserID); err != nil {
				log.Warn().Err(err).Msg("clear pending purchase of previous identity")
			}
			log.Info().Msg("pending purchase invalidated by identity change")
			return model.CheckoutView{}, domain.ErrIdentityMismatch
		}
	}

	snap, err := uc.deps.Pending.Load(ctx, ident.UserID)
	if err != nil {
		return model.CheckoutView{}, err
	}
	if snap.UserID != ident.UserID {
		_ = uc.deps.Pending.Clear(ctx, ident.UserID)
		return model.CheckoutView{}, domain.ErrIdentityMismatch
	}

	// a reload while the old session is still alive reattaches to it so the
	// order is watched, and charged, only once
	if live := uc.sessionsForOrder(ident.UserID, snap.OrderID); len(live) > 0 {
		s := live[0]
		for _, dup := range live[1:] {
			uc.retire(dup)
		}
		return uc.reattach(s)
	}

	s := uc.newSession(ctx, ident, snap.PlanID, model.CheckoutAwaitingTopup)
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	s.order = &model.TopupOrder{OrderID: snap.OrderID, Amount: snap.Amount, Status: model.TopupStatusPending}
	s.message = uc.deps.Messages.T("checkout.awaiting_topup")
	s.mu.Unlock()

	if res := uc.deps.Catalog.Find(ctx, snap.PlanID); res.OK {
		plan := res.Data
		s.mu.Lock()
		s.plan = &plan
		s.mu.Unlock()
	}
	s.log.Info().Str("order_id", snap.OrderID).Msg("checkout resumed")
	uc.startPolling(s, snap.OrderID)
	return uc.view(s), nil
}

// sessionsForOrder lists open sessions of userID tracking orderID, most
// recently updated first.
func (uc *checkoutUC) sessionsForOrder(userID, orderID string) []*checkoutSession {
	type match struct {
		s       *checkoutSession
		updated time.Time
	}
	var found []match
	uc.mu.RLock()
	for _, s := range uc.sessions {
		if s.ident.UserID != userID {
			continue
		}
		s.mu.RLock()
		if !s.closed && s.order != nil && s.order.OrderID == orderID {
			found = append(found, match{s: s, updated: s.updatedAt})
		}
		s.mu.RUnlock()
	}
	uc.mu.RUnlock()

	sort.Slice(found, func(i, j int) bool { return found[i].updated.After(found[j].updated) })
	out := make([]*checkoutSession, len(found))
	for i, m := range found {
		out[i] = m.s
	}
	return out
}

// retire waits for any in-flight operation on s before tearing it down.
func (uc *checkoutUC) retire(s *checkoutSession) {
	s.op.Lock()
	defer s.op.Unlock()
	uc.teardown(s)
}

func (uc *checkoutUC) reattach(s *checkoutSession) (model.CheckoutView, error) {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	s.lastSeen = uc.now()
	state := s.state
	var orderID string
	if s.order != nil {
		orderID = s.order.OrderID
	}
	s.mu.Unlock()

	if state == model.CheckoutCheckLater {
		err := uc.transition(s, outcome{state: model.CheckoutAwaitingTopup, message: uc.deps.Messages.T("checkout.awaiting_topup")}, func() {
			s.order.Expired = false
		})
		if err != nil {
			return uc.view(s), err
		}
		uc.startPolling(s, orderID)
	}
	s.log.Info().Str("order_id", orderID).Str("state", string(state)).Msg("checkout reattached")
	return uc.view(s), nil
}

func (uc *checkoutUC) Close(ctx context.Context, ident model.Identity, sessionID string) error {
	uc.mu.RLock()
	s, ok := uc.sessions[sessionID]
	uc.mu.RUnlock()
	if !ok || s.ident.UserID != ident.UserID {
		return domain.ErrNotFound
	}
	uc.teardown(s)
	return nil
}

// teardown cancels polling and in-flight calls and forgets the session.
func (uc *checkoutUC) teardown(s *checkoutSession) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	h := s.poll
	s.poll = nil
	s.mu.Unlock()

	if h != nil {
		h.Cancel()
	}
	s.cancel()

	uc.mu.Lock()
	delete(uc.sessions, s.id)
	n := len(uc.sessions)
	uc.mu.Unlock()
	metrics.SetCheckoutSessions(n)
	s.log.Debug().Msg("checkout session closed")
}

func (uc *checkoutUC) CloseIdle(ttl time.Duration) int {
	cutoff := uc.now().Add(-ttl)
	var idle []*checkoutSession

	uc.mu.RLock()
	for _, s := range uc.sessions {
		s.mu.RLock()
		if s.lastSeen.Before(cutoff) {
			idle = append(idle, s)
		}
		s.mu.RUnlock()
	}
	uc.mu.RUnlock()

	for _, s := range idle {
		uc.teardown(s)
	}
	return len(idle)
}

func (uc *checkoutUC) Shutdown() {
	uc.mu.RLock()
	all := make([]*checkoutSession, 0, len(uc.sessions))
	for _, s := range uc.sessions {
		all = append(all, s)
	}
	uc.mu.RUnlock()
	for _, s := range all {
		uc.teardown(s)
	}
}

func (uc *checkoutUC) view(s *checkoutSession) model.CheckoutView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := model.CheckoutView{
		SessionID:  s.id,
		UserID:     s.ident.UserID,
		Temporary:  s.ident.Temporary,
		State:      s.state,
		NewBalance: s.newBalance,
		Charged:    s.charged,
		ErrorCode:  s.errCode,
		Message:    s.message,
		Recovery:   s.recovery,
		UpdatedAt:  s.updatedAt,
	}
	if s.plan != nil {
		p := *s.plan
		v.Plan = &p
	}
	if s.order != nil {
		o := *s.order
		v.Order = &o
	}
	if s.subscription != nil {
		sub := *s.subscription
		v.Subscription = &sub
	}
	return v
}
