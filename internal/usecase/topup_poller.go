package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vpn-checkout/internal/domain/model"
	"vpn-checkout/internal/domain/ports/adapter"
	"vpn-checkout/internal/infra/metrics"
)

// TopupPoller watches a top-up order at a fixed interval until the gateway
// reports a terminal status.
type TopupPoller struct {
	topups      adapter.TopupGateway
	interval    time.Duration
	maxDuration time.Duration
	log         *zerolog.Logger
}

// NewTopupPoller builds a poller. maxDuration <= 0 polls until cancelled.
func NewTopupPoller(topups adapter.TopupGateway, interval, maxDuration time.Duration, logger *zerolog.Logger) *TopupPoller {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	l := logger.With().Str("component", "TopupPoller").Logger()
	return &TopupPoller{topups: topups, interval: interval, maxDuration: maxDuration, log: &l}
}

// PollHandle controls one running loop. The callback fires at most once;
// results that arrive after Cancel are dropped.
type PollHandle struct {
	mu     sync.Mutex
	live   bool
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel stops the loop. Safe to call more than once and from the callback.
func (h *PollHandle) Cancel() {
	h.mu.Lock()
	h.live = false
	h.mu.Unlock()
	h.cancel()
}

// Done is closed once the loop goroutine has exited.
func (h *PollHandle) Done() <-chan struct{} { return h.done }

func (h *PollHandle) Active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.live
}

// claim flips the handle from live to finished; only the winner may deliver.
func (h *PollHandle) claim() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.live {
		return false
	}
	h.live = false
	return true
}

// Start launches the loop. onTerminal receives the completed or failed order,
// or a pending order with Expired set when maxDuration elapses first.
func (p *TopupPoller) Start(parent context.Context, orderID string, onTerminal func(model.TopupOrder)) *PollHandle {
	ctx, cancel := context.WithCancel(parent)
	h := &PollHandle{live: true, cancel: cancel, done: make(chan struct{})}
	go p.loop(ctx, h, orderID, onTerminal)
	return h
}

func (p *TopupPoller) loop(ctx context.Context, h *PollHandle, orderID string, onTerminal func(model.TopupOrder)) {
	defer close(h.done)
	defer h.cancel()

	log := p.log.With().Str("order_id", orderID).Logger()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if p.maxDuration > 0 {
		t := time.NewTimer(p.maxDuration)
		defer t.Stop()
		deadline = t.C
	}

	deliver := func(o model.TopupOrder) {
		if ctx.Err() != nil || !h.claim() {
			log.Debug().Msg("poll result dropped after cancellation")
			return
		}
		onTerminal(o)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			metrics.IncTopupPoll("expired")
			log.Info().Dur("after", p.maxDuration).Msg("top-up polling gave up")
			deliver(model.TopupOrder{OrderID: orderID, Status: model.TopupStatusPending, Expired: true})
			return
		case <-ticker.C:
			res := p.topups.TopupStatus(ctx, orderID)
			if !res.OK {
				metrics.IncTopupPoll("error")
				log.Debug().Str("code", res.Code).Msg("top-up status poll failed, will retry")
				continue
			}
			metrics.IncTopupPoll(string(res.Data.Status))
			if !res.Data.Status.Terminal() {
				continue
			}
			order := res.Data
			if order.OrderID == "" {
				order.OrderID = orderID
			}
			deliver(order)
			return
		}
	}
}
