package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// IdleCloser tears down checkout sessions untouched for longer than ttl and
// reports how many were closed.
type IdleCloser interface {
	CloseIdle(ttl time.Duration) int
}

// SessionJanitor periodically closes abandoned checkout sessions so their
// polling loops stop when the browser never said goodbye.
type SessionJanitor struct {
	interval time.Duration
	idleTTL  time.Duration
	sessions IdleCloser
	log      *zerolog.Logger
}

func NewSessionJanitor(interval, idleTTL time.Duration, sessions IdleCloser, logger *zerolog.Logger) *SessionJanitor {
	l := logger.With().Str("component", "SessionJanitor").Logger()
	if interval <= 0 {
		interval = time.Minute
	}
	return &SessionJanitor{
		interval: interval,
		idleTTL:  idleTTL,
		sessions: sessions,
		log:      &l,
	}
}

func (w *SessionJanitor) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Dur("idle_ttl", w.idleTTL).Msg("Starting session janitor")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping session janitor")
			return ctx.Err()
		case <-ticker.C:
			if n := w.sessions.CloseIdle(w.idleTTL); n > 0 {
				w.log.Info().Int("count", n).Msg("idle checkout sessions closed")
			}
		}
	}
}
