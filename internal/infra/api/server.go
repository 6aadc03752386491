package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"vpn-checkout/internal/domain/model"
	"vpn-checkout/internal/domain/ports/adapter"
	"vpn-checkout/internal/infra/i18n"
	"vpn-checkout/internal/infra/logging"
	"vpn-checkout/internal/infra/metrics"
	"vpn-checkout/internal/usecase"
)

// TempUserHeader carries the anonymous checkout id between browser and server.
const TempUserHeader = "X-Temp-User-Id"

type Deps struct {
	Upstream adapter.Upstream
	Catalog  usecase.CatalogUseCase
	Checkout usecase.CheckoutUseCase
	Identity usecase.IdentityUseCase
	Bot      usecase.BotUseCase
	Contact  usecase.ContactUseCase
	Sessions *SessionManager
	Messages *i18n.Translator

	AllowedOrigins []string
	RequestTimeout time.Duration
	Dev            bool
}

// Server exposes the checkout site's JSON API.
type Server struct {
	d   Deps
	log *zerolog.Logger
}

func NewServer(d Deps, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "APIServer").Logger()
	return &Server{d: d, log: &l}
}

// Router builds the chi router with middleware and every route attached.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log), Timeout(s.d.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins(),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", TempUserHeader, "X-Request-Id"},
		ExposedHeaders:   []string{TempUserHeader, "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/plans", s.handlePlans)
		r.Post("/subscription/buy", s.handleBuy)
		r.Post("/topup/create", s.handleTopupCreate)
		r.Get("/topup/{orderId}/status", s.handleTopupStatus)
		r.Get("/user/{telegramId}", s.handleUser)
		r.Get("/user/{telegramId}/subscriptions", s.handleSubscriptions)
		r.Post("/auth/telegram", s.handleTelegramAuth)
		r.Post("/contact", s.handleContact)

		r.Route("/checkout", func(r chi.Router) {
			r.Use(s.withIdentity)
			r.Post("/", s.handleCheckoutStart)
			r.Post("/resume", s.handleCheckoutResume)
			r.Get("/{id}", s.handleCheckoutGet)
			r.Post("/{id}/topup", s.handleCheckoutTopup)
			r.Post("/{id}/retry", s.handleCheckoutRetry)
			r.Delete("/{id}", s.handleCheckoutClose)
		})
	})

	// legacy paths still used by the mini app
	r.Route("/apis", func(r chi.Router) {
		r.Get("/plans", s.handlePlans)
		r.Post("/subscription/buy", s.handleBuy)
		r.Post("/bot/auth", s.handleBotAuth)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeFail(w, http.StatusNotFound, "NOT_FOUND", "")
	})
	return r
}

func (s *Server) origins() []string {
	if len(s.d.AllowedOrigins) > 0 {
		return s.d.AllowedOrigins
	}
	return []string{"https://*", "http://*"}
}

type identityKey struct{}

func identityFrom(ctx context.Context) model.Identity {
	ident, _ := ctx.Value(identityKey{}).(model.Identity)
	return ident
}

// withIdentity resolves who the checkout runs for: the session token when
// present, otherwise a temporary id carried in TempUserHeader.
func (s *Server) withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ident model.Identity
		var err error
		if s.d.Sessions != nil {
			ident, err = s.d.Sessions.FromRequest(r)
		}
		if s.d.Sessions == nil || err != nil {
			if err != nil && !errors.Is(err, errNoSession) {
				logging.With(r.Context(), s.log).Debug().Err(err).Msg("session token ignored")
			}
			ident, err = s.d.Identity.Anonymous(r.Header.Get(TempUserHeader))
			if err != nil {
				writeFail(w, http.StatusUnauthorized, "UNAUTHORIZED", s.d.Messages.T("checkout.no_user"))
				return
			}
			w.Header().Set(TempUserHeader, ident.UserID)
		}
		ctx := logging.WithUserID(r.Context(), logging.Redact(ident.UserID, s.d.Dev))
		ctx = context.WithValue(ctx, identityKey{}, ident)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
