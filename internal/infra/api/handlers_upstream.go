package api

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"vpn-checkout/internal/domain"
	"vpn-checkout/internal/infra/logging"
)

// failUpstream writes a failed gateway result. Domain codes keep their
// user-facing message; CONFIG_ERROR points the operator at configuration.
func (s *Server) failUpstream(w http.ResponseWriter, r *http.Request, code, message string) {
	t := s.d.Messages
	switch code {
	case domain.CodeInsufficientBalance:
		writeFail(w, http.StatusBadRequest, code, t.T("api.insufficient_balance"))
	case domain.CodeInvalidPlan:
		writeFail(w, http.StatusBadRequest, code, t.T("api.invalid_plan"))
	case domain.CodeConfig:
		logging.With(r.Context(), s.log).Error().Msg("upstream secret is not configured")
		writeFail(w, http.StatusInternalServerError, code, t.T("api.config_error"))
	default:
		logging.With(r.Context(), s.log).Warn().Str("code", code).Str("detail", message).Msg("upstream call failed")
		writeFail(w, http.StatusInternalServerError, code, message)
	}
}

func (s *Server) handlePlans(w http.ResponseWriter, r *http.Request) {
	res := s.d.Catalog.List(r.Context())
	if !res.OK {
		switch res.Code {
		case domain.CodeUnauthorized:
			writeFail(w, http.StatusUnauthorized, res.Code, s.d.Messages.T("api.plans_unauthorized"))
		case domain.CodeConfig:
			s.failUpstream(w, r, res.Code, res.Message)
		default:
			logging.With(r.Context(), s.log).Warn().Str("code", res.Code).Msg("plan catalog unavailable")
			writeFail(w, http.StatusInternalServerError, res.Code, s.d.Messages.T("api.plans_failed"))
		}
		return
	}
	w.Header().Set("Cache-Control", "public, s-maxage=300, stale-while-revalidate=600")
	writeOK(w, res.Data)
}

type buyRequest struct {
	TelegramID flexID `json:"telegramId"`
	PlanID     string `json:"planId"`
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var req buyRequest
	if err := decodeBody(r, &req); err != nil || req.TelegramID == "" || strings.TrimSpace(req.PlanID) == "" {
		writeFail(w, http.StatusBadRequest, "telegramId and planId are required", "")
		return
	}
	res := s.d.Upstream.Buy(r.Context(), string(req.TelegramID), req.PlanID)
	if !res.OK {
		s.failUpstream(w, r, res.Code, res.Message)
		return
	}
	writeOK(w, res.Data)
}

type topupRequest struct {
	TelegramID flexID   `json:"telegramId"`
	Amount     *float64 `json:"amount"`
}

func (s *Server) handleTopupCreate(w http.ResponseWriter, r *http.Request) {
	var req topupRequest
	if err := decodeBody(r, &req); err != nil {
		writeFail(w, http.StatusBadRequest, "amount must be a positive number", "")
		return
	}
	if req.TelegramID == "" || req.Amount == nil {
		writeFail(w, http.StatusBadRequest, "telegramId and amount are required", "")
		return
	}
	amount := *req.Amount
	if amount <= 0 || amount != math.Trunc(amount) || amount > math.MaxInt32 {
		writeFail(w, http.StatusBadRequest, "amount must be a positive number", "")
		return
	}
	res := s.d.Upstream.CreateTopup(r.Context(), string(req.TelegramID), int64(amount))
	if !res.OK {
		s.failUpstream(w, r, res.Code, res.Message)
		return
	}
	writeOK(w, res.Data)
}

func (s *Server) handleTopupStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	if orderID == "" {
		writeFail(w, http.StatusBadRequest, "orderId is required", "")
		return
	}
	res := s.d.Upstream.TopupStatus(logging.WithOrderID(r.Context(), orderID), orderID)
	if !res.OK {
		s.failUpstream(w, r, res.Code, res.Message)
		return
	}
	writeOK(w, res.Data)
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	res := s.d.Upstream.User(r.Context(), chi.URLParam(r, "telegramId"))
	if !res.OK {
		s.failUpstream(w, r, res.Code, res.Message)
		return
	}
	writeOK(w, res.Data)
}

func (s *Server) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	var active *bool
	if v := r.URL.Query().Get("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeFail(w, http.StatusBadRequest, "active must be true or false", "")
			return
		}
		active = &b
	}
	res := s.d.Upstream.Subscriptions(r.Context(), chi.URLParam(r, "telegramId"), active)
	if !res.OK {
		s.failUpstream(w, r, res.Code, res.Message)
		return
	}
	writeOK(w, res.Data)
}
