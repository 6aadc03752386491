package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"vpn-checkout/internal/domain/model"
	"vpn-checkout/internal/infra/logging"
)

// writeCheckout replies with the session view; failures carry it too so the
// browser can render the recovery action.
func (s *Server) writeCheckout(w http.ResponseWriter, r *http.Request, v model.CheckoutView, err error) {
	if err == nil {
		writeOK(w, v)
		return
	}
	status, code := errorStatus(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		logging.With(r.Context(), s.log).Error().Err(err).Msg("checkout request failed")
		msg = s.d.Messages.T("api.internal")
	}
	if v.Message != "" {
		msg = v.Message
	}
	body := envelope{Error: code, Message: msg}
	if v.SessionID != "" {
		body.Data = v
	}
	writeJSON(w, status, body)
}

type checkoutStartRequest struct {
	PlanID string `json:"planId"`
}

func (s *Server) handleCheckoutStart(w http.ResponseWriter, r *http.Request) {
	var req checkoutStartRequest
	if err := decodeBody(r, &req); err != nil || strings.TrimSpace(req.PlanID) == "" {
		writeFail(w, http.StatusBadRequest, "INVALID_ARGUMENT", "planId is required")
		return
	}
	v, err := s.d.Checkout.Start(r.Context(), identityFrom(r.Context()), strings.TrimSpace(req.PlanID))
	s.writeCheckout(w, r, v, err)
}

type checkoutResumeRequest struct {
	PreviousUserID flexID `json:"previousUserId"`
}

func (s *Server) handleCheckoutResume(w http.ResponseWriter, r *http.Request) {
	ident := identityFrom(r.Context())

	var req checkoutResumeRequest
	_ = decodeBody(r, &req) // body is optional
	prior := string(req.PreviousUserID)
	if prior == "" && !ident.Temporary {
		prior = r.Header.Get(TempUserHeader)
	}

	v, err := s.d.Checkout.Resume(r.Context(), ident, prior)
	s.writeCheckout(w, r, v, err)
}

func (s *Server) handleCheckoutGet(w http.ResponseWriter, r *http.Request) {
	v, err := s.d.Checkout.Get(r.Context(), identityFrom(r.Context()), chi.URLParam(r, "id"))
	s.writeCheckout(w, r, v, err)
}

type checkoutTopupRequest struct {
	Amount int64 `json:"amount"`
}

func (s *Server) handleCheckoutTopup(w http.ResponseWriter, r *http.Request) {
	var req checkoutTopupRequest
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		writeFail(w, http.StatusBadRequest, "INVALID_ARGUMENT", "amount must be a positive number")
		return
	}
	v, err := s.d.Checkout.CreateTopup(r.Context(), identityFrom(r.Context()), chi.URLParam(r, "id"), req.Amount)
	s.writeCheckout(w, r, v, err)
}

func (s *Server) handleCheckoutRetry(w http.ResponseWriter, r *http.Request) {
	v, err := s.d.Checkout.Retry(r.Context(), identityFrom(r.Context()), chi.URLParam(r, "id"))
	s.writeCheckout(w, r, v, err)
}

func (s *Server) handleCheckoutClose(w http.ResponseWriter, r *http.Request) {
	if err := s.d.Checkout.Close(r.Context(), identityFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		s.writeCheckout(w, r, model.CheckoutView{}, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{OK: true})
}
