package api

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"vpn-checkout/internal/domain"
	"vpn-checkout/internal/infra/logging"
	"vpn-checkout/internal/usecase"
)

type telegramAuthRequest struct {
	InitData string `json:"initData"`
}

func (s *Server) handleTelegramAuth(w http.ResponseWriter, r *http.Request) {
	var req telegramAuthRequest
	if err := decodeBody(r, &req); err != nil || req.InitData == "" {
		writeFail(w, http.StatusBadRequest, "initData is required", "")
		return
	}

	ident, err := s.d.Identity.Authenticate(r.Context(), req.InitData)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidInitData), errors.Is(err, domain.ErrNotConfigured):
		writeFail(w, http.StatusUnauthorized, "Invalid initData", "")
		return
	default:
		logging.With(r.Context(), s.log).Error().Err(err).Msg("telegram auth failed")
		writeFail(w, http.StatusInternalServerError, "Internal server error", "")
		return
	}

	if s.d.Sessions != nil {
		if _, err := s.d.Sessions.Mint(w, ident); err != nil {
			logging.With(r.Context(), s.log).Error().Err(err).Msg("mint session token")
			writeFail(w, http.StatusInternalServerError, "Internal server error", "")
			return
		}
	}
	writeOK(w, ident)
}

type botAuthRequest struct {
	TelegramID     flexID `json:"telegramId"`
	SubscriptionID flexID `json:"subscriptionId"`
	PlanName       string `json:"planName"`
}

func (s *Server) handleBotAuth(w http.ResponseWriter, r *http.Request) {
	var req botAuthRequest
	if err := decodeBody(r, &req); err != nil || req.TelegramID == "" {
		writeFail(w, http.StatusBadRequest, "telegramId is required", "")
		return
	}
	link, err := s.d.Bot.Authorize(r.Context(), usecase.BotAuthRequest{
		TelegramID:     string(req.TelegramID),
		SubscriptionID: string(req.SubscriptionID),
		PlanName:       req.PlanName,
	})
	switch {
	case err == nil:
		writeOK(w, map[string]string{"deepLink": link, "message": s.d.Messages.T("bot.authorized")})
	case errors.Is(err, domain.ErrInvalidArgument):
		writeFail(w, http.StatusBadRequest, "telegramId is required", "")
	case errors.Is(err, domain.ErrNotConfigured):
		writeFail(w, http.StatusInternalServerError, "Bot token not configured", "")
	default:
		logging.With(r.Context(), s.log).Error().Err(err).Msg("bot auth failed")
		writeFail(w, http.StatusInternalServerError, "Internal server error", "")
	}
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	t := s.d.Messages
	var req usecase.ContactRequest
	if err := decodeBody(r, &req); err != nil {
		writeFail(w, http.StatusBadRequest, t.T("contact.required"), "")
		return
	}
	err := s.d.Contact.Submit(r.Context(), clientKey(r), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, envelope{OK: true, Message: t.T("contact.sent")})
	case errors.Is(err, domain.ErrInvalidArgument):
		writeFail(w, http.StatusBadRequest, t.T("contact.required"), "")
	case errors.Is(err, domain.ErrRateLimited):
		writeFail(w, http.StatusTooManyRequests, t.T("contact.rate_limited"), "")
	case errors.Is(err, domain.ErrNotConfigured):
		writeFail(w, http.StatusInternalServerError, domain.CodeConfig, t.T("contact.failed"))
	default:
		writeFail(w, http.StatusInternalServerError, t.T("contact.failed"), "")
	}
}

// clientKey identifies the caller for rate limiting.
func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if ip := strings.TrimSpace(strings.Split(fwd, ",")[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
