package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"vpn-checkout/internal/domain"
)

// envelope is the body shape of every JSON endpoint.
type envelope struct {
	OK      bool   `json:"ok"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

const maxBody = 64 << 10

var errEmptyBody = errors.New("empty body")

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{OK: true, Data: data})
}

func writeFail(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, envelope{Error: code, Message: message})
}

func decodeBody(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return errEmptyBody
	}
	return json.Unmarshal(body, dst)
}

// errorStatus maps use-case errors onto HTTP statuses and stable codes.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, "INVALID_ARGUMENT"
	case errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusBadRequest, domain.CodeInsufficientBalance
	case errors.Is(err, domain.ErrInvalidPlan):
		return http.StatusBadRequest, domain.CodeInvalidPlan
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict, "INVALID_STATE"
	case errors.Is(err, domain.ErrIdentityMismatch):
		return http.StatusConflict, "IDENTITY_MISMATCH"
	case errors.Is(err, domain.ErrSessionClosed):
		return http.StatusGone, "SESSION_CLOSED"
	case errors.Is(err, domain.ErrInvalidInitData), errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, domain.CodeUnauthorized
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMITED"
	case errors.Is(err, domain.ErrNotConfigured):
		return http.StatusInternalServerError, domain.CodeConfig
	case errors.Is(err, domain.ErrNetwork):
		return http.StatusBadGateway, domain.CodeNetwork
	case errors.Is(err, domain.ErrUpstream):
		return http.StatusBadGateway, "UPSTREAM_ERROR"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

// flexID accepts a JSON string or number; browsers send Telegram ids both ways.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("id must be an integer: %w", err)
	}
	*f = flexID(n.String())
	return nil
}
