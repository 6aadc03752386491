package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"vpn-checkout/internal/domain/model"
)

// ===== Session/JWT primitives =====

var errNoSession = errors.New("missing session token")

type SessionConfig struct {
	HMACSecret   []byte
	CookieName   string
	SecureCookie bool
	TTL          time.Duration
}

// SessionManager binds a verified Telegram identity to the browser.
type SessionManager struct {
	cfg SessionConfig
	now func() time.Time
}

func NewSessionManager(secret, cookieName string, secure bool, ttl time.Duration) *SessionManager {
	if cookieName == "" {
		cookieName = "tg_session"
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &SessionManager{
		cfg: SessionConfig{
			HMACSecret:   []byte(secret),
			CookieName:   cookieName,
			SecureCookie: secure,
			TTL:          ttl,
		},
		now: time.Now,
	}
}

type TelegramClaims struct {
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	jwt.RegisteredClaims
}

// Mint signs a token for ident and sets it as an HttpOnly cookie.
func (m *SessionManager) Mint(w http.ResponseWriter, ident model.Identity) (string, error) {
	now := m.now()
	claims := TelegramClaims{
		Username:  ident.Username,
		FirstName: ident.FirstName,
		LastName:  ident.LastName,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.TTL)),
			Subject:   ident.UserID,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cfg.HMACSecret)
	if err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(m.cfg.TTL.Seconds()),
		HttpOnly: true,
		Secure:   m.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return signed, nil
}

func (m *SessionManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// FromRequest reads the bearer header first, then the cookie.
func (m *SessionManager) FromRequest(r *http.Request) (model.Identity, error) {
	if hdr := r.Header.Get("Authorization"); hdr != "" {
		if strings.HasPrefix(strings.ToLower(hdr), "bearer ") {
			return m.parse(strings.TrimSpace(hdr[7:]))
		}
	}
	if c, err := r.Cookie(m.cfg.CookieName); err == nil && c.Value != "" {
		return m.parse(c.Value)
	}
	return model.Identity{}, errNoSession
}

func (m *SessionManager) parse(tok string) (model.Identity, error) {
	claims := &TelegramClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return m.cfg.HMACSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	if err != nil || !tkn.Valid || claims.Subject == "" {
		return model.Identity{}, errors.New("invalid session token")
	}
	return model.Identity{
		UserID:    claims.Subject,
		Username:  claims.Username,
		FirstName: claims.FirstName,
		LastName:  claims.LastName,
		Verified:  true,
	}, nil
}
