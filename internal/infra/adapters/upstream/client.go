// File: internal/infra/adapters/upstream/client.go
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"vpn-checkout/internal/domain"
	"vpn-checkout/internal/domain/model"
	"vpn-checkout/internal/domain/ports/adapter"
	"vpn-checkout/internal/infra/metrics"

	"github.com/rs/zerolog"
)

var _ adapter.Upstream = (*Client)(nil)

const secretHeader = "X-Webapp-Secret"

// maxBody caps how much of an upstream response is read.
const maxBody = 1 << 20

// Client talks to the subscription-management API. Every call goes through
// the same retry policy: up to attempts tries, retrying only transport
// failures and HTTP 401, sleeping backoff*attempt in between.
type Client struct {
	baseURL  string
	secret   string
	http     *http.Client
	attempts int
	backoff  time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	log      *zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

func WithRetry(attempts int, backoff time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
		if backoff >= 0 {
			c.backoff = backoff
		}
	}
}

// WithSleep replaces the inter-attempt wait; tests use it to record backoff.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

func NewClient(baseURL, secret string, logger *zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:  baseURL,
		secret:   secret,
		http:     &http.Client{Timeout: 15 * time.Second},
		attempts: 3,
		backoff:  time.Second,
		sleep:    sleepCtx,
		log:      logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) Configured() bool { return c.secret != "" }

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// envelope is the upstream body shape: {ok, data, error, message}.
type envelope struct {
	OK      *bool           `json:"ok"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

// call performs one logical request with retries and decodes the payload into T.
func call[T any](ctx context.Context, c *Client, endpoint, method, path string, body any) domain.Result[T] {
	start := time.Now()
	res := doCall[T](ctx, c, endpoint, method, path, body)
	result := "ok"
	if !res.OK {
		result = res.Code
	}
	metrics.ObserveUpstreamRequest(endpoint, result, time.Since(start))
	return res
}

func doCall[T any](ctx context.Context, c *Client, endpoint, method, path string, body any) domain.Result[T] {
	if c.secret == "" {
		return domain.Fail[T](domain.CodeConfig, "API_SECRET is not configured", 0)
	}

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return domain.Fail[T](domain.CodeBadResponse, err.Error(), 0)
		}
		payload = b
	}

	log := c.log.With().Str("endpoint", endpoint).Str("method", method).Logger()

	for attempt := 1; attempt <= c.attempts; attempt++ {
		status, raw, err := c.roundTrip(ctx, method, path, payload)
		if err != nil {
			if ctx.Err() != nil || attempt == c.attempts {
				log.Warn().Err(err).Int("attempt", attempt).Msg("upstream unreachable")
				return domain.Fail[T](domain.CodeNetwork, err.Error(), 0)
			}
			log.Debug().Err(err).Int("attempt", attempt).Msg("upstream transport error, retrying")
			metrics.IncUpstreamRetry(endpoint, "network")
			if serr := c.sleep(ctx, c.backoff*time.Duration(attempt)); serr != nil {
				return domain.Fail[T](domain.CodeNetwork, serr.Error(), 0)
			}
			continue
		}

		env, valid := parseEnvelope(raw)

		if status >= 200 && status < 300 {
			if !valid {
				return domain.Fail[T](domain.CodeBadResponse, "malformed upstream response", status)
			}
			if env.OK == nil || *env.OK {
				return decodeData[T](raw, env.Data, status)
			}
		}

		if domain.IsDomainCode(env.Error) {
			return domain.Fail[T](env.Error, firstNonEmpty(env.Message, env.Error), status)
		}

		// 401 and gateway-level failures (5xx, non-JSON error pages) are transient.
		transient := status == http.StatusUnauthorized || status >= 500 || !valid
		if transient && attempt < c.attempts {
			reason := "server"
			if status == http.StatusUnauthorized {
				reason = "unauthorized"
			}
			log.Warn().Int("attempt", attempt).Int("status", status).Msg("upstream failed transiently, retrying")
			metrics.IncUpstreamRetry(endpoint, reason)
			if serr := c.sleep(ctx, c.backoff*time.Duration(attempt)); serr != nil {
				return domain.Fail[T](domain.CodeNetwork, serr.Error(), 0)
			}
			continue
		}

		httpStatus := "HTTP " + strconv.Itoa(status)
		switch {
		case status == http.StatusUnauthorized:
			return domain.Fail[T](domain.CodeUnauthorized, firstNonEmpty(env.Message, env.Error, httpStatus), status)
		case transient:
			log.Warn().Int("status", status).Msg("upstream unavailable")
			return domain.Fail[T](domain.CodeNetwork, firstNonEmpty(env.Message, env.Error, httpStatus), status)
		}

		code := env.Error
		if code == "" {
			code = httpStatus
		}
		return domain.Fail[T](code, firstNonEmpty(env.Message, env.Error), status)
	}

	// attempts < 1 is rejected by config; keep a defined result anyway
	return domain.Fail[T](domain.CodeNetwork, "no attempts made", 0)
}

// parseEnvelope reports whether raw is valid JSON. Non-object payloads
// yield an empty envelope so the whole body is treated as data.
func parseEnvelope(raw []byte) (envelope, bool) {
	var env envelope
	trimmed := bytes.TrimSpace(raw)
	if !json.Valid(trimmed) {
		return env, false
	}
	if len(trimmed) > 0 && trimmed[0] == '{' {
		_ = json.Unmarshal(trimmed, &env)
	}
	return env, true
}

func decodeData[T any](raw, data json.RawMessage, status int) domain.Result[T] {
	src := raw
	if len(data) > 0 && !bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		src = data
	}
	var v T
	if err := json.Unmarshal(src, &v); err != nil {
		return domain.Fail[T](domain.CodeBadResponse, "unexpected upstream payload: "+err.Error(), status)
	}
	r := domain.Ok(v)
	r.Status = status
	return r
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(secretHeader, c.secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return 0, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, raw, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// --- endpoints ---

func (c *Client) ListPlans(ctx context.Context) domain.Result[[]model.Plan] {
	return call[[]model.Plan](ctx, c, "plans", http.MethodGet, "/plans", nil)
}

func (c *Client) Buy(ctx context.Context, userID, planID string) domain.Result[model.PurchaseResult] {
	body := map[string]string{"telegramId": userID, "planId": planID}
	return call[model.PurchaseResult](ctx, c, "subscription_buy", http.MethodPost, "/subscription/buy", body)
}

func (c *Client) CreateTopup(ctx context.Context, userID string, amount int64) domain.Result[model.TopupOrder] {
	body := map[string]any{"telegramId": userID, "amount": amount}
	res := call[model.TopupOrder](ctx, c, "topup_create", http.MethodPost, "/topup/create", body)
	if res.OK {
		if res.Data.OrderID == "" {
			return domain.Fail[model.TopupOrder](domain.CodeBadResponse, "top-up response without orderId", res.Status)
		}
		if res.Data.Status == "" {
			res.Data.Status = model.TopupStatusPending
		}
		if res.Data.Amount == 0 {
			res.Data.Amount = amount
		}
	}
	return res
}

func (c *Client) TopupStatus(ctx context.Context, orderID string) domain.Result[model.TopupOrder] {
	res := call[model.TopupOrder](ctx, c, "topup_status", http.MethodGet, "/topup/"+url.PathEscape(orderID)+"/status", nil)
	if res.OK && res.Data.OrderID == "" {
		res.Data.OrderID = orderID
	}
	return res
}

func (c *Client) User(ctx context.Context, userID string) domain.Result[model.UserAccount] {
	return call[model.UserAccount](ctx, c, "user", http.MethodGet, "/user/"+url.PathEscape(userID), nil)
}

func (c *Client) Balance(ctx context.Context, userID string) domain.Result[int64] {
	type balance struct {
		Balance int64 `json:"balance"`
	}
	res := call[balance](ctx, c, "user_balance", http.MethodGet, "/user/"+url.PathEscape(userID)+"/balance", nil)
	return domain.MapResult(res, func(b balance) int64 { return b.Balance })
}

func (c *Client) Subscriptions(ctx context.Context, userID string, active *bool) domain.Result[[]model.Subscription] {
	path := "/user/" + url.PathEscape(userID) + "/subscriptions"
	if active != nil {
		path += "?active=" + strconv.FormatBool(*active)
	}
	return call[[]model.Subscription](ctx, c, "user_subscriptions", http.MethodGet, path, nil)
}
