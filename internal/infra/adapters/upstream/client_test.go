//go:build !integration

package upstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"vpn-checkout/internal/domain"

	"github.com/rs/zerolog"
)

type sleepRecorder struct {
	waits []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

func newTestClient(t *testing.T, url, secret string) (*Client, *sleepRecorder) {
	t.Helper()
	rec := &sleepRecorder{}
	logger := zerolog.Nop()
	c := NewClient(url, secret, &logger, WithRetry(3, time.Second), WithSleep(rec.sleep))
	return c, rec
}

func TestCallRetriesUnauthorizedWithLinearBackoff(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"ok":false,"error":"UNAUTHORIZED"}`)
	}))
	defer srv.Close()

	c, rec := newTestClient(t, srv.URL, "secret")
	res := c.ListPlans(context.Background())

	if res.OK {
		t.Fatal("expected failure")
	}
	if res.Code != domain.CodeUnauthorized {
		t.Errorf("expected UNAUTHORIZED, got %q", res.Code)
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
	if len(rec.waits) != 2 || rec.waits[0] != time.Second || rec.waits[1] != 2*time.Second {
		t.Errorf("expected waits [1s 2s], got %v", rec.waits)
	}
}

func TestCallRecoversAfterTransientUnauthorized(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"ok":true,"data":[{"id":"m1","name":"1 месяц","price":199,"duration":1}]}`)
	}))
	defer srv.Close()

	c, rec := newTestClient(t, srv.URL, "secret")
	res := c.ListPlans(context.Background())

	if !res.OK {
		t.Fatalf("expected success, got %+v", res)
	}
	if len(res.Data) != 1 || res.Data[0].ID != "m1" || res.Data[0].Price != 199 {
		t.Errorf("unexpected payload %+v", res.Data)
	}
	if len(rec.waits) != 1 || rec.waits[0] != time.Second {
		t.Errorf("expected one 1s wait, got %v", rec.waits)
	}
}

func TestCallNetworkErrorAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, rec := newTestClient(t, url, "secret")
	res := c.TopupStatus(context.Background(), "ord-1")

	if res.OK || res.Code != domain.CodeNetwork {
		t.Fatalf("expected NETWORK_ERROR, got %+v", res)
	}
	if len(rec.waits) != 2 {
		t.Errorf("expected 2 waits between 3 attempts, got %v", rec.waits)
	}
}

func TestCallDomainErrorsAreNotRetried(t *testing.T) {
	for _, tc := range []struct {
		code   string
		status int
	}{
		{domain.CodeInsufficientBalance, http.StatusBadRequest},
		{domain.CodeInvalidPlan, http.StatusOK},
		{domain.CodeInsufficientBalance, http.StatusUnauthorized},
		{domain.CodeInvalidPlan, http.StatusServiceUnavailable},
	} {
		t.Run(tc.code, func(t *testing.T) {
			var hits int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&hits, 1)
				w.WriteHeader(tc.status)
				_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": tc.code})
			}))
			defer srv.Close()

			c, rec := newTestClient(t, srv.URL, "secret")
			res := c.Buy(context.Background(), "42", "m1")

			if res.OK || res.Code != tc.code {
				t.Fatalf("expected %s, got %+v", tc.code, res)
			}
			if n := atomic.LoadInt32(&hits); n != 1 || len(rec.waits) != 0 {
				t.Errorf("expected a single attempt, got %d hits and waits %v", n, rec.waits)
			}
		})
	}
}

func TestCallServerErrorsRetriedThenNetworkError(t *testing.T) {
	for name, body := range map[string]string{
		"html page":  "<html>bad gateway</html>",
		"json error": `{"ok":false,"error":"internal"}`,
	} {
		t.Run(name, func(t *testing.T) {
			var hits int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&hits, 1)
				w.WriteHeader(http.StatusBadGateway)
				_, _ = io.WriteString(w, body)
			}))
			defer srv.Close()

			c, rec := newTestClient(t, srv.URL, "secret")
			res := c.ListPlans(context.Background())

			if res.OK || res.Code != domain.CodeNetwork {
				t.Fatalf("expected NETWORK_ERROR, got %+v", res)
			}
			if n := atomic.LoadInt32(&hits); n != 3 {
				t.Errorf("expected 3 attempts, got %d", n)
			}
			if len(rec.waits) != 2 || rec.waits[0] != time.Second || rec.waits[1] != 2*time.Second {
				t.Errorf("expected waits [1s 2s], got %v", rec.waits)
			}
		})
	}
}

func TestCallRecoversAfterBadGatewayPage(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = io.WriteString(w, "<html>bad gateway</html>")
			return
		}
		_, _ = io.WriteString(w, `{"ok":true,"data":[{"id":"m1","name":"1 месяц","price":199,"duration":1}]}`)
	}))
	defer srv.Close()

	c, rec := newTestClient(t, srv.URL, "secret")
	res := c.ListPlans(context.Background())

	if !res.OK || len(res.Data) != 1 {
		t.Fatalf("expected plans after retry, got %+v", res)
	}
	if len(rec.waits) != 1 || rec.waits[0] != time.Second {
		t.Errorf("expected a single 1s wait, got %v", rec.waits)
	}
}

func TestCallClientErrorNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"ok":false,"error":"user not found"}`)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, "secret")
	res := c.ListPlans(context.Background())

	if res.Code != "user not found" || res.Status != http.StatusNotFound {
		t.Errorf("expected upstream error passed through, got %+v", res)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("expected a single attempt, got %d", n)
	}
}

func TestCallMalformedSuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "{not json")
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, "secret")
	if res := c.ListPlans(context.Background()); res.Code != domain.CodeBadResponse {
		t.Errorf("expected BAD_RESPONSE, got %+v", res)
	}
}

func TestCallMissingSecretSkipsNetwork(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, "")
	res := c.ListPlans(context.Background())

	if res.Code != domain.CodeConfig {
		t.Errorf("expected CONFIG_ERROR, got %+v", res)
	}
	if n := atomic.LoadInt32(&hits); n != 0 {
		t.Errorf("expected no upstream call, got %d", n)
	}
}

func TestRequestShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Webapp-Secret") != "s3" {
			t.Errorf("missing secret header")
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
		}
		switch r.URL.Path {
		case "/topup/create":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["telegramId"] != "42" || body["amount"] != float64(150) {
				t.Errorf("unexpected body %v", body)
			}
			_, _ = io.WriteString(w, `{"ok":true,"data":{"topupId":7,"orderId":"ord-7","amount":150,"paymentUrl":"https://pay/7"}}`)
		case "/user/42/subscriptions":
			if r.URL.Query().Get("active") != "true" {
				t.Errorf("expected active=true, got %q", r.URL.RawQuery)
			}
			// bare array without envelope falls back to the whole body
			_, _ = io.WriteString(w, `[{"id":1,"planId":"m1","subscriptionUrl":"a","subscriptionUrl2":"b"}]`)
		case "/user/42/balance":
			_, _ = io.WriteString(w, `{"ok":true,"data":{"balance":320}}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, "s3")
	ctx := context.Background()

	topup := c.CreateTopup(ctx, "42", 150)
	if !topup.OK || topup.Data.OrderID != "ord-7" || topup.Data.PaymentURL != "https://pay/7" {
		t.Fatalf("unexpected top-up %+v", topup)
	}
	if topup.Data.Status != "pending" {
		t.Errorf("expected pending default status, got %q", topup.Data.Status)
	}

	active := true
	subs := c.Subscriptions(ctx, "42", &active)
	if !subs.OK || len(subs.Data) != 1 || len(subs.Data[0].DeliveryURLs()) != 2 {
		t.Errorf("unexpected subscriptions %+v", subs)
	}

	bal := c.Balance(ctx, "42")
	if !bal.OK || bal.Data != 320 {
		t.Errorf("unexpected balance %+v", bal)
	}
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepCtx(ctx, time.Hour); err == nil {
		t.Fatal("expected context error")
	}
}
