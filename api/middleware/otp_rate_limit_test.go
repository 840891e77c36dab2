package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/internal/access"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
)

func statusRequest(orderID, body string, caller access.Caller) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+orderID+"/status", strings.NewReader(body))
	rc := chi.NewRouteContext()
	rc.URLParams.Add("id", orderID)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	return req.WithContext(WithCaller(ctx, caller))
}

func TestOTPRateLimitPreservesBody(t *testing.T) {
	store := newFakeRateStore()
	handler := OTPRateLimit(NewOTPRateLimitPolicy(time.Minute, 2, 2), store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if !strings.Contains(string(body), `"deliveryOtp":"123456"`) {
			t.Fatalf("unexpected body: %s", string(body))
		}
		w.WriteHeader(http.StatusOK)
	}))

	caller := access.Caller{UserID: uuid.New(), Role: enums.RoleAdmin}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, statusRequest(uuid.NewString(), `{"status":"delivered","deliveryOtp":"123456"}`, caller))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestOTPRateLimitOrderLimitTriggers(t *testing.T) {
	store := newFakeRateStore()
	handler := OTPRateLimit(NewOTPRateLimitPolicy(time.Minute, 0, 2), store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	orderID := uuid.NewString()

	for i := 0; i < 3; i++ {
		// A different caller each time still counts against the order.
		caller := access.Caller{UserID: uuid.New(), Role: enums.RoleSubAdmin, Access: enums.AccessReadWrite}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, statusRequest(orderID, `{"status":"delivered","deliveryOtp":"000000"}`, caller))

		switch {
		case i < 2 && rec.Code != http.StatusOK:
			t.Fatalf("expected success before limit, got %d", rec.Code)
		case i >= 2:
			if rec.Code != http.StatusTooManyRequests {
				t.Fatalf("expected 429, got %d", rec.Code)
			}
			var payload struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
				t.Fatalf("decode error: %v", err)
			}
			if payload.Error.Code != string(pkgerrors.CodeRateLimit) {
				t.Fatalf("unexpected code: %s", payload.Error.Code)
			}
		}
	}
}

func TestOTPRateLimitIgnoresOtherTransitions(t *testing.T) {
	store := newFakeRateStore()
	handler := OTPRateLimit(NewOTPRateLimitPolicy(time.Minute, 1, 1), store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	caller := access.Caller{UserID: uuid.New(), Role: enums.RoleAdmin}
	orderID := uuid.NewString()

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, statusRequest(orderID, `{"status":"shipped"}`, caller))
		if rec.Code != http.StatusOK {
			t.Fatalf("ship attempt %d: expected 200, got %d", i, rec.Code)
		}
	}
	if len(store.counts) != 0 {
		t.Fatalf("non-delivery requests must not be counted, got %v", store.counts)
	}
}

type fakeRateStore struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newFakeRateStore() *fakeRateStore {
	return &fakeRateStore{counts: map[string]int64{}}
}

func (f *fakeRateStore) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeRateStore) RateLimitKey(scope string) string {
	return "rl:" + scope
}

func TestOTPRateLimitCountsPerCaller(t *testing.T) {
	store := newFakeRateStore()
	handler := OTPRateLimit(NewOTPRateLimitPolicy(time.Minute, 1, 0), store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	caller := access.Caller{UserID: uuid.New(), Role: enums.RoleAdmin}

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, statusRequest(uuid.NewString(), `{"status":"delivered","deliveryOtp":"111111"}`, caller))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, statusRequest(uuid.NewString(), `{"status":"DELIVERED","deliveryOtp":"222222"}`, caller))

	if first.Code != http.StatusOK || second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 200 then 429, got %d then %d", first.Code, second.Code)
	}
	if store.counts["rl:otp:caller:"+caller.UserID.String()] != 2 {
		t.Fatalf("unexpected counters %v", store.counts)
	}
}

func TestClientIPPrefersForwardedHop(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.9:5555"
	if got := clientIP(req); got != "10.0.0.9" {
		t.Fatalf("expected remote host, got %q", got)
	}
	req.Header.Set("X-Forwarded-For", " 203.0.113.7 , 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.7" {
		t.Fatalf("expected first forwarded hop, got %q", got)
	}
}
