package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/fulfillment-backend/api/responses"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

type rateCounter interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

// OTPRateLimitPolicy bounds delivery-code attempts inside a fixed window.
// A zero limit disables that counter.
type OTPRateLimitPolicy struct {
	window      time.Duration
	callerLimit int
	orderLimit  int
}

func NewOTPRateLimitPolicy(window time.Duration, callerLimit, orderLimit int) OTPRateLimitPolicy {
	return OTPRateLimitPolicy{window: window, callerLimit: callerLimit, orderLimit: orderLimit}
}

func (p OTPRateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.callerLimit > 0 || p.orderLimit > 0)
}

type otpCounter struct {
	scope string
	key   string
	limit int
}

func (p OTPRateLimitPolicy) counters(r *http.Request) []otpCounter {
	caller := UserIDFromContext(r.Context())
	if caller == "" {
		caller = clientIP(r)
	}
	return []otpCounter{
		{scope: "caller", key: "otp:caller:" + caller, limit: p.callerLimit},
		{scope: "order", key: "otp:order:" + chi.URLParam(r, "id"), limit: p.orderLimit},
	}
}

// OTPRateLimit guards the order status route against brute forcing the
// six digit delivery code. Only bodies asking for "delivered" are counted.
func OTPRateLimit(policy OTPRateLimitPolicy, store rateCounter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if !requestsDelivery(body) {
				next.ServeHTTP(w, r)
				return
			}

			for _, c := range policy.counters(r) {
				if c.limit <= 0 {
					continue
				}
				attempts, err := store.IncrWithTTL(ctx, store.RateLimitKey(c.key), policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if attempts > int64(c.limit) {
					if logg != nil {
						logg.Warn(logg.WithFields(ctx, map[string]any{
							"scope":          c.scope,
							"attempts":       attempts,
							"limit":          c.limit,
							"window_seconds": int(policy.window.Seconds()),
						}), "otp.rate_limit.blocked")
					}
					responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many delivery code attempts"))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestsDelivery(payload []byte) bool {
	var body struct {
		Status string `json:"status"`
	}
	if json.Unmarshal(payload, &body) != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(body.Status), "delivered")
}

// clientIP keys anonymous callers. The first X-Forwarded-For hop wins.
func clientIP(r *http.Request) string {
	if fwd, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); strings.TrimSpace(fwd) != "" {
		return strings.TrimSpace(fwd)
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
