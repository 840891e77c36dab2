package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
)

type fakeStore struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.data[key], _ = value.(string)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key], _ = value.(string)
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
		delete(f.ttls, key)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func keyedRequest(method, path, key, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	return req
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var payload struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	reason, _ := payload.Error.Details["reason"].(string)
	return payload.Error.Code, reason
}

func TestIdempotentPassesThroughWithoutKey(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotent(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, keyedRequest(http.MethodPost, "/api/v1/returns", "", `{"orderId":"x"}`))
		assert.Equal(t, http.StatusCreated, rec.Code)
	}
	assert.Equal(t, 2, calls)
	assert.Empty(t, store.data)
}

func TestIdempotentReleasesClaimOnFailure(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotent(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusConflict)
	}))

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), keyedRequest(http.MethodPut, "/api/v1/returns/abc/review", "k1", `{}`))
	}
	assert.Empty(t, store.data)
	assert.Equal(t, 2, calls, "a failed attempt must not block the retry")
}

func TestIdempotentReplaysCompletedResponse(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotent(store, 7*24*time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, keyedRequest(http.MethodPost, "/api/v1/returns/r1/process-refund", "abc", `{"foo":"bar"}`))
	require.Equal(t, http.StatusAccepted, first.Code)
	assert.Empty(t, first.Header().Get(IdempotentReplayHeader))

	replay := httptest.NewRecorder()
	handler.ServeHTTP(replay, keyedRequest(http.MethodPost, "/api/v1/returns/r1/process-refund", "abc", `{"foo":"bar"}`))
	assert.Equal(t, http.StatusAccepted, replay.Code)
	assert.Equal(t, "application/json", replay.Header().Get("Content-Type"))
	assert.Equal(t, "true", replay.Header().Get(IdempotentReplayHeader))
	assert.JSONEq(t, `{"ok":true}`, replay.Body.String())
	assert.Equal(t, 1, calls)

	for _, ttl := range store.ttls {
		assert.Equal(t, 7*24*time.Hour, ttl)
	}
}

func TestIdempotentRejectsChangedPayload(t *testing.T) {
	store := newFakeStore()
	handler := Idempotent(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), keyedRequest(http.MethodPost, "/api/v1/returns", "xyz", `{"foo":"bar"}`))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, keyedRequest(http.MethodPost, "/api/v1/returns", "xyz", `{"foo":"diff"}`))
	assert.Equal(t, http.StatusConflict, rec.Code)
	code, reason := errorCode(t, rec)
	assert.Equal(t, string(pkgerrors.CodeIdempotency), code)
	assert.Equal(t, "payload_mismatch", reason)
}

func TestIdempotentRejectsDuplicateWhileInFlight(t *testing.T) {
	store := newFakeStore()
	var inner *httptest.ResponseRecorder
	var handler http.Handler
	calls := 0
	handler = Idempotent(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			// A retry arrives before the first attempt has finished.
			inner = httptest.NewRecorder()
			handler.ServeHTTP(inner, keyedRequest(http.MethodPost, "/api/v1/returns/r1/process-refund", "dup", `{}`))
		}
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, keyedRequest(http.MethodPost, "/api/v1/returns/r1/process-refund", "dup", `{}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, calls)

	require.NotNil(t, inner)
	assert.Equal(t, http.StatusConflict, inner.Code)
	code, reason := errorCode(t, inner)
	assert.Equal(t, string(pkgerrors.CodeIdempotency), code)
	assert.Equal(t, "in_progress", reason)
}

func TestIdempotentScopesKeysByPath(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotent(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), keyedRequest(http.MethodPut, "/api/v1/returns/a/complete", "same", `{}`))
	handler.ServeHTTP(httptest.NewRecorder(), keyedRequest(http.MethodPut, "/api/v1/returns/b/complete", "same", `{}`))
	assert.Equal(t, 2, calls)
	assert.Len(t, store.data, 2)
}

func TestIdempotentRejectsOversizedKey(t *testing.T) {
	handler := Idempotent(newFakeStore(), time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, keyedRequest(http.MethodPost, "/api/v1/returns", strings.Repeat("k", maxIdempotencyKey+1), `{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIdempotentRejectsOversizedBody(t *testing.T) {
	store := newFakeStore()
	handler := Idempotent(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	rec := httptest.NewRecorder()
	body := `{"pad":"` + strings.Repeat("x", maxIdempotentBody) + `"}`
	handler.ServeHTTP(rec, keyedRequest(http.MethodPost, "/api/v1/returns", "big", body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	code, _ := errorCode(t, rec)
	assert.Equal(t, string(pkgerrors.CodeValidation), code)
	assert.Empty(t, store.data, "an oversized body must not claim the key")
}
