package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/angelmondragon/fulfillment-backend/pkg/redis"
)

const liveMarker = "live"

var (
	ErrMissingAccessID = errors.New("access id is required")
	ErrInvalidTTL      = errors.New("session ttl must be positive")
)

// AccessSessionChecker is the read side used by the auth middleware.
type AccessSessionChecker interface {
	HasSession(ctx context.Context, accessID string) (bool, error)
}

type store interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Del(ctx context.Context, keys ...string) error
	AccessSessionKey(accessID string) string
}

// Manager tracks live access tokens by jti. Whoever issues a token
// registers it; revoking the entry invalidates the token before exp.
type Manager struct {
	store store
}

func NewManager(client *redisclient.Client) (*Manager, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return &Manager{store: client}, nil
}

func (m *Manager) Register(ctx context.Context, accessID string, ttl time.Duration) error {
	key, err := m.key(accessID)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return m.store.Set(ctx, key, liveMarker, ttl)
}

func (m *Manager) Revoke(ctx context.Context, accessID string) error {
	key, err := m.key(accessID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) HasSession(ctx context.Context, accessID string) (bool, error) {
	key, err := m.key(accessID)
	if err != nil {
		return false, err
	}
	return m.store.Exists(ctx, key)
}

func (m *Manager) key(accessID string) (string, error) {
	if strings.TrimSpace(accessID) == "" {
		return "", ErrMissingAccessID
	}
	return m.store.AccessSessionKey(accessID), nil
}

// NewAccessID mints a jti.
func NewAccessID() string {
	return uuid.NewString()
}
