package pagination

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

// ErrInvalidCursor covers undecodable cursors and cursors minted for a
// different filter.
var ErrInvalidCursor = errors.New("invalid cursor")

// Params is a page request. Cursor is opaque to clients.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor marks the last row of the previous page in (created_at, id) order.
// Scope pins it to the filter that produced it.
type Cursor struct {
	CreatedAt time.Time `json:"t"`
	ID        uuid.UUID `json:"id"`
	Scope     string    `json:"s,omitempty"`
}

func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Scope fingerprints filter values. Empty parts still count, so
// ("a","") and ("","a") differ.
func Scope(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:6])
}

func Encode(c Cursor) string {
	c.CreatedAt = c.CreatedAt.UTC()
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Decode returns nil for an empty value.
func Decode(value, scope string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if c.ID == uuid.Nil || c.CreatedAt.IsZero() {
		return nil, fmt.Errorf("%w: missing position", ErrInvalidCursor)
	}
	if c.Scope != scope {
		return nil, fmt.Errorf("%w: filter changed", ErrInvalidCursor)
	}
	return &c, nil
}

// NewestFirst orders query by (created_at, id) descending, resumes after c
// and fetches one extra row so Trim can tell whether another page exists.
func NewestFirst(query *gorm.DB, c *Cursor, limit int) *gorm.DB {
	if c != nil {
		query = query.Where("created_at < ? OR (created_at = ? AND id < ?)", c.CreatedAt, c.CreatedAt, c.ID)
	}
	return query.Order("created_at DESC").Order("id DESC").Limit(NormalizeLimit(limit) + 1)
}

// Trim cuts rows fetched by NewestFirst down to the page and returns the
// cursor for the next one, or "" on the last page.
func Trim[T any](rows []T, limit int, scope string, position func(T) (time.Time, uuid.UUID)) ([]T, string) {
	limit = NormalizeLimit(limit)
	if len(rows) <= limit {
		return rows, ""
	}
	page := rows[:limit]
	createdAt, id := position(page[limit-1])
	return page, Encode(Cursor{CreatedAt: createdAt, ID: id, Scope: scope})
}
