// Package audit persists the append-only history of successful mutations.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/fulfillment-backend/internal/access"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Writer appends entries inside the caller's transaction.
type Writer interface {
	Insert(tx *gorm.DB, entry *models.AuditEntry) error
}

// Record describes one successful mutation.
type Record struct {
	EntityType enums.EntityType
	EntityID   uuid.UUID
	Action     enums.AuditAction
	From       string
	To         string
	Actor      access.Caller
	Notes      *string
	Payload    map[string]any
	At         time.Time
}

// NewEntry builds the row for r. Empty From/To are stored as NULL.
func NewEntry(r Record) *models.AuditEntry {
	at := r.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	entry := &models.AuditEntry{
		ID:          uuid.New(),
		EntityType:  r.EntityType,
		EntityID:    r.EntityID,
		Action:      r.Action,
		ActorUserID: r.Actor.UserID,
		ActorRole:   r.Actor.Role,
		Notes:       r.Notes,
		Payload:     r.Payload,
		CreatedAt:   at,
	}
	if r.From != "" {
		from := r.From
		entry.FromStatus = &from
	}
	if r.To != "" {
		to := r.To
		entry.ToStatus = &to
	}
	if r.Actor.Access != "" {
		accessLevel := string(r.Actor.Access)
		entry.ActorAccess = &accessLevel
	}
	return entry
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, entry *models.AuditEntry) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry == nil {
		return errors.New("audit entry required")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return tx.Create(entry).Error
}

// ListForEntity returns the history of one entity, oldest first.
func (r *Repository) ListForEntity(ctx context.Context, entityType enums.EntityType, entityID uuid.UUID) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
