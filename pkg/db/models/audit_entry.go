package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

// AuditEntry records one successful mutation. Append-only.
type AuditEntry struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	EntityType  enums.EntityType  `gorm:"column:entity_type;type:audit_entity_type;not null"`
	EntityID    uuid.UUID         `gorm:"column:entity_id;type:uuid;not null"`
	Action      enums.AuditAction `gorm:"column:action;not null"`
	FromStatus  *string           `gorm:"column:from_status"`
	ToStatus    *string           `gorm:"column:to_status"`
	ActorUserID uuid.UUID         `gorm:"column:actor_user_id;type:uuid;not null"`
	ActorRole   enums.Role        `gorm:"column:actor_role;not null"`
	ActorAccess *string           `gorm:"column:actor_access"`
	Notes       *string           `gorm:"column:notes"`
	Payload     map[string]any    `gorm:"column:payload;type:jsonb;serializer:json"`
	CreatedAt   time.Time         `gorm:"column:created_at;not null"`
}

func (AuditEntry) TableName() string { return "audit_entries" }
