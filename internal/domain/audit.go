package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AuditAction string

const (
	AuditActionCreated       AuditAction = "created"
	AuditActionUpdated       AuditAction = "updated"
	AuditActionStatusChanged AuditAction = "status_changed"
	AuditActionCancelled     AuditAction = "cancelled"
)

// AuditLog records an entity mutation. Audit writes are best-effort and must
// never fail the operation being recorded.
type AuditLog struct {
	bun.BaseModel `bun:"table:audit_logs,alias:al"`

	ID         uuid.UUID   `bun:"id,pk,type:uuid"`
	ClinicID   uuid.UUID   `bun:"clinic_id,notnull,type:uuid"`
	ActorID    uuid.UUID   `bun:"actor_id,type:uuid"`
	Action     AuditAction `bun:"action,notnull"`
	Entity     string      `bun:"entity,notnull"`
	EntityID   uuid.UUID   `bun:"entity_id,notnull,type:uuid"`
	Detail     string      `bun:"detail"`
	RecordedAt time.Time   `bun:"recorded_at,notnull"`
}

func (l *AuditLog) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); !ok {
		return nil
	}
	if l.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		l.ID = id
	}
	if l.RecordedAt.IsZero() {
		l.RecordedAt = time.Now().UTC()
	}
	return nil
}
