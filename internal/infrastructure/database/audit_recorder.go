package database

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"trackgate/internal/domain/audit"
)

// AuditEntry is the persisted shape of an audit record. The table is
// append-only: this repository exposes no update or delete path.
type AuditEntry struct {
	ID          string         `gorm:"primaryKey;size:26"`
	TenantID    string         `gorm:"index:idx_audit_tenant_time,priority:1;size:128;not null"`
	Actor       string         `gorm:"size:256"`
	Action      string         `gorm:"size:128;not null"`
	EntityRef   string         `gorm:"size:256"`
	BeforeState datatypes.JSON `gorm:"type:jsonb"`
	AfterState  datatypes.JSON `gorm:"type:jsonb"`
	Timestamp   time.Time      `gorm:"index:idx_audit_tenant_time,priority:2;not null"`
	Outcome     string         `gorm:"size:16;not null"`
}

func (AuditEntry) TableName() string { return "audit_entries" }

func newAuditEntry(e audit.Entry) *AuditEntry {
	return &AuditEntry{
		ID:          e.ID,
		TenantID:    e.TenantID,
		Actor:       e.Actor,
		Action:      e.Action,
		EntityRef:   e.EntityRef,
		BeforeState: datatypes.JSON(e.BeforeState),
		AfterState:  datatypes.JSON(e.AfterState),
		Timestamp:   e.Timestamp,
		Outcome:     string(e.Outcome),
	}
}

// AuditRecorder persists audit entries to postgres.
type AuditRecorder struct {
	db *gorm.DB
}

func NewAuditRecorder(db *gorm.DB) *AuditRecorder {
	return &AuditRecorder{db: db}
}

func (r *AuditRecorder) Record(ctx context.Context, entry audit.Entry) (string, error) {
	if entry.ID == "" {
		entry.ID = audit.NewID()
	}
	if err := r.db.WithContext(ctx).Create(newAuditEntry(entry)).Error; err != nil {
		return "", fmt.Errorf("append audit entry: %w", err)
	}
	return entry.ID, nil
}

var _ audit.Recorder = (*AuditRecorder)(nil)
