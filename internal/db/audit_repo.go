package db

import (
	"context"
	"time"

	"certsentry/internal/types"
)

// AuditRepository writes append-only audit log entries. Implements
// types.AuditService; entries are never updated or deleted.
type AuditRepository struct {
	db DBTX
}

// NewAuditRepository creates an AuditRepository backed by the given
// database connection (pool or transaction).
func NewAuditRepository(db DBTX) *AuditRepository {
	return &AuditRepository{db: db}
}

var _ types.AuditService = (*AuditRepository)(nil)

// Record appends one audit entry. Diff is stored as JSONB.
func (r *AuditRepository) Record(ctx context.Context, entry *types.AuditEntry) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO audit_log (id, actor, entity, entity_id, action, diff, note, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()))`,
		entry.ID,
		entry.Actor,
		entry.Entity,
		entry.EntityID,
		entry.Action,
		entry.Diff,
		entry.Note,
		nilIfZeroTime(entry.CreatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record audit entry", err)
	}
	return nil
}

// nilIfZeroTime lets the database default a missing timestamp via COALESCE.
func nilIfZeroTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
