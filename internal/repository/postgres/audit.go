package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/telehealth-api/internal/model"
	"github.com/jwalitptl/telehealth-api/internal/repository"
)

type auditRepository struct {
	BaseRepository
}

func NewAuditRepository(base BaseRepository) repository.AuditRepository {
	return &auditRepository{base}
}

const auditColumns = `
	id, user_id, action, entity_type, entity_id, changes, metadata, ip_address, user_agent,
	path, method, status_code, created_at`

func (r *auditRepository) Create(ctx context.Context, log *model.AuditLog) error {
	query := `
        INSERT INTO audit_logs (` + auditColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
    `
	_, err := r.db.ExecContext(ctx, query,
		log.ID,
		log.UserID,
		log.Action,
		log.EntityType,
		log.EntityID,
		log.Changes,
		log.Metadata,
		log.IPAddress,
		log.UserAgent,
		log.Path,
		log.Method,
		log.StatusCode,
		log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

func (r *auditRepository) List(ctx context.Context, filter *model.AuditFilter) ([]*model.AuditLog, int, error) {
	where := " WHERE 1=1"
	var args []interface{}

	if filter.UserID != nil {
		where += fmt.Sprintf(" AND user_id = $%d", len(args)+1)
		args = append(args, *filter.UserID)
	}
	if filter.Action != "" {
		where += fmt.Sprintf(" AND action = $%d", len(args)+1)
		args = append(args, filter.Action)
	}
	if filter.EntityType != "" {
		where += fmt.Sprintf(" AND entity_type = $%d", len(args)+1)
		args = append(args, filter.EntityType)
	}
	if filter.From != nil {
		where += fmt.Sprintf(" AND created_at >= $%d", len(args)+1)
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		where += fmt.Sprintf(" AND created_at <= $%d", len(args)+1)
		args = append(args, *filter.To)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM audit_logs`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	query, args := page(`SELECT `+auditColumns+` FROM audit_logs`+where+` ORDER BY created_at DESC`, args, filter.Pagination)
	var logs []*model.AuditLog
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return logs, total, nil
}

func (r *auditRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete audit logs: %w", err)
	}
	return result.RowsAffected()
}
