package worker

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// AuditPruner deletes audit entries older than a number of days.
type AuditPruner interface {
	Cleanup(ctx context.Context, retentionDays int) (int64, error)
}

// AuditCleanup enforces the audit retention period.
type AuditCleanup struct {
	pruner        AuditPruner
	retentionDays int
	logger        zerolog.Logger
}

func NewAuditCleanup(pruner AuditPruner, retentionDays int, logger zerolog.Logger) *AuditCleanup {
	return &AuditCleanup{
		pruner:        pruner,
		retentionDays: retentionDays,
		logger:        logger,
	}
}

func (w *AuditCleanup) Run(ctx context.Context) (int, error) {
	if w.retentionDays <= 0 {
		return 0, nil
	}

	rows, err := w.pruner.Cleanup(ctx, w.retentionDays)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup audit logs: %w", err)
	}
	if rows > 0 {
		w.logger.Info().Int64("rows", rows).Int("retention_days", w.retentionDays).Msg("cleaned up audit logs")
	}
	return int(rows), nil
}
