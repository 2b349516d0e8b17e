package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// AuditTrail writes one structured JSON line per audit entry, separate from the
// application log so it can be shipped to a different sink.
type AuditTrail struct {
	zl *zap.Logger
}

// NewAuditTrail builds a production zap logger writing to the given paths
// ("stdout" when empty).
func NewAuditTrail(outputPaths []string) (*AuditTrail, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true
	cfg.Sampling = nil
	if len(outputPaths) > 0 {
		cfg.OutputPaths = outputPaths
	}

	zl, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &AuditTrail{zl: zl.Named("audit")}, nil
}

// NopAuditTrail discards entries.
func NopAuditTrail() *AuditTrail {
	return &AuditTrail{zl: zap.NewNop()}
}

// Record writes an audit entry.
func (a *AuditTrail) Record(action, entityType, entityID, actorID string, fields map[string]interface{}) {
	zfields := []zap.Field{
		zap.String("action", action),
		zap.String("entity_type", entityType),
		zap.String("entity_id", entityID),
		zap.String("actor_id", actorID),
	}
	for k, v := range fields {
		zfields = append(zfields, zap.Any(k, v))
	}
	a.zl.Info("audit", zfields...)
}

func (a *AuditTrail) Sync() error {
	return a.zl.Sync()
}
