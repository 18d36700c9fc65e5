// Package audit persists reconciliation reports so repairs can be reviewed
// after the fact.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/castlemilk/pfinance/spending/internal/model"
	"go.uber.org/zap"
)

// Recorder stores one reconciliation report.
type Recorder interface {
	Record(ctx context.Context, report *model.ReconciliationReport) error
}

func encodeReport(report *model.ReconciliationReport) ([]byte, error) {
	body, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return body, nil
}

// LogRecorder writes reports to a zap logger.
type LogRecorder struct {
	logger *zap.Logger
}

func NewLogRecorder(logger *zap.Logger) *LogRecorder {
	return &LogRecorder{logger: logger}
}

func (r *LogRecorder) Record(ctx context.Context, report *model.ReconciliationReport) error {
	fields := []zap.Field{
		zap.String("owner_id", report.OwnerID),
		zap.Time("started_at", report.StartedAt),
		zap.Duration("duration", report.CompletedAt.Sub(report.StartedAt)),
		zap.Int("failures", len(report.Failures)),
	}
	for _, a := range report.Actions {
		r.logger.Info("Reconciliation action",
			append(fields,
				zap.String("kind", string(a.Kind)),
				zap.String("keep_id", a.KeepID),
				zap.String("removed_id", a.RemovedID),
				zap.Int("moved", a.Moved),
			)...,
		)
	}
	if len(report.Failures) > 0 {
		r.logger.Warn("Reconciliation pass had failures",
			append(fields, zap.Any("failure_details", report.Failures))...)
	}
	return nil
}

// MultiRecorder fans a report out to several recorders. Every recorder is
// tried; the errors are joined.
type MultiRecorder []Recorder

func (m MultiRecorder) Record(ctx context.Context, report *model.ReconciliationReport) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
