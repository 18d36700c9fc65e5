package audit

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"github.com/castlemilk/pfinance/spending/internal/config"
	"go.uber.org/zap"
)

// Open builds the recorders enabled in cfg. Reports always go to the log;
// AUDIT_BUCKET and AUDIT_AMQP_URL add durable copies. The returned func
// releases their connections.
func Open(ctx context.Context, cfg config.AuditConfig, logger *zap.Logger) (Recorder, func(), error) {
	recorders := MultiRecorder{NewLogRecorder(logger)}
	var closers []func()
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if cfg.Bucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create storage client: %w", err)
		}
		closers = append(closers, func() { client.Close() })
		recorders = append(recorders, NewGCSRecorder(client, cfg.Bucket))
		logger.Info("Recording reconciliation reports to GCS", zap.String("bucket", cfg.Bucket))
	}

	if cfg.AMQPURL != "" {
		r, err := NewAMQPRecorder(cfg.AMQPURL, cfg.Exchange, cfg.RoutingKey)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() { r.Close() })
		recorders = append(recorders, r)
		logger.Info("Publishing reconciliation reports to AMQP", zap.String("exchange", cfg.Exchange))
	}

	return recorders, closeAll, nil
}
