// Command reconcile runs category reconciliation passes for a list of owners,
// repeating each owner's pass until it has nothing left to repair.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/castlemilk/pfinance/spending/internal/audit"
	"github.com/castlemilk/pfinance/spending/internal/config"
	"github.com/castlemilk/pfinance/spending/internal/logger"
	"github.com/castlemilk/pfinance/spending/internal/model"
	"github.com/castlemilk/pfinance/spending/internal/service"
	"github.com/castlemilk/pfinance/spending/internal/store"
	"go.uber.org/zap"
)

// reconciler is the part of the spending service this command drives.
type reconciler interface {
	ReconcileCategories(ctx context.Context, ownerID string) (*model.ReconciliationReport, error)
}

func main() {
	owners := flag.String("owner", "", "comma-separated owner ids to reconcile")
	maxPasses := flag.Int("max-passes", 3, "maximum passes per owner")
	flag.Parse()

	ownerIDs := splitOwners(*owners)
	if len(ownerIDs) == 0 || *maxPasses < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	zapLogger, err := logger.New(cfg.Logger.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storeImpl, closeStore, err := store.Open(ctx, cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to open store", zap.Error(err))
	}
	defer closeStore()

	recorder, closeAudit, err := audit.Open(ctx, cfg.Audit, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to open audit recorders", zap.Error(err))
	}
	defer closeAudit()

	loc, err := cfg.Engine.Location()
	if err != nil {
		zapLogger.Fatal("Invalid time zone", zap.Error(err))
	}

	svc := service.NewSpendingService(storeImpl,
		service.WithLocation(loc),
		service.WithLogger(zapLogger),
		service.WithRecorder(recorder),
		service.WithLegacyToUncategorized(cfg.Engine.ReconcileLegacyToUncategorized),
	)

	failed := 0
	for _, owner := range ownerIDs {
		passes, err := reconcileUntilClean(ctx, svc, owner, *maxPasses)
		if err != nil {
			failed++
			zapLogger.Error("Reconciliation failed", zap.String("owner_id", owner), zap.Int("passes", passes), zap.Error(err))
			continue
		}
		zapLogger.Info("Owner reconciled", zap.String("owner_id", owner), zap.Int("passes", passes))
	}
	if failed > 0 {
		zapLogger.Sync()
		os.Exit(1)
	}
}

// reconcileUntilClean runs passes for owner until one reports no actions and
// no failures, or maxPasses is reached. It returns the passes run.
func reconcileUntilClean(ctx context.Context, r reconciler, owner string, maxPasses int) (int, error) {
	for pass := 1; pass <= maxPasses; pass++ {
		report, err := r.ReconcileCategories(ctx, owner)
		if err != nil {
			return pass, err
		}
		if report.Clean() {
			return pass, nil
		}
	}
	return maxPasses, fmt.Errorf("still repairing after %d passes", maxPasses)
}

func splitOwners(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
