package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"connectrpc.com/connect"
	"github.com/castlemilk/pfinance/spending/internal/api"
	"github.com/castlemilk/pfinance/spending/internal/audit"
	"github.com/castlemilk/pfinance/spending/internal/auth"
	"github.com/castlemilk/pfinance/spending/internal/config"
	"github.com/castlemilk/pfinance/spending/internal/logger"
	"github.com/castlemilk/pfinance/spending/internal/service"
	"github.com/castlemilk/pfinance/spending/internal/store"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := logger.New(cfg.Logger.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	if err := run(cfg, zapLogger); err != nil {
		zapLogger.Fatal("Server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, zapLogger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storeImpl, closeStore, err := store.Open(ctx, cfg, zapLogger)
	if err != nil {
		return err
	}
	defer closeStore()

	recorder, closeAudit, err := audit.Open(ctx, cfg.Audit, zapLogger)
	if err != nil {
		return err
	}
	defer closeAudit()

	loc, err := cfg.Engine.Location()
	if err != nil {
		return err
	}
	dangling := service.SkipDangling
	if cfg.Engine.BucketDangling {
		dangling = service.BucketDangling
	}
	spendingService := service.NewSpendingService(storeImpl,
		service.WithLocation(loc),
		service.WithLogger(zapLogger),
		service.WithRecorder(recorder),
		service.WithDanglingPolicy(dangling),
		service.WithLegacyToUncategorized(cfg.Engine.ReconcileLegacyToUncategorized),
	)

	// Debug impersonation first, then real or mock authentication.
	interceptors := []connect.Interceptor{auth.DebugAuthInterceptor(cfg.Auth.SkipAuth)}
	if cfg.Auth.SkipAuth || cfg.Store.Backend == config.BackendMemory {
		zapLogger.Warn("Using mock authentication; never enable this in production")
		interceptors = append(interceptors, auth.LocalDevInterceptor())
	} else {
		firebaseAuth, err := auth.NewFirebaseAuth(ctx, cfg.Auth.ServiceAccountKeyPath)
		if err != nil {
			return fmt.Errorf("failed to initialize Firebase Auth: %w", err)
		}
		interceptors = append(interceptors, auth.AuthInterceptor(firebaseAuth))
	}

	path, handler := api.NewSpendingServiceHandler(
		api.NewSpendingHandler(spendingService, zapLogger,
			api.WithReconcileTimeout(cfg.Server.ReconcileTimeout),
			api.WithLifecycle(ctx),
		),
		connect.WithInterceptors(interceptors...),
	)

	mux := http.NewServeMux()
	mux.Handle(path, handler)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Connect-Protocol-Version",
			"Connect-Timeout-Ms",
			"Content-Type",
			"User-Agent",
			"X-User-Agent",
			"X-Debug-Impersonate-User",
		},
		ExposedHeaders: []string{
			"Grpc-Status",
			"Grpc-Message",
		},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: h2c.NewHandler(c.Handler(mux), &http2.Server{}),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zapLogger.Info("Starting server", zap.String("port", cfg.Server.Port), zap.String("store", cfg.Store.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		zapLogger.Info("Shutting down server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
