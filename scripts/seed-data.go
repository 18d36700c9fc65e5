//go:build ignore
// +build ignore

// Seeds a persistent store (STORE_BACKEND=firestore or postgres) with the
// kinds of inconsistent data reconciliation repairs, then asks a running
// server for a summary and a reconciliation pass.
//
//	STORE_BACKEND=postgres go run scripts/seed-data.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"connectrpc.com/connect"
	"github.com/castlemilk/pfinance/spending/internal/api"
	"github.com/castlemilk/pfinance/spending/internal/auth"
	"github.com/castlemilk/pfinance/spending/internal/config"
	"github.com/castlemilk/pfinance/spending/internal/logger"
	"github.com/castlemilk/pfinance/spending/internal/model"
	"github.com/castlemilk/pfinance/spending/internal/store"
	"github.com/shopspring/decimal"
)

func main() {
	apiURL := os.Getenv("API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8111"
	}
	userID := os.Getenv("USER_ID")
	if userID == "" {
		userID = auth.LocalDevUserID
	}
	authToken := os.Getenv("AUTH_TOKEN")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Store.Backend == config.BackendMemory {
		log.Fatal("Seeding needs a persistent STORE_BACKEND (firestore or postgres)")
	}
	zapLogger, err := logger.New(cfg.Logger.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	ctx := context.Background()
	st, closeStore, err := store.Open(ctx, cfg, zapLogger)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer closeStore()

	log.Printf("Seeding data for user: %s", userID)
	if err := seed(ctx, st, userID, time.Now()); err != nil {
		log.Fatalf("Failed to seed: %v", err)
	}

	opts := []connect.ClientOption{connect.WithCodec(api.JSONCodec())}
	if authToken != "" {
		opts = append(opts, connect.WithInterceptors(authInterceptor(authToken)))
	} else {
		log.Println("No AUTH_TOKEN provided; the server must run with SKIP_AUTH=true")
	}
	if err := verify(ctx, apiURL, opts); err != nil {
		log.Fatalf("Verification failed: %v", err)
	}
	log.Println("Seeded and verified")
}

// authInterceptor adds the Authorization header to requests
func authInterceptor(token string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			req.Header().Set("Authorization", "Bearer "+token)
			return next(ctx, req)
		}
	}
}

func seed(ctx context.Context, st store.Store, userID string, now time.Time) error {
	// Duplicate names, as older clients created them.
	categories := map[string]*model.Category{}
	for _, name := range []string{"Food", "food", "FOOD", "Transport", "Misc", "Utilities"} {
		c, err := st.CreateCategory(ctx, &model.Category{OwnerID: userID, Name: name, Type: model.CategoryTypeExpense})
		if err != nil {
			return err
		}
		categories[name] = c
	}

	expenses := []struct {
		vendor   string
		amount   string
		category string
		daysAgo  int
	}{
		{"Woolworths", "156.80", categories["Food"].ID, 0},
		{"Local cafe", "6.50", categories["food"].ID, 2},
		{"Restaurant", "78.50", categories["FOOD"].ID, 4},
		{"Uber", "18.50", categories["Transport"].ID, 1},
		{"Electricity", "185.00", categories["Utilities"].ID, 3},
		{"Corner store", "12.00", model.LegacyMiscRef, 5},
		{"Old gym", "65.00", "deleted-category-123", 6},
		{"Petrol", "95.00", categories["Transport"].ID, 40},
		{"Phone bill", "79.00", categories["Utilities"].ID, 70},
		{"Groceries", "142.30", categories["Food"].ID, 100},
	}
	for _, e := range expenses {
		tx := &model.Transaction{
			OwnerID:    userID,
			Vendor:     e.vendor,
			Date:       now.AddDate(0, 0, -e.daysAgo),
			Amount:     decimal.RequireFromString(e.amount),
			CategoryID: e.category,
		}
		if err := st.CreateTransaction(ctx, tx); err != nil {
			return err
		}
	}
	log.Printf("Created %d categories and %d transactions", len(categories), len(expenses))
	return nil
}

func verify(ctx context.Context, apiURL string, opts []connect.ClientOption) error {
	summary := connect.NewClient[api.GetSummaryRequest, model.SummaryResult](
		http.DefaultClient, apiURL+api.GetSummaryProcedure, opts...)
	reconcile := connect.NewClient[api.ReconcileCategoriesRequest, model.ReconciliationReport](
		http.DefaultClient, apiURL+api.ReconcileCategoriesProcedure, opts...)

	before, err := summary.CallUnary(ctx, connect.NewRequest(&api.GetSummaryRequest{Period: "past_30_days"}))
	if err != nil {
		return err
	}
	log.Printf("Before: total %s over %d categories, %s unresolved",
		before.Msg.TotalSpending, len(before.Msg.Categories), before.Msg.UnresolvedTotal)

	report, err := reconcile.CallUnary(ctx, connect.NewRequest(&api.ReconcileCategoriesRequest{}))
	if err != nil {
		return err
	}
	for _, a := range report.Msg.Actions {
		log.Printf("  %s: %s -> %s (%d moved)", a.Kind, a.RemovedID, a.KeepID, a.Moved)
	}

	after, err := summary.CallUnary(ctx, connect.NewRequest(&api.GetSummaryRequest{Period: "past_30_days"}))
	if err != nil {
		return err
	}
	log.Printf("After: total %s over %d categories, %s unresolved",
		after.Msg.TotalSpending, len(after.Msg.Categories), after.Msg.UnresolvedTotal)
	return nil
}
