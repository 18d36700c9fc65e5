package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/castlemilk/pfinance/spending/internal/auth"
	"github.com/castlemilk/pfinance/spending/internal/model"
	"github.com/castlemilk/pfinance/spending/internal/period"
	"github.com/castlemilk/pfinance/spending/internal/service"
	"github.com/castlemilk/pfinance/spending/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// SpendingServiceName is the fully-qualified name of the service.
	SpendingServiceName = "spending.v1.SpendingService"

	GetSummaryProcedure          = "/" + SpendingServiceName + "/GetSummary"
	GetMonthlyTrendsProcedure    = "/" + SpendingServiceName + "/GetMonthlyTrends"
	ReconcileCategoriesProcedure = "/" + SpendingServiceName + "/ReconcileCategories"
)

// Engine is the spending logic the handlers expose.
type Engine interface {
	GetSummary(ctx context.Context, ownerID string, spec period.Spec) (*model.SummaryResult, error)
	GetMonthlyTrends(ctx context.Context, ownerID string, monthCount int, includeCurrentMonth bool) (*model.TrendResult, error)
	ReconcileCategories(ctx context.Context, ownerID string) (*model.ReconciliationReport, error)
}

type GetSummaryRequest struct {
	// OwnerID defaults to the caller.
	OwnerID   string     `json:"ownerId,omitempty"`
	Period    string     `json:"period,omitempty"`
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
}

type GetMonthlyTrendsRequest struct {
	OwnerID    string `json:"ownerId,omitempty"`
	MonthCount int    `json:"monthCount,omitempty"`
	// IncludeCurrentMonth defaults to true when omitted.
	IncludeCurrentMonth *bool `json:"includeCurrentMonth,omitempty"`
}

type ReconcileCategoriesRequest struct {
	OwnerID string `json:"ownerId,omitempty"`
}

// DefaultReconcileTimeout bounds a shared reconciliation pass whose first
// caller set no deadline.
const DefaultReconcileTimeout = 2 * time.Minute

// SpendingHandler serves the spending procedures over Connect.
type SpendingHandler struct {
	engine Engine
	logger *zap.Logger

	// reconciles collapses concurrent passes for one owner into one.
	reconciles       singleflight.Group
	reconcileTimeout time.Duration
	// lifecycle cancels in-flight passes when the server shuts down.
	lifecycle context.Context
}

// HandlerOption configures a SpendingHandler.
type HandlerOption func(*SpendingHandler)

// WithReconcileTimeout sets the deadline applied to a reconciliation pass
// when the request that started it carries none.
func WithReconcileTimeout(d time.Duration) HandlerOption {
	return func(h *SpendingHandler) {
		if d > 0 {
			h.reconcileTimeout = d
		}
	}
}

// WithLifecycle ties shared reconciliation passes to ctx.
func WithLifecycle(ctx context.Context) HandlerOption {
	return func(h *SpendingHandler) {
		h.lifecycle = ctx
	}
}

func NewSpendingHandler(engine Engine, logger *zap.Logger, opts ...HandlerOption) *SpendingHandler {
	h := &SpendingHandler{
		engine:           engine,
		logger:           logger,
		reconcileTimeout: DefaultReconcileTimeout,
		lifecycle:        context.Background(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewSpendingServiceHandler builds an http.Handler serving every procedure
// of h, and returns the path to mount it on.
//
// There is no generated spending.v1 package: messages are the plain Go
// request and result types above, carried by the JSON codec in codec.go.
// The paths match what protoc-gen-connect-go would generate for the same
// service, so generated clients can be dropped in later.
func NewSpendingServiceHandler(h *SpendingHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(JSONCodec())}, opts...)

	mux := http.NewServeMux()
	mux.Handle(GetSummaryProcedure, connect.NewUnaryHandler(GetSummaryProcedure, h.GetSummary, opts...))
	mux.Handle(GetMonthlyTrendsProcedure, connect.NewUnaryHandler(GetMonthlyTrendsProcedure, h.GetMonthlyTrends, opts...))
	mux.Handle(ReconcileCategoriesProcedure, connect.NewUnaryHandler(ReconcileCategoriesProcedure, h.ReconcileCategories, opts...))
	return "/" + SpendingServiceName + "/", mux
}

// GetSummary returns the per-category spending breakdown for a period.
func (h *SpendingHandler) GetSummary(ctx context.Context, req *connect.Request[GetSummaryRequest]) (*connect.Response[model.SummaryResult], error) {
	claims, err := auth.RequireUserAccess(ctx, req.Msg.OwnerID)
	if err != nil {
		return nil, err
	}

	kind, err := period.ParseKind(req.Msg.Period)
	if err != nil {
		return nil, h.toConnectError(err)
	}

	result, err := h.engine.GetSummary(ctx, claims.UID, period.Spec{
		Kind:  kind,
		Start: req.Msg.StartDate,
		End:   req.Msg.EndDate,
	})
	if err != nil {
		return nil, h.toConnectError(err)
	}
	return connect.NewResponse(result), nil
}

// GetMonthlyTrends compares this month's spending with recent months.
func (h *SpendingHandler) GetMonthlyTrends(ctx context.Context, req *connect.Request[GetMonthlyTrendsRequest]) (*connect.Response[model.TrendResult], error) {
	claims, err := auth.RequireUserAccess(ctx, req.Msg.OwnerID)
	if err != nil {
		return nil, err
	}

	includeCurrent := true
	if req.Msg.IncludeCurrentMonth != nil {
		includeCurrent = *req.Msg.IncludeCurrentMonth
	}

	result, err := h.engine.GetMonthlyTrends(ctx, claims.UID, req.Msg.MonthCount, includeCurrent)
	if err != nil {
		return nil, h.toConnectError(err)
	}
	return connect.NewResponse(result), nil
}

// ReconcileCategories runs a reconciliation pass for the caller. Requests
// arriving while a pass for the same owner is running share its report.
func (h *SpendingHandler) ReconcileCategories(ctx context.Context, req *connect.Request[ReconcileCategoriesRequest]) (*connect.Response[model.ReconciliationReport], error) {
	claims, err := auth.RequireUserAccess(ctx, req.Msg.OwnerID)
	if err != nil {
		return nil, err
	}

	v, err, shared := h.reconciles.Do(claims.UID, func() (any, error) {
		passCtx, cancel := h.passContext(ctx)
		defer cancel()
		return h.engine.ReconcileCategories(passCtx, claims.UID)
	})
	if err != nil {
		return nil, h.toConnectError(err)
	}
	if shared {
		h.logger.Debug("Joined in-flight reconciliation", zap.String("owner_id", claims.UID))
	}
	return connect.NewResponse(v.(*model.ReconciliationReport)), nil
}

// passContext detaches a shared pass from the cancellation of the request
// that started it, keeping that request's deadline (or the configured
// timeout) and the server lifecycle.
func (h *SpendingHandler) passContext(ctx context.Context) (context.Context, context.CancelFunc) {
	passCtx := context.WithoutCancel(ctx)
	var cancel context.CancelFunc
	if deadline, ok := ctx.Deadline(); ok {
		passCtx, cancel = context.WithDeadline(passCtx, deadline)
	} else {
		passCtx, cancel = context.WithTimeout(passCtx, h.reconcileTimeout)
	}
	stop := context.AfterFunc(h.lifecycle, cancel)
	return passCtx, func() {
		stop()
		cancel()
	}
}

// toConnectError maps engine errors onto Connect codes: bad input is
// InvalidArgument, missing records NotFound, and anything else Internal.
func (h *SpendingHandler) toConnectError(err error) error {
	var connectErr *connect.Error
	switch {
	case errors.As(err, &connectErr):
		return connectErr
	case errors.Is(err, period.ErrInvalidPeriod), errors.Is(err, service.ErrInvalidArgument):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, store.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	default:
		h.logger.Error("Spending request failed", zap.Error(err))
		return connect.NewError(connect.CodeInternal, fmt.Errorf("internal error"))
	}
}
