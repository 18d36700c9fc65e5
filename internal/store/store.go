package store

import (
	"context"
	"errors"
	"time"

	"github.com/castlemilk/pfinance/spending/internal/model"
)

//go:generate mockgen -source=store.go -destination=store_mock.go -package=store

var (
	// ErrNotFound is returned when a looked-up document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when creating a document whose id is taken.
	ErrAlreadyExists = errors.New("already exists")
	// ErrEmptyPatch is returned by UpdateTransaction for a patch that sets
	// nothing.
	ErrEmptyPatch = errors.New("empty transaction patch")
)

// TransactionStore is read/write access to transactions keyed by owner,
// category and time. Range bounds are inclusive on both ends.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, tx *model.Transaction) error
	GetTransaction(ctx context.Context, transactionID string) (*model.Transaction, error)
	UpdateTransaction(ctx context.Context, transactionID string, patch model.TransactionPatch) error
	DeleteTransaction(ctx context.Context, transactionID string) error
	ListTransactions(ctx context.Context, ownerID string) ([]*model.Transaction, error)
	FindByOwnerAndRange(ctx context.Context, ownerID string, start, end time.Time) ([]*model.Transaction, error)

	// AggregateByCategory groups the owner's transactions in [start, end] by
	// category id in a single query.
	AggregateByCategory(ctx context.Context, ownerID string, start, end time.Time) ([]model.CategoryTotal, error)
	// AggregateByMonth groups the owner's transactions in [start, end] by
	// calendar month, evaluated in start's location. Months without data are
	// absent from the result.
	AggregateByMonth(ctx context.Context, ownerID string, start, end time.Time) ([]model.MonthTotal, error)
	// ReassignCategory moves every transaction of ownerID that references
	// fromCategoryID to toCategoryID and returns how many moved.
	ReassignCategory(ctx context.Context, ownerID, fromCategoryID, toCategoryID string) (int, error)
}

// CategoryStore is read/write access to categories keyed by owner and name.
type CategoryStore interface {
	// CreateCategory stores a category as given. It does not enforce name
	// uniqueness; use FindOrCreateCategory for that.
	CreateCategory(ctx context.Context, category *model.Category) (*model.Category, error)
	GetCategory(ctx context.Context, categoryID string) (*model.Category, error)
	// ListCategories returns the owner's categories in creation order.
	ListCategories(ctx context.Context, ownerID string) ([]*model.Category, error)
	// FindOrCreateCategory returns the owner's category whose name matches
	// name case-insensitively, creating it if none exists. The bool reports
	// whether a category was created. It is atomic per (owner, name key).
	FindOrCreateCategory(ctx context.Context, ownerID, name string, categoryType model.CategoryType, color string) (*model.Category, bool, error)
	// DeleteCategory removes a category. It returns false if it did not exist.
	DeleteCategory(ctx context.Context, categoryID string) (bool, error)
}

// Store defines all database operations used by the spending service.
type Store interface {
	TransactionStore
	CategoryStore
}
