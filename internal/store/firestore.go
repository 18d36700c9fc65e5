package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/castlemilk/pfinance/spending/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	transactionsCollection  = "transactions"
	categoriesCollection    = "categories"
	categoryNamesCollection = "categoryNames"

	// Firestore caps a write batch at 500 operations.
	maxBatchWrites = 500
)

// FirestoreStore implements the Store interface using Firestore
type FirestoreStore struct {
	client *firestore.Client
	now    func() time.Time
}

// NewFirestoreStore creates a new Firestore-backed store
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{
		client: client,
		now:    time.Now,
	}
}

// transactionDoc is the stored shape of a transaction.
// NOTE: Field names stay PascalCase to match documents written by earlier
// versions of the app.
type transactionDoc struct {
	Id          string    `firestore:"Id"`
	OwnerId     string    `firestore:"OwnerId"`
	Vendor      string    `firestore:"Vendor"`
	Description string    `firestore:"Description"`
	Date        time.Time `firestore:"Date"`
	// Amount is the exact decimal string; AmountCents is kept for
	// documents written before Amount existed.
	Amount      string    `firestore:"Amount"`
	AmountCents int64     `firestore:"AmountCents"`
	CategoryId  string    `firestore:"CategoryId"`
	PaymentType string    `firestore:"PaymentType"`
	ReceiptId   string    `firestore:"ReceiptId"`
	CreatedAt   time.Time `firestore:"CreatedAt"`
	UpdatedAt   time.Time `firestore:"UpdatedAt"`
}

type categoryDoc struct {
	Id        string    `firestore:"Id"`
	OwnerId   string    `firestore:"OwnerId"`
	Name      string    `firestore:"Name"`
	NameKey   string    `firestore:"NameKey"`
	Type      string    `firestore:"Type"`
	Color     string    `firestore:"Color"`
	CreatedAt time.Time `firestore:"CreatedAt"`
	UpdatedAt time.Time `firestore:"UpdatedAt"`
}

// nameIndexDoc claims a (owner, name key) pair for one category.
type nameIndexDoc struct {
	OwnerId    string `firestore:"OwnerId"`
	NameKey    string `firestore:"NameKey"`
	CategoryId string `firestore:"CategoryId"`
}

func toTransactionDoc(tx *model.Transaction) transactionDoc {
	return transactionDoc{
		Id:          tx.ID,
		OwnerId:     tx.OwnerID,
		Vendor:      tx.Vendor,
		Description: tx.Description,
		Date:        tx.Date,
		Amount:      tx.Amount.String(),
		AmountCents: tx.Amount.Shift(2).Round(0).IntPart(),
		CategoryId:  tx.CategoryID,
		PaymentType: tx.PaymentType,
		ReceiptId:   tx.ReceiptID,
		CreatedAt:   tx.CreatedAt,
		UpdatedAt:   tx.UpdatedAt,
	}
}

func (d transactionDoc) toModel() (*model.Transaction, error) {
	amount := decimal.New(d.AmountCents, -2)
	if d.Amount != "" {
		parsed, err := decimal.NewFromString(d.Amount)
		if err != nil {
			return nil, fmt.Errorf("failed to parse amount of transaction %s: %w", d.Id, err)
		}
		amount = parsed
	}
	return &model.Transaction{
		ID:          d.Id,
		OwnerID:     d.OwnerId,
		Vendor:      d.Vendor,
		Description: d.Description,
		Date:        d.Date,
		Amount:      amount,
		CategoryID:  d.CategoryId,
		PaymentType: d.PaymentType,
		ReceiptID:   d.ReceiptId,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}, nil
}

func toCategoryDoc(c *model.Category) categoryDoc {
	return categoryDoc{
		Id:        c.ID,
		OwnerId:   c.OwnerID,
		Name:      c.Name,
		NameKey:   c.Key(),
		Type:      string(c.Type),
		Color:     c.Color,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func (d categoryDoc) toModel() *model.Category {
	return &model.Category{
		ID:        d.Id,
		OwnerID:   d.OwnerId,
		Name:      d.Name,
		Type:      model.CategoryType(d.Type),
		Color:     d.Color,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// nameIndexID derives a document id for the (owner, name key) claim. Keys are
// hashed because names may contain characters Firestore ids reject.
func nameIndexID(ownerID, key string) string {
	sum := sha256.Sum256([]byte(ownerID + "\x00" + key))
	return hex.EncodeToString(sum[:])
}

// translateError maps Firestore status codes onto the store sentinels.
func translateError(what string, err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case codes.AlreadyExists:
		return fmt.Errorf("%s: %w", what, ErrAlreadyExists)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

// Transaction operations

// CreateTransaction creates a new transaction in Firestore
func (s *FirestoreStore) CreateTransaction(ctx context.Context, tx *model.Transaction) error {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	now := s.now()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	if tx.UpdatedAt.IsZero() {
		tx.UpdatedAt = now
	}

	_, err := s.client.Collection(transactionsCollection).Doc(tx.ID).Create(ctx, toTransactionDoc(tx))
	if err != nil {
		return translateError("failed to create transaction", err)
	}
	return nil
}

// GetTransaction retrieves a transaction from Firestore
func (s *FirestoreStore) GetTransaction(ctx context.Context, transactionID string) (*model.Transaction, error) {
	doc, err := s.client.Collection(transactionsCollection).Doc(transactionID).Get(ctx)
	if err != nil {
		return nil, translateError("transaction "+transactionID, err)
	}

	var d transactionDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to parse transaction: %w", err)
	}
	return d.toModel()
}

// UpdateTransaction applies a partial update. Only the patched fields and
// UpdatedAt are written.
func (s *FirestoreStore) UpdateTransaction(ctx context.Context, transactionID string, patch model.TransactionPatch) error {
	if patch.IsEmpty() {
		return ErrEmptyPatch
	}
	updates := transactionUpdates(patch, s.now())
	_, err := s.client.Collection(transactionsCollection).Doc(transactionID).Update(ctx, updates)
	if err != nil {
		return translateError("failed to update transaction "+transactionID, err)
	}
	return nil
}

func transactionUpdates(patch model.TransactionPatch, now time.Time) []firestore.Update {
	var updates []firestore.Update
	if patch.CategoryID != nil {
		updates = append(updates, firestore.Update{Path: "CategoryId", Value: *patch.CategoryID})
	}
	if patch.Amount != nil {
		updates = append(updates,
			firestore.Update{Path: "Amount", Value: patch.Amount.String()},
			firestore.Update{Path: "AmountCents", Value: patch.Amount.Shift(2).Round(0).IntPart()},
		)
	}
	if patch.Vendor != nil {
		updates = append(updates, firestore.Update{Path: "Vendor", Value: *patch.Vendor})
	}
	if patch.PaymentType != nil {
		updates = append(updates, firestore.Update{Path: "PaymentType", Value: *patch.PaymentType})
	}
	return append(updates, firestore.Update{Path: "UpdatedAt", Value: now})
}

// DeleteTransaction deletes a transaction from Firestore
func (s *FirestoreStore) DeleteTransaction(ctx context.Context, transactionID string) error {
	_, err := s.client.Collection(transactionsCollection).Doc(transactionID).Delete(ctx, firestore.Exists)
	if err != nil {
		return translateError("failed to delete transaction "+transactionID, err)
	}
	return nil
}

// ListTransactions lists every transaction of an owner
func (s *FirestoreStore) ListTransactions(ctx context.Context, ownerID string) ([]*model.Transaction, error) {
	query := s.client.Collection(transactionsCollection).Where("OwnerId", "==", ownerID)
	txs, err := s.readTransactions(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}

// rangeQuery selects an owner's transactions dated within [start, end].
// NOTE: Firestore requires OrderBy on the range field.
func (s *FirestoreStore) rangeQuery(ownerID string, start, end time.Time) firestore.Query {
	return s.client.Collection(transactionsCollection).
		Where("OwnerId", "==", ownerID).
		Where("Date", ">=", start).
		Where("Date", "<=", end).
		OrderBy("Date", firestore.Asc)
}

// FindByOwnerAndRange lists an owner's transactions within a date range
func (s *FirestoreStore) FindByOwnerAndRange(ctx context.Context, ownerID string, start, end time.Time) ([]*model.Transaction, error) {
	txs, err := s.readTransactions(ctx, s.rangeQuery(ownerID, start, end))
	if err != nil {
		return nil, fmt.Errorf("failed to find transactions: %w", err)
	}
	return txs, nil
}

func (s *FirestoreStore) readTransactions(ctx context.Context, query firestore.Query) ([]*model.Transaction, error) {
	iter := query.Documents(ctx)
	defer iter.Stop()

	txs := make([]*model.Transaction, 0)
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}

		var d transactionDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("failed to parse transaction %s: %w", doc.Ref.ID, err)
		}
		tx, err := d.toModel()
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// AggregateByCategory groups an owner's transactions by category. Firestore
// has no group-by, so one range query is streamed and grouped client-side.
func (s *FirestoreStore) AggregateByCategory(ctx context.Context, ownerID string, start, end time.Time) ([]model.CategoryTotal, error) {
	groups := make(map[string]*model.CategoryTotal)
	err := s.streamRange(ctx, ownerID, start, end, func(tx *model.Transaction) {
		g, ok := groups[tx.CategoryID]
		if !ok {
			g = &model.CategoryTotal{CategoryID: tx.CategoryID, Total: decimal.Zero}
			groups[tx.CategoryID] = g
		}
		g.Total = g.Total.Add(tx.Amount)
		g.Count++
	})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by category: %w", err)
	}
	return sortedCategoryTotals(groups), nil
}

// AggregateByMonth groups an owner's transactions by calendar month in
// start's location.
func (s *FirestoreStore) AggregateByMonth(ctx context.Context, ownerID string, start, end time.Time) ([]model.MonthTotal, error) {
	groups := make(map[monthKey]*model.MonthTotal)
	err := s.streamRange(ctx, ownerID, start, end, func(tx *model.Transaction) {
		addToMonth(groups, tx.Date.In(start.Location()), tx.Amount)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by month: %w", err)
	}
	return sortedMonthTotals(groups), nil
}

func (s *FirestoreStore) streamRange(ctx context.Context, ownerID string, start, end time.Time, fn func(*model.Transaction)) error {
	iter := s.rangeQuery(ownerID, start, end).Documents(ctx)
	defer iter.Stop()

	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return err
		}

		var d transactionDoc
		if err := doc.DataTo(&d); err != nil {
			return fmt.Errorf("failed to parse transaction %s: %w", doc.Ref.ID, err)
		}
		tx, err := d.toModel()
		if err != nil {
			return err
		}
		fn(tx)
	}
}

// ReassignCategory moves transactions between categories in batches of 500.
// Batches that committed before a failure stay committed; the returned count
// reflects them.
func (s *FirestoreStore) ReassignCategory(ctx context.Context, ownerID, fromCategoryID, toCategoryID string) (int, error) {
	docs, err := s.client.Collection(transactionsCollection).
		Where("OwnerId", "==", ownerID).
		Where("CategoryId", "==", fromCategoryID).
		Documents(ctx).GetAll()
	if err != nil {
		return 0, fmt.Errorf("failed to query transactions of category %s: %w", fromCategoryID, err)
	}

	now := s.now()
	moved := 0
	for i := 0; i < len(docs); i += maxBatchWrites {
		end := i + maxBatchWrites
		if end > len(docs) {
			end = len(docs)
		}

		batch := s.client.Batch()
		for _, doc := range docs[i:end] {
			batch.Update(doc.Ref, []firestore.Update{
				{Path: "CategoryId", Value: toCategoryID},
				{Path: "UpdatedAt", Value: now},
			})
		}
		if _, err := batch.Commit(ctx); err != nil {
			return moved, fmt.Errorf("failed to batch reassign transactions: %w", err)
		}
		moved += end - i
	}

	return moved, nil
}

// Category operations

// CreateCategory creates a new category in Firestore
func (s *FirestoreStore) CreateCategory(ctx context.Context, category *model.Category) (*model.Category, error) {
	c := s.prepareCategory(category)
	_, err := s.client.Collection(categoriesCollection).Doc(c.ID).Create(ctx, toCategoryDoc(c))
	if err != nil {
		return nil, translateError("failed to create category", err)
	}
	return c, nil
}

func (s *FirestoreStore) prepareCategory(category *model.Category) *model.Category {
	c := *category
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Type == "" {
		c.Type = model.CategoryTypeExpense
	}
	now := s.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	return &c
}

// GetCategory retrieves a category from Firestore
func (s *FirestoreStore) GetCategory(ctx context.Context, categoryID string) (*model.Category, error) {
	if categoryID == "" {
		return nil, fmt.Errorf("category with empty id: %w", ErrNotFound)
	}
	doc, err := s.client.Collection(categoriesCollection).Doc(categoryID).Get(ctx)
	if err != nil {
		return nil, translateError("category "+categoryID, err)
	}

	var d categoryDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to parse category: %w", err)
	}
	return d.toModel(), nil
}

// ListCategories lists an owner's categories, oldest first
func (s *FirestoreStore) ListCategories(ctx context.Context, ownerID string) ([]*model.Category, error) {
	docs, err := s.client.Collection(categoriesCollection).
		Where("OwnerId", "==", ownerID).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categoriesFromDocs(docs)
}

func categoriesFromDocs(docs []*firestore.DocumentSnapshot) ([]*model.Category, error) {
	categories := make([]*model.Category, 0, len(docs))
	for _, doc := range docs {
		var d categoryDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("failed to parse category %s: %w", doc.Ref.ID, err)
		}
		categories = append(categories, d.toModel())
	}
	sortCategories(categories)
	return categories, nil
}

// sortCategories orders categories by creation time, then id.
func sortCategories(categories []*model.Category) {
	sort.SliceStable(categories, func(i, j int) bool {
		if !categories[i].CreatedAt.Equal(categories[j].CreatedAt) {
			return categories[i].CreatedAt.Before(categories[j].CreatedAt)
		}
		return categories[i].ID < categories[j].ID
	})
}

// FindOrCreateCategory resolves a category by name inside a Firestore
// transaction. A categoryNames document claims each (owner, name key); two
// concurrent callers contend on it and Firestore retries the loser, which
// then sees the winner's claim.
func (s *FirestoreStore) FindOrCreateCategory(ctx context.Context, ownerID, name string, categoryType model.CategoryType, color string) (*model.Category, bool, error) {
	key := model.NameKey(name)
	indexRef := s.client.Collection(categoryNamesCollection).Doc(nameIndexID(ownerID, key))
	categories := s.client.Collection(categoriesCollection)

	var result *model.Category
	var created bool
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		result, created = nil, false

		snap, err := tx.Get(indexRef)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if err == nil {
			var idx nameIndexDoc
			if err := snap.DataTo(&idx); err != nil {
				return fmt.Errorf("failed to parse category name index: %w", err)
			}
			catSnap, err := tx.Get(categories.Doc(idx.CategoryId))
			if err == nil {
				var d categoryDoc
				if err := catSnap.DataTo(&d); err != nil {
					return fmt.Errorf("failed to parse category: %w", err)
				}
				result = d.toModel()
				return nil
			}
			if status.Code(err) != codes.NotFound {
				return err
			}
			// The claimed category is gone; fall through and re-claim.
		}

		// Legacy categories predate the index. Claim the oldest match.
		docs, err := tx.Documents(categories.Where("OwnerId", "==", ownerID)).GetAll()
		if err != nil {
			return err
		}
		existing, err := categoriesFromDocs(docs)
		if err != nil {
			return err
		}
		for _, c := range existing {
			if c.Key() == key {
				result = c
				return tx.Set(indexRef, nameIndexDoc{OwnerId: ownerID, NameKey: key, CategoryId: c.ID})
			}
		}

		c := s.prepareCategory(&model.Category{
			OwnerID: ownerID,
			Name:    name,
			Type:    categoryType,
			Color:   color,
		})
		if err := tx.Create(categories.Doc(c.ID), toCategoryDoc(c)); err != nil {
			return err
		}
		result, created = c, true
		return tx.Set(indexRef, nameIndexDoc{OwnerId: ownerID, NameKey: key, CategoryId: c.ID})
	})
	if err != nil {
		return nil, false, translateError("failed to find or create category", err)
	}
	return result, created, nil
}

// DeleteCategory deletes a category and releases its name claim if it held one
func (s *FirestoreStore) DeleteCategory(ctx context.Context, categoryID string) (bool, error) {
	catRef := s.client.Collection(categoriesCollection).Doc(categoryID)

	var deleted bool
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		deleted = false

		catSnap, err := tx.Get(catRef)
		if status.Code(err) == codes.NotFound {
			return nil
		}
		if err != nil {
			return err
		}
		var d categoryDoc
		if err := catSnap.DataTo(&d); err != nil {
			return fmt.Errorf("failed to parse category: %w", err)
		}

		indexRef := s.client.Collection(categoryNamesCollection).Doc(nameIndexID(d.OwnerId, model.NameKey(d.Name)))
		idxSnap, err := tx.Get(indexRef)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		releaseIndex := false
		if err == nil {
			var idx nameIndexDoc
			if err := idxSnap.DataTo(&idx); err == nil && idx.CategoryId == categoryID {
				releaseIndex = true
			}
		}

		if err := tx.Delete(catRef); err != nil {
			return err
		}
		if releaseIndex {
			if err := tx.Delete(indexRef); err != nil {
				return err
			}
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, translateError("failed to delete category "+categoryID, err)
	}
	return deleted, nil
}
