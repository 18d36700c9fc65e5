package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/castlemilk/pfinance/spending/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryStore implements Store with in-memory maps. It backs local
// development and tests.
type MemoryStore struct {
	mu sync.RWMutex

	transactions map[string]*model.Transaction
	categories   map[string]*model.Category
	// categoryOrder keeps insertion order so listings are stable.
	categoryOrder []string

	now func() time.Time
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transactions: make(map[string]*model.Transaction),
		categories:   make(map[string]*model.Category),
		now:          time.Now,
	}
}

func cloneTransaction(tx *model.Transaction) *model.Transaction {
	c := *tx
	return &c
}

func cloneCategory(c *model.Category) *model.Category {
	cc := *c
	return &cc
}

// Transaction operations

func (m *MemoryStore) CreateTransaction(ctx context.Context, tx *model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if _, exists := m.transactions[tx.ID]; exists {
		return fmt.Errorf("transaction %s: %w", tx.ID, ErrAlreadyExists)
	}
	now := m.now()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	if tx.UpdatedAt.IsZero() {
		tx.UpdatedAt = now
	}

	m.transactions[tx.ID] = cloneTransaction(tx)
	return nil
}

func (m *MemoryStore) GetTransaction(ctx context.Context, transactionID string) (*model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.transactions[transactionID]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", transactionID, ErrNotFound)
	}
	return cloneTransaction(tx), nil
}

func (m *MemoryStore) UpdateTransaction(ctx context.Context, transactionID string, patch model.TransactionPatch) error {
	if patch.IsEmpty() {
		return ErrEmptyPatch
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.transactions[transactionID]
	if !ok {
		return fmt.Errorf("transaction %s: %w", transactionID, ErrNotFound)
	}
	patch.Apply(tx, m.now())
	return nil
}

func (m *MemoryStore) DeleteTransaction(ctx context.Context, transactionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.transactions[transactionID]; !ok {
		return fmt.Errorf("transaction %s: %w", transactionID, ErrNotFound)
	}
	delete(m.transactions, transactionID)
	return nil
}

func (m *MemoryStore) ListTransactions(ctx context.Context, ownerID string) ([]*model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.collect(func(tx *model.Transaction) bool {
		return tx.OwnerID == ownerID
	}), nil
}

func (m *MemoryStore) FindByOwnerAndRange(ctx context.Context, ownerID string, start, end time.Time) ([]*model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.collect(func(tx *model.Transaction) bool {
		return tx.OwnerID == ownerID && inRange(tx.Date, start, end)
	}), nil
}

// collect returns copies of matching transactions ordered by date then id.
// Callers must hold the read lock.
func (m *MemoryStore) collect(match func(*model.Transaction) bool) []*model.Transaction {
	result := make([]*model.Transaction, 0)
	for _, tx := range m.transactions {
		if match(tx) {
			result = append(result, cloneTransaction(tx))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func inRange(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}

func (m *MemoryStore) AggregateByCategory(ctx context.Context, ownerID string, start, end time.Time) ([]model.CategoryTotal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	groups := make(map[string]*model.CategoryTotal)
	for _, tx := range m.transactions {
		if tx.OwnerID != ownerID || !inRange(tx.Date, start, end) {
			continue
		}
		g, ok := groups[tx.CategoryID]
		if !ok {
			g = &model.CategoryTotal{CategoryID: tx.CategoryID, Total: decimal.Zero}
			groups[tx.CategoryID] = g
		}
		g.Total = g.Total.Add(tx.Amount)
		g.Count++
	}

	return sortedCategoryTotals(groups), nil
}

// sortedCategoryTotals flattens groups ordered by total descending, then id.
func sortedCategoryTotals(groups map[string]*model.CategoryTotal) []model.CategoryTotal {
	result := make([]model.CategoryTotal, 0, len(groups))
	for _, g := range groups {
		result = append(result, *g)
	}
	sort.Slice(result, func(i, j int) bool {
		if c := result[i].Total.Cmp(result[j].Total); c != 0 {
			return c > 0
		}
		return result[i].CategoryID < result[j].CategoryID
	})
	return result
}

type monthKey struct {
	year  int
	month time.Month
}

func (m *MemoryStore) AggregateByMonth(ctx context.Context, ownerID string, start, end time.Time) ([]model.MonthTotal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	groups := make(map[monthKey]*model.MonthTotal)
	for _, tx := range m.transactions {
		if tx.OwnerID != ownerID || !inRange(tx.Date, start, end) {
			continue
		}
		addToMonth(groups, tx.Date.In(start.Location()), tx.Amount)
	}

	return sortedMonthTotals(groups), nil
}

func addToMonth(groups map[monthKey]*model.MonthTotal, local time.Time, amount decimal.Decimal) {
	key := monthKey{year: local.Year(), month: local.Month()}
	g, ok := groups[key]
	if !ok {
		g = &model.MonthTotal{Year: key.year, Month: key.month, Total: decimal.Zero}
		groups[key] = g
	}
	g.Total = g.Total.Add(amount)
	g.Count++
}

// sortedMonthTotals flattens groups oldest month first.
func sortedMonthTotals(groups map[monthKey]*model.MonthTotal) []model.MonthTotal {
	result := make([]model.MonthTotal, 0, len(groups))
	for _, g := range groups {
		result = append(result, *g)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Year != result[j].Year {
			return result[i].Year < result[j].Year
		}
		return result[i].Month < result[j].Month
	})
	return result
}

func (m *MemoryStore) ReassignCategory(ctx context.Context, ownerID, fromCategoryID, toCategoryID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	moved := 0
	for _, tx := range m.transactions {
		if tx.OwnerID == ownerID && tx.CategoryID == fromCategoryID {
			tx.CategoryID = toCategoryID
			tx.UpdatedAt = now
			moved++
		}
	}
	return moved, nil
}

// Category operations

func (m *MemoryStore) CreateCategory(ctx context.Context, category *model.Category) (*model.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.createCategoryLocked(category)
}

func (m *MemoryStore) createCategoryLocked(category *model.Category) (*model.Category, error) {
	c := cloneCategory(category)
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if _, exists := m.categories[c.ID]; exists {
		return nil, fmt.Errorf("category %s: %w", c.ID, ErrAlreadyExists)
	}
	if c.Type == "" {
		c.Type = model.CategoryTypeExpense
	}
	now := m.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}

	m.categories[c.ID] = c
	m.categoryOrder = append(m.categoryOrder, c.ID)
	return cloneCategory(c), nil
}

func (m *MemoryStore) GetCategory(ctx context.Context, categoryID string) (*model.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.categories[categoryID]
	if !ok {
		return nil, fmt.Errorf("category %s: %w", categoryID, ErrNotFound)
	}
	return cloneCategory(c), nil
}

func (m *MemoryStore) ListCategories(ctx context.Context, ownerID string) ([]*model.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*model.Category, 0)
	for _, id := range m.categoryOrder {
		if c := m.categories[id]; c.OwnerID == ownerID {
			result = append(result, cloneCategory(c))
		}
	}
	return result, nil
}

func (m *MemoryStore) FindOrCreateCategory(ctx context.Context, ownerID, name string, categoryType model.CategoryType, color string) (*model.Category, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := model.NameKey(name)
	for _, id := range m.categoryOrder {
		if c := m.categories[id]; c.OwnerID == ownerID && c.Key() == key {
			return cloneCategory(c), false, nil
		}
	}

	c, err := m.createCategoryLocked(&model.Category{
		OwnerID: ownerID,
		Name:    name,
		Type:    categoryType,
		Color:   color,
	})
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

func (m *MemoryStore) DeleteCategory(ctx context.Context, categoryID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.categories[categoryID]; !ok {
		return false, nil
	}
	delete(m.categories, categoryID)
	for i, id := range m.categoryOrder {
		if id == categoryID {
			m.categoryOrder = append(m.categoryOrder[:i], m.categoryOrder[i+1:]...)
			break
		}
	}
	return true, nil
}
