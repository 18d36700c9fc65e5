package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/castlemilk/pfinance/spending/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// uniqueViolation is the Postgres SQLSTATE for duplicate keys.
const uniqueViolation = "23505"

var transactionColumns = []string{
	"id", "owner_id", "vendor", "description", "occurred_at", "amount::text",
	"category_id", "payment_type", "receipt_id", "created_at", "updated_at",
}

var categoryColumns = []string{
	"id", "owner_id", "name", "type", "color", "created_at", "updated_at",
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore implements the Store interface on Postgres. Aggregations run
// as GROUP BY queries.
type PostgresStore struct {
	db   *pgxpool.Pool
	psql squirrel.StatementBuilderType
	now  func() time.Time
}

// NewPostgresPool opens and pings a connection pool.
func NewPostgresPool(ctx context.Context, databaseURL string, logger *zap.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connection established",
		zap.String("host", poolConfig.ConnConfig.Host),
		zap.String("database", poolConfig.ConnConfig.Database),
	)

	return pool, nil
}

// NewPostgresStore creates a new Postgres-backed store
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		db:   db,
		psql: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now:  time.Now,
	}
}

func translatePgError(what string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", what, ErrAlreadyExists)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var tx model.Transaction
	var amount string
	if err := row.Scan(
		&tx.ID, &tx.OwnerID, &tx.Vendor, &tx.Description, &tx.Date, &amount,
		&tx.CategoryID, &tx.PaymentType, &tx.ReceiptID, &tx.CreatedAt, &tx.UpdatedAt,
	); err != nil {
		return nil, err
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount of transaction %s: %w", tx.ID, err)
	}
	tx.Amount = parsed
	return &tx, nil
}

func scanCategory(row pgx.Row) (*model.Category, error) {
	var c model.Category
	var categoryType string
	if err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &categoryType, &c.Color, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Type = model.CategoryType(categoryType)
	return &c, nil
}

// Transaction operations

func (s *PostgresStore) CreateTransaction(ctx context.Context, tx *model.Transaction) error {
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

	sql, args, err := s.psql.Insert("transactions").
		Columns("id", "owner_id", "vendor", "description", "occurred_at", "amount",
			"category_id", "payment_type", "receipt_id", "created_at", "updated_at").
		Values(tx.ID, tx.OwnerID, tx.Vendor, tx.Description, tx.Date, tx.Amount.String(),
			tx.CategoryID, tx.PaymentType, tx.ReceiptID, tx.CreatedAt, tx.UpdatedAt).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := s.db.Exec(ctx, sql, args...); err != nil {
		return translatePgError("failed to create transaction", err)
	}
	return nil
}

func (s *PostgresStore) GetTransaction(ctx context.Context, transactionID string) (*model.Transaction, error) {
	sql, args, err := s.psql.Select(transactionColumns...).
		From("transactions").
		Where(squirrel.Eq{"id": transactionID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	tx, err := scanTransaction(s.db.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, translatePgError("transaction "+transactionID, err)
	}
	return tx, nil
}

func (s *PostgresStore) UpdateTransaction(ctx context.Context, transactionID string, patch model.TransactionPatch) error {
	if patch.IsEmpty() {
		return ErrEmptyPatch
	}
	builder := s.psql.Update("transactions").
		Set("updated_at", s.now()).
		Where(squirrel.Eq{"id": transactionID})
	if patch.CategoryID != nil {
		builder = builder.Set("category_id", *patch.CategoryID)
	}
	if patch.Amount != nil {
		builder = builder.Set("amount", patch.Amount.String())
	}
	if patch.Vendor != nil {
		builder = builder.Set("vendor", *patch.Vendor)
	}
	if patch.PaymentType != nil {
		builder = builder.Set("payment_type", *patch.PaymentType)
	}

	sql, args, err := builder.ToSql()
	if err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return translatePgError("failed to update transaction "+transactionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction %s: %w", transactionID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) DeleteTransaction(ctx context.Context, transactionID string) error {
	sql, args, err := s.psql.Delete("transactions").Where(squirrel.Eq{"id": transactionID}).ToSql()
	if err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return translatePgError("failed to delete transaction "+transactionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction %s: %w", transactionID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListTransactions(ctx context.Context, ownerID string) ([]*model.Transaction, error) {
	return s.queryTransactions(ctx, s.psql.Select(transactionColumns...).
		From("transactions").
		Where(squirrel.Eq{"owner_id": ownerID}).
		OrderBy("occurred_at", "id"))
}

func (s *PostgresStore) FindByOwnerAndRange(ctx context.Context, ownerID string, start, end time.Time) ([]*model.Transaction, error) {
	return s.queryTransactions(ctx, s.psql.Select(transactionColumns...).
		From("transactions").
		Where(rangeFilter(ownerID, start, end)).
		OrderBy("occurred_at", "id"))
}

func rangeFilter(ownerID string, start, end time.Time) squirrel.And {
	return squirrel.And{
		squirrel.Eq{"owner_id": ownerID},
		squirrel.GtOrEq{"occurred_at": start},
		squirrel.LtOrEq{"occurred_at": end},
	}
}

func (s *PostgresStore) queryTransactions(ctx context.Context, query squirrel.SelectBuilder) ([]*model.Transaction, error) {
	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	txs := make([]*model.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (s *PostgresStore) AggregateByCategory(ctx context.Context, ownerID string, start, end time.Time) ([]model.CategoryTotal, error) {
	sql, args, err := s.psql.Select("category_id", "SUM(amount)::text", "COUNT(*)").
		From("transactions").
		Where(rangeFilter(ownerID, start, end)).
		GroupBy("category_id").
		OrderBy("SUM(amount) DESC", "category_id").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by category: %w", err)
	}
	defer rows.Close()

	result := make([]model.CategoryTotal, 0)
	for rows.Next() {
		var g model.CategoryTotal
		var total string
		if err := rows.Scan(&g.CategoryID, &total, &g.Count); err != nil {
			return nil, err
		}
		if g.Total, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("failed to parse category total: %w", err)
		}
		result = append(result, g)
	}
	return result, rows.Err()
}

// AggregateByMonth groups by calendar month in start's location. Postgres
// needs a zone name; for time.Local there is none, so grouping happens
// client-side over the same range.
func (s *PostgresStore) AggregateByMonth(ctx context.Context, ownerID string, start, end time.Time) ([]model.MonthTotal, error) {
	zone := start.Location().String()
	if start.Location() == time.Local {
		txs, err := s.FindByOwnerAndRange(ctx, ownerID, start, end)
		if err != nil {
			return nil, err
		}
		groups := make(map[monthKey]*model.MonthTotal)
		for _, tx := range txs {
			addToMonth(groups, tx.Date.In(start.Location()), tx.Amount)
		}
		return sortedMonthTotals(groups), nil
	}

	sql, args, err := s.psql.Select().
		Column(squirrel.Expr("EXTRACT(YEAR FROM occurred_at AT TIME ZONE ?)::int AS year", zone)).
		Column(squirrel.Expr("EXTRACT(MONTH FROM occurred_at AT TIME ZONE ?)::int AS month", zone)).
		Column("SUM(amount)::text").
		Column("COUNT(*)").
		From("transactions").
		Where(rangeFilter(ownerID, start, end)).
		GroupBy("year", "month").
		OrderBy("year", "month").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by month: %w", err)
	}
	defer rows.Close()

	result := make([]model.MonthTotal, 0)
	for rows.Next() {
		var g model.MonthTotal
		var month int
		var total string
		if err := rows.Scan(&g.Year, &month, &total, &g.Count); err != nil {
			return nil, err
		}
		g.Month = time.Month(month)
		if g.Total, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("failed to parse month total: %w", err)
		}
		result = append(result, g)
	}
	return result, rows.Err()
}

func (s *PostgresStore) ReassignCategory(ctx context.Context, ownerID, fromCategoryID, toCategoryID string) (int, error) {
	sql, args, err := s.psql.Update("transactions").
		Set("category_id", toCategoryID).
		Set("updated_at", s.now()).
		Where(squirrel.Eq{"owner_id": ownerID, "category_id": fromCategoryID}).
		ToSql()
	if err != nil {
		return 0, err
	}

	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to reassign transactions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Category operations

func (s *PostgresStore) prepareCategory(category *model.Category) *model.Category {
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

func (s *PostgresStore) insertCategory(ctx context.Context, q querier, c *model.Category) error {
	sql, args, err := s.psql.Insert("categories").
		Columns(categoryColumns...).
		Values(c.ID, c.OwnerID, c.Name, string(c.Type), c.Color, c.CreatedAt, c.UpdatedAt).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := q.Exec(ctx, sql, args...); err != nil {
		return translatePgError("failed to create category", err)
	}
	return nil
}

func (s *PostgresStore) CreateCategory(ctx context.Context, category *model.Category) (*model.Category, error) {
	c := s.prepareCategory(category)
	if err := s.insertCategory(ctx, s.db, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *PostgresStore) getCategory(ctx context.Context, q querier, categoryID string) (*model.Category, error) {
	sql, args, err := s.psql.Select(categoryColumns...).
		From("categories").
		Where(squirrel.Eq{"id": categoryID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	c, err := scanCategory(q.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, translatePgError("category "+categoryID, err)
	}
	return c, nil
}

func (s *PostgresStore) GetCategory(ctx context.Context, categoryID string) (*model.Category, error) {
	return s.getCategory(ctx, s.db, categoryID)
}

func (s *PostgresStore) listCategories(ctx context.Context, q querier, ownerID string) ([]*model.Category, error) {
	sql, args, err := s.psql.Select(categoryColumns...).
		From("categories").
		Where(squirrel.Eq{"owner_id": ownerID}).
		OrderBy("created_at", "seq").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	categories := make([]*model.Category, 0)
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *PostgresStore) ListCategories(ctx context.Context, ownerID string) ([]*model.Category, error) {
	return s.listCategories(ctx, s.db, ownerID)
}

// claimedCategory returns the category holding the (owner, key) claim.
func (s *PostgresStore) claimedCategory(ctx context.Context, q querier, ownerID, key string, lock bool) (*model.Category, error) {
	query := s.psql.Select("category_id").
		From("category_names").
		Where(squirrel.Eq{"owner_id": ownerID, "name_key": key})
	if lock {
		query = query.Suffix("FOR UPDATE")
	}
	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var categoryID string
	if err := q.QueryRow(ctx, sql, args...).Scan(&categoryID); err != nil {
		return nil, translatePgError("category name claim", err)
	}
	return s.getCategory(ctx, q, categoryID)
}

// FindOrCreateCategory resolves a category through the category_names claim
// table. The claim's primary key serialises concurrent creators; a loser
// rolls back its insert and returns the winner's category.
func (s *PostgresStore) FindOrCreateCategory(ctx context.Context, ownerID, name string, categoryType model.CategoryType, color string) (*model.Category, bool, error) {
	key := model.NameKey(name)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	c, err := s.claimedCategory(ctx, tx, ownerID, key, true)
	if err == nil {
		if err := tx.Commit(ctx); err != nil {
			return nil, false, fmt.Errorf("failed to commit: %w", err)
		}
		return c, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	// Legacy categories predate the claim table. Claim the oldest match.
	existing, err := s.listCategories(ctx, tx, ownerID)
	if err != nil {
		return nil, false, err
	}
	c = nil
	for _, candidate := range existing {
		if candidate.Key() == key {
			c = candidate
			break
		}
	}
	created := false
	if c == nil {
		c = s.prepareCategory(&model.Category{OwnerID: ownerID, Name: name, Type: categoryType, Color: color})
		if err := s.insertCategory(ctx, tx, c); err != nil {
			return nil, false, err
		}
		created = true
	}

	sql, args, err := s.psql.Insert("category_names").
		Columns("owner_id", "name_key", "category_id").
		Values(ownerID, key, c.ID).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return nil, false, err
	}
	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return nil, false, fmt.Errorf("failed to claim category name: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Lost the race; discard our insert and use the winner.
		_ = tx.Rollback(ctx)
		winner, err := s.claimedCategory(ctx, s.db, ownerID, key, false)
		if err != nil {
			return nil, false, err
		}
		return winner, false, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit: %w", err)
	}
	return c, created, nil
}

// DeleteCategory deletes a category. Its name claim, if any, cascades.
func (s *PostgresStore) DeleteCategory(ctx context.Context, categoryID string) (bool, error) {
	sql, args, err := s.psql.Delete("categories").Where(squirrel.Eq{"id": categoryID}).ToSql()
	if err != nil {
		return false, err
	}

	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("failed to delete category %s: %w", categoryID, err)
	}
	return tag.RowsAffected() > 0, nil
}
