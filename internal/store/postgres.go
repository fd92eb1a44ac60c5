package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/savegress/spendcast/pkg/models"
)

// PostgresStore is a pgx-backed TransactionStore.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects a pool and verifies it with a ping.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// buildTransactionsQuery assembles the FindTransactions SQL. Every
// filter column is qualified with the transactions alias because the
// categories join shares column names (user_id at least).
func buildTransactionsQuery(filter TransactionFilter) (string, []interface{}) {
	var (
		conditions = []string{"t.is_deleted = false"}
		args       []interface{}
	)

	addArg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.UserID != "" {
		conditions = append(conditions, "t.user_id = "+addArg(filter.UserID))
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		conditions = append(conditions, "t.type = ANY("+addArg(types)+")")
	}
	if filter.CategoryID != "" {
		conditions = append(conditions, "t.category_id = "+addArg(filter.CategoryID))
	}
	if len(filter.Categories) > 0 {
		conditions = append(conditions, "t.category_id = ANY("+addArg(filter.Categories)+")")
	}
	if len(filter.Accounts) > 0 {
		conditions = append(conditions, "t.account_id = ANY("+addArg(filter.Accounts)+")")
	}
	if filter.ExcludeRecurring {
		conditions = append(conditions, "t.is_recurring = false")
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, "t.date >= "+addArg(filter.From))
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, "t.date < "+addArg(filter.To))
	}

	query := `
		SELECT t.id, t.user_id, t.type, t.amount, t.category_id,
		       COALESCE(c.name, ''), COALESCE(t.account_id, ''),
		       COALESCE(t.description, ''), t.date, t.is_recurring
		FROM transactions t
		LEFT JOIN categories c ON c.id = t.category_id
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY t.date ASC`

	return query, args
}

// FindTransactions implements TransactionStore.
func (s *PostgresStore) FindTransactions(ctx context.Context, filter TransactionFilter) ([]models.Transaction, error) {
	query, args := buildTransactionsQuery(filter)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var results []models.Transaction
	for rows.Next() {
		var (
			txn    models.Transaction
			amount decimal.Decimal
		)
		if err := rows.Scan(
			&txn.ID, &txn.UserID, &txn.Type, &amount, &txn.CategoryID,
			&txn.CategoryName, &txn.AccountID, &txn.Description,
			&txn.Date, &txn.IsRecurring,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txn.Amount = amount
		results = append(results, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}

	return results, nil
}

// FindCategories implements TransactionStore.
func (s *PostgresStore) FindCategories(ctx context.Context, userID string) ([]models.Category, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name FROM categories WHERE user_id = $1 ORDER BY name ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var results []models.Category
	for rows.Next() {
		var cat models.Category
		if err := rows.Scan(&cat.ID, &cat.Name); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		results = append(results, cat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read categories: %w", err)
	}

	return results, nil
}
