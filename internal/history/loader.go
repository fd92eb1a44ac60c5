// Package history fetches and buckets a user's past transactions for
// the analytics engines.
//
// Known limitation: daily bucketing only emits days that have at least
// one transaction. Downstream moving-average, trend and seasonality
// computations treat adjacent buckets as consecutive calendar days even
// when days are skipped, which can skew slope and seasonality estimates
// on sparse histories. The sparse-series behavior is intentional and is
// not densified here.
package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/savegress/spendcast/internal/store"
	"github.com/savegress/spendcast/pkg/models"
)

const dayFormat = "2006-01-02"

// InsufficientDataError is raised when an engine's minimum history
// requirement is unmet. It is surfaced to the caller verbatim and never
// retried: more data cannot be manufactured.
type InsufficientDataError struct {
	Required int
	Have     int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient historical data: need %d days, have %d", e.Required, e.Have)
}

// IsInsufficientData reports whether err is an insufficient-data failure.
func IsInsufficientData(err error) bool {
	var target *InsufficientDataError
	return errors.As(err, &target)
}

// Loader fetches transaction history through the injected store
// capability. It holds no state of its own.
type Loader struct {
	store store.TransactionStore
}

// NewLoader creates a loader backed by the given store.
func NewLoader(s store.TransactionStore) *Loader {
	return &Loader{store: s}
}

// Transactions returns the query's non-deleted transactions of the
// given types with date in [from, to), sorted ascending by date. The
// query's optional scoping applies on top: Categories and Accounts
// narrow the filter, TransactionTypes intersects with the engine's
// required types, and recurring transactions are excluded unless
// IncludeRecurring is set.
func (l *Loader) Transactions(ctx context.Context, query models.PredictiveQuery, from, to time.Time, types ...models.TransactionType) ([]models.Transaction, error) {
	narrowed, ok := narrowTypes(types, query.TransactionTypes)
	if !ok {
		return nil, nil
	}
	txns, err := l.store.FindTransactions(ctx, store.TransactionFilter{
		UserID:           query.UserID,
		Types:            narrowed,
		Categories:       query.Categories,
		Accounts:         query.Accounts,
		ExcludeRecurring: !query.IncludeRecurring,
		From:             from,
		To:               to,
	})
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	return txns, nil
}

// narrowTypes intersects the engine's required types with the query's
// optional restriction, preserving the engine's order. An empty
// restriction keeps the engine's types; ok is false when the two sets
// are disjoint and nothing can match.
func narrowTypes(required, requested []models.TransactionType) ([]models.TransactionType, bool) {
	if len(requested) == 0 {
		return required, true
	}
	if len(required) == 0 {
		return requested, true
	}
	var out []models.TransactionType
	for _, t := range required {
		for _, r := range requested {
			if t == r {
				out = append(out, t)
				break
			}
		}
	}
	return out, len(out) > 0
}

// DailyExpenses loads the lookback window of expense history ending at
// reference (exclusive), bucketed by day, and fails with an
// InsufficientDataError when fewer than minDays distinct days exist.
// A minDays of 0 disables the check.
func (l *Loader) DailyExpenses(ctx context.Context, query models.PredictiveQuery, reference time.Time, lookbackDays, minDays int) ([]models.DailyBucket, error) {
	from := reference.AddDate(0, 0, -lookbackDays)
	txns, err := l.Transactions(ctx, query, from, reference, models.TransactionTypeExpense)
	if err != nil {
		return nil, err
	}
	buckets := BucketByDay(txns)
	if minDays > 0 && len(buckets) < minDays {
		return nil, &InsufficientDataError{Required: minDays, Have: len(buckets)}
	}
	return buckets, nil
}

// Categories returns the user's categories.
func (l *Loader) Categories(ctx context.Context, userID string) ([]models.Category, error) {
	cats, err := l.store.FindCategories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	return cats, nil
}

// BucketByDay groups transactions into one DailyBucket per distinct
// calendar day, sorted ascending. Amounts are summed as absolute values.
func BucketByDay(txns []models.Transaction) []models.DailyBucket {
	byDay := make(map[string]*models.DailyBucket)
	for _, txn := range txns {
		day := txn.Date.Format(dayFormat)
		bucket, ok := byDay[day]
		if !ok {
			bucket = &models.DailyBucket{Date: day}
			byDay[day] = bucket
		}
		bucket.Amount += txn.Amount.Abs().InexactFloat64()
		bucket.Count++
	}
	buckets := make([]models.DailyBucket, 0, len(byDay))
	for _, bucket := range byDay {
		buckets = append(buckets, *bucket)
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Date < buckets[j].Date
	})
	return buckets
}

// BucketNetFlowByDay groups income and expense transactions into a
// signed daily net-flow series: income adds, expense subtracts.
func BucketNetFlowByDay(txns []models.Transaction) []models.DailyBucket {
	byDay := make(map[string]*models.DailyBucket)
	for _, txn := range txns {
		day := txn.Date.Format(dayFormat)
		bucket, ok := byDay[day]
		if !ok {
			bucket = &models.DailyBucket{Date: day}
			byDay[day] = bucket
		}
		amount := txn.Amount.Abs().InexactFloat64()
		if txn.Type == models.TransactionTypeExpense {
			amount = -amount
		}
		bucket.Amount += amount
		bucket.Count++
	}
	buckets := make([]models.DailyBucket, 0, len(byDay))
	for _, bucket := range byDay {
		buckets = append(buckets, *bucket)
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Date < buckets[j].Date
	})
	return buckets
}

// GroupByCategory splits transactions per category ID, preserving the
// input's date ordering within each group.
func GroupByCategory(txns []models.Transaction) map[string][]models.Transaction {
	groups := make(map[string][]models.Transaction)
	for _, txn := range txns {
		groups[txn.CategoryID] = append(groups[txn.CategoryID], txn)
	}
	return groups
}

// Amounts projects the daily amounts out of a bucket series.
func Amounts(buckets []models.DailyBucket) []float64 {
	values := make([]float64, len(buckets))
	for i, bucket := range buckets {
		values[i] = bucket.Amount
	}
	return values
}
