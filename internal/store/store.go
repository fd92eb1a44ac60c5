// Package store defines the data-access capability consumed by the
// analytics engines. Persistence itself lives behind this interface;
// the engines only ever see already-fetched, read-only projections.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/savegress/spendcast/pkg/models"
)

var ErrNotFound = errors.New("not found")

// TransactionFilter narrows a FindTransactions call. Deleted
// transactions are always excluded.
type TransactionFilter struct {
	UserID           string
	Types            []models.TransactionType
	CategoryID       string
	Categories       []string
	Accounts         []string
	ExcludeRecurring bool
	From             time.Time
	To               time.Time
}

// TransactionStore is the capability injected into every engine.
type TransactionStore interface {
	// FindTransactions returns non-deleted transactions matching the
	// filter, sorted ascending by date.
	FindTransactions(ctx context.Context, filter TransactionFilter) ([]models.Transaction, error)

	// FindCategories returns the user's categories.
	FindCategories(ctx context.Context, userID string) ([]models.Category, error)
}

// Matches reports whether a transaction passes the filter. Shared by the
// in-memory store; the postgres store pushes the same conditions into SQL.
func (f TransactionFilter) Matches(txn models.Transaction) bool {
	if txn.IsDeleted {
		return false
	}
	if f.UserID != "" && txn.UserID != f.UserID {
		return false
	}
	if len(f.Types) > 0 && !containsType(f.Types, txn.Type) {
		return false
	}
	if f.CategoryID != "" && txn.CategoryID != f.CategoryID {
		return false
	}
	if len(f.Categories) > 0 && !containsString(f.Categories, txn.CategoryID) {
		return false
	}
	if len(f.Accounts) > 0 && !containsString(f.Accounts, txn.AccountID) {
		return false
	}
	if f.ExcludeRecurring && txn.IsRecurring {
		return false
	}
	if !f.From.IsZero() && txn.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !txn.Date.Before(f.To) {
		return false
	}
	return true
}

func containsType(types []models.TransactionType, t models.TransactionType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func containsString(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
