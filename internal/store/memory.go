package store

import (
	"context"
	"sort"
	"sync"

	"github.com/savegress/spendcast/pkg/models"
)

// MemoryStore is an in-memory TransactionStore. It backs local
// development and the engine test suites.
type MemoryStore struct {
	mu           sync.RWMutex
	transactions []models.Transaction
	categories   map[string][]models.Category // by user ID
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		categories: make(map[string][]models.Category),
	}
}

// AddTransactions seeds transactions into the store.
func (s *MemoryStore) AddTransactions(txns ...models.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions = append(s.transactions, txns...)
}

// AddCategories seeds categories for a user.
func (s *MemoryStore) AddCategories(userID string, cats ...models.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[userID] = append(s.categories[userID], cats...)
}

// FindTransactions implements TransactionStore.
func (s *MemoryStore) FindTransactions(ctx context.Context, filter TransactionFilter) ([]models.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []models.Transaction
	for _, txn := range s.transactions {
		if filter.Matches(txn) {
			results = append(results, txn)
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Date.Before(results[j].Date)
	})

	return results, nil
}

// FindCategories implements TransactionStore.
func (s *MemoryStore) FindCategories(ctx context.Context, userID string) ([]models.Category, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	cats := s.categories[userID]
	out := make([]models.Category, len(cats))
	copy(out, cats)
	return out, nil
}
