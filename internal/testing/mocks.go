package testing

import (
	"context"
	"sort"
	"sync"

	"github.com/finz/cashflow-risk/internal/domain"
)

// MockTransactionStore is an in-memory domain.TransactionStore
type MockTransactionStore struct {
	mu           sync.Mutex
	transactions []domain.Transaction
	err          error
	nextID       int64
}

// NewMockTransactionStore creates an empty store
func NewMockTransactionStore() *MockTransactionStore {
	return &MockTransactionStore{nextID: 1}
}

// SetError makes every subsequent call fail with err
func (m *MockTransactionStore) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// InsertMany appends transactions and assigns IDs
func (m *MockTransactionStore) InsertMany(_ context.Context, txs []domain.Transaction) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	for _, tx := range txs {
		tx.ID = m.nextID
		m.nextID++
		m.transactions = append(m.transactions, tx)
	}
	return len(txs), nil
}

// ListByBusiness returns one business's transactions in date, insertion order
func (m *MockTransactionStore) ListByBusiness(ctx context.Context, businessID string) ([]domain.Transaction, error) {
	all, err := m.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.Transaction
	for _, tx := range all {
		if tx.BusinessID == businessID {
			out = append(out, tx)
		}
	}
	return out, nil
}

// ListAll returns every transaction ordered by business, date and insertion order
func (m *MockTransactionStore) ListAll(_ context.Context) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]domain.Transaction, len(m.transactions))
	copy(out, m.transactions)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BusinessID != out[j].BusinessID {
			return out[i].BusinessID < out[j].BusinessID
		}
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ListBusinessIDs returns distinct business IDs in ascending order
func (m *MockTransactionStore) ListBusinessIDs(ctx context.Context) ([]string, error) {
	all, err := m.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, tx := range all {
		if len(ids) == 0 || ids[len(ids)-1] != tx.BusinessID {
			ids = append(ids, tx.BusinessID)
		}
	}
	return ids, nil
}

// MockRenderer records the driver reports it receives
type MockRenderer struct {
	mu      sync.Mutex
	Text    string
	Err     error
	Reports []domain.DriverReport
}

// Render returns the configured text or error
func (m *MockRenderer) Render(_ context.Context, report domain.DriverReport) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reports = append(m.Reports, report)
	return m.Text, m.Err
}
