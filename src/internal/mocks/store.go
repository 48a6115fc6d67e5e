package mocks

import (
	"sort"
	"sync"

	"github.com/maksimkurb/keen-dns/src/internal/models"
	"github.com/maksimkurb/keen-dns/src/internal/querylog"
)

// MockQueryStore is an in-memory query store.
//
// Writes are applied directly without rollback. Set RunInTransactionFunc or
// the error fields to simulate failures.
type MockQueryStore struct {
	// RunInTransactionFunc replaces RunInTransaction if not nil
	RunInTransactionFunc func(fn func(tx querylog.StoreTx) error) error

	// RecentErr and CountErr are returned by Recent and Count if not nil
	RecentErr error
	CountErr  error

	mu      sync.Mutex
	records map[models.RecordID]*models.QueryRecord

	// Track calls for verification in tests
	TransactionCalls int
	InsertCalls      int
	UpdateCalls      int
}

// NewMockQueryStore creates an empty mock store.
func NewMockQueryStore() *MockQueryStore {
	return &MockQueryStore{records: make(map[models.RecordID]*models.QueryRecord)}
}

// RunInTransaction runs fn against the in-memory records.
func (m *MockQueryStore) RunInTransaction(fn func(tx querylog.StoreTx) error) error {
	m.mu.Lock()
	m.TransactionCalls++
	m.mu.Unlock()

	if m.RunInTransactionFunc != nil {
		return m.RunInTransactionFunc(fn)
	}
	return fn(mockTx{store: m})
}

type mockTx struct {
	store *MockQueryStore
}

func (tx mockTx) Insert(record *models.QueryRecord) error {
	return tx.store.Put(record, true)
}

func (tx mockTx) Update(record *models.QueryRecord) error {
	return tx.store.Put(record, false)
}

// Put stores a copy of record and counts it as an insert or update.
func (m *MockQueryStore) Put(record *models.QueryRecord, insert bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.records == nil {
		m.records = make(map[models.RecordID]*models.QueryRecord)
	}
	if insert {
		m.InsertCalls++
	} else {
		m.UpdateCalls++
	}
	m.records[record.ID] = record.Clone()
	return nil
}

// Recent returns up to limit records, newest question first.
func (m *MockQueryStore) Recent(limit int) ([]*models.QueryRecord, error) {
	if m.RecentErr != nil {
		return nil, m.RecentErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.QueryRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionTime.After(out[j].QuestionTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count returns the number of stored records.
func (m *MockQueryStore) Count() (int, error) {
	if m.CountErr != nil {
		return 0, m.CountErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records), nil
}
