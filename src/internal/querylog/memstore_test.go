package querylog

import (
	"errors"
	"sort"
	"sync"

	"github.com/maksimkurb/keen-dns/src/internal/models"
)

var errInjected = errors.New("injected store failure")

// memStore is a transactional in-memory Store. Writes go to a staging copy that
// replaces the committed map only when the transaction function succeeds.
type memStore struct {
	mu       sync.Mutex
	records  map[models.RecordID]*models.QueryRecord
	inserts  int
	updates  int
	failNext bool
	// writes records the names of all committed writes in order.
	writes []string
}

func newMemStore() *memStore {
	return &memStore{records: make(map[models.RecordID]*models.QueryRecord)}
}

type memTx struct {
	staged  map[models.RecordID]*models.QueryRecord
	inserts int
	updates int
	writes  []string
}

func (tx *memTx) Insert(r *models.QueryRecord) error {
	if _, ok := tx.staged[r.ID]; ok {
		return errors.New("record exists")
	}
	tx.staged[r.ID] = r.Clone()
	tx.inserts++
	tx.writes = append(tx.writes, "insert:"+r.QuestionName)
	return nil
}

func (tx *memTx) Update(r *models.QueryRecord) error {
	if _, ok := tx.staged[r.ID]; !ok {
		return errors.New("record not found")
	}
	tx.staged[r.ID] = r.Clone()
	tx.updates++
	tx.writes = append(tx.writes, "update:"+r.QuestionName)
	return nil
}

func (s *memStore) RunInTransaction(fn func(tx StoreTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{staged: make(map[models.RecordID]*models.QueryRecord, len(s.records))}
	for k, v := range s.records {
		tx.staged[k] = v
	}
	if err := fn(tx); err != nil {
		return err
	}
	if s.failNext {
		s.failNext = false
		return errInjected
	}
	s.records = tx.staged
	s.inserts += tx.inserts
	s.updates += tx.updates
	s.writes = append(s.writes, tx.writes...)
	return nil
}

func (s *memStore) all() []*models.QueryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.QueryRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionTime.Before(out[j].QuestionTime) })
	return out
}

func (s *memStore) counts() (inserts, updates int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inserts, s.updates
}
