package querylog

import "github.com/maksimkurb/keen-dns/src/internal/models"

// Store is the transactional sink of query records.
type Store interface {
	// RunInTransaction runs fn atomically. If fn returns an error, nothing
	// written through tx is kept.
	RunInTransaction(fn func(tx StoreTx) error) error
}

// StoreTx writes records inside a transaction, keyed by QueryRecord.ID.
type StoreTx interface {
	Insert(record *models.QueryRecord) error
	Update(record *models.QueryRecord) error
}
