package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Psiphon-Labs/bolt"
	"github.com/fxamacker/cbor/v2"

	keenerrors "github.com/maksimkurb/keen-dns/src/internal/errors"
	"github.com/maksimkurb/keen-dns/src/internal/log"
	"github.com/maksimkurb/keen-dns/src/internal/models"
	"github.com/maksimkurb/keen-dns/src/internal/querylog"
)

var (
	// ErrRecordExists is returned when inserting a record whose ID is taken.
	ErrRecordExists = errors.New("query record already exists")
	// ErrRecordNotFound is returned when updating or reading a missing record.
	ErrRecordNotFound = errors.New("query record not found")
)

var queriesBucket = []byte("queries")

const openRetries = 3

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
}

var logger = log.Tag("storage")

// QueryStore is a bolt backed querylog.Store.
type QueryStore struct {
	db *bolt.DB
}

var _ querylog.Store = (*QueryStore)(nil)

// Open opens or creates the query database at path. A file that cannot be
// opened or fails the consistency check is removed and recreated. A file locked
// by another process is left alone.
func Open(path string) (*QueryStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, keenerrors.NewStorageError("failed to create database directory", err)
		}
	}

	var db *bolt.DB
	var err error

	for retry := 0; retry < openRetries; retry++ {
		if retry > 0 {
			logger.Warnf("Retrying to open query database (%d)", retry)
		}

		db, err = bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
		if errors.Is(err, bolt.ErrTimeout) {
			// Another process (normally the service) holds the file lock.
			return nil, keenerrors.NewStorageError("query database is locked by another process", err)
		}
		if err != nil {
			logger.Warnf("Failed to open query database %s: %v", path, err)
			_ = os.Remove(path)
			continue
		}

		err = db.View(func(tx *bolt.Tx) error {
			return tx.SynchronousCheck()
		})
		if err != nil {
			logger.Warnf("Query database %s is corrupt: %v", path, err)
			_ = db.Close()
			_ = os.Remove(path)
			continue
		}

		break
	}
	if err != nil {
		return nil, keenerrors.NewStorageError("failed to open query database", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(queriesBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, keenerrors.NewStorageError("failed to create queries bucket", err)
	}

	return &QueryStore{db: db}, nil
}

// Close closes the database.
func (s *QueryStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *QueryStore) Path() string {
	return s.db.Path()
}

// RunInTransaction runs fn in a read-write transaction. Nothing written by fn
// is kept if it returns an error.
func (s *QueryStore) RunInTransaction(fn func(tx querylog.StoreTx) error) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return fn(&storeTx{bucket: tx.Bucket(queriesBucket)})
	})
	if err != nil {
		return keenerrors.NewStorageError("query log transaction failed", err)
	}
	return nil
}

type storeTx struct {
	bucket *bolt.Bucket
}

func (tx *storeTx) Insert(record *models.QueryRecord) error {
	key := record.ID[:]
	if tx.bucket.Get(key) != nil {
		return fmt.Errorf("%w: %s", ErrRecordExists, record.ID)
	}
	return tx.put(key, record)
}

func (tx *storeTx) Update(record *models.QueryRecord) error {
	key := record.ID[:]
	if tx.bucket.Get(key) == nil {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, record.ID)
	}
	return tx.put(key, record)
}

func (tx *storeTx) put(key []byte, record *models.QueryRecord) error {
	value, err := encMode.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", record.ID, err)
	}
	return tx.bucket.Put(key, value)
}

// Get returns the record with the given ID.
func (s *QueryStore) Get(id models.RecordID) (*models.QueryRecord, error) {
	var record *models.QueryRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(queriesBucket).Get(id[:])
		if value == nil {
			return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
		}
		var err error
		record, err = decodeRecord(value)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Recent returns up to limit records, newest first. A limit <= 0 returns all
// records.
func (s *QueryStore) Recent(limit int) ([]*models.QueryRecord, error) {
	var records []*models.QueryRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(queriesBucket).Cursor()
		for key, value := cursor.Last(); key != nil; key, value = cursor.Prev() {
			if limit > 0 && len(records) >= limit {
				break
			}
			record, err := decodeRecord(value)
			if err != nil {
				logger.Warnf("Skipping undecodable record %x: %v", key, err)
				continue
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, keenerrors.NewStorageError("failed to read query records", err)
	}
	return records, nil
}

// Count returns the number of stored records.
func (s *QueryStore) Count() (int, error) {
	var count int
	err := s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(queriesBucket).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, keenerrors.NewStorageError("failed to count query records", err)
	}
	return count, nil
}

func decodeRecord(value []byte) (*models.QueryRecord, error) {
	var record models.QueryRecord
	if err := decMode.Unmarshal(value, &record); err != nil {
		return nil, err
	}
	return &record, nil
}
