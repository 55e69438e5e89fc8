package persistence

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/jxskiss/base62"
)

var (
	runPrefix = []byte("run/")
	latestKey = []byte("meta/latest")
)

// badgerRepository is the BadgerDB implementation of the RunRepository.
type badgerRepository struct {
	db  *badger.DB
	now func() time.Time
}

// NewBadgerRepository creates and returns a new repository instance connected to a BadgerDB database.
func NewBadgerRepository(dbPath string) (RunRepository, error) {
	opts := badger.DefaultOptions(dbPath)
	// Badger's own logging is disabled to keep our app's logs clean.
	// Errors will still be returned from DB operations.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &badgerRepository{db: db, now: time.Now}, nil
}

// NewRunID returns a short, URL-safe, time-prefixed run identifier.
func NewRunID(at time.Time) (string, error) {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint64(buf[:8], uint64(at.UnixNano()))
	if _, err := rand.Read(buf[8:]); err != nil {
		return "", err
	}
	return base62.EncodeToString(buf), nil
}

func runKey(id string) []byte {
	return append(append([]byte{}, runPrefix...), id...)
}

// SaveRun atomically stores the record and marks it as the latest run.
func (r *badgerRepository) SaveRun(rec *RunRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now().UTC()
	}
	if rec.ID == "" {
		id, err := NewRunID(rec.CreatedAt)
		if err != nil {
			return fmt.Errorf("generate run id: %w", err)
		}
		rec.ID = id
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	return r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(runKey(rec.ID), data); err != nil {
			return err
		}
		return txn.Set(latestKey, []byte(rec.ID))
	})
}

// LoadRun loads a run by ID.
// If the key is not found, it returns (nil, nil) to indicate no run is present.
func (r *badgerRepository) LoadRun(id string) (*RunRecord, error) {
	var rec RunRecord

	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return errors.New("run value is empty in database")
			}
			return json.Unmarshal(val, &rec)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// LatestRun loads the most recently saved run.
func (r *badgerRepository) LatestRun() (*RunRecord, error) {
	var id string
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(latestKey)
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		id = string(val)
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.LoadRun(id)
}

// ListRuns scans every stored run and returns them newest first.
func (r *badgerRepository) ListRuns(limit int) ([]*RunRecord, error) {
	var runs []*RunRecord

	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(runPrefix); it.ValidForPrefix(runPrefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec RunRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				runs = append(runs, &rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// Close gracefully closes the connection to the database.
func (r *badgerRepository) Close() error {
	return r.db.Close()
}
