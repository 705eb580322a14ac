// Package history persists one record per scenario run under the
// harness home dir, so past outcomes can be listed after the fact.
package history

import (
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

var ErrNotFound = errors.New("run record not found")

// Record is the stored outcome of one scenario run.
type Record struct {
	ID       string    `json:"id"`
	Scenario string    `json:"scenario"`
	Outcome  string    `json:"outcome"`
	Error    string    `json:"error,omitempty"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
}

// Store is a leveldb-backed record store, keyed by run ID.
type Store struct {
	db *leveldb.DB
}

// Open opens (or creates) the store at path.
func Open(path string) (*Store, error) {
	s, err := storage.OpenFile(path, false)
	if err != nil {
		return nil, err
	}
	db, err := leveldb.Open(s, nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// NewMemStore returns an in-memory store, used by tests.
func NewMemStore() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Put(r *Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.db.Put([]byte(r.ID), data, nil)
}

func (s *Store) Get(id string) (*Record, error) {
	data, err := s.db.Get([]byte(id), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r := new(Record)
	if err := json.Unmarshal(data, r); err != nil {
		return nil, err
	}
	return r, nil
}

// List returns all records, most recent first.
func (s *Store) List() ([]*Record, error) {
	var out []*Record
	iter := s.db.NewIterator(nil, nil)
	for iter.Next() {
		r := new(Record)
		if err := json.Unmarshal(iter.Value(), r); err != nil {
			iter.Release()
			return nil, err
		}
		out = append(out, r)
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Started.After(out[j].Started) })
	return out, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
