// Package storage persists relation statistics in BadgerDB so planning
// sessions can start from statistics gathered elsewhere.
package storage

import (
	"bytes"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/wbrown/janus-reasoner/datalog"
	"github.com/wbrown/janus-reasoner/datalog/stats"
)

var relationPrefix = []byte("rel/")

// StatsStore implements stats.Source over a BadgerDB directory. Every read
// sees the latest committed write.
type StatsStore struct {
	db     *badger.DB
	logger *zap.Logger

	// Statistics
	reads int64
}

// Ensure StatsStore can feed a planner
var _ stats.Source = (*StatsStore)(nil)

// Options configures a StatsStore
type Options struct {
	// InMemory keeps the database out of the filesystem; path is ignored
	InMemory bool
	Logger   *zap.Logger
}

// Open opens or creates a statistics database at path
func Open(path string, options Options) (*StatsStore, error) {
	opts := badger.DefaultOptions(path)
	if options.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil // badger is chatty at INFO

	// Statistics are tiny; keep them in the LSM tree
	opts.MemTableSize = 8 << 20
	opts.ValueThreshold = 1 << 10

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "opening stats database %q", path)
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsStore{db: db, logger: logger}, nil
}

// Close closes the store
func (s *StatsStore) Close() error {
	return s.db.Close()
}

func relationKey(name datalog.Keyword) []byte {
	return append(append([]byte(nil), relationPrefix...), name.String()...)
}

// Put stores r, replacing any statistics already stored for its relation
func (s *StatsStore) Put(r stats.Relation) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return putRelation(txn, r)
	})
}

func putRelation(txn *badger.Txn, r stats.Relation) error {
	value, err := encodeRelation(r)
	if err != nil {
		return err
	}
	if err := txn.Set(relationKey(r.Name), value); err != nil {
		return errors.Wrapf(err, "writing statistics of %s", r.Name)
	}
	return nil
}

// Import stores every relation of table in one transaction
func (s *StatsStore) Import(table *stats.Table) error {
	relations := table.Relations()
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, r := range relations {
			if err := putRelation(txn, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Debug("imported statistics", zap.Int("relations", len(relations)))
	return nil
}

// Load returns the statistics of one relation
func (s *StatsStore) Load(name datalog.Keyword) (stats.Relation, bool, error) {
	atomic.AddInt64(&s.reads, 1)
	var r stats.Relation
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(relationKey(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			decoded, err := decodeRelation(name, val)
			if err != nil {
				return err
			}
			r, found = decoded, true
			return nil
		})
	})
	if err != nil {
		return stats.Relation{}, false, errors.Wrapf(err, "reading statistics of %s", name)
	}
	return r, found, nil
}

// Delete removes the statistics of one relation
func (s *StatsStore) Delete(name datalog.Keyword) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(relationKey(name))
	})
}

// Snapshot copies every stored relation into an in-memory table. Planning
// against a snapshot avoids a database read per lookup.
func (s *StatsStore) Snapshot() (*stats.Table, error) {
	table := stats.NewTable()
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = relationPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(relationPrefix); it.ValidForPrefix(relationPrefix); it.Next() {
			item := it.Item()
			name := datalog.NewKeyword(string(bytes.TrimPrefix(item.Key(), relationPrefix)))
			err := item.Value(func(val []byte) error {
				r, err := decodeRelation(name, val)
				if err != nil {
					return err
				}
				table.Put(r)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "reading statistics snapshot")
	}
	return table, nil
}

// RelationCount implements stats.Source. Read failures are logged and
// treated as missing statistics.
func (s *StatsStore) RelationCount(relation datalog.Keyword) (float64, bool) {
	r, ok := s.load(relation)
	if !ok {
		return 0, false
	}
	return r.Count, true
}

// DistinctCount implements stats.Source
func (s *StatsStore) DistinctCount(relation datalog.Keyword, position int) (float64, bool) {
	r, ok := s.load(relation)
	if !ok || position < 0 || position >= len(r.Distinct) || r.Distinct[position] <= 0 {
		return 0, false
	}
	return r.Distinct[position], true
}

func (s *StatsStore) load(relation datalog.Keyword) (stats.Relation, bool) {
	r, ok, err := s.Load(relation)
	if err != nil {
		s.logger.Warn("statistics unavailable", zap.Stringer("relation", relation), zap.Error(err))
		return stats.Relation{}, false
	}
	return r, ok
}

// Reads returns how many relation lookups the store has served
func (s *StatsStore) Reads() int64 {
	return atomic.LoadInt64(&s.reads)
}
