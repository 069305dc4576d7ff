// Package store persists protocol records in a cometbft-db database and
// provides the write caches that make every transaction all-or-nothing.
package store

import (
	"encoding/binary"
	"sort"

	"github.com/cockroachdb/errors"
	dbm "github.com/cometbft/cometbft-db"
	"github.com/cometbft/cometbft/crypto/tmhash"
	cmtbytes "github.com/cometbft/cometbft/libs/bytes"
	"github.com/cometbft/cometbft/libs/log"
)

var (
	metaHeight = []byte("meta/height")
	metaHash   = []byte("meta/app_hash")
)

// ErrReadOnly is returned when writing through a committed-state reader.
var ErrReadOnly = errors.New("store: read-only view")

// KV is the keyed record interface every protocol component works against.
// Get returns nil for a missing key.
type KV interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
}

type entry struct {
	value   []byte
	deleted bool
}

// Cache buffers writes on top of a parent KV. Nothing reaches the parent
// until Write; dropping the cache discards every buffered change.
type Cache struct {
	parent KV
	writes map[string]entry
}

func NewCache(parent KV) *Cache {
	return &Cache{parent: parent, writes: make(map[string]entry)}
}

func (c *Cache) Get(key []byte) ([]byte, error) {
	if e, ok := c.writes[string(key)]; ok {
		if e.deleted {
			return nil, nil
		}
		return e.value, nil
	}
	return c.parent.Get(key)
}

func (c *Cache) Set(key, value []byte) error {
	if value == nil {
		return errors.Newf("store: nil value for key %q", key)
	}
	v := make([]byte, len(value))
	copy(v, value)
	c.writes[string(key)] = entry{value: v}
	return nil
}

func (c *Cache) Delete(key []byte) error {
	c.writes[string(key)] = entry{deleted: true}
	return nil
}

// Len is the number of buffered writes.
func (c *Cache) Len() int { return len(c.writes) }

// Each visits buffered writes in key order. value is nil for deletions.
func (c *Cache) Each(fn func(key, value []byte, deleted bool) error) error {
	keys := make([]string, 0, len(c.writes))
	for k := range c.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		e := c.writes[k]
		if err := fn([]byte(k), e.value, e.deleted); err != nil {
			return err
		}
	}
	return nil
}

// Write flushes buffered writes into the parent in key order and resets the cache.
func (c *Cache) Write() error {
	err := c.Each(func(key, value []byte, deleted bool) error {
		if deleted {
			return c.parent.Delete(key)
		}
		return c.parent.Set(key, value)
	})
	if err != nil {
		return err
	}
	c.Discard()
	return nil
}

// Discard drops every buffered write.
func (c *Cache) Discard() {
	c.writes = make(map[string]entry)
}

// committed reads straight from the database.
type committed struct {
	db dbm.DB
}

func (r committed) Get(key []byte) ([]byte, error) { return r.db.Get(key) }

func (committed) Set(_, _ []byte) error { return ErrReadOnly }

func (committed) Delete(_ []byte) error { return ErrReadOnly }

// Store owns the database, the block-level write cache and the app hash chain.
type Store struct {
	db     dbm.DB
	logger log.Logger
	height int64
	hash   []byte
	block  *Cache
}

// New opens a store over db and restores the last committed height and hash.
func New(db dbm.DB, logger log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	s := &Store{db: db, logger: logger}
	hbz, err := db.Get(metaHeight)
	if err != nil {
		return nil, errors.Wrap(err, "load height")
	}
	if len(hbz) == 8 {
		s.height = int64(binary.BigEndian.Uint64(hbz))
	}
	s.hash, err = db.Get(metaHash)
	if err != nil {
		return nil, errors.Wrap(err, "load app hash")
	}
	s.block = NewCache(committed{db: db})
	logger.Info("store opened", "height", s.height, "app_hash", cmtbytes.HexBytes(s.hash))
	return s, nil
}

func (s *Store) Height() int64 { return s.height }

func (s *Store) LastHash() []byte { return s.hash }

// Committed returns a read-only view of the last committed state.
func (s *Store) Committed() KV { return committed{db: s.db} }

// Block returns the cache collecting writes of the block being finalized.
func (s *Store) Block() *Cache { return s.block }

// WorkingHash chains the pending block writes onto the last committed hash.
// A block without writes keeps the previous hash.
func (s *Store) WorkingHash() []byte {
	if s.block.Len() == 0 {
		return s.hash
	}
	h := tmhash.New()
	h.Write(s.hash)
	var lenBuf [binary.MaxVarintLen64]byte
	_ = s.block.Each(func(key, value []byte, deleted bool) error {
		n := binary.PutUvarint(lenBuf[:], uint64(len(key)))
		h.Write(lenBuf[:n])
		h.Write(key)
		if deleted {
			h.Write([]byte{0})
			return nil
		}
		h.Write([]byte{1})
		n = binary.PutUvarint(lenBuf[:], uint64(len(value)))
		h.Write(lenBuf[:n])
		h.Write(value)
		return nil
	})
	return h.Sum(nil)
}

// Commit atomically persists the block cache together with height and hash.
func (s *Store) Commit(height int64) ([]byte, error) {
	hash := s.WorkingHash()
	batch := s.db.NewBatch()
	defer batch.Close()

	err := s.block.Each(func(key, value []byte, deleted bool) error {
		if deleted {
			return batch.Delete(key)
		}
		return batch.Set(key, value)
	})
	if err != nil {
		return nil, errors.Wrap(err, "stage block writes")
	}
	var hbz [8]byte
	binary.BigEndian.PutUint64(hbz[:], uint64(height))
	if err := batch.Set(metaHeight, hbz[:]); err != nil {
		return nil, errors.Wrap(err, "stage height")
	}
	if len(hash) > 0 {
		if err := batch.Set(metaHash, hash); err != nil {
			return nil, errors.Wrap(err, "stage app hash")
		}
	}
	if err := batch.WriteSync(); err != nil {
		return nil, errors.Wrapf(err, "commit height %d", height)
	}
	s.logger.Debug("committed", "height", height, "writes", s.block.Len())
	s.block.Discard()
	s.height = height
	s.hash = hash
	return hash, nil
}

// Iterate visits committed keys under prefix in order until fn returns false.
func (s *Store) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	it, err := dbm.IteratePrefix(s.db, prefix)
	if err != nil {
		return errors.Wrap(err, "iterate")
	}
	defer it.Close()
	for ; it.Valid(); it.Next() {
		if !fn(it.Key(), it.Value()) {
			break
		}
	}
	return it.Error()
}

func (s *Store) Close() error { return s.db.Close() }
