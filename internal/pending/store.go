// Package pending holds exec attempts between their enter and terminal
// notifications.
//
// Store is a fixed-capacity table keyed by the thread id that entered
// execve. Every operation touches exactly one key and takes exactly one
// shard lock, so concurrent handlers working on different attempts never
// serialize on a table-wide lock.
package pending

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mrzor/execsnoop/internal/record"
)

// DefaultCapacity matches the kernel execs map size.
const DefaultCapacity = 10240

const shardCount = 64

var (
	// ErrExists is returned when an attempt is already pending for the key.
	ErrExists = errors.New("attempt already pending")
	// ErrFull is returned when the store is at capacity.
	ErrFull = errors.New("pending store full")
)

type entry struct {
	rec     *record.Record
	created time.Time
}

type shard struct {
	mu      sync.Mutex
	entries map[uint32]entry
}

// Store maps thread ids to in-flight exec records.
type Store struct {
	shards   [shardCount]shard
	capacity int64
	size     atomic.Int64
	now      func() time.Time
}

// New creates a store holding at most capacity attempts.
// A non-positive capacity selects DefaultCapacity.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Store{
		capacity: int64(capacity),
		now:      time.Now,
	}
	for i := range s.shards {
		s.shards[i].entries = make(map[uint32]entry)
	}
	return s
}

func (s *Store) shardFor(key uint32) *shard {
	return &s.shards[key%shardCount]
}

// CreateIfAbsent inserts a zero-valued record for key and returns it.
// It fails with ErrExists if key is already pending and with ErrFull if the
// store is at capacity; in both cases nothing is modified.
func (s *Store) CreateIfAbsent(key uint32) (*record.Record, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.entries[key]; ok {
		return nil, ErrExists
	}
	if s.size.Add(1) > s.capacity {
		s.size.Add(-1)
		return nil, ErrFull
	}

	rec := &record.Record{}
	sh.entries[key] = entry{rec: rec, created: s.now()}
	return rec, nil
}

// Get returns the pending record for key.
func (s *Store) Get(key uint32) (*record.Record, bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[key]
	return e.rec, ok
}

// Take removes the pending record for key and returns it. Exactly one of
// several concurrent callers for the same key observes ok == true.
func (s *Store) Take(key uint32) (*record.Record, bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[key]
	if !ok {
		return nil, false
	}
	delete(sh.entries, key)
	s.size.Add(-1)
	return e.rec, true
}

// Remove deletes the entry for key. Removing an absent key is a no-op.
func (s *Store) Remove(key uint32) {
	s.Take(key)
}

// Len returns the number of pending attempts.
func (s *Store) Len() int {
	return int(s.size.Load())
}

// Reap removes entries created before cutoff and returns how many were
// removed. Shards are visited one at a time.
func (s *Store) Reap(cutoff time.Time) int {
	reaped := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for key, e := range sh.entries {
			if e.created.Before(cutoff) {
				delete(sh.entries, key)
				s.size.Add(-1)
				reaped++
			}
		}
		sh.mu.Unlock()
	}
	return reaped
}
