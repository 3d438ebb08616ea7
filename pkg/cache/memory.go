package cache

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const defaultShards = 16

// MemoryStore keeps entries in a sharded in-process map. Each shard has its
// own lock so callers working on different keys rarely contend.
//
// When MaxEntries is set and a shard is full, inserting a new key evicts
// the shard entry with the earliest RetainUntil.
type MemoryStore struct {
	shards   []*memoryShard
	perShard int
	onEvict  func(n int)
}

type memoryShard struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// MemoryStoreConfig configures the memory store.
type MemoryStoreConfig struct {
	// MaxEntries bounds the number of entries. 0 means unbounded.
	MaxEntries int

	// Shards is the number of independent lock domains.
	// Default: 16
	Shards int

	// OnEvict is called with the number of entries evicted for capacity.
	OnEvict func(n int)
}

// NewMemoryStore creates an unbounded memory store.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithConfig(MemoryStoreConfig{})
}

// NewMemoryStoreWithConfig creates a memory store with custom configuration.
func NewMemoryStoreWithConfig(cfg MemoryStoreConfig) *MemoryStore {
	if cfg.Shards <= 0 {
		cfg.Shards = defaultShards
	}
	perShard := 0
	if cfg.MaxEntries > 0 {
		perShard = (cfg.MaxEntries + cfg.Shards - 1) / cfg.Shards
	}

	s := &MemoryStore{
		shards:   make([]*memoryShard, cfg.Shards),
		perShard: perShard,
		onEvict:  cfg.OnEvict,
	}
	for i := range s.shards {
		s.shards[i] = &memoryShard{entries: make(map[string]*Entry)}
	}
	return s
}

func (s *MemoryStore) shard(key string) *memoryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// Get returns a copy of the entry for fingerprint.
func (s *MemoryStore) Get(ctx context.Context, fingerprint string) (*Entry, error) {
	sh := s.shard(fingerprint)
	sh.mu.RLock()
	e, ok := sh.entries[fingerprint]
	sh.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

// Set stores a copy of entry.
func (s *MemoryStore) Set(ctx context.Context, entry *Entry) error {
	if entry == nil || entry.Fingerprint == "" {
		return ErrInvalidEntry
	}
	cp := *entry

	sh := s.shard(entry.Fingerprint)
	evicted := 0
	sh.mu.Lock()
	if _, exists := sh.entries[cp.Fingerprint]; !exists && s.perShard > 0 {
		for len(sh.entries) >= s.perShard {
			sh.evictOneLocked()
			evicted++
		}
	}
	sh.entries[cp.Fingerprint] = &cp
	sh.mu.Unlock()

	if evicted > 0 && s.onEvict != nil {
		s.onEvict(evicted)
	}
	return nil
}

func (sh *memoryShard) evictOneLocked() {
	var (
		victim string
		oldest time.Time
	)
	for k, e := range sh.entries {
		if victim == "" || e.RetainUntil.Before(oldest) {
			victim, oldest = k, e.RetainUntil
		}
	}
	delete(sh.entries, victim)
}

// Delete removes the entry for fingerprint.
func (s *MemoryStore) Delete(ctx context.Context, fingerprint string) error {
	sh := s.shard(fingerprint)
	sh.mu.Lock()
	delete(sh.entries, fingerprint)
	sh.mu.Unlock()
	return nil
}

// Sweep deletes up to limit expired entries, one shard at a time.
func (s *MemoryStore) Sweep(ctx context.Context, now time.Time, limit int) (int, error) {
	deleted := 0
	for _, sh := range s.shards {
		if limit > 0 && deleted >= limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return deleted, err
		}

		sh.mu.Lock()
		for k, e := range sh.entries {
			if limit > 0 && deleted >= limit {
				break
			}
			if e.Expired(now) {
				delete(sh.entries, k)
				deleted++
			}
		}
		sh.mu.Unlock()
	}
	return deleted, nil
}

// Len returns the number of entries.
func (s *MemoryStore) Len(ctx context.Context) (int, error) {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n, nil
}

// Close drops all entries.
func (s *MemoryStore) Close() error {
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.entries = make(map[string]*Entry)
		sh.mu.Unlock()
	}
	return nil
}
