// Package llmcache stores provider responses keyed by part identity and
// request kind. Entries expire lazily once older than their TTL.
package llmcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"pcb-cost/core/types"
	"pcb-cost/internal/clock"
)

// Key addresses one cached response
type Key struct {
	Kind     types.RequestKind
	Identity string

	// Fingerprint carries the request context that changes the answer
	Fingerprint string
}

// NewKey builds a key from an identity and request context parts. The
// identity is trimmed and upper-cased.
func NewKey(kind types.RequestKind, identity string, parts ...string) Key {
	return Key{
		Kind:        kind,
		Identity:    strings.ToUpper(strings.TrimSpace(identity)),
		Fingerprint: strings.Join(parts, "|"),
	}
}

// Hash returns the stable SHA-256 storage key
func (k Key) Hash() string {
	h := sha256.New()
	h.Write([]byte(k.Kind))
	h.Write([]byte{'|'})
	h.Write([]byte(k.Identity))
	h.Write([]byte{'|'})
	h.Write([]byte(k.Fingerprint))
	return hex.EncodeToString(h.Sum(nil))
}

// Entry is a stored response
type Entry struct {
	Kind      types.RequestKind
	Identity  string
	Payload   []byte
	Tokens    int
	CreatedAt time.Time
	TTL       time.Duration
	Hits      int
}

// Expired reports whether the entry is older than its TTL at now
func (e Entry) Expired(now time.Time) bool {
	return now.Sub(e.CreatedAt) > e.TTL
}

// Filter restricts Clear. Empty fields match everything.
type Filter struct {
	Kind     types.RequestKind
	Identity string
}

func (f Filter) matches(e Entry) bool {
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if f.Identity != "" && e.Identity != strings.ToUpper(strings.TrimSpace(f.Identity)) {
		return false
	}
	return true
}

// KindStats aggregates entries of one kind
type KindStats struct {
	Entries     int `json:"entries"`
	TokensSaved int `json:"tokens_saved"`
	Hits        int `json:"hits"`
}

// Stats summarizes the cache contents
type Stats struct {
	Entries     int                             `json:"entries"`
	Expired     int                             `json:"expired"`
	TokensSaved int                             `json:"tokens_saved"`
	Hits        int                             `json:"hits"`
	ByKind      map[types.RequestKind]KindStats `json:"by_kind"`
	Oldest      *time.Time                      `json:"oldest,omitempty"`
	Newest      *time.Time                      `json:"newest,omitempty"`
	Location    string                          `json:"location"`
}

// Store is a response cache. Implementations are safe for concurrent use.
type Store interface {
	// Get returns the live entry for key; expired entries are misses
	Get(ctx context.Context, key Key) (Entry, bool, error)

	// Put writes an entry unless a live entry already holds the key
	Put(ctx context.Context, key Key, payload []byte, tokens int, ttl time.Duration) error

	// Delete removes the entry for key, live or not
	Delete(ctx context.Context, key Key) error

	// Clear removes entries matching filter and returns the count
	Clear(ctx context.Context, filter Filter) (int, error)

	// Prune removes expired entries and returns the count
	Prune(ctx context.Context) (int, error)

	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// MemoryStore is a process-local Store
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*Entry
	clock   clock.Clock
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.Real{}
	}
	return &MemoryStore{entries: make(map[string]*Entry), clock: clk}
}

// Get returns the live entry for key
func (m *MemoryStore) Get(ctx context.Context, key Key) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := key.Hash()
	e, ok := m.entries[h]
	if !ok {
		return Entry{}, false, nil
	}
	if e.Expired(m.clock.Now()) {
		delete(m.entries, h)
		return Entry{}, false, nil
	}
	e.Hits++
	return copyEntry(*e), true, nil
}

// Put stores payload under key
func (m *MemoryStore) Put(ctx context.Context, key Key, payload []byte, tokens int, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := key.Hash()
	now := m.clock.Now()
	if e, ok := m.entries[h]; ok && !e.Expired(now) {
		return nil
	}
	m.entries[h] = &Entry{
		Kind:      key.Kind,
		Identity:  key.Identity,
		Payload:   append([]byte(nil), payload...),
		Tokens:    tokens,
		CreatedAt: now,
		TTL:       ttl,
	}
	return nil
}

// Delete removes the entry for key
func (m *MemoryStore) Delete(ctx context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key.Hash())
	return nil
}

// Clear removes matching entries
func (m *MemoryStore) Clear(ctx context.Context, filter Filter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for h, e := range m.entries {
		if filter.matches(*e) {
			delete(m.entries, h)
			n++
		}
	}
	return n, nil
}

// Prune removes expired entries
func (m *MemoryStore) Prune(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	n := 0
	for h, e := range m.entries {
		if e.Expired(now) {
			delete(m.entries, h)
			n++
		}
	}
	return n, nil
}

// Stats aggregates the stored entries
func (m *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	st := Stats{ByKind: make(map[types.RequestKind]KindStats), Location: "memory"}
	created := make([]time.Time, 0, len(m.entries))
	for _, e := range m.entries {
		st.Entries++
		st.TokensSaved += e.Tokens
		st.Hits += e.Hits
		if e.Expired(now) {
			st.Expired++
		}
		ks := st.ByKind[e.Kind]
		ks.Entries++
		ks.TokensSaved += e.Tokens
		ks.Hits += e.Hits
		st.ByKind[e.Kind] = ks
		created = append(created, e.CreatedAt)
	}
	if len(created) > 0 {
		sort.Slice(created, func(i, j int) bool { return created[i].Before(created[j]) })
		oldest, newest := created[0], created[len(created)-1]
		st.Oldest, st.Newest = &oldest, &newest
	}
	return st, nil
}

// Close is a no-op
func (m *MemoryStore) Close() error {
	return nil
}

func copyEntry(e Entry) Entry {
	e.Payload = append([]byte(nil), e.Payload...)
	return e
}
