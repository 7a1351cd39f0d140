package ledger

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"ecogame/internal/types"
)

// ErrCorrupt marks a snapshot that exists but cannot be decoded.
var ErrCorrupt = errors.New("ledger snapshot corrupt")

// SnapshotStore persists the complete ledger as one unit.
type SnapshotStore interface {
	Load(ctx context.Context) ([]types.PlayerRecord, error)
	Save(ctx context.Context, records []types.PlayerRecord) error
}

// Snapshot is a Ledger that performs every write as a full
// read-modify-write of its store. Concurrent writers race and the last
// snapshot written wins unless Serialized is set.
type Snapshot struct {
	store  SnapshotStore
	policy Policy
	now    func() time.Time

	// writeMu is nil unless Serialized. Siblings share it.
	writeMu *sync.Mutex
}

// Option configures a Snapshot ledger.
type Option func(*Snapshot)

// Serialized makes writes from this process mutually exclusive. It does not
// protect against other processes sharing the store.
func Serialized() Option {
	return func(s *Snapshot) {
		if s.writeMu == nil {
			s.writeMu = new(sync.Mutex)
		}
	}
}

// WithClock overrides the time source used for lastPlayed.
func WithClock(now func() time.Time) Option {
	return func(s *Snapshot) { s.now = now }
}

// NewSnapshot returns a ledger over store that merges with policy.
func NewSnapshot(store SnapshotStore, policy Policy, opts ...Option) *Snapshot {
	s := &Snapshot{store: store, policy: policy, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Snapshot) Policy() Policy { return s.policy }

// Sibling returns a ledger over the same store with a different merge
// policy. It shares the clock and, when Serialized, the write lock, so
// writes through either ledger stay mutually exclusive.
func (s *Snapshot) Sibling(policy Policy) *Snapshot {
	return &Snapshot{store: s.store, policy: policy, now: s.now, writeMu: s.writeMu}
}

// Records loads the snapshot, propagating store errors.
func (s *Snapshot) Records(ctx context.Context) ([]types.PlayerRecord, error) {
	records, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return Dedupe(records), nil
}

// Upsert merges one submission and persists the new snapshot.
func (s *Snapshot) Upsert(ctx context.Context, name string, value int64) (types.PlayerRecord, error) {
	return s.write(ctx, func(records []types.PlayerRecord) ([]types.PlayerRecord, types.PlayerRecord) {
		return Merge(records, name, value, s.policy, s.now())
	})
}

// Set overwrites a player's total and persists the new snapshot.
func (s *Snapshot) Set(ctx context.Context, name string, total int64) (types.PlayerRecord, error) {
	return s.write(ctx, func(records []types.PlayerRecord) ([]types.PlayerRecord, types.PlayerRecord) {
		return SetTotal(records, name, total, s.now())
	})
}

func (s *Snapshot) write(ctx context.Context, apply func([]types.PlayerRecord) ([]types.PlayerRecord, types.PlayerRecord)) (types.PlayerRecord, error) {
	if s.writeMu != nil {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
	}
	records, err := s.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, ErrCorrupt) {
			return types.PlayerRecord{}, err
		}
		log.Printf("[WARN] Ledger snapshot corrupt, starting from empty: %v", err)
		records = nil
	}
	next, rec := apply(Dedupe(records))
	if err := s.store.Save(ctx, next); err != nil {
		return rec, err
	}
	return rec, nil
}

// FetchAll implements Ledger.
func (s *Snapshot) FetchAll(ctx context.Context) []types.PlayerRecord {
	records, err := s.Records(ctx)
	if err != nil {
		log.Printf("[WARN] Ledger fetch failed: %v", err)
		return []types.PlayerRecord{}
	}
	return records
}

// UpsertAndAdd implements Ledger.
func (s *Snapshot) UpsertAndAdd(ctx context.Context, name string, delta int64) types.PlayerRecord {
	rec, err := s.Upsert(ctx, name, delta)
	if err != nil {
		log.Printf("[WARN] Ledger write for %q failed: %v", NormalizeName(name), err)
		return types.PlayerRecord{Name: NormalizeName(name), Total: max(0, delta), LastPlayed: types.NewTimestamp(s.now())}
	}
	return rec
}

// SetTotal is the soft-failing form of Set.
func (s *Snapshot) SetTotal(ctx context.Context, name string, total int64) types.PlayerRecord {
	rec, err := s.Set(ctx, name, total)
	if err != nil {
		log.Printf("[WARN] Ledger total sync for %q failed: %v", NormalizeName(name), err)
	}
	return rec
}
