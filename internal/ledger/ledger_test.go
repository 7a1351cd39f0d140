package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"ecogame/internal/storage"
	"ecogame/internal/types"
)

func fixedClock() func() time.Time {
	t0 := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return t0 }
}

func newMemoryLedger(policy Policy) *Snapshot {
	return NewSnapshot(NewKVStore(storage.NewMemoryKV()), policy, WithClock(fixedClock()))
}

func assertSortedDesc(t *testing.T, records []types.PlayerRecord) {
	t.Helper()
	for i := 1; i < len(records); i++ {
		if records[i-1].Total < records[i].Total {
			t.Fatalf("ledger not sorted at %d: %d < %d", i, records[i-1].Total, records[i].Total)
		}
	}
}

func assertUniqueNames(t *testing.T, records []types.PlayerRecord) {
	t.Helper()
	seen := map[string]bool{}
	for _, r := range records {
		k := strings.ToLower(strings.TrimSpace(r.Name))
		if seen[k] {
			t.Fatalf("duplicate ledger entry for %q", r.Name)
		}
		seen[k] = true
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Alice ", "Alice"},
		{"", DefaultPlayerName},
		{"   \t", DefaultPlayerName},
		{"Bob", "Bob"},
	}
	for _, tt := range tests {
		if got := NormalizeName(tt.in); got != tt.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if Key(" ALICE ") != Key("alice") {
		t.Errorf("Key should be case-insensitive and trimmed")
	}
}

func TestScenarioAdditiveVersusBestOf(t *testing.T) {
	ctx := context.Background()

	additive := newMemoryLedger(Additive)
	additive.UpsertAndAdd(ctx, "Alice", 50)
	got := additive.FetchAll(ctx)
	if len(got) != 1 || got[0].Name != "Alice" || got[0].Total != 50 {
		t.Fatalf("after first submit = %+v, want [{Alice 50}]", got)
	}
	rec := additive.UpsertAndAdd(ctx, "ALICE", 30)
	if rec.Total != 80 {
		t.Errorf("additive total = %d, want 80", rec.Total)
	}
	if rec.Name != "Alice" {
		t.Errorf("existing display name should be kept, got %q", rec.Name)
	}

	bestOf := newMemoryLedger(BestOf)
	bestOf.UpsertAndAdd(ctx, "Alice", 50)
	rec = bestOf.UpsertAndAdd(ctx, "ALICE", 30)
	if rec.Total != 50 {
		t.Errorf("best-of total = %d, want 50", rec.Total)
	}
	rec = bestOf.UpsertAndAdd(ctx, "alice", 70)
	if rec.Total != 70 {
		t.Errorf("best-of total after higher submit = %d, want 70", rec.Total)
	}
}

func TestUpsertZeroIsIdempotent(t *testing.T) {
	ctx := context.Background()
	for _, policy := range []Policy{Additive, BestOf} {
		t.Run(policy.String(), func(t *testing.T) {
			l := newMemoryLedger(policy)
			l.UpsertAndAdd(ctx, "Dana", 42)
			l.UpsertAndAdd(ctx, "dana ", 0)
			rec, ok := Find(l.FetchAll(ctx), "Dana")
			if !ok || rec.Total != 42 {
				t.Errorf("after zero add got %+v (found=%v), want total 42", rec, ok)
			}
		})
	}
}

func TestRandomWritesKeepInvariants(t *testing.T) {
	ctx := context.Background()
	names := []string{"alice", "Alice", " ALICE", "bob", "Bob ", "carol", "", "  "}
	r := rand.New(rand.NewPCG(1, 2))
	for _, policy := range []Policy{Additive, BestOf} {
		l := newMemoryLedger(policy)
		for i := 0; i < 200; i++ {
			name := names[r.IntN(len(names))]
			l.UpsertAndAdd(ctx, name, int64(r.IntN(100)-20))
			records := l.FetchAll(ctx)
			assertSortedDesc(t, records)
			assertUniqueNames(t, records)
			for _, rec := range records {
				if rec.Total < 0 {
					t.Fatalf("negative total for %q: %d", rec.Name, rec.Total)
				}
			}
		}
	}
}

func TestEmptyNameDefaultsToPlayer(t *testing.T) {
	l := newMemoryLedger(Additive)
	rec := l.UpsertAndAdd(context.Background(), "   ", 5)
	if rec.Name != DefaultPlayerName || rec.Total != 5 {
		t.Errorf("got %+v, want {Player 5}", rec)
	}
}

func TestMergeDoesNotMutateInput(t *testing.T) {
	in := []types.PlayerRecord{{Name: "a", Total: 1}}
	out, _ := Merge(in, "a", 5, Additive, time.Now())
	if in[0].Total != 1 {
		t.Errorf("input mutated: %+v", in)
	}
	if out[0].Total != 6 {
		t.Errorf("output total = %d, want 6", out[0].Total)
	}
}

func TestSetTotal(t *testing.T) {
	ctx := context.Background()
	l := newMemoryLedger(Additive)
	l.UpsertAndAdd(ctx, "Fern", 900)
	rec := l.SetTotal(ctx, "fern", 120)
	if rec.Total != 120 {
		t.Errorf("SetTotal total = %d, want 120", rec.Total)
	}
	rec = l.SetTotal(ctx, "fern", -5)
	if rec.Total != 0 {
		t.Errorf("SetTotal should clamp at zero, got %d", rec.Total)
	}
}

func TestCorruptSnapshotReadsAsEmpty(t *testing.T) {
	kv := storage.NewMemoryKV()
	_ = kv.Set(PlayersKey, []byte("{not json"))
	l := NewSnapshot(NewKVStore(kv), Additive)
	ctx := context.Background()

	if got := l.FetchAll(ctx); len(got) != 0 {
		t.Errorf("FetchAll on corrupt snapshot = %+v, want empty", got)
	}
	rec := l.UpsertAndAdd(ctx, "Eve", 10)
	if rec.Total != 10 {
		t.Errorf("write over corrupt snapshot total = %d, want 10", rec.Total)
	}
	if got := l.FetchAll(ctx); len(got) != 1 {
		t.Errorf("snapshot should be rewritten, got %+v", got)
	}
}

type failingStore struct{ err error }

func (f failingStore) Load(context.Context) ([]types.PlayerRecord, error) { return nil, f.err }
func (f failingStore) Save(context.Context, []types.PlayerRecord) error   { return f.err }

func TestStoreFailureIsSoft(t *testing.T) {
	ctx := context.Background()
	l := NewSnapshot(failingStore{err: errors.New("disk full")}, Additive)
	if got := l.FetchAll(ctx); got == nil || len(got) != 0 {
		t.Errorf("FetchAll = %#v, want empty non-nil slice", got)
	}
	rec := l.UpsertAndAdd(ctx, "Gus", 15)
	if rec.Name != "Gus" || rec.Total != 15 {
		t.Errorf("UpsertAndAdd fallback = %+v, want echo {Gus 15}", rec)
	}
	if _, err := l.Upsert(ctx, "Gus", 15); err == nil {
		t.Error("Upsert should report the store error")
	}
}

func TestDedupeLegacySnapshot(t *testing.T) {
	legacy := []types.PlayerRecord{
		{Name: "sam", Total: 10},
		{Name: "SAM ", Total: 30},
		{Name: "", Total: 3},
	}
	got := Dedupe(legacy)
	if len(got) != 2 {
		t.Fatalf("Dedupe len = %d, want 2: %+v", len(got), got)
	}
	if got[0].Name != "sam" || got[0].Total != 30 {
		t.Errorf("Dedupe kept %+v, want {sam 30}", got[0])
	}
	if got[1].Name != DefaultPlayerName {
		t.Errorf("empty name should normalize, got %q", got[1].Name)
	}
}

func TestTimestampDecodesMillis(t *testing.T) {
	kv := storage.NewMemoryKV()
	_ = kv.Set(PlayersKey, []byte(`[{"name":"Ivy","total":7,"lastPlayed":1700000000000}]`))
	records, err := NewKVStore(kv).Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := records[0].LastPlayed.UnixMilli(); got != 1700000000000 {
		t.Errorf("lastPlayed = %d, want 1700000000000", got)
	}
}

func TestSQLiteStoreRoundtrip(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "leaderboard.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	l := NewSnapshot(store, BestOf, WithClock(fixedClock()))
	for i, name := range []string{"Ann", "Ben", "Cy"} {
		if _, err := l.Upsert(ctx, name, int64(10*(i+1))); err != nil {
			t.Fatalf("Upsert(%s) failed: %v", name, err)
		}
	}
	if _, err := l.Upsert(ctx, "ann", 5); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	records, err := l.Records(ctx)
	if err != nil {
		t.Fatalf("Records failed: %v", err)
	}
	want := []string{"Cy:30", "Ben:20", "Ann:10"}
	if len(records) != len(want) {
		t.Fatalf("got %d records, want %d", len(records), len(want))
	}
	for i, rec := range records {
		if got := fmt.Sprintf("%s:%d", rec.Name, rec.Total); got != want[i] {
			t.Errorf("record %d = %s, want %s", i, got, want[i])
		}
		if !rec.LastPlayed.Equal(fixedClock()()) {
			t.Errorf("record %d lastPlayed = %v", i, rec.LastPlayed)
		}
	}
}

func TestParsePolicy(t *testing.T) {
	if p, err := ParsePolicy("max"); err != nil || p != BestOf {
		t.Errorf("ParsePolicy(max) = %v, %v", p, err)
	}
	if p, err := ParsePolicy("Additive"); err != nil || p != Additive {
		t.Errorf("ParsePolicy(Additive) = %v, %v", p, err)
	}
	if _, err := ParsePolicy("median"); err == nil {
		t.Error("ParsePolicy should reject unknown policies")
	}
}

func TestSerializedWritesLoseNothing(t *testing.T) {
	ctx := context.Background()
	l := NewSnapshot(NewKVStore(storage.NewMemoryKV()), Additive, Serialized())

	const writers, each = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				l.UpsertAndAdd(ctx, "Hana", 1)
			}
		}()
	}
	wg.Wait()

	if got := TotalFor(ctx, l, "hana"); got != writers*each {
		t.Errorf("total = %d, want %d", got, writers*each)
	}
}

func TestTotalForAndLeader(t *testing.T) {
	ctx := context.Background()
	l := newMemoryLedger(Additive)
	if got := TotalFor(ctx, l, "Nobody"); got != 0 {
		t.Errorf("TotalFor unknown = %d, want 0", got)
	}
	if got := Leader(nil); got != 0 {
		t.Errorf("Leader(nil) = %d, want 0", got)
	}
	l.UpsertAndAdd(ctx, "Ann", 12)
	l.UpsertAndAdd(ctx, "Ben", 40)
	l.UpsertAndAdd(ctx, " ann ", 3)

	if got := TotalFor(ctx, l, "ANN"); got != 15 {
		t.Errorf("TotalFor(ANN) = %d, want 15", got)
	}
	if got := Leader(l.FetchAll(ctx)); got != 40 {
		t.Errorf("Leader = %d, want 40", got)
	}
}

func TestSiblingSharesWriteLock(t *testing.T) {
	ctx := context.Background()
	games := NewSnapshot(NewKVStore(storage.NewMemoryKV()), Additive, Serialized())
	board := games.Sibling(BestOf)
	if board.Policy() != BestOf || board.writeMu != games.writeMu {
		t.Fatalf("sibling policy = %v, shares lock = %t", board.Policy(), board.writeMu == games.writeMu)
	}
	if NewSnapshot(nil, Additive).Sibling(BestOf).writeMu != nil {
		t.Error("sibling of an unserialized ledger should not lock")
	}

	const rounds = 100
	var wg sync.WaitGroup
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			games.UpsertAndAdd(ctx, "Hana", 1)
		}()
		go func() {
			defer wg.Done()
			if _, err := board.Upsert(ctx, "Ivo", 7); err != nil {
				t.Errorf("board upsert: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := TotalFor(ctx, games, "Hana"); got != rounds {
		t.Errorf("Hana total = %d, want %d", got, rounds)
	}
	if got := TotalFor(ctx, board, "Ivo"); got != 7 {
		t.Errorf("Ivo total = %d, want 7", got)
	}
}
