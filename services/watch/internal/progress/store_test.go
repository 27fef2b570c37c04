package progress

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/example/movieon/services/watch/internal/kv"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestStore(opts ...Option) (*Store, *kv.MemoryStorage) {
	mem := kv.NewMemoryStorage(0)
	opts = append([]Option{WithClock(fixedClock(epoch))}, opts...)
	return NewStore(mem, nil, opts...), mem
}

func TestSave_BelowMinWatchTimeIsIgnored(t *testing.T) {
	s, mem := newTestStore()
	ctx := context.Background()

	for _, ct := range []float64{0, 1, 15.5, 29.999} {
		if s.Save(ctx, "m1", ct, 600) {
			t.Fatalf("Save(%v) wrote a record", ct)
		}
	}
	if _, ok := s.Load(ctx, "m1"); ok {
		t.Fatal("record created below the minimum watch time")
	}
	if mem.Len() != 0 {
		t.Fatalf("storage touched: %d keys", mem.Len())
	}
}

func TestSave_BelowMinWatchTimeKeepsExistingRecord(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	s.Save(ctx, "m1", 120, 600)
	s.Save(ctx, "m1", 10, 600)

	got, ok := s.Load(ctx, "m1")
	if !ok || got.CurrentTime != 120 {
		t.Fatalf("Load = %+v %v, want currentTime 120", got, ok)
	}
}

func TestSave_ZeroDurationIsIgnored(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	for _, ct := range []float64{30, 300, 10000} {
		if s.Save(ctx, "m1", ct, 0) {
			t.Fatalf("Save(%v, 0) wrote a record", ct)
		}
	}
	if _, ok := s.Load(ctx, "m1"); ok {
		t.Fatal("record created with zero duration")
	}
}

func TestLoad_SuppressesFinishedRecords(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	s.Save(ctx, "done", 570, 600)   // 95%
	s.Save(ctx, "almost", 569, 600) // 94.8%

	if _, ok := s.Load(ctx, "done"); ok {
		t.Fatal("record at 95% must not be surfaced")
	}
	if _, ok := s.Load(ctx, "almost"); !ok {
		t.Fatal("record below 95% must be surfaced")
	}
}

func TestSave_LastWriteWins(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	s.Save(ctx, "m1", 100, 600)
	s.Save(ctx, "m1", 60, 600)

	got, ok := s.Load(ctx, "m1")
	if !ok || got.CurrentTime != 60 {
		t.Fatalf("Load = %+v %v, want currentTime 60", got, ok)
	}
}

func TestClear_Idempotent(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	s.Clear(ctx, "never-saved")

	s.Save(ctx, "m1", 100, 600)
	s.Save(ctx, "m2", 100, 600)
	s.Clear(ctx, "m1")
	s.Clear(ctx, "m1")

	if _, ok := s.Load(ctx, "m1"); ok {
		t.Fatal("m1 still present after Clear")
	}
	if _, ok := s.Load(ctx, "m2"); !ok {
		t.Fatal("Clear removed an unrelated record")
	}
}

func TestClear_CorruptCollectionIsNoop(t *testing.T) {
	s, mem := newTestStore()
	ctx := context.Background()
	_ = mem.SetItem(ctx, StorageKey, "{not json")

	s.Clear(ctx, "m1")

	raw, _, _ := mem.GetItem(ctx, StorageKey)
	if raw != "{not json" {
		t.Fatalf("corrupt collection rewritten by Clear: %q", raw)
	}
}

func TestRoundTrip(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	if !s.Save(ctx, "m1", 120, 600) {
		t.Fatal("Save reported no write")
	}
	got, ok := s.Load(ctx, "m1")
	if !ok {
		t.Fatal("record missing")
	}
	want := WatchProgress{
		MovieID:     "m1",
		CurrentTime: 120,
		Duration:    600,
		Percentage:  20,
		LastWatched: epoch,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Load mismatch (-want +got):\n%s", diff)
	}
}

func TestIsolationAcrossMovies(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	s.Save(ctx, "A", 100, 500)
	s.Save(ctx, "B", 50, 500)

	got, ok := s.Load(ctx, "A")
	if !ok || got.CurrentTime != 100 {
		t.Fatalf("Load(A) = %+v %v, want currentTime 100", got, ok)
	}
}

func TestLoad_CorruptOrMalformedIsAbsent(t *testing.T) {
	cases := map[string]string{
		"garbage":       "{not json",
		"array":         "[]",
		"null":          "null",
		"zero duration": `{"m1":{"movieId":"m1","currentTime":100,"duration":0,"percentage":0}}`,
		"negative time": `{"m1":{"movieId":"m1","currentTime":-5,"duration":600,"percentage":1}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			s, mem := newTestStore()
			ctx := context.Background()
			_ = mem.SetItem(ctx, StorageKey, raw)
			if _, ok := s.Load(ctx, "m1"); ok {
				t.Fatal("expected absence")
			}
		})
	}
}

func TestSave_ReplacesCorruptCollection(t *testing.T) {
	s, mem := newTestStore()
	ctx := context.Background()
	_ = mem.SetItem(ctx, StorageKey, "{not json")

	if !s.Save(ctx, "m1", 120, 600) {
		t.Fatal("Save should overwrite a corrupt collection")
	}
	if _, ok := s.Load(ctx, "m1"); !ok {
		t.Fatal("record missing after overwrite")
	}
}

type failingStorage struct{}

func (failingStorage) GetItem(context.Context, string) (string, bool, error) {
	return "", false, errors.New("storage disabled")
}
func (failingStorage) SetItem(context.Context, string, string) error {
	return kv.ErrQuotaExceeded
}
func (failingStorage) RemoveItem(context.Context, string) error {
	return errors.New("storage disabled")
}

func TestStorageErrorsAreSwallowed(t *testing.T) {
	s := NewStore(failingStorage{}, nil)
	ctx := context.Background()

	if s.Save(ctx, "m1", 120, 600) {
		t.Fatal("Save reported a write on a failing backend")
	}
	if _, ok := s.Load(ctx, "m1"); ok {
		t.Fatal("Load returned a record on a failing backend")
	}
	s.Clear(ctx, "m1")
	if got := s.List(ctx); len(got) != 0 {
		t.Fatalf("List = %v, want empty", got)
	}
}

func TestSave_QuotaExceededIsSwallowed(t *testing.T) {
	mem := kv.NewMemoryStorage(len(StorageKey) + 10)
	s := NewStore(mem, nil)
	if s.Save(context.Background(), "m1", 120, 600) {
		t.Fatal("Save reported a write past the quota")
	}
}

func TestSave_RetentionDropsOldest(t *testing.T) {
	mem := kv.NewMemoryStorage(0)
	now := epoch
	s := NewStore(mem, nil, WithMaxEntries(3), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		now = epoch.Add(time.Duration(i) * time.Minute)
		s.Save(ctx, fmt.Sprintf("m%d", i), 100, 600)
	}

	for _, id := range []string{"m0", "m1"} {
		if _, ok := s.Load(ctx, id); ok {
			t.Fatalf("%s should have been trimmed", id)
		}
	}
	for _, id := range []string{"m2", "m3", "m4"} {
		if _, ok := s.Load(ctx, id); !ok {
			t.Fatalf("%s should have been kept", id)
		}
	}
}

func TestList_NewestFirstWithoutFinished(t *testing.T) {
	mem := kv.NewMemoryStorage(0)
	now := epoch
	s := NewStore(mem, nil, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	s.Save(ctx, "old", 100, 600)
	now = epoch.Add(time.Hour)
	s.Save(ctx, "finished", 590, 600)
	now = epoch.Add(2 * time.Hour)
	s.Save(ctx, "new", 200, 600)

	got := s.List(ctx)
	var ids []string
	for _, p := range got {
		ids = append(ids, p.MovieID)
	}
	if diff := cmp.Diff([]string{"new", "old"}, ids); diff != "" {
		t.Fatalf("List order mismatch (-want +got):\n%s", diff)
	}
}

func TestPersistedLayout(t *testing.T) {
	s, mem := newTestStore()
	ctx := context.Background()
	s.Save(ctx, "m1", 120, 600)

	raw, ok, _ := mem.GetItem(ctx, StorageKey)
	if !ok {
		t.Fatal("collection not written under StorageKey")
	}
	want := `{"m1":{"movieId":"m1","currentTime":120,"duration":600,"percentage":20,"lastWatched":"2026-03-01T12:00:00Z"}}`
	if raw != want {
		t.Fatalf("persisted layout\n got %s\nwant %s", raw, want)
	}
}
