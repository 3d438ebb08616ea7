package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// testStoreContract exercises the behaviour every backend must share.
func testStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	entry := &Entry{
		Fingerprint: "quote:abc",
		Capability:  "quote",
		Payload:     json.RawMessage(`{"c":172.5}`),
		FetchedAt:   now,
		TTL:         time.Minute,
		Source:      "finnhub",
		RetainUntil: now.Add(time.Hour),
	}

	t.Run("miss", func(t *testing.T) {
		got, err := store.Get(ctx, "quote:missing")
		if err != nil || got != nil {
			t.Errorf("Get(missing) = %v, %v, want nil, nil", got, err)
		}
	})

	t.Run("set and get", func(t *testing.T) {
		if err := store.Set(ctx, entry); err != nil {
			t.Fatalf("Set() error: %v", err)
		}
		got, err := store.Get(ctx, entry.Fingerprint)
		if err != nil || got == nil {
			t.Fatalf("Get() = %v, %v", got, err)
		}
		if string(got.Payload) != string(entry.Payload) {
			t.Errorf("Payload = %s, want %s", got.Payload, entry.Payload)
		}
		if got.Source != "finnhub" || got.Capability != "quote" || got.TTL != time.Minute {
			t.Errorf("entry = %+v", got)
		}
		if !got.FetchedAt.Equal(now) {
			t.Errorf("FetchedAt = %v, want %v", got.FetchedAt, now)
		}
		if !got.RetainUntil.Equal(entry.RetainUntil) {
			t.Errorf("RetainUntil = %v, want %v", got.RetainUntil, entry.RetainUntil)
		}
	})

	t.Run("replace", func(t *testing.T) {
		replacement := *entry
		replacement.Payload = json.RawMessage(`{"c":180}`)
		replacement.Source = "alphavantage"
		if err := store.Set(ctx, &replacement); err != nil {
			t.Fatalf("Set() error: %v", err)
		}
		got, _ := store.Get(ctx, entry.Fingerprint)
		if got == nil || got.Source != "alphavantage" || string(got.Payload) != `{"c":180}` {
			t.Errorf("Get() after replace = %+v", got)
		}
		if n, _ := store.Len(ctx); n != 1 {
			t.Errorf("Len() = %d, want 1", n)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		if err := store.Set(ctx, &Entry{}); err == nil {
			t.Error("expected error for entry without fingerprint")
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := store.Delete(ctx, entry.Fingerprint); err != nil {
			t.Fatalf("Delete() error: %v", err)
		}
		if got, _ := store.Get(ctx, entry.Fingerprint); got != nil {
			t.Errorf("Get() after delete = %+v", got)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	testStoreContract(t, NewMemoryStore())
}

func TestMemoryStore_Eviction(t *testing.T) {
	evicted := 0
	store := NewMemoryStoreWithConfig(MemoryStoreConfig{
		MaxEntries: 4,
		Shards:     1,
		OnEvict:    func(n int) { evicted += n },
	})
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 6; i++ {
		err := store.Set(ctx, &Entry{
			Fingerprint: fmt.Sprintf("k%d", i),
			RetainUntil: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	if n, _ := store.Len(ctx); n != 4 {
		t.Errorf("Len() = %d, want 4", n)
	}
	if evicted != 2 {
		t.Errorf("evicted = %d, want 2", evicted)
	}
	for _, k := range []string{"k0", "k1"} {
		if got, _ := store.Get(ctx, k); got != nil {
			t.Errorf("%s should have been evicted first", k)
		}
	}
	if got, _ := store.Get(ctx, "k5"); got == nil {
		t.Error("newest entry missing")
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_ = store.Set(ctx, &Entry{Fingerprint: "k", Source: "a"})

	got, _ := store.Get(ctx, "k")
	got.Source = "mutated"

	again, _ := store.Get(ctx, "k")
	if again.Source != "a" {
		t.Errorf("stored entry was mutated through Get result: %q", again.Source)
	}
}

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore(t *testing.T) {
	testStoreContract(t, newTestSQLiteStore(t))
}

func TestSQLiteStore_SweepBounded(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 10; i++ {
		retain := now.Add(-time.Minute)
		if i >= 7 {
			retain = now.Add(time.Hour)
		}
		err := store.Set(ctx, &Entry{
			Fingerprint: fmt.Sprintf("k%d", i),
			Payload:     json.RawMessage(`{}`),
			FetchedAt:   now.Add(-2 * time.Hour),
			RetainUntil: retain,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	n, err := store.Sweep(ctx, now, 5)
	if err != nil || n != 5 {
		t.Fatalf("Sweep(5) = %d, %v, want 5", n, err)
	}
	n, _ = store.Sweep(ctx, now, 0)
	if n != 2 {
		t.Errorf("unbounded Sweep = %d, want 2", n)
	}
	if left, _ := store.Len(ctx); left != 3 {
		t.Errorf("Len() = %d, want 3", left)
	}
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	_ = store.Set(ctx, &Entry{Fingerprint: "k", Payload: json.RawMessage(`[1]`), FetchedAt: time.Now()})
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, "k")
	if err != nil || got == nil || string(got.Payload) != `[1]` {
		t.Errorf("Get() after reopen = %+v, %v", got, err)
	}
}

func TestNewSQLiteStore_EmptyPath(t *testing.T) {
	if _, err := NewSQLiteStore(""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("CONDUIT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CONDUIT_TEST_REDIS_ADDR not set")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	prefix := fmt.Sprintf("conduit-test:%d", time.Now().UnixNano())
	store := NewRedisStore(rdb, WithRedisPrefix(prefix))
	defer store.Close()

	if err := store.Ping(context.Background()); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}

	testStoreContract(t, store)

	ctx := context.Background()
	err := store.Set(ctx, &Entry{Fingerprint: "short", RetainUntil: time.Now().Add(time.Second)})
	if err != nil {
		t.Fatal(err)
	}
	ttl, err := rdb.TTL(ctx, prefix+":short").Result()
	if err != nil || ttl <= 0 || ttl > time.Second {
		t.Errorf("redis TTL = %v, %v, want within (0, 1s]", ttl, err)
	}
}
