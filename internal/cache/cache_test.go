package cache

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
)

func TestKeyIsDeterministic(t *testing.T) {
	a := NewKey([]byte("diagram"), "dev", false)
	b := NewKey([]byte("diagram"), "dev", false)
	if a != b {
		t.Fatalf("identical inputs produced different keys: %s vs %s", a, b)
	}
}

func TestKeyDistinguishesEnvironmentAndMode(t *testing.T) {
	base := NewKey([]byte("diagram"), "dev", false)
	if env := NewKey([]byte("diagram"), "prod", false); env.String() == base.String() {
		t.Fatal("environment should change the key")
	}
	if fast := NewKey([]byte("diagram"), "dev", true); fast.String() == base.String() {
		t.Fatal("processing mode should change the key")
	}
	if content := NewKey([]byte("diagram "), "dev", false); content.String() == base.String() {
		t.Fatal("whitespace-differing content should change the key")
	}
}

func TestKeyAcceptsEmptyContent(t *testing.T) {
	k := NewKey(nil, "dev", false)
	if k.Digest == "" {
		t.Fatal("empty content should still yield a digest")
	}
}

func TestKeyStageSuffix(t *testing.T) {
	k := NewKey([]byte("diagram"), "dev", false)
	if k.Stage("analysis") == k.Stage("cost") {
		t.Fatal("stage keys must differ per stage")
	}
}

func TestMemoryGetReturnsCopies(t *testing.T) {
	c := NewMemory(4)
	if err := c.Put("k", []byte("value")); err != nil {
		t.Fatalf("put: %v", err)
	}
	first, ok := c.Get("k")
	if !ok {
		t.Fatal("expected hit")
	}
	first[0] = 'X'
	second, _ := c.Get("k")
	if string(second) != "value" {
		t.Fatalf("stored value mutated through returned slice: %s", second)
	}
}

func TestMemoryEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewMemory(2)
	c.Put("a", []byte("1"))
	c.Put("b", []byte("2"))
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected hit on a")
	}
	c.Put("c", []byte("3"))
	if _, ok := c.Get("b"); ok {
		t.Fatal("expected b to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("recently used entry should survive eviction")
	}
	stats := c.Stats()
	if stats.Evictions != 1 {
		t.Fatalf("expected 1 eviction, got %d", stats.Evictions)
	}
	if stats.Size != 2 {
		t.Fatalf("expected size 2, got %d", stats.Size)
	}
}

func TestMemoryCountsHitsAndMisses(t *testing.T) {
	c := NewMemory(4)
	c.Put("k", []byte("v"))
	c.Get("k")
	c.Get("k")
	c.Get("absent")
	stats := c.Stats()
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Fatalf("unexpected counters: %+v", stats)
	}
}

func TestMemoryConcurrentAccess(t *testing.T) {
	c := NewMemory(32)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", (n+j)%16)
				c.Put(key, []byte(key))
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()
	if stats := c.Stats(); stats.Size > 32 {
		t.Fatalf("size exceeded capacity: %d", stats.Size)
	}
}

func TestSQLiteRoundTripAndEviction(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	c, err := NewSQLite(db, "analysis", 2)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	c.Put("a", []byte("1"))
	c.Put("b", []byte("2"))
	if got, ok := c.Get("a"); !ok || string(got) != "1" {
		t.Fatalf("expected hit on a, got %q ok=%v", got, ok)
	}
	c.Put("c", []byte("3"))
	if _, ok := c.Get("b"); ok {
		t.Fatal("expected b to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("recently used entry should survive eviction")
	}
	if stats := c.Stats(); stats.Size != 2 {
		t.Fatalf("expected size 2, got %d", stats.Size)
	}
}

func TestSQLiteNamespacesAreIsolated(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	analysis, _ := NewSQLite(db, "analysis", 4)
	cost, _ := NewSQLite(db, "cost", 4)
	analysis.Put("k", []byte("arch"))
	if _, ok := cost.Get("k"); ok {
		t.Fatal("namespaces must not share entries")
	}
}
