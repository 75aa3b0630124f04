package artwork_test

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/edumarques81/stellar-pixel/internal/domain/artwork"
)

func testArtifact(source string) *artwork.Artifact {
	return &artwork.Artifact{
		Pixels:  make([]byte, artwork.PixelBytes),
		Encoded: "AAAA",
		Source:  source,
	}
}

func TestNewCache_ClampsCapacity(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 1},
		{-5, 1},
		{1, 1},
		{25, 25},
		{500, 500},
		{501, 500},
	}
	for _, tt := range tests {
		if got := artwork.NewCache(tt.in).Stats().Capacity; got != tt.want {
			t.Errorf("NewCache(%d) capacity = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestCache_NeverExceedsCapacity(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for _, capacity := range []int{1, 2, 7, 25, 500} {
		c := artwork.NewCache(capacity)
		for i := 0; i < 3*capacity+10; i++ {
			key := artwork.TrackKey(fmt.Sprintf("album-%d", rng.IntN(2*capacity+1)))
			c.Put(key, testArtifact("test"))
			if c.Len() > capacity {
				t.Fatalf("capacity %d: cache holds %d entries", capacity, c.Len())
			}
		}
	}
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := artwork.NewCache(2)
	c.Put("a", testArtifact("a"))
	c.Put("b", testArtifact("b"))

	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected hit for a")
	}
	c.Put("c", testArtifact("c"))

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a should survive after being read")
	}
	if stats := c.Stats(); stats.Evictions != 1 {
		t.Errorf("evictions = %d, want 1", stats.Evictions)
	}
}

func TestCache_GetPromotesWithoutChangingCount(t *testing.T) {
	c := artwork.NewCache(5)
	for _, k := range []artwork.TrackKey{"a", "b", "c"} {
		c.Put(k, testArtifact(string(k)))
	}

	before := c.Len()
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected hit")
	}
	if c.Len() != before {
		t.Errorf("Get changed count from %d to %d", before, c.Len())
	}

	keys := c.Keys()
	if keys[len(keys)-1] != "a" {
		t.Errorf("a should be most recently used, keys = %v", keys)
	}
}

func TestCache_EmptyKeyBypassed(t *testing.T) {
	c := artwork.NewCache(5)
	for i := 0; i < 3; i++ {
		c.Put("", testArtifact("radio"))
		if _, ok := c.Get(""); ok {
			t.Fatal("empty key must never hit")
		}
	}
	if c.Len() != 0 {
		t.Errorf("cache should stay empty, has %d entries", c.Len())
	}
}

func TestCache_PutIfRespectsCondition(t *testing.T) {
	c := artwork.NewCache(5)

	if c.PutIf("a", testArtifact("a"), func() bool { return false }) {
		t.Error("PutIf should refuse when cond is false")
	}
	if c.Len() != 0 {
		t.Error("refused write must not be stored")
	}
	if !c.PutIf("a", testArtifact("a"), func() bool { return true }) {
		t.Error("PutIf should store when cond is true")
	}
}

func TestCache_StatsBytes(t *testing.T) {
	c := artwork.NewCache(2)
	if c.Stats().Bytes != 0 {
		t.Fatal("empty cache should report zero bytes")
	}

	c.Put("a", testArtifact("a"))
	one := c.Stats().Bytes
	if one <= int64(artwork.PixelBytes) {
		t.Errorf("bytes estimate %d should include the pixel buffer", one)
	}

	// replacing an entry must not double count
	c.Put("a", testArtifact("a"))
	if got := c.Stats().Bytes; got != one {
		t.Errorf("replace changed bytes from %d to %d", one, got)
	}

	c.Put("b", testArtifact("b"))
	c.Put("c", testArtifact("c"))
	if got := c.Stats().Bytes; got != 2*one {
		t.Errorf("after eviction bytes = %d, want %d", got, 2*one)
	}

	c.Clear()
	if stats := c.Stats(); stats.Bytes != 0 || stats.Entries != 0 {
		t.Errorf("Clear left %+v", stats)
	}
}

func TestCache_HitMissCounters(t *testing.T) {
	c := artwork.NewCache(2)
	c.Put("a", testArtifact("a"))
	c.Get("a")
	c.Get("missing")
	c.Get("")

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 2 {
		t.Errorf("hits/misses = %d/%d, want 1/2", stats.Hits, stats.Misses)
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := artwork.NewCache(10)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := artwork.TrackKey(fmt.Sprintf("k%d", (g*i)%30))
				c.Put(key, testArtifact("x"))
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 10 {
		t.Errorf("cache holds %d entries, capacity 10", c.Len())
	}
}
