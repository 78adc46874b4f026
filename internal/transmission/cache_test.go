package transmission

import (
	"testing"
	"time"
)

func TestCacheLookupMiss(t *testing.T) {
	c := NewCache(time.Minute, 10)
	if _, ok := c.Lookup("x.begin.zone."); ok {
		t.Error("expected a miss on an empty cache")
	}
}

func TestCacheInsertThenLookup(t *testing.T) {
	c := NewCache(time.Minute, 10)
	resp := map[string]string{"success": "True", "transmission_id": "abcd1234"}
	c.Insert("x.begin.zone.", resp)

	got, ok := c.Lookup("x.begin.zone.")
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if got["transmission_id"] != "abcd1234" {
		t.Error("unexpected cached value", got)
	}
}

func TestCacheExpires(t *testing.T) {
	c := NewCache(time.Millisecond, 10)
	c.Insert("x.begin.zone.", map[string]string{"success": "True"})
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Lookup("x.begin.zone."); ok {
		t.Error("expected the entry to have expired")
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(time.Minute, 2)
	c.Insert("a.zone.", map[string]string{"v": "1"})
	c.Insert("b.zone.", map[string]string{"v": "2"})
	c.Insert("c.zone.", map[string]string{"v": "3"}) // evicts a.zone.

	if _, ok := c.Lookup("a.zone."); ok {
		t.Error("expected a.zone. to have been evicted")
	}
	if _, ok := c.Lookup("b.zone."); !ok {
		t.Error("expected b.zone. to still be cached")
	}
	if c.Len() != 2 {
		t.Errorf("expected 2 entries after eviction, got %d", c.Len())
	}
}
