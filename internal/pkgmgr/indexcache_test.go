package pkgmgr

import "testing"

func TestIndexCacheStoreLoadRoundTrip(t *testing.T) {
	c := &IndexCache{Root: t.TempDir()}
	meta := CacheMeta{ETag: `"abc123"`, LastModified: "Wed, 01 Jan 2025 00:00:00 GMT"}
	if err := c.Store("crates-io", "ns/x07/se/rde/serde", []byte("line1\nline2\n"), meta); err != nil {
		t.Fatalf("Store: %v", err)
	}
	data, gotMeta, ok := c.Load("crates-io", "ns/x07/se/rde/serde")
	if !ok {
		t.Fatal("Load: expected a cache hit")
	}
	if string(data) != "line1\nline2\n" {
		t.Errorf("Load data = %q", data)
	}
	if gotMeta != meta {
		t.Errorf("Load meta = %+v, want %+v", gotMeta, meta)
	}
}

func TestIndexCacheLoadMiss(t *testing.T) {
	c := &IndexCache{Root: t.TempDir()}
	if _, _, ok := c.Load("crates-io", "ns/x07/se/rde/serde"); ok {
		t.Fatal("expected a cache miss on an empty cache")
	}
}

func TestIndexCacheSeparatesRegistriesByName(t *testing.T) {
	c := &IndexCache{Root: t.TempDir()}
	if err := c.Store("registry-a", "config.json", []byte("a"), CacheMeta{}); err != nil {
		t.Fatalf("Store a: %v", err)
	}
	if err := c.Store("registry-b", "config.json", []byte("b"), CacheMeta{}); err != nil {
		t.Fatalf("Store b: %v", err)
	}
	dataA, _, _ := c.Load("registry-a", "config.json")
	dataB, _, _ := c.Load("registry-b", "config.json")
	if string(dataA) != "a" || string(dataB) != "b" {
		t.Errorf("registries collided: a=%q b=%q", dataA, dataB)
	}
}
