package pkgmgr

import (
	"bytes"
	"context"
	"net/http"
	"testing"
)

// funcClient adapts a plain func to httpx.BasicClient for tests, since
// httpxtest.MockClient's strict call-ordering validator is more
// ceremony than registry.go's retry/conditional-GET paths need.
type funcClient struct {
	do func(*http.Request) (*http.Response, error)
}

func (f *funcClient) Do(req *http.Request) (*http.Response, error) { return f.do(req) }

func resp(status int, body string, headers map[string]string) *http.Response {
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     h,
		Body:       httpNopCloser{bytes.NewReader([]byte(body))},
	}
}

type httpNopCloser struct{ *bytes.Reader }

func (httpNopCloser) Close() error { return nil }

func TestNewRegistryRejectsNonSparseScheme(t *testing.T) {
	if _, err := NewRegistry("crates", "https://index.example.com/", "", nil, nil, false); err == nil {
		t.Fatal("expected an error for a non sparse+ index URL")
	}
}

func TestNewRegistryRejectsMissingTrailingSlash(t *testing.T) {
	if _, err := NewRegistry("crates", "sparse+https://index.example.com", "", nil, nil, false); err == nil {
		t.Fatal("expected an error for an index URL missing a trailing slash")
	}
}

func TestRegistryIndexParsesNDJSON(t *testing.T) {
	client := &funcClient{do: func(req *http.Request) (*http.Response, error) {
		if req.URL.String() != "https://index.example.com/ns/x07/se/rd/serde" {
			t.Fatalf("unexpected request URL %q", req.URL.String())
		}
		body := `{"v":1,"pkg":"x07:serde","vers":"1.0.0","cksum":"aaa","deps":[]}` + "\n" +
			`{"v":1,"pkg":"x07:serde","vers":"1.1.0","cksum":"bbb","deps":[{"pkg":"x07:core","req":"^1.0.0"}]}` + "\n"
		return resp(http.StatusOK, body, nil), nil
	}}
	reg, err := NewRegistry("crates", "sparse+https://index.example.com/", "", client, nil, false)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	entries, err := reg.Index(context.Background(), "x07:serde")
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[1].Deps[0].Pkg != "x07:core" || entries[1].Deps[0].Req != "^1.0.0" {
		t.Errorf("entries[1].Deps[0] = %+v", entries[1].Deps[0])
	}
}

func TestRegistryDoRetriesOnceOn401ThenAttachesToken(t *testing.T) {
	var calls int
	client := &funcClient{do: func(req *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			if req.Header.Get("Authorization") != "" {
				t.Error("first attempt must not carry an Authorization header")
			}
			return resp(http.StatusUnauthorized, "", nil), nil
		}
		if req.Header.Get("Authorization") != "tok-abc" {
			t.Errorf("retry Authorization = %q, want %q", req.Header.Get("Authorization"), "tok-abc")
		}
		return resp(http.StatusOK, "ok", nil), nil
	}}
	reg, err := NewRegistry("crates", "sparse+https://index.example.com/", "tok-abc", client, nil, false)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	body, err := reg.fetch(context.Background(), "config.json")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("fetch body = %q", body)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRegistryConditionalGetRevalidatesCachedIndexFile(t *testing.T) {
	cache := &IndexCache{Root: t.TempDir()}
	cache.Store("crates", "config.json", []byte("stale body"), CacheMeta{ETag: `"v1"`})

	var sawIfNoneMatch string
	client := &funcClient{do: func(req *http.Request) (*http.Response, error) {
		sawIfNoneMatch = req.Header.Get("If-None-Match")
		return resp(http.StatusNotModified, "", nil), nil
	}}
	reg, err := NewRegistry("crates", "sparse+https://index.example.com/", "", client, cache, false)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	body, err := reg.fetch(context.Background(), "config.json")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if sawIfNoneMatch != `"v1"` {
		t.Errorf("If-None-Match = %q, want %q", sawIfNoneMatch, `"v1"`)
	}
	if string(body) != "stale body" {
		t.Errorf("fetch on a 304 should return the cached body, got %q", body)
	}
}

func TestRegistryOfflineServesCacheWithoutRequest(t *testing.T) {
	cache := &IndexCache{Root: t.TempDir()}
	cache.Store("crates", "config.json", []byte("cached"), CacheMeta{})

	client := &funcClient{do: func(req *http.Request) (*http.Response, error) {
		t.Fatal("offline mode must not make a request when the cache already has the file")
		return nil, nil
	}}
	reg, err := NewRegistry("crates", "sparse+https://index.example.com/", "", client, cache, true)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	body, err := reg.fetch(context.Background(), "config.json")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(body) != "cached" {
		t.Errorf("fetch = %q, want %q", body, "cached")
	}
}

func TestRegistryOfflineCacheMissIsAnError(t *testing.T) {
	cache := &IndexCache{Root: t.TempDir()}
	client := &funcClient{do: func(req *http.Request) (*http.Response, error) {
		t.Fatal("offline mode must not make a request")
		return nil, nil
	}}
	reg, err := NewRegistry("crates", "sparse+https://index.example.com/", "", client, cache, true)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if _, err := reg.fetch(context.Background(), "config.json"); err == nil {
		t.Fatal("expected an error for an offline cache miss")
	}
}

func TestIndexPathShardsByNameLength(t *testing.T) {
	cases := []struct {
		pkgID string
		want  string
	}{
		{"x07:a", "ns/x07/1/a"},
		{"x07:ab", "ns/x07/2/ab"},
		{"x07:abc", "ns/x07/3/a/abc"},
		{"x07:serde", "ns/x07/se/rd/serde"},
	}
	for _, tc := range cases {
		got, err := indexPath(tc.pkgID)
		if err != nil {
			t.Fatalf("indexPath(%q): %v", tc.pkgID, err)
		}
		if got != tc.want {
			t.Errorf("indexPath(%q) = %q, want %q", tc.pkgID, got, tc.want)
		}
	}
}

func TestIndexPathRejectsMalformedPkgID(t *testing.T) {
	if _, err := indexPath("no-namespace"); err == nil {
		t.Fatal("expected an error for a package id with no namespace separator")
	}
}
