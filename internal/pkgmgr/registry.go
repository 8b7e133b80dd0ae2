package pkgmgr

import (
	"bufio"
	"bytes"
	"context"
	"crypto"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"j5.dev/x07/internal/diag"
	"j5.dev/x07/internal/hashext"
	"j5.dev/x07/internal/httpx"
)

// IndexEntry is one NDJSON line of a package's sparse index file
// ("Sparse index entry (v=1)").
type IndexEntry struct {
	V        int            `json:"v"`
	Pkg      string         `json:"pkg"`
	Vers     string         `json:"vers"`
	Cksum    string         `json:"cksum"`
	Yanked   bool           `json:"yanked,omitempty"`
	Deps     []IndexDepEdge `json:"deps"`
	X07Req   string         `json:"x07_req,omitempty"`
	Worlds   []string       `json:"worlds,omitempty"`
}

// IndexDepEdge is one dependency edge inside an IndexEntry.
type IndexDepEdge struct {
	Pkg      string `json:"pkg"`
	Req      string `json:"req"`
	Registry string `json:"registry,omitempty"`
	Optional bool   `json:"optional,omitempty"`
}

// ConfigJSON is the `{index}config.json` document fetched once per
// registry and cached alongside per-package index files.
type ConfigJSON struct {
	DL            string `json:"dl"`
	API           string `json:"api,omitempty"`
	Canonical     string `json:"canonical,omitempty"`
	AuthRequired  bool   `json:"auth-required,omitempty"`
	OAuthTokenURL string `json:"oauth_token_url,omitempty"`
}

// Registry is a sparse-HTTP index client. IndexURL
// must begin with "sparse+" and end with "/"; fetch resolves that scheme
// down to a plain https:// request the way cargo's sparse registry
// protocol does (the "sparse+" prefix exists only to distinguish the
// protocol in workspace manifests, never on the wire).
type Registry struct {
	Name     string
	IndexURL string
	Token    string // raw Authorization token; empty if unauthenticated
	Client   httpx.BasicClient
	Cache    *IndexCache
	Offline  bool
}

// NewRegistry validates indexURL against the sparse index protocol's
// requirements before constructing a client.
func NewRegistry(name, indexURL, token string, client httpx.BasicClient, cache *IndexCache, offline bool) (*Registry, error) {
	if !strings.HasPrefix(indexURL, "sparse+") {
		return nil, &Error{Code: diag.RegistryUnsupportedProtocol, Err: errors.Errorf("registry %q: index URL %q", name, indexURL)}
	}
	if !strings.HasSuffix(indexURL, "/") {
		return nil, &Error{Code: diag.RegistryURLMustEndWithSlash, Err: errors.Errorf("registry %q: index URL %q", name, indexURL)}
	}
	return &Registry{Name: name, IndexURL: indexURL, Token: token, Client: client, Cache: cache, Offline: offline}, nil
}

func (r *Registry) httpsRoot() string {
	return "https://" + strings.TrimPrefix(r.IndexURL, "sparse+https://")
}

// Config fetches and caches config.json at the index root.
func (r *Registry) Config(ctx context.Context) (*ConfigJSON, error) {
	body, err := r.fetch(ctx, "config.json")
	if err != nil {
		return nil, err
	}
	var cfg ConfigJSON
	if err := json.Unmarshal(body, &cfg); err != nil {
		return nil, &Error{Code: diag.RegistryConfigInvalid, Err: err}
	}
	return &cfg, nil
}

// Index fetches every version entry for pkgID, parsing each NDJSON line
// of the index file into one IndexEntry.
func (r *Registry) Index(ctx context.Context, pkgID string) ([]IndexEntry, error) {
	relPath, err := indexPath(pkgID)
	if err != nil {
		return nil, err
	}
	body, err := r.fetch(ctx, relPath)
	if err != nil {
		return nil, err
	}
	var entries []IndexEntry
	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var e IndexEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, &Error{Code: diag.RegistryIndexEntryInvalid, Err: errors.Wrapf(err, "pkg %q", pkgID)}
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Artifact fetches a package version's archive bytes from the registry's
// download URL template (config.json's `dl` field, with `{pkg}`/`{version}`
// substituted).
func (r *Registry) Artifact(ctx context.Context, dlTemplate, pkgID, version string) (io.ReadCloser, error) {
	url := strings.NewReplacer("{pkg}", pkgID, "{version}", version).Replace(dlTemplate)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, errors.Errorf("fetching artifact %s@%s: %s", pkgID, version, resp.Status)
	}
	return resp.Body, nil
}

func (r *Registry) authorize(req *http.Request) {
	if r.Token != "" {
		req.Header.Set("Authorization", r.Token)
	}
}

// do sends req as built, retrying exactly once with the raw Authorization
// token attached if the first attempt comes back 401 — so an unauthenticated registry never pays the token
// header on its common-case request, and 403 (as opposed to 401) is
// always final, never retried.
func (r *Registry) do(req *http.Request) (*http.Response, error) {
	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized && r.Token != "" {
		resp.Body.Close()
		r.authorize(req)
		return r.Client.Do(req)
	}
	return resp, nil
}

// fetch resolves relPath against the index root, applying the
// ETag/Last-Modified cache and --offline semantics.
func (r *Registry) fetch(ctx context.Context, relPath string) ([]byte, error) {
	if r.Cache != nil {
		if cached, meta, ok := r.Cache.Load(r.Name, relPath); ok {
			if r.Offline {
				return cached, nil
			}
			body, fresh, err := r.conditionalGet(ctx, relPath, meta)
			if err != nil {
				return nil, err
			}
			if fresh {
				return cached, nil
			}
			r.Cache.Store(r.Name, relPath, body.data, body.meta)
			return body.data, nil
		}
	}
	if r.Offline {
		return nil, &Error{Code: diag.RegistryOfflineCacheMiss, Err: errors.Errorf("%q not cached", relPath)}
	}
	body, _, err := r.conditionalGet(ctx, relPath, CacheMeta{})
	if err != nil {
		return nil, err
	}
	if r.Cache != nil {
		r.Cache.Store(r.Name, relPath, body.data, body.meta)
	}
	return body.data, nil
}

type fetchedBody struct {
	data []byte
	meta CacheMeta
}

func (r *Registry) conditionalGet(ctx context.Context, relPath string, prior CacheMeta) (fetchedBody, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.httpsRoot()+relPath, nil)
	if err != nil {
		return fetchedBody{}, false, err
	}
	if prior.ETag != "" {
		req.Header.Set("If-None-Match", prior.ETag)
	}
	if prior.LastModified != "" {
		req.Header.Set("If-Modified-Since", prior.LastModified)
	}
	resp, err := r.do(req)
	if err != nil {
		return fetchedBody{}, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotModified {
		return fetchedBody{}, true, nil
	}
	if resp.StatusCode != http.StatusOK {
		return fetchedBody{}, false, errors.Errorf("fetching %q: %s", relPath, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fetchedBody{}, false, err
	}
	return fetchedBody{data: data, meta: CacheMeta{ETag: resp.Header.Get("ETag"), LastModified: resp.Header.Get("Last-Modified")}}, false, nil
}

// indexPath renders "ns:name" to "ns/<ns>/<shard>/<name>".
func indexPath(pkgID string) (string, error) {
	parts := strings.SplitN(pkgID, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", errors.Errorf("pkgmgr: malformed package id %q", pkgID)
	}
	ns, name := parts[0], parts[1]
	return fmt.Sprintf("ns/%s/%s/%s", ns, shard(name), name), nil
}

// shard implements the tiered shard scheme: lengths 1/2/3/>=4
// map to "1" / "2" / "3/<c0>" / "<c0c1>/<c2c3>", the same layout the
// crates.io sparse index uses.
func shard(name string) string {
	switch len(name) {
	case 1:
		return "1"
	case 2:
		return "2"
	case 3:
		return "3/" + name[0:1]
	default:
		return name[0:2] + "/" + name[2:4]
	}
}

func sha256Hex(data []byte) string {
	h := hashext.NewTypedHash(crypto.SHA256)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
