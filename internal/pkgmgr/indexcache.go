package pkgmgr

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// CacheMeta is the sidecar `<relpath>.meta.json` file, recording the
// validators a conditional GET needs to revalidate a cached
// index file.
type CacheMeta struct {
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
}

// IndexCache is the on-disk `.x07/cache/index/<sha256(registry_id)>/`
// tree. Every registry gets its own subtree keyed by the sha256 of its
// name, so two workspaces that happen to configure a
// registry under different local names never collide and a cache
// directory can be inspected offline to see which registries it holds.
type IndexCache struct {
	Root string // workspace's paths.cache_dir; dir appends "index"
}

func (c *IndexCache) dir(registryName string) string {
	return filepath.Join(c.Root, "index", sha256Hex([]byte(registryName)))
}

// Load reads a cached relPath and its sidecar metadata, if present.
func (c *IndexCache) Load(registryName, relPath string) ([]byte, CacheMeta, bool) {
	dataPath := filepath.Join(c.dir(registryName), filepath.FromSlash(relPath))
	data, err := os.ReadFile(dataPath)
	if err != nil {
		return nil, CacheMeta{}, false
	}
	var meta CacheMeta
	if metaBytes, err := os.ReadFile(dataPath + ".meta.json"); err == nil {
		json.Unmarshal(metaBytes, &meta)
	}
	return data, meta, true
}

// Store writes relPath and its sidecar metadata, creating parent
// directories as needed.
func (c *IndexCache) Store(registryName, relPath string, data []byte, meta CacheMeta) error {
	dataPath := filepath.Join(c.dir(registryName), filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(dataPath, data, 0o644); err != nil {
		return err
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(dataPath+".meta.json", metaBytes, 0o644)
}
