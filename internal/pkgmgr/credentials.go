package pkgmgr

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Credentials is the `~/.x07/credentials.json` schema:
// tokens keyed by a registry's full sparse index URL (the "sparse+..."
// string itself is the key, not a derived hash — `tokens["sparse+<url>"]`
// literally).
type Credentials struct {
	Tokens map[string]string `json:"tokens"`
}

// CredentialsPath resolves ~/.x07/credentials.json, honoring the
// X07_PKG_HOME override.
func CredentialsPath() (string, error) {
	if home := os.Getenv("X07_PKG_HOME"); home != "" {
		return filepath.Join(home, "credentials.json"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "pkgmgr: resolving home directory")
	}
	return filepath.Join(home, ".x07", "credentials.json"), nil
}

// LoadCredentials reads the credentials file, returning an empty
// Credentials (not an error) if it does not yet exist.
func LoadCredentials() (*Credentials, error) {
	path, err := CredentialsPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Credentials{Tokens: map[string]string{}}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "pkgmgr: reading credentials file")
	}
	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(err, "pkgmgr: parsing credentials file")
	}
	if c.Tokens == nil {
		c.Tokens = map[string]string{}
	}
	return &c, nil
}

// Save writes the credentials file at mode 0600, the permission required
// for a file holding raw registry tokens.
func (c *Credentials) Save() error {
	path, err := CredentialsPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Token returns the raw token for a registry's full index URL, or "" if
// none is stored.
func (c *Credentials) Token(indexURL string) string {
	return c.Tokens[indexURL]
}

// SetToken records a token for a registry's full index URL.
func (c *Credentials) SetToken(indexURL, token string) {
	if c.Tokens == nil {
		c.Tokens = map[string]string{}
	}
	c.Tokens[indexURL] = token
}
