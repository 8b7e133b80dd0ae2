package pkgmgr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLoginRejectsConfigWithoutOAuthTokenURL(t *testing.T) {
	t.Setenv("X07_PKG_HOME", t.TempDir())
	_, err := Login(context.Background(), &ConfigJSON{}, "sparse+https://index.example.com/", "id", "secret")
	if err == nil {
		t.Fatal("expected an error when config.json has no oauth_token_url")
	}
}

func TestLoginStoresTokenInCredentials(t *testing.T) {
	t.Setenv("X07_PKG_HOME", t.TempDir())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "minted-token",
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	}))
	defer srv.Close()

	cfg := &ConfigJSON{OAuthTokenURL: srv.URL}
	indexURL := "sparse+https://index.example.com/"
	tok, err := Login(context.Background(), cfg, indexURL, "client-id", "client-secret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if tok != "minted-token" {
		t.Errorf("Login returned %q, want %q", tok, "minted-token")
	}

	creds, err := LoadCredentials()
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if got := creds.Token(indexURL); got != "minted-token" {
		t.Errorf("stored token = %q, want %q", got, "minted-token")
	}
}
