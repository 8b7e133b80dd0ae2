package pkgmgr

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/oauth2/clientcredentials"
)

// Login obtains a bearer token for a registry whose config.json advertises
// an OAuthTokenURL, using the OAuth2 client-credentials grant, and stores
// it in credentials.json under the registry's index URL — a cache-to-disk
// shape like a cached OAuth token.json, but via clientcredentials instead
// of an interactive authorization-code web flow, since a registry login
// has no human in the loop to redirect through a browser.
func Login(ctx context.Context, cfg *ConfigJSON, indexURL, clientID, clientSecret string) (string, error) {
	if cfg.OAuthTokenURL == "" {
		return "", errors.Errorf("pkgmgr: registry at %q has no oauth_token_url; use a raw token instead", indexURL)
	}
	oauthCfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     cfg.OAuthTokenURL,
	}
	tok, err := oauthCfg.Token(ctx)
	if err != nil {
		return "", errors.Wrap(err, "pkgmgr: fetching OAuth2 client-credentials token")
	}

	creds, err := LoadCredentials()
	if err != nil {
		return "", err
	}
	creds.SetToken(indexURL, tok.AccessToken)
	if err := creds.Save(); err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}
