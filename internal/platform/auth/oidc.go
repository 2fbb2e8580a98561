package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const discoveryTimeout = 10 * time.Second

// discovery is the part of an OpenID configuration document needed to
// verify access tokens.
type discovery struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

// DiscoverJWKS resolves the key set URL for issuer. It reads the OpenID
// configuration first and falls back to issuer/.well-known/jwks.json, which
// is where Supabase Auth publishes its keys without a discovery document.
func DiscoverJWKS(ctx context.Context, client *http.Client, issuer string) (string, error) {
	if issuer == "" {
		return "", fmt.Errorf("issuer is required for key discovery")
	}
	if client == nil {
		client = &http.Client{Timeout: discoveryTimeout}
	}
	base := strings.TrimRight(issuer, "/")

	doc, err := fetchDiscovery(ctx, client, base+"/.well-known/openid-configuration")
	if err == nil && doc.JWKSURI != "" {
		return doc.JWKSURI, nil
	}

	fallback := base + "/.well-known/jwks.json"
	req, rerr := http.NewRequestWithContext(ctx, http.MethodHead, fallback, nil)
	if rerr != nil {
		return "", rerr
	}
	resp, rerr := client.Do(req)
	if rerr != nil {
		return "", fmt.Errorf("discover keys for %s: %w", issuer, rerr)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		if err == nil {
			err = fmt.Errorf("discovery document has no jwks_uri")
		}
		return "", fmt.Errorf("discover keys for %s: %w (fallback status %d)", issuer, err, resp.StatusCode)
	}
	return fallback, nil
}

func fetchDiscovery(ctx context.Context, client *http.Client, url string) (*discovery, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery endpoint returned status %d", resp.StatusCode)
	}
	var doc discovery
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode discovery document: %w", err)
	}
	return &doc, nil
}
