package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCProvider wraps the OIDC provider and OAuth2 config.
type OIDCProvider struct {
	provider      *oidc.Provider
	oauth2Config  *oauth2.Config
	verifier      *oidc.IDTokenVerifier
	usernameClaim string
}

// Identity is the user identified by a verified ID token.
type Identity struct {
	Subject  string
	UserName string
	Email    string
	Expiry   time.Time
}

// NewOIDCProvider creates a new OIDC provider with discovery. usernameClaim
// names the ID token claim that holds the scheduler user name.
func NewOIDCProvider(ctx context.Context, issuerURL, clientID, clientSecret, redirectURL string, scopes []string, usernameClaim string) (*OIDCProvider, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	oauth2Config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       scopes,
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID: clientID,
	})

	if usernameClaim == "" {
		usernameClaim = "preferred_username"
	}

	return &OIDCProvider{
		provider:      provider,
		oauth2Config:  oauth2Config,
		verifier:      verifier,
		usernameClaim: usernameClaim,
	}, nil
}

// AuthCodeURL generates an authorization URL with state and nonce.
func (p *OIDCProvider) AuthCodeURL(state, nonce string) string {
	return p.oauth2Config.AuthCodeURL(
		state,
		oidc.Nonce(nonce),
	)
}

// Exchange exchanges an authorization code for tokens, validates the ID token
// and extracts the identity.
func (p *OIDCProvider) Exchange(ctx context.Context, code, nonce string) (*Identity, error) {
	token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("no id_token in token response")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	if idToken.Nonce != nonce {
		return nil, fmt.Errorf("nonce mismatch")
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}

	identity, err := IdentityFromClaims(claims, p.usernameClaim)
	if err != nil {
		return nil, err
	}
	identity.Subject = idToken.Subject
	identity.Expiry = token.Expiry
	return identity, nil
}

// IdentityFromClaims reads the user name from usernameClaim. The claim must
// be a non-empty string.
func IdentityFromClaims(claims map[string]any, usernameClaim string) (*Identity, error) {
	name, _ := claims[usernameClaim].(string)
	if name == "" {
		return nil, fmt.Errorf("%s claim is required", usernameClaim)
	}
	email, _ := claims["email"].(string)
	return &Identity{UserName: name, Email: email}, nil
}

// GenerateSecureString generates a cryptographically secure random string.
func GenerateSecureString(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
