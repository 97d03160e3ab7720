package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jon4hz/chartwise/internal/config"
)

var ErrMissingEmail = errors.New("id token has no email claim")

// FederatedIdentity is the verified content of a federated ID token.
type FederatedIdentity struct {
	Subject string
	Email   string
	Name    string
}

// IDTokenVerifier verifies ID tokens from a federated identity provider.
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*FederatedIdentity, error)
}

// OIDCVerifier verifies ID tokens of an OpenID Connect issuer such as Firebase Authentication.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers the issuer's signing keys.
func NewOIDCVerifier(ctx context.Context, cfg *config.FederatedConfig) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover oidc issuer: %w", err)
	}
	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

// Verify checks signature, issuer, audience and expiry. The email claim is required.
func (v *OIDCVerifier) Verify(ctx context.Context, rawIDToken string) (*FederatedIdentity, error) {
	idToken, err := v.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, err
	}

	var claims struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to decode id token claims: %w", err)
	}
	if strings.TrimSpace(claims.Email) == "" {
		return nil, ErrMissingEmail
	}

	return &FederatedIdentity{
		Subject: idToken.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
	}, nil
}
