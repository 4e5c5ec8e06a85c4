package auth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/debsources/debsources/internal/logging"
)

// OIDCConfig holds OIDC provider configuration.
type OIDCConfig struct {
	IssuerURL  string // e.g. https://sso.debian.org/realms/debsources
	ClientID   string
	AdminClaim string // claim key for admin status (default: "is_admin")
	AdminValue string // claim value that indicates admin (default: "true")
}

// OIDCProvider validates OIDC ID tokens.
type OIDCProvider struct {
	verifier *oidc.IDTokenVerifier
	config   OIDCConfig
}

// NewOIDCProvider creates an OIDC provider from config.
// Returns nil if IssuerURL is empty (OIDC disabled).
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig) (*OIDCProvider, error) {
	if cfg.IssuerURL == "" {
		return nil, nil
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc provider init: %w", err)
	}

	logging.Info("OIDC provider initialized",
		zap.String("issuer", cfg.IssuerURL),
		zap.String("client_id", cfg.ClientID))

	return newOIDCProvider(provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}), cfg), nil
}

func newOIDCProvider(verifier *oidc.IDTokenVerifier, cfg OIDCConfig) *OIDCProvider {
	if cfg.AdminClaim == "" {
		cfg.AdminClaim = "is_admin"
	}
	if cfg.AdminValue == "" {
		cfg.AdminValue = "true"
	}
	return &OIDCProvider{verifier: verifier, config: cfg}
}

// ValidateToken verifies an OIDC ID token and maps it to Claims.
func (o *OIDCProvider) ValidateToken(ctx context.Context, tokenStr string) (*Claims, error) {
	idToken, err := o.verifier.Verify(ctx, tokenStr)
	if err != nil {
		return nil, err
	}

	var oidcClaims struct {
		Sub               string `json:"sub"`
		PreferredUsername string `json:"preferred_username"`
		Email             string `json:"email"`
	}
	if err := idToken.Claims(&oidcClaims); err != nil {
		return nil, fmt.Errorf("parse oidc claims: %w", err)
	}

	// Prefer preferred_username, then email, then sub.
	username := oidcClaims.PreferredUsername
	if username == "" {
		username = oidcClaims.Email
	}
	if username == "" {
		username = oidcClaims.Sub
	}

	var rawClaims map[string]interface{}
	if err := idToken.Claims(&rawClaims); err != nil {
		return nil, fmt.Errorf("parse oidc claims: %w", err)
	}
	isAdmin := false
	if val, ok := rawClaims[o.config.AdminClaim]; ok {
		isAdmin = fmt.Sprintf("%v", val) == o.config.AdminValue
	}

	return &Claims{
		Username: username,
		IsAdmin:  isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: oidcClaims.Sub,
			Issuer:  idToken.Issuer,
		},
	}, nil
}
