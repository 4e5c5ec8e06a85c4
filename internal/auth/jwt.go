// Package auth guards administrative endpoints with bearer tokens: HS256 JWTs
// signed with a shared secret, or ID tokens from an OIDC issuer.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/debsources/debsources/internal/logging"
	"github.com/debsources/debsources/internal/metrics"
	"github.com/debsources/debsources/pkg/protocol"
)

type contextKey string

const (
	claimsContextKey contextKey = "claims"
)

// Claims holds admin token claims.
type Claims struct {
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// Auth validates admin bearer tokens.
type Auth struct {
	secret []byte
	oidc   *OIDCProvider
}

// New creates a new Auth handler. An empty secret disables local JWTs.
func New(jwtSecret string) *Auth {
	return &Auth{secret: []byte(jwtSecret)}
}

// Enabled reports whether any token source is configured.
func (a *Auth) Enabled() bool {
	return len(a.secret) > 0 || a.oidc != nil
}

// HasOIDC returns true if an OIDC provider is configured.
func (a *Auth) HasOIDC() bool {
	return a.oidc != nil
}

// SetOIDCProvider sets the OIDC provider.
func (a *Auth) SetOIDCProvider(p *OIDCProvider) {
	a.oidc = p
}

// IssueToken signs an admin token for username valid for ttl.
func (a *Auth) IssueToken(username string, ttl time.Duration) (string, time.Time, error) {
	if len(a.secret) == 0 {
		return "", time.Time{}, errors.New("no signing secret configured")
	}
	now := time.Now()
	claims := &Claims{
		Username: username,
		IsAdmin:  true,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    "debsources",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return tokenStr, claims.ExpiresAt.Time, nil
}

// RequireAdmin returns middleware that admits only admin tokens. Local JWTs
// are tried first, then OIDC when configured.
func (a *Auth) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := extractToken(r)
		if tokenStr == "" {
			metrics.RecordAuthAttempt(false)
			sendAuthError(w, http.StatusUnauthorized, "missing authentication token")
			return
		}

		claims, err := a.validate(r.Context(), tokenStr)
		if err != nil {
			metrics.RecordAuthAttempt(false)
			logging.WithContext(r.Context()).Debug("admin token rejected", zap.Error(err))
			sendAuthError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if !claims.IsAdmin {
			metrics.RecordAuthAttempt(false)
			sendAuthError(w, http.StatusForbidden, "admin access required")
			return
		}

		metrics.RecordAuthAttempt(true)
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func (a *Auth) validate(ctx context.Context, tokenStr string) (*Claims, error) {
	var errs []error
	if len(a.secret) > 0 {
		claims, err := a.validateToken(tokenStr)
		if err == nil {
			return claims, nil
		}
		errs = append(errs, err)
	}
	if a.oidc != nil {
		claims, err := a.oidc.ValidateToken(ctx, tokenStr)
		if err == nil {
			return claims, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, errors.New("no token source configured")
	}
	return nil, errors.Join(errs...)
}

func (a *Auth) validateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})

	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// GetClaims extracts claims from the request context.
func GetClaims(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsContextKey).(*Claims)
	return claims
}

// WithClaims injects claims into a context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

func extractToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func sendAuthError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(protocol.ErrorResponse{
		Error: message,
		Code:  code,
	})
}
