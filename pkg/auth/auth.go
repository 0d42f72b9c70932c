// Package auth implements the HTTP boundary's credential model: a request
// carries either a JWT bearer token or an API key, both of which resolve to
// the same internal user context (spec.md §6, Design Note "either JWT or
// API key auth").
//
// No repo in the retrieval pack implements bearer-token or API-key
// authentication (see DESIGN.md) — this package is grounded directly on
// spec.md §6 and §9 rather than on an observed pack usage site, using the
// ecosystem's standard JWT library.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/penguintechinc/waddlebot-core/pkg/models"
)

// ErrMissingCredential is returned when a request carries neither a bearer
// token nor an API key.
var ErrMissingCredential = errors.New("auth: no credential presented")

// ErrInvalidCredential wraps any failure to parse or verify a credential.
var ErrInvalidCredential = errors.New("auth: invalid credential")

// Claims is the JWT payload shape (spec.md §6: "sub, username, email,
// roles, iat, exp").
type Claims struct {
	jwt.RegisteredClaims
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

// APIKeyRecord is the permission record an API key resolves to. A real
// deployment looks this up from a store keyed by the raw key; here it is
// the already-resolved record handed to Verifier by an APIKeyStore.
type APIKeyRecord struct {
	Key         string
	UserID      string
	CommunityID string
	Roles       []string
}

// credentialKind discriminates Credential's two cases.
type credentialKind int

const (
	kindJWT credentialKind = iota
	kindAPIKey
)

// Credential is the sum type `Jwt(claims) | ApiKey(record)` (spec.md §9).
// Construct with FromJWT or FromAPIKey; never build the zero value
// directly, as its kind would be ambiguous.
type Credential struct {
	kind   credentialKind
	claims *Claims
	key    *APIKeyRecord
}

// FromJWT wraps a verified JWT's claims as a Credential.
func FromJWT(claims *Claims) Credential {
	return Credential{kind: kindJWT, claims: claims}
}

// FromAPIKey wraps a resolved API key record as a Credential.
func FromAPIKey(record *APIKeyRecord) Credential {
	return Credential{kind: kindAPIKey, key: record}
}

// UserID returns the authenticated principal's identifier, regardless of
// which credential kind produced it.
func (c Credential) UserID() string {
	switch c.kind {
	case kindJWT:
		return c.claims.Subject
	case kindAPIKey:
		return c.key.UserID
	default:
		return ""
	}
}

// Roles returns the role names carried by the credential.
func (c Credential) Roles() []string {
	switch c.kind {
	case kindJWT:
		return c.claims.Roles
	case kindAPIKey:
		return c.key.Roles
	default:
		return nil
	}
}

// HasRole reports whether the credential carries the named role, or any
// role ranked at or above it via models.Role.Satisfies.
func (c Credential) HasRole(required models.Role) bool {
	for _, r := range c.Roles() {
		if models.Role(r).Satisfies(required) {
			return true
		}
	}
	return false
}

// APIKeyStore resolves a raw API key to its permission record.
type APIKeyStore interface {
	Lookup(ctx context.Context, rawKey string) (*APIKeyRecord, bool, error)
}

// Verifier parses and verifies JWTs and resolves API keys into a single
// Credential, implementing the "Either JWT or API key" design note as one
// function per spec.md §9: `authorize(credential, required)` is one
// function (Authorize, below); this type is the half that produces the
// Credential in the first place.
type Verifier struct {
	secret    []byte
	algorithm string
	keys      APIKeyStore
}

// NewVerifier builds a Verifier. keys may be nil if API-key auth is
// disabled for this deployment.
func NewVerifier(secret []byte, algorithm string, keys APIKeyStore) *Verifier {
	return &Verifier{secret: secret, algorithm: algorithm, keys: keys}
}

// VerifyBearer parses and verifies a JWT bearer token.
func (v *Verifier) VerifyBearer(ctx context.Context, rawToken string) (Credential, error) {
	token, err := jwt.ParseWithClaims(rawToken, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != v.algorithm {
			return nil, fmt.Errorf("%w: unexpected signing method %q", ErrInvalidCredential, t.Method.Alg())
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{v.algorithm}))
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Credential{}, ErrInvalidCredential
	}
	return FromJWT(claims), nil
}

// VerifyAPIKey resolves a raw API key via the configured store.
func (v *Verifier) VerifyAPIKey(ctx context.Context, rawKey string) (Credential, error) {
	if v.keys == nil {
		return Credential{}, fmt.Errorf("%w: API key auth not configured", ErrInvalidCredential)
	}
	record, found, err := v.keys.Lookup(ctx, rawKey)
	if err != nil {
		return Credential{}, fmt.Errorf("auth: api key lookup: %w", err)
	}
	if !found {
		return Credential{}, ErrInvalidCredential
	}
	return FromAPIKey(record), nil
}

// IssueJWT mints a bearer token for userID. expiration is relative to now.
func IssueJWT(secret []byte, algorithm string, userID, username, email string, roles []string, expiration time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiration)),
		},
		Username: username,
		Email:    email,
		Roles:    roles,
	}
	token := jwt.NewWithClaims(jwtSigningMethod(algorithm), claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("auth: issue jwt: %w", err)
	}
	return signed, nil
}

func jwtSigningMethod(algorithm string) jwt.SigningMethod {
	if m := jwt.GetSigningMethod(algorithm); m != nil {
		return m
	}
	return jwt.SigningMethodHS256
}

// Authorize is the single function mentioned in spec.md §9: given a
// credential and a required role, it reports whether the credential
// satisfies it. Kept separate from role *resolution* (which belongs to
// the router's RoleResolver, since a community role may differ from a
// credential's platform-wide roles) — this only checks the credential
// itself, the HTTP boundary's own layer of authorization.
func Authorize(credential Credential, required models.Role) bool {
	return credential.HasRole(required)
}
