package identity

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token validation errors.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// ActorClaims carries the membership sets embedded in an access token.
type ActorClaims struct {
	Groups []string `json:"groups,omitempty"`
	Roles  []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// JWTResolver validates HS256 tokens and answers membership questions from
// their claims. It supports secret rotation: tokens are validated against
// the current secret first, then the previous secret if one is configured.
// Validated claims are cached per actor until the token's expiry.
type JWTResolver struct {
	secret         []byte
	previousSecret []byte
	leeway         time.Duration

	mu     sync.RWMutex
	actors map[string]*cachedClaims
}

type cachedClaims struct {
	groups    map[string]bool
	roles     map[string]bool
	expiresAt time.Time
}

// JWTResolverOption configures a JWTResolver.
type JWTResolverOption func(*JWTResolver)

// WithPreviousSecret enables validation against a retired secret during
// rotation windows.
func WithPreviousSecret(secret string) JWTResolverOption {
	return func(r *JWTResolver) {
		if secret != "" {
			r.previousSecret = []byte(secret)
		}
	}
}

// WithLeeway sets the clock-skew tolerance applied to time-based claims.
func WithLeeway(d time.Duration) JWTResolverOption {
	return func(r *JWTResolver) {
		r.leeway = d
	}
}

// NewJWTResolver creates a resolver validating tokens signed with secret.
func NewJWTResolver(secret string, opts ...JWTResolverOption) *JWTResolver {
	r := &JWTResolver{
		secret: []byte(secret),
		leeway: 30 * time.Second,
		actors: make(map[string]*cachedClaims),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Authenticate validates a token and caches its membership claims under the
// token's subject. It returns the subject on success.
func (r *JWTResolver) Authenticate(tokenString string) (string, error) {
	claims, err := r.validateWithSecret(tokenString, r.secret)
	if err != nil && r.previousSecret != nil {
		claims, err = r.validateWithSecret(tokenString, r.previousSecret)
	}
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	cached := &cachedClaims{
		groups: make(map[string]bool, len(claims.Groups)),
		roles:  make(map[string]bool, len(claims.Roles)),
	}
	for _, g := range claims.Groups {
		cached.groups[g] = true
	}
	for _, role := range claims.Roles {
		cached.roles[role] = true
	}
	if claims.ExpiresAt != nil {
		cached.expiresAt = claims.ExpiresAt.Time
	}

	r.mu.Lock()
	r.actors[claims.Subject] = cached
	r.mu.Unlock()

	return claims.Subject, nil
}

func (r *JWTResolver) validateWithSecret(tokenString string, secret []byte) (*ActorClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ActorClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithLeeway(r.leeway))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*ActorClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ResolveMembership reports membership from the actor's cached claims. An
// actor that never authenticated, or whose claims have expired, belongs to
// nothing.
func (r *JWTResolver) ResolveMembership(actor string, kind SubjectKind, name string) (bool, error) {
	r.mu.RLock()
	cached, ok := r.actors[actor]
	r.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if !cached.expiresAt.IsZero() && time.Now().After(cached.expiresAt) {
		r.mu.Lock()
		delete(r.actors, actor)
		r.mu.Unlock()
		return false, nil
	}

	switch kind {
	case KindGroup:
		return cached.groups[name], nil
	case KindRole:
		return cached.roles[name], nil
	default:
		return false, nil
	}
}
