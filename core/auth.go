package core

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Role is the authority level attached to an identity.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Identity is the stored credential record for one account.
type Identity struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Principal is the identity bound to a single request after token verification.
type Principal struct {
	Identity    Identity
	Authorities []string
}

// NewPrincipal derives authorities from the identity's role.
func NewPrincipal(id Identity) *Principal {
	role := id.Role
	if role == "" {
		role = RoleUser
	}
	return &Principal{
		Identity:    id,
		Authorities: []string{"ROLE_" + string(role)},
	}
}

// HasRole reports whether the principal carries the given role.
func (p *Principal) HasRole(role Role) bool {
	if p == nil {
		return false
	}
	want := "ROLE_" + string(role)
	for _, a := range p.Authorities {
		if a == want {
			return true
		}
	}
	return false
}

var (
	// ErrInvalidCredentials is returned when identifier/password is wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrIdentityNotFound is returned when an identity disappears between
	// credential check and lookup.
	ErrIdentityNotFound = errors.New("identity not found")

	// ErrTokenDecode wraps every malformed, unsigned or tampered token failure.
	ErrTokenDecode = errors.New("token decode failed")
)

// ValidationError aggregates every field violation of one request.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Violations, ", ")
}

// DuplicateCredentialsError reports that a username or email is already registered.
type DuplicateCredentialsError struct {
	Field string // "username" or "email"
}

func (e *DuplicateCredentialsError) Error() string {
	switch e.Field {
	case "email":
		return "Email is already registered"
	default:
		return "Username is already taken"
	}
}

// CredentialAuthenticator checks an identifier/password pair.
// It returns ErrInvalidCredentials on mismatch.
type CredentialAuthenticator interface {
	Authenticate(ctx context.Context, identifier, password string) error
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal bound to ctx, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}
