package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const storeTimeout = 3 * time.Second

// RegisterRequest is the body of POST /api/auth/register.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the body of POST /api/auth/login. Username is accepted as a
// legacy alias of UsernameOrEmail.
type LoginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
	Username        string `json:"username"`
	Password        string `json:"password"`
}

// Identifier returns the login identifier, preferring UsernameOrEmail.
func (r LoginRequest) Identifier() string {
	if r.UsernameOrEmail != "" {
		return r.UsernameOrEmail
	}
	return r.Username
}

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	Issue(subject string, extra map[string]any, window time.Duration) (string, error)
}

// AuthenticationService runs the register and login flows.
type AuthenticationService struct {
	store  IdentityStore
	hasher PasswordHasher
	tokens TokenIssuer
	authn  CredentialAuthenticator
	window time.Duration
	newID  func() string
}

func NewAuthenticationService(store IdentityStore, hasher PasswordHasher, tokens TokenIssuer, authn CredentialAuthenticator, window time.Duration) *AuthenticationService {
	if window <= 0 {
		window = DefaultTokenValidity
	}
	return &AuthenticationService{
		store:  store,
		hasher: hasher,
		tokens: tokens,
		authn:  authn,
		window: window,
		newID:  uuid.NewString,
	}
}

// Register validates the envelope, rejects usernames/emails already used as
// either credential, stores a new USER identity and returns a token for it.
func (s *AuthenticationService) Register(ctx context.Context, req RegisterRequest) (string, error) {
	if err := ValidateRegistration(req.Username, req.Email, req.Password).Err(); err != nil {
		log.Warn().Str("username", req.Username).Msgf("registration validation failed: %v", err)
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	existing, err := s.store.FindByUsername(ctx, req.Username)
	if err != nil {
		return "", fmt.Errorf("lookup username: %w", err)
	}
	if existing != nil {
		log.Warn().Str("username", req.Username).Msg("registration rejected: username taken")
		return "", &DuplicateCredentialsError{Field: "username"}
	}
	existing, err = s.store.FindByEmail(ctx, req.Email)
	if err != nil {
		return "", fmt.Errorf("lookup email: %w", err)
	}
	if existing != nil {
		log.Warn().Str("username", req.Username).Msg("registration rejected: email taken")
		return "", &DuplicateCredentialsError{Field: "email"}
	}
	// Login resolves username first and then email, so neither value may
	// collide with the other field of an existing identity.
	existing, err = s.store.FindByEmail(ctx, req.Username)
	if err != nil {
		return "", fmt.Errorf("lookup username as email: %w", err)
	}
	if existing != nil {
		log.Warn().Str("username", req.Username).Msg("registration rejected: username is another identity's email")
		return "", &DuplicateCredentialsError{Field: "username"}
	}
	existing, err = s.store.FindByUsername(ctx, req.Email)
	if err != nil {
		return "", fmt.Errorf("lookup email as username: %w", err)
	}
	if existing != nil {
		log.Warn().Str("username", req.Username).Msg("registration rejected: email is another identity's username")
		return "", &DuplicateCredentialsError{Field: "email"}
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return "", err
	}
	saved, err := s.store.Save(ctx, &Identity{
		ID:           s.newID(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         RoleUser,
	})
	if err != nil {
		var dup *DuplicateCredentialsError
		if errors.As(err, &dup) {
			log.Warn().Str("username", req.Username).Str("field", dup.Field).Msg("registration lost uniqueness race")
			return "", dup
		}
		return "", fmt.Errorf("save identity: %w", err)
	}

	token, err := s.issue(saved)
	if err != nil {
		return "", err
	}
	log.Info().Str("username", saved.Username).Str("id", saved.ID).Msg("identity registered")
	return token, nil
}

// Login validates the envelope, delegates the password check to the
// authenticator and returns a token for the resolved identity.
func (s *AuthenticationService) Login(ctx context.Context, req LoginRequest) (string, error) {
	identifier := req.Identifier()
	if err := ValidateLogin(identifier, req.Password).Err(); err != nil {
		log.Warn().Msgf("login validation failed: %v", err)
		return "", err
	}

	if err := s.authn.Authenticate(ctx, identifier, req.Password); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	id, err := ResolveIdentity(ctx, s.store, identifier)
	if err != nil {
		return "", fmt.Errorf("resolve identity: %w", err)
	}
	if id == nil {
		log.Error().Str("identifier", identifier).Msg("identity vanished after authentication")
		return "", ErrIdentityNotFound
	}
	return s.issue(id)
}

func (s *AuthenticationService) issue(id *Identity) (string, error) {
	token, err := s.tokens.Issue(id.Username, map[string]any{"role": string(id.Role)}, s.window)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

// RepositoryAuthenticator checks passwords against the stored bcrypt hash.
type RepositoryAuthenticator struct {
	store  IdentityStore
	hasher PasswordHasher

	dummyOnce sync.Once
	dummyHash string
}

func NewRepositoryAuthenticator(store IdentityStore, hasher PasswordHasher) *RepositoryAuthenticator {
	return &RepositoryAuthenticator{store: store, hasher: hasher}
}

// Authenticate resolves identifier (username, then email) and compares the
// password. Unknown identifiers still pay for one hash comparison.
func (a *RepositoryAuthenticator) Authenticate(ctx context.Context, identifier, password string) error {
	if identifier == "" || password == "" {
		return ErrInvalidCredentials
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	id, err := ResolveIdentity(ctx, a.store, identifier)
	if err != nil {
		return fmt.Errorf("lookup identity: %w", err)
	}
	if id == nil {
		a.hasher.Verify(password, a.dummy())
		return ErrInvalidCredentials
	}
	if !a.hasher.Verify(password, id.PasswordHash) {
		return ErrInvalidCredentials
	}
	return nil
}

func (a *RepositoryAuthenticator) dummy() string {
	a.dummyOnce.Do(func() {
		h, err := a.hasher.Hash(uuid.NewString())
		if err != nil {
			log.Error().Err(err).Msg("failed to prepare dummy password hash")
			return
		}
		a.dummyHash = h
	})
	return a.dummyHash
}
