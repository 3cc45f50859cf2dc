package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	bootstrapAdminUsername = "admin"
	bootstrapAdminEmail    = "admin@localhost"
)

// BootstrapAdmin creates an initial ADMIN identity when none exists.
// It is idempotent: if an admin already exists, it does nothing.
func BootstrapAdmin(ctx context.Context, store IdentityStore, dir IdentityDirectory, hasher PasswordHasher, cfg Config) error {
	if !cfg.BootstrapAdminEnabled {
		return nil
	}

	has, err := dir.HasAdmin(ctx)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	password, err := generatePassword(32)
	if err != nil {
		return err
	}
	hash, err := hasher.Hash(password)
	if err != nil {
		return err
	}

	_, err = store.Save(ctx, &Identity{
		ID:           uuid.NewString(),
		Username:     bootstrapAdminUsername,
		Email:        bootstrapAdminEmail,
		PasswordHash: hash,
		Role:         RoleAdmin,
	})
	if err != nil {
		return err
	}

	if cfg.InitialAdminPasswordPath != "" {
		if err := os.WriteFile(cfg.InitialAdminPasswordPath, []byte(password+"\n"), 0o600); err != nil {
			return err
		}
		log.Info().Str("path", cfg.InitialAdminPasswordPath).Msg("initial admin created; credentials written to file")
	} else {
		log.Info().Str("username", bootstrapAdminUsername).Str("password", password).Msg("initial admin created")
	}

	return nil
}

func generatePassword(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("password length must be positive")
	}
	// base64 encoding: need 3/4 overhead; ensure enough bytes
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw)[:length], nil
}
