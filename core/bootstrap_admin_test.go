package core

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBootstrapAdmin(t *testing.T) {
	store := NewMemoryIdentityStore()
	hasher := &plainHasher{}
	cfg := defaultConfig()
	cfg.InitialAdminPasswordPath = filepath.Join(t.TempDir(), "admin-password")
	ctx := context.Background()

	if err := BootstrapAdmin(ctx, store, store, hasher, cfg); err != nil {
		t.Fatalf("BootstrapAdmin: %v", err)
	}
	admin, err := store.FindByUsername(ctx, "admin")
	if err != nil || admin == nil || admin.Role != RoleAdmin {
		t.Fatalf("admin = %+v err = %v", admin, err)
	}
	raw, err := os.ReadFile(cfg.InitialAdminPasswordPath)
	if err != nil {
		t.Fatalf("password file: %v", err)
	}
	password := strings.TrimSpace(string(raw))
	if len(password) != 32 || !hasher.Verify(password, admin.PasswordHash) {
		t.Fatalf("written password does not match stored hash")
	}

	if err := BootstrapAdmin(ctx, store, store, hasher, cfg); err != nil {
		t.Fatalf("second BootstrapAdmin: %v", err)
	}
	if n, _ := store.Count(ctx); n != 1 {
		t.Fatalf("identities = %d, want 1", n)
	}
}

func TestBootstrapAdminDisabled(t *testing.T) {
	store := NewMemoryIdentityStore()
	cfg := defaultConfig()
	cfg.BootstrapAdminEnabled = false
	if err := BootstrapAdmin(context.Background(), store, store, &plainHasher{}, cfg); err != nil {
		t.Fatalf("BootstrapAdmin: %v", err)
	}
	if n, _ := store.Count(context.Background()); n != 0 {
		t.Fatalf("disabled bootstrap created %d identities", n)
	}
}
