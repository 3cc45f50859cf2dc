package core

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	testSecretRaw = []byte(strings.Repeat("k", 32))
	testSecret    = base64.StdEncoding.EncodeToString(testSecretRaw)
	testEpoch     = time.Unix(1700000000, 0)
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testClock is a settable clock shared by a codec and the test body.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newTestCodec(t *testing.T, opts ...CodecOption) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec(testSecret, opts...)
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	return codec
}

// plainHasher is a fast, counting PasswordHasher for service tests.
type plainHasher struct {
	hashes   atomic.Int32
	verifies atomic.Int32
}

func (h *plainHasher) Hash(plaintext string) (string, error) {
	h.hashes.Add(1)
	return "hashed:" + plaintext, nil
}

func (h *plainHasher) Verify(plaintext, digest string) bool {
	h.verifies.Add(1)
	return digest == "hashed:"+plaintext
}

// countingStore wraps an IdentityStore and counts calls.
type countingStore struct {
	IdentityStore
	finds atomic.Int32
	saves atomic.Int32
}

func (s *countingStore) FindByUsername(ctx context.Context, username string) (*Identity, error) {
	s.finds.Add(1)
	return s.IdentityStore.FindByUsername(ctx, username)
}

func (s *countingStore) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	s.finds.Add(1)
	return s.IdentityStore.FindByEmail(ctx, email)
}

func (s *countingStore) Save(ctx context.Context, id *Identity) (*Identity, error) {
	s.saves.Add(1)
	return s.IdentityStore.Save(ctx, id)
}

// countingIssuer wraps a TokenIssuer and counts issued tokens.
type countingIssuer struct {
	next   TokenIssuer
	issued atomic.Int32
}

func (i *countingIssuer) Issue(subject string, extra map[string]any, window time.Duration) (string, error) {
	i.issued.Add(1)
	return i.next.Issue(subject, extra, window)
}

func seedIdentity(t *testing.T, store IdentityStore, username, email string, role Role) *Identity {
	t.Helper()
	id, err := store.Save(context.Background(), &Identity{
		ID:           "id-" + username,
		Username:     username,
		Email:        email,
		PasswordHash: "hashed:correct-horse",
		Role:         role,
	})
	if err != nil {
		t.Fatalf("seed %s: %v", username, err)
	}
	return id
}
