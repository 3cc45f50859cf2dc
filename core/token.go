package core

import (
	"encoding/base64"
	"errors"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenValidity is the lifetime of an access token (1 440 000 ms).
const DefaultTokenValidity = 1440 * time.Second

// minSecretBytes matches the HS256 key size.
const minSecretBytes = 32

// TokenClaims is the decoded, signature-checked payload of a token.
type TokenClaims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Extra     map[string]any
}

// TokenCodec issues and verifies HS256 access tokens with a single shared secret.
// It holds no mutable state and is safe for concurrent use.
type TokenCodec struct {
	secret []byte
	now    func() time.Time
	parser *jwt.Parser
}

// CodecOption customises a TokenCodec.
type CodecOption func(*TokenCodec)

// WithClock replaces the wall clock used for iat/exp and expiry checks.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewTokenCodec decodes the base64 secret and builds a codec around it.
func NewTokenCodec(secretB64 string, opts ...CodecOption) (*TokenCodec, error) {
	secret, err := decodeSecret(secretB64)
	if err != nil {
		return nil, err
	}
	c := &TokenCodec{secret: secret, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	// Time-based claims are checked against c.now in Decode callers, so the
	// parser only verifies structure and signature.
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithoutClaimsValidation(),
	)
	return c, nil
}

func decodeSecret(secretB64 string) ([]byte, error) {
	s := strings.TrimSpace(secretB64)
	if s == "" {
		return nil, errors.New("jwt secret is empty")
	}
	secret, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		if secret, err = base64.RawStdEncoding.DecodeString(s); err != nil {
			return nil, fmt.Errorf("jwt secret is not valid base64: %w", err)
		}
	}
	if len(secret) < minSecretBytes {
		return nil, fmt.Errorf("jwt secret must decode to at least %d bytes (got %d)", minSecretBytes, len(secret))
	}
	return secret, nil
}

// Issue signs subject, iat=now and exp=now+window plus any extra claims.
// Times are carried with millisecond precision so exp never precedes
// iat+window. Registered claims win over extras with the same name.
func (c *TokenCodec) Issue(subject string, extra map[string]any, window time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("token subject is empty")
	}
	if window <= 0 {
		return "", fmt.Errorf("invalid token validity window %s", window)
	}
	now := c.now().Truncate(time.Millisecond)
	claims := jwt.MapClaims{}
	maps.Copy(claims, extra)
	claims["sub"] = subject
	claims["iat"] = epochSeconds(now)
	claims["exp"] = epochSeconds(now.Add(window))

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies structure and signature and returns the claims.
// It does not check expiry. All failures wrap ErrTokenDecode.
func (c *TokenCodec) Decode(token string) (*TokenClaims, error) {
	// Cheap rejection of garbage; the signature check below is still required.
	if strings.Count(token, ".") != 2 {
		return nil, fmt.Errorf("%w: token must have three segments", ErrTokenDecode)
	}

	claims := jwt.MapClaims{}
	if _, err := c.parser.ParseWithClaims(token, claims, c.keyFunc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenDecode, err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenDecode)
	}
	exp, ok := claimTime(claims["exp"])
	if !ok {
		return nil, fmt.Errorf("%w: missing expiry", ErrTokenDecode)
	}
	out := &TokenClaims{
		Subject:   sub,
		ExpiresAt: exp,
		Extra:     map[string]any{},
	}
	if iat, ok := claimTime(claims["iat"]); ok {
		out.IssuedAt = iat
	}
	for k, v := range claims {
		switch k {
		case "sub", "iat", "exp":
		default:
			out.Extra[k] = v
		}
	}
	return out, nil
}

// Verify reports whether token is well-formed, correctly signed, issued for
// expectedSubject and not yet expired. It never returns an error.
func (c *TokenCodec) Verify(token, expectedSubject string) bool {
	claims, err := c.Decode(token)
	if err != nil {
		return false
	}
	return c.valid(claims, expectedSubject)
}

// ExtractSubject returns the subject of a correctly signed token.
func (c *TokenCodec) ExtractSubject(token string) (string, error) {
	claims, err := c.Decode(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// IsExpired reports whether the token's expiry has passed. Tokens that cannot
// be decoded are treated as expired.
func (c *TokenCodec) IsExpired(token string) bool {
	claims, err := c.Decode(token)
	if err != nil {
		return true
	}
	return c.expired(claims)
}

func (c *TokenCodec) valid(claims *TokenClaims, expectedSubject string) bool {
	return claims.Subject == expectedSubject && !c.expired(claims)
}

// expired uses no leeway: a token is only fresh strictly before exp.
func (c *TokenCodec) expired(claims *TokenClaims) bool {
	return !c.now().Before(claims.ExpiresAt)
}

// epochSeconds renders t as fractional NumericDate seconds with millisecond precision.
func epochSeconds(t time.Time) float64 {
	return float64(t.UnixMilli()) / 1e3
}

// claimTime reads a NumericDate claim without jwt's whole-second truncation.
func claimTime(v any) (time.Time, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case json.Number:
		var err error
		if f, err = n.Float64(); err != nil {
			return time.Time{}, false
		}
	default:
		return time.Time{}, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(math.Round(f * 1e3))), true
}

func (c *TokenCodec) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
	return c.secret, nil
}
