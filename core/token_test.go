package core

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenRoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	for _, subject := range []string{"alice", "bob@example.com", "ユーザー名", "a b c"} {
		tok, err := codec.Issue(subject, nil, time.Minute)
		if err != nil {
			t.Fatalf("Issue(%q): %v", subject, err)
		}
		if strings.Count(tok, ".") != 2 {
			t.Fatalf("token %q is not three segments", tok)
		}
		if !codec.Verify(tok, subject) {
			t.Fatalf("Verify(%q) = false right after issuance", subject)
		}
		if codec.Verify(tok, subject+"x") {
			t.Fatalf("Verify accepted a different subject for %q", subject)
		}
		got, err := codec.ExtractSubject(tok)
		if err != nil {
			t.Fatalf("ExtractSubject: %v", err)
		}
		if got != subject {
			t.Fatalf("ExtractSubject = %q, want %q", got, subject)
		}
		if codec.IsExpired(tok) {
			t.Fatalf("fresh token reported expired")
		}
	}
}

func TestTokenSignatureTamper(t *testing.T) {
	codec := newTestCodec(t)
	tok, err := codec.Issue("alice", nil, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	parts := strings.Split(tok, ".")
	sig := []byte(parts[2])

	for i := range sig {
		flipped := append([]byte(nil), sig...)
		if flipped[i] == 'A' {
			flipped[i] = 'B'
		} else {
			flipped[i] = 'A'
		}
		tampered := parts[0] + "." + parts[1] + "." + string(flipped)
		for _, subject := range []string{"alice", "bob", ""} {
			if codec.Verify(tampered, subject) {
				t.Fatalf("Verify accepted token with signature byte %d changed (subject %q)", i, subject)
			}
		}
		if _, err := codec.Decode(tampered); !errors.Is(err, ErrTokenDecode) {
			t.Fatalf("Decode tampered[%d] err = %v, want ErrTokenDecode", i, err)
		}
	}
}

func TestTokenPayloadTamper(t *testing.T) {
	codec := newTestCodec(t)
	tok, err := codec.Issue("alice", nil, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	parts := strings.Split(tok, ".")
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"mallory","exp":4102444800}`))
	forged := parts[0] + "." + payload + "." + parts[2]
	if codec.Verify(forged, "mallory") {
		t.Fatalf("Verify accepted a forged payload")
	}
}

func TestTokenExpiryBoundary(t *testing.T) {
	clock := &testClock{now: testEpoch}
	codec := newTestCodec(t, WithClock(clock.Now))
	window := 90 * time.Second

	tok, err := codec.Issue("alice", nil, window)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	cases := []struct {
		name    string
		at      time.Time
		expired bool
	}{
		{"issued", testEpoch, false},
		{"just before", testEpoch.Add(window - time.Second), false},
		{"at expiry", testEpoch.Add(window), true},
		{"just after", testEpoch.Add(window + time.Second), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clock.Set(tc.at)
			if got := codec.IsExpired(tok); got != tc.expired {
				t.Fatalf("IsExpired = %v, want %v", got, tc.expired)
			}
			if got := codec.Verify(tok, "alice"); got == tc.expired {
				t.Fatalf("Verify = %v with expired=%v", got, tc.expired)
			}
		})
	}
}

func TestTokenExpiryKeepsMilliseconds(t *testing.T) {
	issuedAt := testEpoch.Add(700 * time.Millisecond)
	clock := &testClock{now: issuedAt}
	codec := newTestCodec(t, WithClock(clock.Now))

	for _, window := range []time.Duration{200 * time.Millisecond, 1500 * time.Millisecond, time.Minute} {
		clock.Set(issuedAt)
		tok, err := codec.Issue("alice", nil, window)
		if err != nil {
			t.Fatalf("Issue(%v): %v", window, err)
		}
		if !codec.Verify(tok, "alice") {
			t.Fatalf("window %v: token invalid right after issuance", window)
		}
		claims, err := codec.Decode(tok)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if !claims.IssuedAt.Equal(issuedAt) || !claims.ExpiresAt.Equal(issuedAt.Add(window)) {
			t.Fatalf("window %v: iat=%v exp=%v", window, claims.IssuedAt, claims.ExpiresAt)
		}

		clock.Set(issuedAt.Add(window - time.Millisecond))
		if codec.IsExpired(tok) {
			t.Fatalf("window %v: expired one millisecond early", window)
		}
		clock.Set(issuedAt.Add(window + time.Millisecond))
		if !codec.IsExpired(tok) {
			t.Fatalf("window %v: still fresh after expiry", window)
		}
	}
}

func TestTokenClaimsCarryTimesAndExtras(t *testing.T) {
	clock := &testClock{now: testEpoch}
	codec := newTestCodec(t, WithClock(clock.Now))

	tok, err := codec.Issue("alice", map[string]any{"role": "ADMIN", "sub": "mallory"}, DefaultTokenValidity)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := codec.Decode(tok)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if claims.Subject != "alice" {
		t.Fatalf("subject = %q, extras must not override sub", claims.Subject)
	}
	if !claims.IssuedAt.Equal(testEpoch) {
		t.Fatalf("iat = %v, want %v", claims.IssuedAt, testEpoch)
	}
	if want := testEpoch.Add(1440 * time.Second); !claims.ExpiresAt.Equal(want) {
		t.Fatalf("exp = %v, want %v", claims.ExpiresAt, want)
	}
	if claims.Extra["role"] != "ADMIN" {
		t.Fatalf("extra role = %v", claims.Extra["role"])
	}
	if _, ok := claims.Extra["sub"]; ok {
		t.Fatalf("registered claims leaked into Extra")
	}
}

func TestTokenMalformedInput(t *testing.T) {
	codec := newTestCodec(t)
	for _, tok := range []string{"", "abc", "a.b", "a.b.c", "a.b.c.d", "..", "e30.e30.", "not a token at all"} {
		if _, err := codec.Decode(tok); !errors.Is(err, ErrTokenDecode) {
			t.Fatalf("Decode(%q) err = %v, want ErrTokenDecode", tok, err)
		}
		if codec.Verify(tok, "alice") {
			t.Fatalf("Verify(%q) = true", tok)
		}
		if !codec.IsExpired(tok) {
			t.Fatalf("IsExpired(%q) = false for undecodable token", tok)
		}
		if _, err := codec.ExtractSubject(tok); err == nil {
			t.Fatalf("ExtractSubject(%q) succeeded", tok)
		}
	}
}

func TestTokenRejectsOtherKeysAndAlgorithms(t *testing.T) {
	codec := newTestCodec(t)
	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))

	other, err := NewTokenCodec(base64.StdEncoding.EncodeToString([]byte(strings.Repeat("z", 32))))
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	foreign, err := other.Issue("alice", nil, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "alice", "exp": exp}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{"sub": "alice", "exp": exp}).
		SignedString(testSecretRaw)
	if err != nil {
		t.Fatalf("sign hs512: %v", err)
	}
	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "alice"}).
		SignedString(testSecretRaw)
	if err != nil {
		t.Fatalf("sign without exp: %v", err)
	}
	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp}).
		SignedString(testSecretRaw)
	if err != nil {
		t.Fatalf("sign without sub: %v", err)
	}

	cases := map[string]string{
		"wrong secret": foreign,
		"alg none":     none,
		"HS512":        hs512,
		"missing exp":  noExp,
		"missing sub":  noSub,
	}
	for name, tok := range cases {
		if _, err := codec.Decode(tok); !errors.Is(err, ErrTokenDecode) {
			t.Fatalf("%s: Decode err = %v, want ErrTokenDecode", name, err)
		}
		if codec.Verify(tok, "alice") {
			t.Fatalf("%s: Verify = true", name)
		}
	}
}

func TestNewTokenCodecSecretRules(t *testing.T) {
	bad := []string{
		"",
		"   ",
		"!!!not-base64!!!",
		base64.StdEncoding.EncodeToString([]byte(strings.Repeat("s", 16))),
	}
	for _, s := range bad {
		if _, err := NewTokenCodec(s); err == nil {
			t.Fatalf("NewTokenCodec(%q) succeeded", s)
		}
	}
	raw := base64.RawStdEncoding.EncodeToString([]byte(strings.Repeat("r", 40)))
	if _, err := NewTokenCodec(raw); err != nil {
		t.Fatalf("unpadded secret rejected: %v", err)
	}
}

func TestIssueRejectsBadInput(t *testing.T) {
	codec := newTestCodec(t)
	if _, err := codec.Issue("", nil, time.Minute); err == nil {
		t.Fatalf("empty subject accepted")
	}
	if _, err := codec.Issue("alice", nil, 0); err == nil {
		t.Fatalf("zero window accepted")
	}
}
