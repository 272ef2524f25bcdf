package refresh

import (
	"strings"
	"testing"
	"time"
)

const validToken = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func TestValidateFormat(t *testing.T) {
	tests := []struct {
		name  string
		token string
		ok    bool
	}{
		{name: "valid", token: validToken, ok: true},
		{name: "empty", token: "", ok: false},
		{name: "short", token: validToken[:63], ok: false},
		{name: "long", token: validToken + "0", ok: false},
		{name: "uppercase", token: strings.ToUpper(validToken), ok: false},
		{name: "non hex", token: strings.Repeat("g", 64), ok: false},
		{name: "sql injection", token: "' OR 1=1 --" + strings.Repeat("a", 53), ok: false},
		{name: "multibyte", token: strings.Repeat("é", 32), ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFormat(tt.token)
			if tt.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tt.ok && err != ErrMalformedToken {
				t.Fatalf("expected ErrMalformedToken, got %v", err)
			}
		})
	}
}

func TestHasherDeterministicAndKeyed(t *testing.T) {
	plain := NewHasher(nil)
	keyed := NewHasher([]byte("server-pepper"))

	a := plain.Hash(validToken)
	if a != plain.Hash(validToken) {
		t.Fatalf("hash not deterministic")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64-char hex digest, got %d", len(a))
	}
	if a == validToken {
		t.Fatalf("hash must not equal plaintext")
	}
	if keyed.Hash(validToken) == a {
		t.Fatalf("keyed hash must differ from plain hash")
	}
	other := strings.Repeat("f", 64)
	if plain.Hash(other) == a {
		t.Fatalf("distinct tokens produced the same hash")
	}
}

func TestHashPrefix(t *testing.T) {
	h := NewHasher(nil).Hash(validToken)
	if got := HashPrefix(h); got != h[:8] {
		t.Fatalf("unexpected prefix %q", got)
	}
	if got := HashPrefix("abc"); got != "abc" {
		t.Fatalf("unexpected prefix for short input %q", got)
	}
}

func TestStateAt(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Minute)
	past := now.Add(-time.Minute)

	tests := []struct {
		name string
		tok  *Token
		want State
	}{
		{name: "nil", tok: nil, want: StateAbsent},
		{name: "active", tok: &Token{ExpiresAt: now.Add(time.Hour)}, want: StateActive},
		{name: "expired", tok: &Token{ExpiresAt: past}, want: StateDead},
		{name: "expires exactly now", tok: &Token{ExpiresAt: now}, want: StateDead},
		{name: "grace", tok: &Token{ExpiresAt: now.Add(time.Hour), RevokedAt: &future}, want: StateGrace},
		{name: "revoked", tok: &Token{ExpiresAt: now.Add(time.Hour), RevokedAt: &past}, want: StateDead},
		{name: "revoked exactly now", tok: &Token{ExpiresAt: now.Add(time.Hour), RevokedAt: &now}, want: StateDead},
		{name: "grace but expired", tok: &Token{ExpiresAt: past, RevokedAt: &future}, want: StateDead},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tok.StateAt(now); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestExpiryFor(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := ExpiryFor(now, false, 30*24*time.Hour, 90*24*time.Hour); !got.Equal(now.AddDate(0, 0, 30)) {
		t.Fatalf("unexpected default expiry %v", got)
	}
	if got := ExpiryFor(now, true, 30*24*time.Hour, 90*24*time.Hour); !got.Equal(now.AddDate(0, 0, 90)) {
		t.Fatalf("unexpected remember-me expiry %v", got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	at := time.Now()
	orig := Token{RevokedAt: &at, DeviceInfo: map[string]string{"ua": "x"}}
	cp := orig.Clone()
	cp.DeviceInfo["ua"] = "y"
	*cp.RevokedAt = at.Add(time.Hour)
	if orig.DeviceInfo["ua"] != "x" || !orig.RevokedAt.Equal(at) {
		t.Fatalf("clone shares state with original")
	}
}
