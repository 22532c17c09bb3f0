package telemetry

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestCleanIP(t *testing.T) {
	cases := map[string]string{
		"203.0.113.5":            "203.0.113.5",
		" 203.0.113.5 ":          "203.0.113.5",
		"203.0.113.5:8080":       "203.0.113.5",
		"::ffff:203.0.113.5":     "203.0.113.5",
		"[2001:db8::1]":          "2001:db8::1",
		"[2001:db8::1]:443":      "2001:db8::1",
		"2001:db8::1":            "2001:db8::1",
		"::ffff:203.0.113.5:443": "203.0.113.5",
		"":                       "",
	}

	for raw, want := range cases {
		if got := CleanIP(raw); got != want {
			t.Fatalf("CleanIP(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestExtractClientIP_PlatformHeaderWins(t *testing.T) {
	got := ExtractClientIP("198.51.100.7", "192.0.2.1", "203.0.113.9")
	if got != "203.0.113.9" {
		t.Fatalf("expected platform header to win, got %q", got)
	}
}

func TestExtractClientIP_FirstPublicInChain(t *testing.T) {
	got := ExtractClientIP("10.0.0.1, 172.16.0.5, 203.0.113.7:443, 198.51.100.2", "", "")
	if got != "203.0.113.7" {
		t.Fatalf("expected first public entry cleaned, got %q", got)
	}
}

func TestExtractClientIP_AllPrivateFallsBackToFirst(t *testing.T) {
	got := ExtractClientIP("10.0.0.1, 192.168.1.2", "", "")
	if got != "10.0.0.1" {
		t.Fatalf("expected first entry fallback, got %q", got)
	}
}

func TestExtractClientIP_RealIPWhenNoChain(t *testing.T) {
	got := ExtractClientIP("", "203.0.113.3", "")
	if got != "203.0.113.3" {
		t.Fatalf("expected real-ip fallback, got %q", got)
	}
}

func TestIPVersion(t *testing.T) {
	if v := IPVersion("2001:db8::1"); v == nil || *v != 6 {
		t.Fatalf("IPVersion(2001:db8::1) = %v, want 6", v)
	}
	if v := IPVersion("203.0.113.5"); v == nil || *v != 4 {
		t.Fatalf("IPVersion(203.0.113.5) = %v, want 4", v)
	}
	if v := IPVersion("not-an-ip"); v != nil {
		t.Fatalf("IPVersion(not-an-ip) = %v, want nil", v)
	}
}

func TestIPPrefix(t *testing.T) {
	if p := IPPrefix("203.0.113.77"); p == nil || *p != "203.0.113.0" {
		t.Fatalf("IPPrefix(203.0.113.77) = %v, want 203.0.113.0", p)
	}
	if p := IPPrefix("2001:db8:abcd:1234::1"); p == nil || *p != "2001:db8:abcd::" {
		t.Fatalf("IPPrefix(v6) = %v, want 2001:db8:abcd::", p)
	}
	if p := IPPrefix("garbage"); p != nil {
		t.Fatalf("IPPrefix(garbage) = %v, want nil", p)
	}

	// A v4-mapped address cleans to the dotted form first, so its prefix
	// matches the plain IPv4 derivation.
	cleaned := CleanIP("::ffff:203.0.113.5")
	if p := IPPrefix(cleaned); p == nil || *p != "203.0.113.0" {
		t.Fatalf("IPPrefix(cleaned mapped) = %v, want 203.0.113.0", p)
	}
}

func TestIsPrivateIP(t *testing.T) {
	private := []string{
		"10.1.2.3", "172.16.0.1", "192.168.1.1",
		"127.0.0.1", "169.254.0.1",
		"100.64.0.1", "100.127.255.254",
		"fd12:3456::1", "fe80::1", "::1",
	}
	for _, ip := range private {
		if !IsPrivateIP(ip) {
			t.Fatalf("expected %s to be private", ip)
		}
	}

	public := []string{"203.0.113.9", "8.8.8.8", "2001:db8::1", "100.128.0.1"}
	for _, ip := range public {
		if IsPrivateIP(ip) {
			t.Fatalf("expected %s to be public", ip)
		}
	}
}

func TestKeyedHash_Deterministic(t *testing.T) {
	h := NewIPHasher("test-secret", "", zap.NewNop())

	a := h.KeyedHash("203.0.113.9")
	b := h.KeyedHash("203.0.113.9")
	if a == nil || b == nil {
		t.Fatal("expected non-nil hashes with a secret configured")
	}
	if *a != *b {
		t.Fatalf("same input produced different hashes: %q vs %q", *a, *b)
	}

	other := NewIPHasher("other-secret", "", zap.NewNop()).KeyedHash("203.0.113.9")
	if other == nil || *other == *a {
		t.Fatal("different secrets must produce different hashes")
	}
}

func TestKeyedHash_MissingSecretWarnsOnce(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	h := NewIPHasher("", "", zap.New(core))

	for i := 0; i < 10; i++ {
		if got := h.KeyedHash("203.0.113.9"); got != nil {
			t.Fatalf("expected nil hash without a secret, got %q", *got)
		}
	}

	if n := logs.Len(); n != 1 {
		t.Fatalf("expected exactly one warning, got %d", n)
	}
}

func TestLegacyHash_IndependentOfKeyedSecret(t *testing.T) {
	h := NewIPHasher("", "legacy-salt", zap.NewNop())

	if h.KeyedHash("203.0.113.9") != nil {
		t.Fatal("keyed hash should be nil without a secret")
	}
	legacy := h.LegacyHash("203.0.113.9")
	if legacy == nil || *legacy == "" {
		t.Fatal("expected a legacy hash with a salt configured")
	}

	again := h.LegacyHash("203.0.113.9")
	if again == nil || *again != *legacy {
		t.Fatal("legacy hash must be deterministic")
	}
}

func TestNormalizeIP(t *testing.T) {
	h := NewIPHasher("secret", "salt", zap.NewNop())

	n := h.NormalizeIP("", "", "203.0.113.9")
	if n.Clean != "203.0.113.9" {
		t.Fatalf("clean = %q", n.Clean)
	}
	if n.Info.Version == nil || *n.Info.Version != 4 {
		t.Fatalf("version = %v, want 4", n.Info.Version)
	}
	if n.Info.Prefix == nil || *n.Info.Prefix != "203.0.113.0" {
		t.Fatalf("prefix = %v, want 203.0.113.0", n.Info.Prefix)
	}
	if n.Info.Private {
		t.Fatal("expected public classification")
	}
	if n.Info.Hash == nil || n.Info.LegacyHash == nil {
		t.Fatal("expected both hashes to be set")
	}

	empty := h.NormalizeIP("", "", "")
	if empty.Clean != "" || empty.Info.Hash != nil {
		t.Fatal("expected zero result for empty headers")
	}
}
