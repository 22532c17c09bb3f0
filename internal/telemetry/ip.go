package telemetry

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"regexp"
	"strings"
	"sync"

	"github.com/touchlog/touchlog/internal/app/model"
	"go.uber.org/zap"
)

var (
	ipv4Pattern     = regexp.MustCompile(`^\d{1,3}(?:\.\d{1,3}){3}$`)
	ipv4PortPattern = regexp.MustCompile(`^(\d{1,3}(?:\.\d{1,3}){3}):\d{1,5}$`)

	// Ranges that must never be treated as a routable client address:
	// CGNAT (RFC 6598) is not covered by net.IP.IsPrivate.
	cgnatRange = mustCIDR("100.64.0.0/10")
)

func mustCIDR(s string) *net.IPNet {
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return n
}

// ExtractClientIP picks the originating client address from proxy headers.
// A platform-injected header (CDN edge) wins outright. Otherwise the
// forwarded-for chain is walked left to right for the first public entry;
// an all-private chain falls back to its first entry. The real-ip header
// is only consulted when no chain is present.
func ExtractClientIP(forwarded, realIP, platformIP string) string {
	if platformIP != "" {
		return CleanIP(platformIP)
	}

	if forwarded != "" {
		var first string
		for _, part := range strings.Split(forwarded, ",") {
			candidate := CleanIP(part)
			if candidate == "" {
				continue
			}
			if first == "" {
				first = candidate
			}
			if net.ParseIP(candidate) != nil && !IsPrivateIP(candidate) {
				return candidate
			}
		}
		if first != "" {
			return first
		}
	}

	return CleanIP(realIP)
}

// CleanIP strips the noise proxies wrap around an address. Order matters:
// brackets first ("[::1]:8080"), then the IPv4-mapped prefix, then a
// trailing port, which is only stripped from dotted-quad forms so bare
// IPv6 separators survive.
func CleanIP(raw string) string {
	ip := strings.TrimSpace(raw)
	if ip == "" {
		return ""
	}

	if strings.HasPrefix(ip, "[") {
		if end := strings.Index(ip, "]"); end > 0 {
			ip = ip[1:end]
		}
	}

	if lower := strings.ToLower(ip); strings.HasPrefix(lower, "::ffff:") {
		mapped := ip[len("::ffff:"):]
		if ipv4Pattern.MatchString(mapped) || ipv4PortPattern.MatchString(mapped) {
			ip = mapped
		}
	}

	if m := ipv4PortPattern.FindStringSubmatch(ip); m != nil {
		ip = m[1]
	}

	return ip
}

// IPVersion detects the address family syntactically: colons mean v6,
// a dotted quad means v4, anything else is unknown.
func IPVersion(ip string) *int {
	switch {
	case strings.Contains(ip, ":"):
		v := 6
		return &v
	case ipv4Pattern.MatchString(ip):
		v := 4
		return &v
	default:
		return nil
	}
}

// IPPrefix truncates an address to its coarse network: /24 for IPv4 and
// /48 for IPv6. The result is safe to store alongside the hash.
func IPPrefix(ip string) *string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil
	}

	if v4 := parsed.To4(); v4 != nil {
		masked := v4.Mask(net.CIDRMask(24, 32)).String()
		return &masked
	}

	masked := parsed.Mask(net.CIDRMask(48, 128)).String()
	return &masked
}

// IsPrivateIP reports whether the address is non-routable: RFC1918,
// loopback, link-local, CGNAT, or IPv6 ULA/link-local.
func IsPrivateIP(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	return parsed.IsPrivate() ||
		parsed.IsLoopback() ||
		parsed.IsLinkLocalUnicast() ||
		parsed.IsLinkLocalMulticast() ||
		parsed.IsUnspecified() ||
		cgnatRange.Contains(parsed)
}

// IPHasher produces the stored one-way digests of a client address. The
// keyed hash is HMAC-SHA256 under a configured secret; the legacy hash is
// a plain salted digest kept for dedup lookups against old rows. Either
// secret may be absent, in which case the corresponding hash is nil.
type IPHasher struct {
	secret     []byte
	legacySalt []byte
	logger     *zap.Logger

	warnOnce sync.Once
}

// NewIPHasher builds a hasher; empty secret/salt values are allowed and
// degrade the corresponding hash to nil.
func NewIPHasher(secret, legacySalt string, logger *zap.Logger) *IPHasher {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &IPHasher{logger: logger}
	if secret != "" {
		h.secret = []byte(secret)
	}
	if legacySalt != "" {
		h.legacySalt = []byte(legacySalt)
	}
	return h
}

// KeyedHash returns the HMAC digest of the address, or nil when no secret
// is configured. The missing-secret warning is logged once per process;
// telemetry stays anonymous-but-functional rather than failing closed.
func (h *IPHasher) KeyedHash(ip string) *string {
	if ip == "" {
		return nil
	}
	if len(h.secret) == 0 {
		h.warnOnce.Do(func() {
			h.logger.Warn("ip hash secret is not configured, recording events without ip hashes")
		})
		return nil
	}

	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(ip))
	sum := hex.EncodeToString(mac.Sum(nil))
	return &sum
}

// LegacyHash returns the salted SHA-256 digest used by pre-HMAC rows, or
// nil when no salt is configured.
func (h *IPHasher) LegacyHash(ip string) *string {
	if ip == "" || len(h.legacySalt) == 0 {
		return nil
	}

	digest := sha256.Sum256([]byte(fmt.Sprintf("%s%s", h.legacySalt, ip)))
	sum := hex.EncodeToString(digest[:])
	return &sum
}

// NormalizedIP pairs the ephemeral cleaned address with its stored
// projection. Clean is used for the geo lookup and then discarded; only
// Info travels on the event.
type NormalizedIP struct {
	Clean string
	Info  model.NetworkInfo
}

// NormalizeIP runs the full extraction/classification/hashing pass over
// the request's address headers.
func (h *IPHasher) NormalizeIP(forwarded, realIP, platformIP string) NormalizedIP {
	clean := ExtractClientIP(forwarded, realIP, platformIP)
	if clean == "" {
		return NormalizedIP{}
	}

	return NormalizedIP{
		Clean: clean,
		Info: model.NetworkInfo{
			Version:    IPVersion(clean),
			Prefix:     IPPrefix(clean),
			Private:    IsPrivateIP(clean),
			Hash:       h.KeyedHash(clean),
			LegacyHash: h.LegacyHash(clean),
		},
	}
}
