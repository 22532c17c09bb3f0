package telemetry

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/touchlog/touchlog/internal/app/model"
)

const (
	// Hard truncation caps protecting storage from adversarial payloads.
	maxFieldLen = 4000
	maxShortLen = 512
)

// Metadata is everything the extractor derives from one request's headers
// and query string.
type Metadata struct {
	UTM            model.UTM
	Gclid          *string
	Fbclid         *string
	Referrer       *string
	AcceptLanguage *string
	DeviceType     string
	Path           *string
	Query          *string
	Source         *string
	Raw            model.RawMetadata
}

// Only these headers are ever captured; everything else is excluded by
// construction rather than filtered out.
var capturedHeaders = []string{
	"user-agent",
	"accept-language",
	"referer",
	"sec-ch-ua",
	"sec-ch-ua-mobile",
	"sec-ch-ua-platform",
}

// Query parameters whose *name* contains one of these fragments are
// dropped from the raw snapshot. Values are never inspected, so an
// oddly-named PII parameter can still slip through; that residual risk
// is accepted in exchange for never parsing payloads.
var piiNameFragments = []string{
	"email", "phone", "token", "key", "password",
	"secret", "ssn", "card", "auth", "session", "csrf",
}

// Automation signatures checked before any platform match.
var botSignatures = []string{
	"bot", "spider", "crawler", "slurp", "curl", "wget",
	"python-requests", "go-http-client", "headless", "phantomjs",
	"lighthouse", "pingdom", "uptimerobot", "facebookexternalhit",
}

var desktopSignatures = []string{"windows nt", "macintosh", "x11", "cros", "linux"}

// ExtractMetadata pulls campaign attribution, device class, and the
// bounded raw snapshot from one request. header returns a request header
// by name ("" when absent); path and rawQuery come from the request URL.
func ExtractMetadata(header func(name string) string, path, rawQuery string) Metadata {
	values, _ := url.ParseQuery(rawQuery)

	md := Metadata{
		UTM: model.UTM{
			Source:   queryParam(values, "utm_source"),
			Medium:   queryParam(values, "utm_medium"),
			Campaign: queryParam(values, "utm_campaign"),
			Content:  queryParam(values, "utm_content"),
			Term:     queryParam(values, "utm_term"),
		},
		Gclid:          queryParam(values, "gclid"),
		Fbclid:         queryParam(values, "fbclid"),
		Referrer:       headerValue(header, "referer", maxFieldLen),
		AcceptLanguage: headerValue(header, "accept-language", maxShortLen),
		DeviceType:     ClassifyDevice(header("user-agent")),
		Path:           capped(path, maxShortLen),
		Query:          capped(rawQuery, maxFieldLen),
		Source:         queryParam(values, "src"),
	}

	md.Raw = model.RawMetadata{
		Headers: snapshotHeaders(header),
		Query:   snapshotQuery(values),
	}

	return md
}

// ClassifyDevice buckets a user agent by a fixed priority cascade:
// automation signatures win over platforms, iOS over Android, Android
// over desktop, and anything unmatched is Unknown.
func ClassifyDevice(userAgent string) string {
	ua := strings.ToLower(userAgent)
	if ua == "" {
		return "Unknown"
	}

	for _, sig := range botSignatures {
		if strings.Contains(ua, sig) {
			return "Bot"
		}
	}
	if strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad") || strings.Contains(ua, "ipod") {
		return "iOS"
	}
	if strings.Contains(ua, "android") {
		return "Android"
	}
	for _, sig := range desktopSignatures {
		if strings.Contains(ua, sig) {
			return "Desktop"
		}
	}
	return "Unknown"
}

func snapshotHeaders(header func(name string) string) map[string]string {
	out := make(map[string]string, len(capturedHeaders))
	for _, name := range capturedHeaders {
		if v := header(name); v != "" {
			out[name] = truncate(v, maxFieldLen)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func snapshotQuery(values url.Values) map[string]string {
	out := make(map[string]string, len(values))
	for name := range values {
		if piiName(name) {
			continue
		}
		if v := values.Get(name); v != "" {
			out[name] = truncate(v, maxFieldLen)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func piiName(name string) bool {
	lower := strings.ToLower(name)
	for _, fragment := range piiNameFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

func queryParam(values url.Values, name string) *string {
	return capped(values.Get(name), maxFieldLen)
}

func headerValue(header func(name string) string, name string, limit int) *string {
	return capped(header(name), limit)
}

// capped returns nil for the empty string, otherwise the truncated value.
func capped(s string, limit int) *string {
	if s == "" {
		return nil
	}
	t := truncate(s, limit)
	return &t
}

// truncate cuts on a rune boundary so capped values stay valid UTF-8 and
// never get bounced by the store as malformed text.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
