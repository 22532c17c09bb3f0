package telemetry

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Cookie names are fixed for compatibility with rows recorded by earlier
// releases; renaming them would fork every visitor's identity.
const (
	VisitorCookieName      = "tl_visitor_id"
	SessionCookieName      = "tl_session_id"
	SessionStampCookieName = "tl_session_ts"
)

const (
	// VisitorCookieTTL keeps the visitor id stable across sessions.
	VisitorCookieTTL = 365 * 24 * time.Hour

	// SessionIdleWindow is the sliding inactivity window; a gap longer
	// than this starts a new session under the same visitor.
	SessionIdleWindow = 30 * time.Minute

	// SessionCookieTTL is the hard ceiling on one session cookie.
	SessionCookieTTL = 24 * time.Hour

	// maxStampSkew rejects session timestamps from the future; anything
	// more than a day ahead is treated as corrupt.
	maxStampSkew = 24 * time.Hour
)

// CookieInstruction tells a mutable call site to set one cookie. Applying
// the instruction is the caller's job; resolution itself never writes.
type CookieInstruction struct {
	Name   string
	Value  string
	MaxAge time.Duration
}

// Identity is the resolved visitor/session pair for one request, plus the
// cookie writes needed to keep it alive. Read-only call sites use the ids
// and the New* flags and discard the instructions.
type Identity struct {
	VisitorID  string
	SessionID  string
	NewVisitor bool
	NewSession bool
	Cookies    []CookieInstruction
}

// ResolveIdentity computes the visitor and session ids from the request's
// cookie jar. getCookie returns the cookie value by name, or "" when
// absent. The function is pure apart from id minting: it never mutates
// the response, and calling it twice with the same jar yields the same
// visitor id.
func ResolveIdentity(getCookie func(name string) string, now time.Time) Identity {
	id := Identity{
		VisitorID: getCookie(VisitorCookieName),
		SessionID: getCookie(SessionCookieName),
	}

	if id.VisitorID == "" {
		id.VisitorID = uuid.New().String()
		id.NewVisitor = true
		id.Cookies = append(id.Cookies, CookieInstruction{
			Name:   VisitorCookieName,
			Value:  id.VisitorID,
			MaxAge: VisitorCookieTTL,
		})
	}

	if id.SessionID == "" || !sessionStampFresh(getCookie(SessionStampCookieName), now) {
		id.SessionID = uuid.New().String()
		id.NewSession = true
	}

	// Session cookies are re-set on every hit, even when unchanged, so the
	// inactivity clock slides forward.
	id.Cookies = append(id.Cookies,
		CookieInstruction{
			Name:   SessionCookieName,
			Value:  id.SessionID,
			MaxAge: SessionCookieTTL,
		},
		CookieInstruction{
			Name:   SessionStampCookieName,
			Value:  strconv.FormatInt(now.Unix(), 10),
			MaxAge: SessionCookieTTL,
		},
	)

	return id
}

// sessionStampFresh reports whether the companion timestamp cookie proves
// activity within the idle window. Missing, unparseable, negative, or
// far-future stamps all count as stale.
func sessionStampFresh(raw string, now time.Time) bool {
	if raw == "" {
		return false
	}
	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || unix < 0 {
		return false
	}
	stamp := time.Unix(unix, 0)
	if stamp.After(now.Add(maxStampSkew)) {
		return false
	}
	return now.Sub(stamp) <= SessionIdleWindow
}
