package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"
	"github.com/touchlog/touchlog/internal/app/model"
	"github.com/touchlog/touchlog/internal/telemetry"
)

// Proxy headers consulted for the originating client address. The
// platform header is CDN-injected and trusted outright.
const (
	forwardedForHeader = "X-Forwarded-For"
	realIPHeader       = "X-Real-IP"
	platformIPHeader   = "CF-Connecting-IP"
)

// resolveIdentity reads the visitor/session pair from the request cookies
// without touching the response. Cookie values are copied out of fiber's
// reusable buffers; the ids outlive the request.
func resolveIdentity(c *fiber.Ctx) telemetry.Identity {
	return telemetry.ResolveIdentity(func(name string) string {
		return utils.CopyString(c.Cookies(name))
	}, time.Now())
}

// applyIdentityCookies is the mutable half of identity resolution: only
// call sites that own the response invoke it. Read-only renders skip it
// and rely on the next mutable response to persist a fresh id.
func applyIdentityCookies(c *fiber.Ctx, id telemetry.Identity) {
	for _, instr := range id.Cookies {
		c.Cookie(&fiber.Cookie{
			Name:     instr.Name,
			Value:    instr.Value,
			MaxAge:   int(instr.MaxAge.Seconds()),
			Path:     "/",
			HTTPOnly: true,
			SameSite: fiber.CookieSameSiteLaxMode,
		})
	}
}

// buildTelemetryEvent assembles the enriched event for one request. All
// extraction is synchronous, and every string read off the context is
// copied up front: fiber reuses the backing buffers once the handler
// returns, and the recording goroutine outlives it. The cleaned address
// is returned separately for the geo lookup and never stored on the event.
func buildTelemetryEvent(c *fiber.Ctx, hasher *telemetry.IPHasher, tagID string, kind model.EventKind, id telemetry.Identity) (*model.TelemetryEvent, string) {
	ip := hasher.NormalizeIP(
		utils.CopyString(c.Get(forwardedForHeader)),
		utils.CopyString(c.Get(realIPHeader)),
		utils.CopyString(c.Get(platformIPHeader)),
	)

	md := telemetry.ExtractMetadata(func(name string) string {
		return utils.CopyString(c.Get(name))
	}, utils.CopyString(c.Path()), string(c.Request().URI().QueryString()))

	ev := &model.TelemetryEvent{
		ID:             uuid.New().String(),
		Kind:           kind,
		TagID:          tagID,
		VisitorID:      id.VisitorID,
		SessionID:      id.SessionID,
		UTM:            md.UTM,
		Gclid:          md.Gclid,
		Fbclid:         md.Fbclid,
		Referrer:       md.Referrer,
		AcceptLanguage: md.AcceptLanguage,
		DeviceType:     md.DeviceType,
		Path:           md.Path,
		Query:          md.Query,
		Source:         md.Source,
		RawMeta:        md.Raw,
		Network:        ip.Info,
		OccurredAt:     time.Now().UTC(),
	}

	return ev, ip.Clean
}
