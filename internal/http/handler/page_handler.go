package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/touchlog/touchlog/internal/app/model"
	"github.com/touchlog/touchlog/internal/app/repository"
	"github.com/touchlog/touchlog/internal/app/service"
	"github.com/touchlog/touchlog/internal/http/view"
	"github.com/touchlog/touchlog/internal/telemetry"
	"go.uber.org/zap"
)

// PageDeps groups dependencies required by the landing page handler.
type PageDeps struct {
	Logger   *zap.Logger
	Tags     repository.TagRepository
	Recorder *service.EventRecorder
	Geo      telemetry.GeoResolver
	Hasher   *telemetry.IPHasher
}

// PageHandler serves the direct-access landing page. Visitors usually
// arrive here via the scan redirect, which already recorded the visit;
// recording from this path therefore runs through the dedup window. The
// render is treated as a read-only context: identity is resolved but no
// cookies are written.
type PageHandler struct {
	logger   *zap.Logger
	tags     repository.TagRepository
	recorder *service.EventRecorder
	geo      telemetry.GeoResolver
	hasher   *telemetry.IPHasher
}

// NewPageHandler creates a page handler with the provided dependencies.
func NewPageHandler(deps PageDeps) *PageHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageHandler{
		logger:   logger,
		tags:     deps.Tags,
		recorder: deps.Recorder,
		geo:      deps.Geo,
		hasher:   deps.Hasher,
	}
}

// Register wires the landing page route onto the provided router.
func (h *PageHandler) Register(router fiber.Router) {
	router.Get("/t/:tag/page", h.Landing)
}

// Landing handles GET /t/:tag/page: renders the tag's landing page and
// records the scan when it was not already captured by the redirect hop.
func (h *PageHandler) Landing(c *fiber.Ctx) error {
	tagID := utils.CopyString(c.Params("tag"))
	if tagID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing tag id",
		})
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	tag, err := h.tags.FindActive(ctx, tagID)
	if err != nil {
		if errors.Is(err, repository.ErrTagNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "tag not found",
			})
		}
		if errors.Is(err, repository.ErrTagInactive) {
			return c.Status(fiber.StatusGone).JSON(fiber.Map{
				"error": "tag is inactive",
			})
		}
		h.logger.Error("failed to load tag", zap.Error(err), zap.String("tag_id", tagID))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal server error",
		})
	}

	// Read-only resolution: fresh ids are used for this event but only
	// persisted by the next mutable response.
	id := resolveIdentity(c)

	ev, cleanIP := buildTelemetryEvent(c, h.hasher, tag.ID, model.EventKindScan, id)
	h.record(ev, cleanIP)

	html, err := view.RenderLandingPage(view.LandingPageData{
		Title:     tag.Name,
		TagID:     tag.ID,
		TargetURL: tag.TargetURL,
		Campaign:  tag.Campaign,
	})
	if err != nil {
		h.logger.Error("failed to render landing page", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to render page",
		})
	}

	return c.
		Type("html", "utf-8").
		SendString(html)
}

// record finishes enrichment and writes through the direct-access path
// (dedup window, tag-scoped returning flag) off the render path.
func (h *PageHandler) record(ev *model.TelemetryEvent, cleanIP string) {
	go func() {
		ctx := context.Background()

		if h.geo != nil {
			ev.Geo = h.geo.Resolve(ctx, cleanIP)
		}

		if h.recorder == nil {
			return
		}
		outcome, err := h.recorder.RecordDirect(ctx, ev)
		if err != nil {
			h.logger.Error("failed to record direct-access scan",
				zap.Error(err), zap.String("tag_id", ev.TagID))
			return
		}
		if outcome == service.RecordSuppressed {
			h.logger.Debug("direct-access scan already captured by redirect",
				zap.String("tag_id", ev.TagID))
		}
	}()
}
