package handler

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/touchlog/touchlog/internal/app/model"
	"github.com/touchlog/touchlog/internal/app/repository"
	"github.com/touchlog/touchlog/internal/app/service"
	"github.com/touchlog/touchlog/internal/telemetry"
	"go.uber.org/zap"
)

// TouchDeps groups dependencies required by the touch entry points.
type TouchDeps struct {
	Logger    *zap.Logger
	Tags      repository.TagRepository
	Publisher *service.EventPublisher
	Recorder  *service.EventRecorder
	Geo       telemetry.GeoResolver
	Hasher    *telemetry.IPHasher
}

// TouchHandler implements the redirect-path entry points: the scan
// redirect itself, embedded link clicks, and video milestones.
type TouchHandler struct {
	logger    *zap.Logger
	tags      repository.TagRepository
	publisher *service.EventPublisher
	recorder  *service.EventRecorder
	geo       telemetry.GeoResolver
	hasher    *telemetry.IPHasher
}

// NewTouchHandler creates a touch handler with the provided dependencies.
func NewTouchHandler(deps TouchDeps) *TouchHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TouchHandler{
		logger:    logger,
		tags:      deps.Tags,
		publisher: deps.Publisher,
		recorder:  deps.Recorder,
		geo:       deps.Geo,
		hasher:    deps.Hasher,
	}
}

// Register wires touch routes onto the provided router.
func (h *TouchHandler) Register(router fiber.Router) {
	router.Get("/", h.Health)
	router.Get("/health", h.Health)
	router.Get("/t/:tag", h.Scan)
	router.Get("/t/:tag/link", h.LinkClick)
	router.Post("/t/:tag/video", h.Video)
}

// Health is a simple root endpoint so we know the service is running.
func (h *TouchHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "touchlog",
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Scan handles GET /t/:tag: records the touch and redirects to the tag's
// destination. Recording is fire-and-forget; the redirect never waits on
// enrichment I/O or the store, and never fails because telemetry failed.
func (h *TouchHandler) Scan(c *fiber.Ctx) error {
	tag, loadErr := h.loadTag(c)
	if loadErr != nil {
		return c.Status(loadErr.StatusCode).JSON(fiber.Map{
			"error": loadErr.Message,
		})
	}

	id := resolveIdentity(c)
	applyIdentityCookies(c, id)

	ev, cleanIP := buildTelemetryEvent(c, h.hasher, tag.ID, model.EventKindScan, id)
	h.dispatch(ev, cleanIP)

	h.logger.Debug("redirecting scan", zap.String("tag_id", tag.ID), zap.String("target", tag.TargetURL))
	return c.Redirect(tag.TargetURL, fiber.StatusFound)
}

// LinkClick handles GET /t/:tag/link?url=...: records the click on an
// embedded link and redirects to it.
func (h *TouchHandler) LinkClick(c *fiber.Ctx) error {
	// Copied because the url escapes onto the event after the handler returns.
	target := utils.CopyString(c.Query("url"))
	parsed, err := url.Parse(target)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing or invalid url parameter",
		})
	}

	tag, loadErr := h.loadTag(c)
	if loadErr != nil {
		return c.Status(loadErr.StatusCode).JSON(fiber.Map{
			"error": loadErr.Message,
		})
	}

	id := resolveIdentity(c)
	applyIdentityCookies(c, id)

	ev, cleanIP := buildTelemetryEvent(c, h.hasher, tag.ID, model.EventKindLinkClick, id)
	ev.LinkURL = &target
	h.dispatch(ev, cleanIP)

	return c.Redirect(target, fiber.StatusFound)
}

// videoEventRequest is the body of a video milestone report.
type videoEventRequest struct {
	WatchTimeSeconds int    `json:"watch_time_seconds"`
	Milestone        string `json:"milestone,omitempty"`
}

// Video handles POST /t/:tag/video: records a watch milestone.
func (h *TouchHandler) Video(c *fiber.Ctx) error {
	var req videoEventRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if req.WatchTimeSeconds < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "watch_time_seconds must not be negative",
		})
	}

	tag, loadErr := h.loadTag(c)
	if loadErr != nil {
		return c.Status(loadErr.StatusCode).JSON(fiber.Map{
			"error": loadErr.Message,
		})
	}

	id := resolveIdentity(c)
	applyIdentityCookies(c, id)

	ev, cleanIP := buildTelemetryEvent(c, h.hasher, tag.ID, model.EventKindVideo, id)
	ev.WatchTimeSeconds = &req.WatchTimeSeconds
	if req.Milestone != "" {
		ev.Milestone = &req.Milestone
	}
	h.dispatch(ev, cleanIP)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status": "accepted",
	})
}

// dispatch finishes enrichment and records the event off the request
// path. The goroutine closes over the event and the copied address only;
// nothing still aliases the fiber context's buffers. A detached context
// keeps the write alive if the client disconnects mid-response.
func (h *TouchHandler) dispatch(ev *model.TelemetryEvent, cleanIP string) {
	go func() {
		ctx := context.Background()

		if h.geo != nil {
			ev.Geo = h.geo.Resolve(ctx, cleanIP)
		}

		if h.publisher != nil {
			err := h.publisher.Publish(ev)
			if err == nil {
				return
			}
			h.logger.Error("failed to publish telemetry event, recording directly",
				zap.Error(err), zap.String("tag_id", ev.TagID))
		}

		if h.recorder != nil {
			if _, err := h.recorder.RecordRedirect(ctx, ev); err != nil {
				h.logger.Error("failed to record telemetry event",
					zap.Error(err), zap.String("tag_id", ev.TagID))
			}
		}
	}()
}

type tagLoadError struct {
	StatusCode int
	Message    string
}

func (h *TouchHandler) loadTag(c *fiber.Ctx) (*model.Tag, *tagLoadError) {
	tagID := utils.CopyString(c.Params("tag"))
	if tagID == "" {
		return nil, &tagLoadError{
			StatusCode: fiber.StatusBadRequest,
			Message:    "missing tag id",
		}
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	tag, err := h.tags.FindActive(ctx, tagID)
	if err != nil {
		if errors.Is(err, repository.ErrTagNotFound) {
			return nil, &tagLoadError{
				StatusCode: fiber.StatusNotFound,
				Message:    "tag not found",
			}
		}
		if errors.Is(err, repository.ErrTagInactive) {
			return nil, &tagLoadError{
				StatusCode: fiber.StatusGone,
				Message:    "tag is inactive",
			}
		}
		h.logger.Error("failed to load tag", zap.Error(err), zap.String("tag_id", tagID))
		return nil, &tagLoadError{
			StatusCode: fiber.StatusInternalServerError,
			Message:    "internal server error",
		}
	}

	return tag, nil
}
