package handler

import (
	"context"
	"errors"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/touchlog/touchlog/internal/app/repository"
	"github.com/touchlog/touchlog/internal/app/service"
	"go.uber.org/zap"
)

// APIDeps groups dependencies required by API handlers.
type APIDeps struct {
	Logger     *zap.Logger
	TagService service.TagService
}

// APIHandler implements the tag management API.
type APIHandler struct {
	logger     *zap.Logger
	tagService service.TagService
}

// NewAPIHandler creates an API handler with the provided dependencies.
func NewAPIHandler(deps APIDeps) *APIHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{
		logger:     logger,
		tagService: deps.TagService,
	}
}

// Register wires API routes onto the provided router.
func (h *APIHandler) Register(router fiber.Router) {
	api := router.Group("/api")
	{
		tags := api.Group("/tags")
		{
			tags.Post("/", h.CreateTag)
			tags.Get("/", h.ListTags)
			tags.Get("/:id", h.GetTag)
			tags.Patch("/:id", h.UpdateTag)
			tags.Get("/:id/stats", h.TagStats)
		}
	}
}

// CreateTagRequest represents the request body for creating a tag.
type CreateTagRequest struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	TargetURL string `json:"target_url"`
	Campaign  string `json:"campaign,omitempty"`
	Active    *bool  `json:"active,omitempty"`
}

// UpdateTagRequest represents the request body for updating a tag.
type UpdateTagRequest struct {
	Name      *string `json:"name,omitempty"`
	TargetURL *string `json:"target_url,omitempty"`
	Campaign  *string `json:"campaign,omitempty"`
	Active    *bool   `json:"active,omitempty"`
}

func (h *APIHandler) CreateTag(c *fiber.Ctx) error {
	var req CreateTagRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if req.Name == "" || !validTargetURL(req.TargetURL) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "name and a valid http(s) target_url are required",
		})
	}

	tag, err := h.tagService.CreateTag(h.ctx(c), service.CreateTagInput{
		ID:        req.ID,
		Name:      req.Name,
		TargetURL: req.TargetURL,
		Campaign:  req.Campaign,
		Active:    req.Active,
	})
	if err != nil {
		h.logger.Error("failed to create tag", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to create tag",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(tag)
}

func (h *APIHandler) ListTags(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	offset := c.QueryInt("offset", 0)

	tags, err := h.tagService.ListTags(h.ctx(c), limit, offset)
	if err != nil {
		h.logger.Error("failed to list tags", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list tags",
		})
	}

	return c.JSON(fiber.Map{
		"tags":   tags,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *APIHandler) GetTag(c *fiber.Ctx) error {
	tag, err := h.tagService.GetTag(h.ctx(c), c.Params("id"))
	if err != nil {
		return h.tagError(c, err, "failed to load tag")
	}
	return c.JSON(tag)
}

func (h *APIHandler) UpdateTag(c *fiber.Ctx) error {
	var req UpdateTagRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if req.TargetURL != nil && !validTargetURL(*req.TargetURL) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "target_url must be a valid http(s) url",
		})
	}

	tag, err := h.tagService.UpdateTag(h.ctx(c), c.Params("id"), service.UpdateTagInput{
		Name:      req.Name,
		TargetURL: req.TargetURL,
		Campaign:  req.Campaign,
		Active:    req.Active,
	})
	if err != nil {
		return h.tagError(c, err, "failed to update tag")
	}
	return c.JSON(tag)
}

func (h *APIHandler) TagStats(c *fiber.Ctx) error {
	stats, err := h.tagService.TagStats(h.ctx(c), c.Params("id"))
	if err != nil {
		return h.tagError(c, err, "failed to load tag stats")
	}
	return c.JSON(stats)
}

func (h *APIHandler) tagError(c *fiber.Ctx, err error, msg string) error {
	if errors.Is(err, repository.ErrTagNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "tag not found",
		})
	}
	h.logger.Error(msg, zap.Error(err), zap.String("tag_id", c.Params("id")))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": msg,
	})
}

func (h *APIHandler) ctx(c *fiber.Ctx) context.Context {
	if ctx := c.UserContext(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func validTargetURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}
