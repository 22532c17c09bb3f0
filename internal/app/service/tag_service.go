package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/touchlog/touchlog/internal/app/model"
	"github.com/touchlog/touchlog/internal/app/repository"
)

// TagService defines behaviour-level operations on tags.
type TagService interface {
	CreateTag(ctx context.Context, input CreateTagInput) (*model.Tag, error)
	GetTag(ctx context.Context, id string) (*model.Tag, error)
	ListTags(ctx context.Context, limit, offset int) ([]model.Tag, error)
	UpdateTag(ctx context.Context, id string, input UpdateTagInput) (*model.Tag, error)
	TagStats(ctx context.Context, id string) (*TagStats, error)
}

type tagService struct {
	tags   repository.TagRepository
	events repository.EventRepository
}

// NewTagService returns a service implementation backed by the given repositories.
func NewTagService(tags repository.TagRepository, events repository.EventRepository) TagService {
	return &tagService{tags: tags, events: events}
}

// CreateTagInput captures data required to create a tag.
type CreateTagInput struct {
	ID        string
	Name      string
	TargetURL string
	Campaign  string
	Active    *bool
}

// UpdateTagInput captures fields that can be changed on an existing tag.
type UpdateTagInput struct {
	Name      *string
	TargetURL *string
	Campaign  *string
	Active    *bool
}

// TagStats aggregates per-table event counts for one tag.
type TagStats struct {
	TagID      string `json:"tag_id"`
	Scans      int64  `json:"scans"`
	LinkClicks int64  `json:"link_clicks"`
	VideoViews int64  `json:"video_views"`
}

func (s *tagService) CreateTag(ctx context.Context, input CreateTagInput) (*model.Tag, error) {
	tag := &model.Tag{
		ID:        input.ID,
		Name:      input.Name,
		TargetURL: input.TargetURL,
		Campaign:  input.Campaign,
		Active:    true,
	}

	if tag.ID == "" {
		tag.ID = uuid.New().String()
	}
	if input.Active != nil {
		tag.Active = *input.Active
	}

	if err := s.tags.Create(ctx, tag); err != nil {
		return nil, fmt.Errorf("create tag: %w", err)
	}
	return tag, nil
}

func (s *tagService) GetTag(ctx context.Context, id string) (*model.Tag, error) {
	tag, err := s.tags.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get tag: %w", err)
	}
	return tag, nil
}

func (s *tagService) ListTags(ctx context.Context, limit, offset int) ([]model.Tag, error) {
	tags, err := s.tags.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return tags, nil
}

func (s *tagService) UpdateTag(ctx context.Context, id string, input UpdateTagInput) (*model.Tag, error) {
	tag, err := s.tags.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load tag: %w", err)
	}

	if input.Name != nil {
		tag.Name = *input.Name
	}
	if input.TargetURL != nil {
		tag.TargetURL = *input.TargetURL
	}
	if input.Campaign != nil {
		tag.Campaign = *input.Campaign
	}
	if input.Active != nil {
		tag.Active = *input.Active
	}

	if err := s.tags.Update(ctx, tag); err != nil {
		return nil, fmt.Errorf("update tag: %w", err)
	}
	return tag, nil
}

func (s *tagService) TagStats(ctx context.Context, id string) (*TagStats, error) {
	if _, err := s.tags.GetByID(ctx, id); err != nil {
		return nil, fmt.Errorf("load tag: %w", err)
	}

	stats := &TagStats{TagID: id}

	scans, err := s.events.CountByTag(ctx, model.ScanEventTable, id)
	if err != nil {
		return nil, fmt.Errorf("count scans: %w", err)
	}
	stats.Scans = scans

	clicks, err := s.events.CountByTag(ctx, model.LinkClickEventTable, id)
	if err != nil {
		return nil, fmt.Errorf("count link clicks: %w", err)
	}
	stats.LinkClicks = clicks

	views, err := s.events.CountByTag(ctx, model.VideoEventTable, id)
	if err != nil {
		return nil, fmt.Errorf("count video views: %w", err)
	}
	stats.VideoViews = views

	return stats, nil
}
