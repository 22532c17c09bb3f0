package service

import (
	"context"
	"errors"
	"testing"

	"github.com/touchlog/touchlog/internal/app/model"
	"github.com/touchlog/touchlog/internal/app/repository"
)

type mockTagRepository struct {
	createFn     func(ctx context.Context, tag *model.Tag) error
	getFn        func(ctx context.Context, id string) (*model.Tag, error)
	findActiveFn func(ctx context.Context, id string) (*model.Tag, error)
	listFn       func(ctx context.Context, limit, offset int) ([]model.Tag, error)
	updateFn     func(ctx context.Context, tag *model.Tag) error
}

func (m *mockTagRepository) Create(ctx context.Context, tag *model.Tag) error {
	if m.createFn != nil {
		return m.createFn(ctx, tag)
	}
	return nil
}

func (m *mockTagRepository) GetByID(ctx context.Context, id string) (*model.Tag, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, repository.ErrTagNotFound
}

func (m *mockTagRepository) FindActive(ctx context.Context, id string) (*model.Tag, error) {
	if m.findActiveFn != nil {
		return m.findActiveFn(ctx, id)
	}
	return nil, repository.ErrTagNotFound
}

func (m *mockTagRepository) List(ctx context.Context, limit, offset int) ([]model.Tag, error) {
	if m.listFn != nil {
		return m.listFn(ctx, limit, offset)
	}
	return nil, nil
}

func (m *mockTagRepository) Update(ctx context.Context, tag *model.Tag) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, tag)
	}
	return nil
}

func TestTagService_CreateTag(t *testing.T) {
	repo := &mockTagRepository{
		createFn: func(ctx context.Context, tag *model.Tag) error {
			if tag.ID == "" {
				t.Fatal("expected an id to be minted")
			}
			if !tag.Active {
				t.Fatal("expected new tags to default to active")
			}
			return nil
		},
	}

	svc := NewTagService(repo, &mockEventRepository{})
	_, err := svc.CreateTag(context.Background(), CreateTagInput{
		Name:      "booth sticker",
		TargetURL: "https://example.com/landing",
	})
	if err != nil {
		t.Fatalf("CreateTag returned error: %v", err)
	}
}

func TestTagService_GetTag_NotFound(t *testing.T) {
	repo := &mockTagRepository{
		getFn: func(ctx context.Context, id string) (*model.Tag, error) {
			return nil, repository.ErrTagNotFound
		},
	}

	svc := NewTagService(repo, &mockEventRepository{})
	_, err := svc.GetTag(context.Background(), "missing")
	if !errors.Is(err, repository.ErrTagNotFound) {
		t.Fatalf("expected ErrTagNotFound, got %v", err)
	}
}

func TestTagService_UpdateTag(t *testing.T) {
	repo := &mockTagRepository{
		getFn: func(ctx context.Context, id string) (*model.Tag, error) {
			return &model.Tag{ID: id, Name: "old", Active: true}, nil
		},
		updateFn: func(ctx context.Context, tag *model.Tag) error {
			if tag.TargetURL != "https://new.example.com" {
				t.Fatalf("expected updated target url, got %s", tag.TargetURL)
			}
			if tag.Active {
				t.Fatal("expected tag to be deactivated")
			}
			return nil
		},
	}

	svc := NewTagService(repo, &mockEventRepository{})
	url := "https://new.example.com"
	active := false
	_, err := svc.UpdateTag(context.Background(), "tag-1", UpdateTagInput{
		TargetURL: &url,
		Active:    &active,
	})
	if err != nil {
		t.Fatalf("UpdateTag returned error: %v", err)
	}
}

func TestTagService_TagStats(t *testing.T) {
	tags := &mockTagRepository{
		getFn: func(ctx context.Context, id string) (*model.Tag, error) {
			return &model.Tag{ID: id}, nil
		},
	}
	events := &mockEventRepository{
		countByTagFn: func(ctx context.Context, table, tagID string) (int64, error) {
			switch table {
			case model.ScanEventTable:
				return 12, nil
			case model.LinkClickEventTable:
				return 3, nil
			case model.VideoEventTable:
				return 1, nil
			}
			return 0, nil
		},
	}

	svc := NewTagService(tags, events)
	stats, err := svc.TagStats(context.Background(), "tag-1")
	if err != nil {
		t.Fatalf("TagStats returned error: %v", err)
	}
	if stats.Scans != 12 || stats.LinkClicks != 3 || stats.VideoViews != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
