package repository

import (
	"context"
	"errors"

	"github.com/touchlog/touchlog/internal/app/model"
	"gorm.io/gorm"
)

var (
	// ErrTagNotFound signals that the requested tag does not exist.
	ErrTagNotFound = errors.New("tag not found")

	// ErrTagInactive signals that the tag exists but has been disabled.
	ErrTagInactive = errors.New("tag is inactive")
)

// TagRepository defines the data access contract for tags.
type TagRepository interface {
	Create(ctx context.Context, tag *model.Tag) error
	GetByID(ctx context.Context, id string) (*model.Tag, error)
	FindActive(ctx context.Context, id string) (*model.Tag, error)
	List(ctx context.Context, limit, offset int) ([]model.Tag, error)
	Update(ctx context.Context, tag *model.Tag) error
}

type tagRepository struct {
	db *gorm.DB
}

// NewTagRepository returns a GORM-backed TagRepository.
func NewTagRepository(db *gorm.DB) TagRepository {
	return &tagRepository{db: db}
}

func (r *tagRepository) Create(ctx context.Context, tag *model.Tag) error {
	if err := r.db.WithContext(ctx).Create(tag).Error; err != nil {
		return err
	}
	return nil
}

func (r *tagRepository) GetByID(ctx context.Context, id string) (*model.Tag, error) {
	var tag model.Tag
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&tag).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTagNotFound
		}
		return nil, err
	}
	return &tag, nil
}

// FindActive resolves a tag that is allowed to record events.
func (r *tagRepository) FindActive(ctx context.Context, id string) (*model.Tag, error) {
	tag, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !tag.Active {
		return nil, ErrTagInactive
	}
	return tag, nil
}

func (r *tagRepository) List(ctx context.Context, limit, offset int) ([]model.Tag, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var result []model.Tag
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&result).Error; err != nil {
		return nil, err
	}

	return result, nil
}

func (r *tagRepository) Update(ctx context.Context, tag *model.Tag) error {
	result := r.db.WithContext(ctx).
		Model(&model.Tag{}).
		Where("id = ?", tag.ID).
		Updates(map[string]interface{}{
			"name":       tag.Name,
			"target_url": tag.TargetURL,
			"campaign":   tag.Campaign,
			"active":     tag.Active,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTagNotFound
	}

	return r.db.WithContext(ctx).Where("id = ?", tag.ID).First(tag).Error
}
