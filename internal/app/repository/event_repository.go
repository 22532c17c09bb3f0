package repository

import (
	"context"
	"time"

	"github.com/touchlog/touchlog/internal/app/model"
	"gorm.io/gorm"
)

// EventRepository is the append-only store behind the recording pipeline.
// Insert takes an explicit column map so callers can retry with a reduced
// column set when the table schema lags behind the code. The lookup
// methods accept every digest that may identify a client (the keyed hash
// plus the legacy salted one), so rows written before the HMAC secret
// rollout still match.
type EventRepository interface {
	Insert(ctx context.Context, table string, columns map[string]interface{}) error
	CountRecentScans(ctx context.Context, tagID string, ipHashes []string, since time.Time) (int64, error)
	HasScanForTag(ctx context.Context, tagID string, ipHashes []string) (bool, error)
	HasAnyScan(ctx context.Context, ipHashes []string) (bool, error)
	RecentScanHashes(ctx context.Context, limit int) ([]string, error)
	CountByTag(ctx context.Context, table, tagID string) (int64, error)
}

type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository returns a GORM-backed EventRepository.
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) Insert(ctx context.Context, table string, columns map[string]interface{}) error {
	return r.db.WithContext(ctx).Table(table).Create(columns).Error
}

func (r *eventRepository) CountRecentScans(ctx context.Context, tagID string, ipHashes []string, since time.Time) (int64, error) {
	if len(ipHashes) == 0 {
		return 0, nil
	}

	var count int64
	err := r.db.WithContext(ctx).
		Table(model.ScanEventTable).
		Where("tag_id = ? AND ip_hash IN ? AND occurred_at > ?", tagID, ipHashes, since).
		Count(&count).Error
	return count, err
}

func (r *eventRepository) HasScanForTag(ctx context.Context, tagID string, ipHashes []string) (bool, error) {
	if len(ipHashes) == 0 {
		return false, nil
	}

	var count int64
	err := r.db.WithContext(ctx).
		Table(model.ScanEventTable).
		Where("tag_id = ? AND ip_hash IN ?", tagID, ipHashes).
		Limit(1).
		Count(&count).Error
	return count > 0, err
}

func (r *eventRepository) HasAnyScan(ctx context.Context, ipHashes []string) (bool, error) {
	if len(ipHashes) == 0 {
		return false, nil
	}

	var count int64
	err := r.db.WithContext(ctx).
		Table(model.ScanEventTable).
		Where("ip_hash IN ?", ipHashes).
		Limit(1).
		Count(&count).Error
	return count > 0, err
}

// RecentScanHashes returns the newest distinct ip hashes, used to seed
// the in-memory returning-visitor filter at startup.
func (r *eventRepository) RecentScanHashes(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100000
	}

	var hashes []string
	err := r.db.WithContext(ctx).
		Table(model.ScanEventTable).
		Where("ip_hash IS NOT NULL").
		Order("occurred_at DESC").
		Limit(limit).
		Distinct().
		Pluck("ip_hash", &hashes).Error
	if err != nil {
		return nil, err
	}
	return hashes, nil
}

func (r *eventRepository) CountByTag(ctx context.Context, table, tagID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table(table).
		Where("tag_id = ?", tagID).
		Count(&count).Error
	return count, err
}
