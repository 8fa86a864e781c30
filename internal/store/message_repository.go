package store

import (
	"pony-chat-admin/backend/internal/models"

	"gorm.io/gorm"
)

// MessageRepository reads the shared message store. The store is append-only
// from this service's point of view: rows are written by platform webhooks and
// by the relay; Create exists only to record operator sends locally.
type MessageRepository interface {
	Create(message *models.Message) error
	ListByPlatform(platform models.Platform) ([]models.Message, error)
	ListByPlatformSince(platform models.Platform, cursor string) ([]models.Message, error)
}

type GormMessageRepository struct {
	db *gorm.DB
}

func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

func (r *GormMessageRepository) Create(message *models.Message) error {
	return r.db.Create(message).Error
}

// ListByPlatform returns the full message set for one platform, oldest first,
// so the newest message lands at the bottom of the thread view.
func (r *GormMessageRepository) ListByPlatform(platform models.Platform) ([]models.Message, error) {
	var messages []models.Message
	err := r.db.Where("platform = ?", platform).
		Order("created_at ASC").
		Find(&messages).Error
	return messages, err
}

// ListByPlatformSince returns messages created at or after the cursor, oldest
// first. Timestamps are stored as RFC 3339 text, which orders
// lexicographically, so the comparison runs on the raw column. The cursor
// timestamp is included, not skipped: a row sharing the cursor's created_at
// can commit after the fetch that set it, so the boundary is refetched and the
// caller dedupes by row ID.
func (r *GormMessageRepository) ListByPlatformSince(platform models.Platform, cursor string) ([]models.Message, error) {
	if cursor == "" {
		return r.ListByPlatform(platform)
	}
	var messages []models.Message
	err := r.db.Where("platform = ? AND created_at >= ?", platform, cursor).
		Order("created_at ASC").
		Find(&messages).Error
	return messages, err
}
