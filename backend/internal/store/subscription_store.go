package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type SubscriptionStore struct {
	db *gorm.DB
}

func NewSubscriptionStore(db *gorm.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

// GetStatus exists=false 表示该用户没有订阅记录（不是错误）
func (s *SubscriptionStore) GetStatus(ctx context.Context, userID string) (status string, exists bool, err error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var sub Subscription
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return sub.Status, true, nil
}
