package cache

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	subBaseTTL = 24 * time.Hour   // 基础过期时间
	subJitter  = 60 * time.Minute // 随机抖动范围
	// 空值标记，防止缓存穿透（没有订阅记录的用户不反复打到数据库）
	emptySubMarker = "!none"
)

// 获取随机 TTL，防止缓存雪崩
func randomSubTTL() time.Duration {
	return subBaseTTL + time.Duration(rand.Int63n(int64(subJitter)))
}

// SubscriptionFetch 回源函数：exists=false 表示该用户没有订阅记录
type SubscriptionFetch func(ctx context.Context, userID string) (status string, exists bool, err error)

// SubscriptionStatusCache 订阅状态的读穿缓存。
// Singleflight 保证同一用户并发未命中时只打一次数据库。
type SubscriptionStatusCache struct {
	rdb     redis.UniversalClient
	sf      singleflight.Group
	fetchDB SubscriptionFetch
}

func NewSubscriptionStatusCache(rdb redis.UniversalClient, fetchDB SubscriptionFetch) *SubscriptionStatusCache {
	return &SubscriptionStatusCache{rdb: rdb, fetchDB: fetchDB}
}

// Status 返回订阅状态；无订阅记录返回空串。
func (c *SubscriptionStatusCache) Status(ctx context.Context, userID string) (string, error) {
	key := subscriptionKey(userID)
	val, err, _ := c.sf.Do(key, func() (interface{}, error) {
		res, err := c.rdb.Get(ctx, key).Result()
		if err == nil {
			if res == emptySubMarker {
				return "", nil
			}
			return res, nil
		}
		if !errors.Is(err, redis.Nil) {
			return "", err
		}

		// 回源（Redis Miss），查数据库
		status, exists, err := c.fetchDB(ctx, userID)
		if err != nil {
			return "", err
		}
		if !exists {
			_ = c.rdb.Set(ctx, key, emptySubMarker, 5*time.Minute).Err()
			return "", nil
		}
		_ = c.rdb.Set(ctx, key, status, randomSubTTL()).Err()
		return status, nil
	})
	if err != nil {
		return "", err
	}
	s, ok := val.(string)
	if !ok {
		return "", errors.New("internal type error")
	}
	return s, nil
}

// Invalidate 订阅变更后主动失效
func (c *SubscriptionStatusCache) Invalidate(ctx context.Context, userID string) error {
	return c.rdb.Del(ctx, subscriptionKey(userID)).Err()
}
