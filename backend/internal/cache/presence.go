package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// PresenceCache 房间在线成员与光标状态的共享存储。
// 同一文档的多个服务实例共用一份数据，实例重启不丢在线状态。
type PresenceCache interface {
	AddMember(ctx context.Context, docID string, member PresenceMember, ttl time.Duration) error
	RemoveMember(ctx context.Context, docID string, userID string) error
	AliveMembers(ctx context.Context, docID string) ([]PresenceMember, error)
	GetDocuments(ctx context.Context) ([]string, error)
	SetCursor(ctx context.Context, docID string, userID string, jsonData []byte, ttl time.Duration) error
	GetCursor(ctx context.Context, docID string, userID string) ([]byte, error)
}

type PresenceMember struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// 具体实现：基于 redis 的 PresenceCache
type redisPresence struct {
	rdb redis.UniversalClient
}

func NewRedisPresence(rdb redis.UniversalClient) PresenceCache {
	return &redisPresence{rdb: rdb}
}

// AddMember 幂等 upsert：重复 track 同一个 userID 只刷新 TTL 和成员记录。
// 刷新 TTL（心跳）也直接调用 AddMember 即可。
func (p *redisPresence) AddMember(ctx context.Context, docID string, member PresenceMember, ttl time.Duration) error {
	record, err := json.Marshal(member)
	if err != nil {
		return err
	}
	tx := p.rdb.TxPipeline()
	// ZSET score 使用 expireAt（Unix 秒），用于表达"逻辑 TTL"
	expireAt := time.Now().Add(ttl).Unix()
	tx.ZAdd(ctx, roomKey(docID), redis.Z{Score: float64(expireAt), Member: member.ID})
	tx.HSet(ctx, membersKey(docID), member.ID, record)
	_, err = tx.Exec(ctx)
	return err
}

func (p *redisPresence) RemoveMember(ctx context.Context, docID string, userID string) error {
	tx := p.rdb.TxPipeline()
	tx.ZRem(ctx, roomKey(docID), userID)
	tx.HDel(ctx, membersKey(docID), userID)
	tx.Del(ctx, cursorKey(docID, userID))
	_, err := tx.Exec(ctx)
	return err
}

// AliveMembers 先清理过期成员，再返回在线成员的完整记录。
// 约定：score=expireAt（Unix 秒），expireAt <= now 视为过期。
func (p *redisPresence) AliveMembers(ctx context.Context, docID string) ([]PresenceMember, error) {
	now := time.Now().Unix()
	luaScript := `
	-- KEYS[1] = roomKey(docID)
	-- KEYS[2] = membersKey(docID)
	-- ARGV[1] = now (unix seconds)

	local expired = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
	if #expired > 0 then
		redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
		redis.call("HDEL", KEYS[2], unpack(expired))
	end
	return #expired
	`
	script := redis.NewScript(luaScript)
	if _, err := script.Run(ctx, p.rdb, []string{roomKey(docID), membersKey(docID)}, now).Int(); err != nil && err != redis.Nil {
		return nil, err
	}

	aliveIDs, err := p.rdb.ZRangeByScore(ctx, roomKey(docID), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(now, 10), // > now
		Max: "+inf",
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	if len(aliveIDs) == 0 {
		return nil, nil
	}

	records, err := p.rdb.HMGet(ctx, membersKey(docID), aliveIDs...).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	members := make([]PresenceMember, 0, len(aliveIDs))
	for i, v := range records {
		var m PresenceMember
		if v == nil {
			// 记录缺失（HDel 与 ZAdd 竞争的缝隙），至少带上 id
			m = PresenceMember{ID: aliveIDs[i]}
		} else if s, ok := v.(string); ok {
			if err := json.Unmarshal([]byte(s), &m); err != nil {
				m = PresenceMember{ID: aliveIDs[i]}
			}
		}
		members = append(members, m)
	}
	return members, nil
}

// GetDocuments 扫描当前有在线成员的文档列表
func (p *redisPresence) GetDocuments(ctx context.Context) ([]string, error) {
	var documents []string
	iter := p.rdb.Scan(ctx, 0, "presence:room:*", 0).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		// membersKey 也以 presence:room: 开头，需要过滤掉
		if strings.Contains(k, ":members:") {
			continue
		}
		docID := strings.TrimPrefix(k, "presence:room:{docID:")
		docID = strings.TrimSuffix(docID, "}")
		if docID != "" {
			documents = append(documents, docID)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return documents, nil
}

func (p *redisPresence) SetCursor(ctx context.Context, docID string, userID string, jsonData []byte, ttl time.Duration) error {
	return p.rdb.Set(ctx, cursorKey(docID, userID), jsonData, ttl).Err()
}

func (p *redisPresence) GetCursor(ctx context.Context, docID string, userID string) ([]byte, error) {
	cursor, err := p.rdb.Get(ctx, cursorKey(docID, userID)).Bytes()
	if err != nil {
		return nil, err
	}
	return cursor, nil
}
