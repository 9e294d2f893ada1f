package cache

import "fmt"

// 键语义：
// - roomKey(docID):           房间在线成员（ZSet<userId, expireAtUnix>，score=expireAt）
// - membersKey(docID):        房间内 userId→成员记录 JSON 映射（Hash）
// - cursorKey(docID,userID):  成员光标/选区 JSON（String，带 TTL）
// - subscriptionKey(userID):  订阅状态读穿缓存（String，带随机 TTL）

const (
	keyRoomFmt    = "presence:room:{docID:%s}"         // ZSet<userId, expireAtUnix>
	keyMembersFmt = "presence:room:members:{docID:%s}" // Hash<userId -> member JSON>
	keyCursorFmt  = "presence:cursor:{docID:%s}:%s"    // String JSON with TTL
	keySubFmt     = "subscription:{userID:%s}"         // String status with TTL
)

func roomKey(docID string) string                  { return fmt.Sprintf(keyRoomFmt, docID) }
func membersKey(docID string) string               { return fmt.Sprintf(keyMembersFmt, docID) }
func cursorKey(docID string, userID string) string { return fmt.Sprintf(keyCursorFmt, docID, userID) }
func subscriptionKey(userID string) string         { return fmt.Sprintf(keySubFmt, userID) }
