package ws

import (
	"context"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"workspaceServer/backend/internal/cache"
	"workspaceServer/backend/internal/events"
)

// 成员存活 TTL：心跳会刷新，过期成员由 presence 缓存的清理逻辑摘除
const presenceTTL = 600 * time.Second

// Conn 一条已鉴权的 websocket 连接，对应一个正在编辑某文档的会话。
type Conn struct {
	ws  *websocket.Conn
	hub *Hub
	// 当前所在房间；协议上一个会话同时只编辑一个文档，
	// 加入新房间时先离开旧房间（见 handleCreateRoom）。
	docID  string
	userID string
	email  string
	// track-presence 声明的展示信息；心跳刷新 TTL 时复用
	member     *PresenceMember
	send       chan ServerMessage
	presence   cache.PresenceCache
	dispatcher *events.KafkaDispatcher
}

func NewConn(ws *websocket.Conn, hub *Hub, userID, email string, presence cache.PresenceCache, dispatcher *events.KafkaDispatcher) *Conn {
	return &Conn{
		ws:         ws,
		hub:        hub,
		userID:     userID,
		email:      email,
		send:       make(chan ServerMessage, 32),
		presence:   presence,
		dispatcher: dispatcher,
	}
}

// Enqueue 非阻塞投递：队列满时丢弃消息。
// 中继本来就不保证送达（晚加入者靠快照引导），慢消费者不拖垮房间。
func (c *Conn) Enqueue(msg ServerMessage) {
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Conn) readLoop(ctx context.Context) {
	defer func() {
		c.teardown(ctx)
		close(c.send)
	}()
	for {
		var msg ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			log.Printf("read json error (user=%s, doc=%s): %v", c.userID, c.docID, err)
			return
		}
		switch msg.Type {
		case EventCreateRoom:
			c.handleCreateRoom(ctx, msg.DocID)

		case EventSendChanges:
			c.handleSendChanges(ctx, msg)

		case EventSendCursorMove:
			c.handleSendCursorMove(ctx, msg)

		case EventTrackPresence:
			c.handleTrackPresence(ctx, msg)

		case EventLeavePresence:
			if msg.DocID != "" {
				c.removePresence(ctx, msg.DocID)
				c.syncPresence(ctx, msg.DocID)
			}

		case EventHeartbeat:
			c.handleHeartbeat(ctx)

		default:
			c.Enqueue(ServerMessage{Type: EventIgnored, Content: "unknown message type"})
		}
	}
}

// handleCreateRoom 加入文档房间；已在别的房间时先离开旧房间。
func (c *Conn) handleCreateRoom(ctx context.Context, docID string) {
	if docID == "" {
		c.Enqueue(ServerMessage{Type: EventError, Content: "missing docId"})
		return
	}
	if c.docID != "" && c.docID != docID {
		c.hub.Leave(c.docID, c)
		c.removePresence(ctx, c.docID)
		c.syncPresence(ctx, c.docID)
	}
	c.docID = docID
	c.hub.Join(docID, c)
}

// inRoom 转发前校验发送方确实在目标房间：没进房的连接不能往任意房间注入消息
func (c *Conn) inRoom(docID string) bool {
	return docID != "" && docID == c.docID
}

func (c *Conn) handleSendChanges(ctx context.Context, msg ClientMessage) {
	if msg.DocID == "" || len(msg.Delta) == 0 {
		return
	}
	if !c.inRoom(msg.DocID) {
		c.Enqueue(ServerMessage{Type: EventError, Content: "not in room"})
		return
	}
	c.hub.BroadcastChanges(msg.DocID, c, msg.Delta)
	c.auditChanges(ctx, msg.DocID, msg.Delta)
}

func (c *Conn) handleSendCursorMove(ctx context.Context, msg ClientMessage) {
	if msg.DocID == "" {
		return
	}
	if !c.inRoom(msg.DocID) {
		c.Enqueue(ServerMessage{Type: EventError, Content: "not in room"})
		return
	}
	// 光标状态顺手落缓存，供新加入的客户端查询初始位置
	if err := c.presence.SetCursor(ctx, msg.DocID, c.userID, msg.Range, presenceTTL); err != nil {
		log.Printf("set cursor error: %v", err)
	}
	// 光标归属以令牌身份为准，忽略客户端自报的 ownerId
	c.hub.BroadcastCursor(msg.DocID, c, msg.Range, c.userID)
}

// handleTrackPresence 客户端声明自己的展示信息后才出现在成员列表里，
// 与房间加入是两条独立的链路（进了房间但未 track 的连接收得到增量、不显示头像）。
func (c *Conn) handleTrackPresence(ctx context.Context, msg ClientMessage) {
	if msg.DocID == "" {
		return
	}
	member := msg.Member
	if member == nil {
		// 没带展示信息就用令牌里的身份兜底
		member = &PresenceMember{ID: c.userID, Email: c.email}
	}
	member.ID = c.userID // 不允许冒充他人
	c.member = member
	if err := c.presence.AddMember(ctx, msg.DocID, cache.PresenceMember(*member), presenceTTL); err != nil {
		log.Printf("add member error: %v", err)
		return
	}
	c.syncPresence(ctx, msg.DocID)
}

func (c *Conn) handleHeartbeat(ctx context.Context) {
	if c.docID == "" || c.member == nil {
		c.Enqueue(ServerMessage{Type: EventWelcome, Content: "heartbeat received"})
		return
	}
	if err := c.presence.AddMember(ctx, c.docID, cache.PresenceMember(*c.member), presenceTTL); err != nil {
		log.Printf("refresh member error: %v", err)
	}
	c.syncPresence(ctx, c.docID)
}

// syncPresence 向整个房间重新声明当前全量成员列表
func (c *Conn) syncPresence(ctx context.Context, docID string) {
	members, err := c.presence.AliveMembers(ctx, docID)
	if err != nil {
		log.Printf("alive members error: %v", err)
		return
	}
	out := make([]PresenceMember, len(members))
	for i, m := range members {
		out[i] = PresenceMember(m)
	}
	c.hub.BroadcastPresence(docID, out)
}

func (c *Conn) removePresence(ctx context.Context, docID string) {
	if err := c.presence.RemoveMember(ctx, docID, c.userID); err != nil {
		log.Printf("remove member error: %v", err)
	}
}

// auditChanges 把已转发的增量异步投递到 Kafka（审计/下游消费）。
// 尽力而为：入队超时就丢，绝不阻塞转发主链路。
func (c *Conn) auditChanges(ctx context.Context, docID string, delta []byte) {
	if c.dispatcher == nil {
		return
	}
	enqCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	evt := events.EntryChangeEvent{
		EventType: events.EventChangesRelayed,
		DocID:     docID,
		AuthorID:  c.userID,
		Delta:     delta,
		RelayedAt: time.Now(),
	}
	if err := c.dispatcher.Enqueue(enqCtx, evt); err != nil {
		log.Printf("audit enqueue dropped doc=%s: %v", docID, err)
	}
}

// teardown 断开时的对称清理：退出房间、摘除 presence 记录并向剩余成员重新同步。
func (c *Conn) teardown(ctx context.Context) {
	if c.docID != "" {
		c.hub.Leave(c.docID, c)
		c.removePresence(ctx, c.docID)
		c.syncPresence(ctx, c.docID)
	}
	c.hub.LeaveAll(c)
}

func (c *Conn) writeLoop() {
	// 持续消费通道中的 ServerMessage；通道在 readLoop 退出时关闭
	for msg := range c.send {
		_ = c.ws.WriteJSON(msg)
	}
}
