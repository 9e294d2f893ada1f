package ws

import (
	"sync"
)

// Hub 持有所有文档房间的连接集合。
// 不是包级单例：由连接管理器持有，测试可以各建各的实例，互不影响。
type Hub struct {
	// 读写锁，保护 rooms 在并发下安全访问。
	// 加入/离开房间、广播时都会先加锁。
	mu sync.RWMutex
	// docID -> set of connections
	rooms map[string]map[*Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Conn]struct{})}
}

// Join 将连接加入指定文档房间。重复 Join 同一对 (docID, conn) 是幂等的。
// 房间在首次 Join 时隐式创建，没有显式的建房消息。
func (h *Hub) Join(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[docID] == nil {
		// 房间里存的是连接而不是 userID：
		// 一个用户可开多个标签页/设备（多连接），广播要逐连接发。
		h.rooms[docID] = make(map[*Conn]struct{})
	}
	h.rooms[docID][c] = struct{}{}
}

// Leave 将连接从指定文档房间移除；连接不在房间时是 no-op。
// 最后一个连接离开时回收房间，避免空房间泄漏。
func (h *Hub) Leave(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[docID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, docID)
		}
	}
}

// LeaveAll 在连接断开时兜底清理：把连接从它出现过的所有房间移除。
// 正常协议下一个连接同时只在一个房间（joinRoom 会先离开旧房间），
// 这里仍然全量扫，防御协议之外的状态。
func (h *Hub) LeaveAll(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for docID, conns := range h.rooms {
		if _, ok := conns[c]; ok {
			delete(conns, c)
			if len(conns) == 0 {
				delete(h.rooms, docID)
			}
		}
	}
}

// MembersOf 返回房间当前的连接集合快照；房间不存在时返回空切片。
func (h *Hub) MembersOf(docID string) []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := h.rooms[docID]
	out := make([]*Conn, 0, len(conns))
	for c := range conns {
		out = append(out, c)
	}
	return out
}

// BroadcastChanges 把一条编辑增量转发给房间内除发送者外的所有连接。
// 不回显给发送者，否则客户端会进入 apply -> text-change -> send 的回环。
func (h *Hub) BroadcastChanges(docID string, sender *Conn, delta []byte) {
	msg := ServerMessage{Type: EventReceiveChanges, DocID: docID, Delta: delta}
	h.broadcastExcept(docID, sender, msg)
}

// BroadcastCursor 把光标/选区移动转发给房间内除发送者外的所有连接。
func (h *Hub) BroadcastCursor(docID string, sender *Conn, rng []byte, ownerID string) {
	msg := ServerMessage{Type: EventReceiveCursorMove, DocID: docID, Range: rng, CursorOwnerID: ownerID}
	h.broadcastExcept(docID, sender, msg)
}

// BroadcastPresence 向房间内所有连接（包括触发者）推送完整成员列表。
// presence 的语义是"声明当前全集"，不是增量事件。
func (h *Hub) BroadcastPresence(docID string, members []PresenceMember) {
	msg := ServerMessage{Type: EventPresence, DocID: docID, Members: members}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[docID] {
		c.Enqueue(msg)
	}
}

// 入队在读锁内完成：Enqueue 非阻塞，锁不会被长期占用。
// 断开流程先 Leave（写锁）再 close(send)，写锁排在所有进行中的
// 广播之后，因此不会出现向已关闭通道投递的竞争。
func (h *Hub) broadcastExcept(docID string, sender *Conn, msg ServerMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[docID] {
		if c != sender {
			c.Enqueue(msg)
		}
	}
}
