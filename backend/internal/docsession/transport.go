package docsession

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/fmpwizard/go-quilljs-delta/delta"
	"github.com/gorilla/websocket"

	"workspaceServer/backend/internal/ws"
)

// Relay 会话控制器与协作服务之间的传输抽象。
// 回调注册返回解绑函数；所有回调在传输的读协程里串行触发。
type Relay interface {
	CreateRoom(docID string) error
	SendChanges(docID string, change delta.Delta) error
	SendCursorMove(docID string, r CursorRange, ownerID string) error
	TrackPresence(docID string, m ws.PresenceMember) error
	LeavePresence(docID string) error

	OnReceiveChanges(fn func(docID string, change delta.Delta)) (detach func())
	OnReceiveCursorMove(fn func(docID, ownerID string, r CursorRange)) (detach func())
	OnPresenceSync(fn func(docID string, members []ws.PresenceMember)) (detach func())
	OnConnectionChange(fn func(connected bool)) (detach func())

	Connected() bool
	Close() error
}

var ErrRelayClosed = errors.New("docsession: relay closed")

const (
	reconnectBase = 500 * time.Millisecond
	reconnectMax  = 10 * time.Second
	// 服务端在场 TTL 是 600s，心跳间隔远小于它即可
	heartbeatEvery = 60 * time.Second
)

// wsRelay 基于 gorilla/websocket 的 Relay 实现。
// 断线后按指数退避自动重连，重连成功通过 OnConnectionChange 通知会话补发入房。
type wsRelay struct {
	url string

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool

	nextID    int
	changeFns map[int]func(docID string, change delta.Delta)
	cursorFns map[int]func(docID, ownerID string, r CursorRange)
	syncFns   map[int]func(docID string, members []ws.PresenceMember)
	connFns   map[int]func(connected bool)

	done chan struct{}
}

// DialRelay 连接协作服务；url 已含认证 token（?token=）。
func DialRelay(url string) (Relay, error) {
	r := &wsRelay{
		url:       url,
		changeFns: make(map[int]func(string, delta.Delta)),
		cursorFns: make(map[int]func(string, string, CursorRange)),
		syncFns:   make(map[int]func(string, []ws.PresenceMember)),
		connFns:   make(map[int]func(bool)),
		done:      make(chan struct{}),
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	r.conn = conn
	r.connected = true
	go r.readLoop(conn)
	go r.heartbeatLoop()
	return r, nil
}

// heartbeatLoop 定期发心跳刷新在场 TTL；断线期间跳过，重连后继续
func (r *wsRelay) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			_ = r.send(ws.ClientMessage{Type: ws.EventHeartbeat})
		}
	}
}

func (r *wsRelay) send(msg ws.ClientMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRelayClosed
	}
	if !r.connected || r.conn == nil {
		return errors.New("docsession: relay disconnected")
	}
	return r.conn.WriteJSON(msg)
}

func (r *wsRelay) CreateRoom(docID string) error {
	return r.send(ws.ClientMessage{Type: ws.EventCreateRoom, DocID: docID})
}

func (r *wsRelay) SendChanges(docID string, change delta.Delta) error {
	raw, err := json.Marshal(change)
	if err != nil {
		return err
	}
	return r.send(ws.ClientMessage{Type: ws.EventSendChanges, DocID: docID, Delta: raw})
}

func (r *wsRelay) SendCursorMove(docID string, cr CursorRange, ownerID string) error {
	raw, err := json.Marshal(cr)
	if err != nil {
		return err
	}
	return r.send(ws.ClientMessage{Type: ws.EventSendCursorMove, DocID: docID, Range: raw, CursorOwnerID: ownerID})
}

func (r *wsRelay) TrackPresence(docID string, m ws.PresenceMember) error {
	return r.send(ws.ClientMessage{Type: ws.EventTrackPresence, DocID: docID, Member: &m})
}

func (r *wsRelay) LeavePresence(docID string) error {
	return r.send(ws.ClientMessage{Type: ws.EventLeavePresence, DocID: docID})
}

func (r *wsRelay) OnReceiveChanges(fn func(string, delta.Delta)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.changeFns[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.changeFns, id)
	}
}

func (r *wsRelay) OnReceiveCursorMove(fn func(string, string, CursorRange)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.cursorFns[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.cursorFns, id)
	}
}

func (r *wsRelay) OnPresenceSync(fn func(string, []ws.PresenceMember)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.syncFns[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.syncFns, id)
	}
}

func (r *wsRelay) OnConnectionChange(fn func(bool)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.connFns[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.connFns, id)
	}
}

func (r *wsRelay) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

func (r *wsRelay) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	conn := r.conn
	r.conn = nil
	r.connected = false
	close(r.done)
	r.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (r *wsRelay) readLoop(conn *websocket.Conn) {
	for {
		var msg ws.ServerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			r.markDisconnected()
			r.reconnect()
			return
		}
		r.dispatch(msg)
	}
}

func (r *wsRelay) dispatch(msg ws.ServerMessage) {
	r.mu.Lock()
	changeFns := snapshotFns(r.changeFns)
	cursorFns := snapshotFns(r.cursorFns)
	syncFns := snapshotFns(r.syncFns)
	r.mu.Unlock()

	switch msg.Type {
	case ws.EventReceiveChanges:
		var change delta.Delta
		if err := json.Unmarshal(msg.Delta, &change); err != nil {
			return
		}
		for _, fn := range changeFns {
			fn(msg.DocID, change)
		}
	case ws.EventReceiveCursorMove:
		var cr CursorRange
		if err := json.Unmarshal(msg.Range, &cr); err != nil {
			return
		}
		for _, fn := range cursorFns {
			fn(msg.DocID, msg.CursorOwnerID, cr)
		}
	case ws.EventPresence:
		for _, fn := range syncFns {
			fn(msg.DocID, msg.Members)
		}
	}
}

func (r *wsRelay) markDisconnected() {
	r.mu.Lock()
	if !r.connected {
		r.mu.Unlock()
		return
	}
	r.connected = false
	r.conn = nil
	fns := snapshotFns(r.connFns)
	r.mu.Unlock()
	for _, fn := range fns {
		fn(false)
	}
}

func (r *wsRelay) reconnect() {
	backoff := reconnectBase
	for {
		select {
		case <-r.done:
			return
		case <-time.After(backoff):
		}
		conn, _, err := websocket.DefaultDialer.Dial(r.url, nil)
		if err != nil {
			backoff *= 2
			if backoff > reconnectMax {
				backoff = reconnectMax
			}
			continue
		}
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			conn.Close()
			return
		}
		r.conn = conn
		r.connected = true
		fns := snapshotFns(r.connFns)
		r.mu.Unlock()
		for _, fn := range fns {
			fn(true)
		}
		go r.readLoop(conn)
		return
	}
}

func snapshotFns[T any](m map[int]T) []T {
	out := make([]T, 0, len(m))
	for _, fn := range m {
		out = append(out, fn)
	}
	return out
}
