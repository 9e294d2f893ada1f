package docsession

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/fmpwizard/go-quilljs-delta/delta"

	"workspaceServer/backend/internal/store"
	"workspaceServer/backend/internal/ws"
)

// 会话生命周期状态
const (
	StateInitializing = "INITIALIZING"
	StateBootstrapped = "BOOTSTRAPPED"
	StateIdle         = "IDLE"
	StateEditing      = "EDITING"
	StateSaving       = "SAVING"
	StateClosed       = "CLOSED"
)

// SnapshotStore 快照读写，*store.EntryStore 直接满足
type SnapshotStore interface {
	GetEntrySnapshot(ctx context.Context, kind store.EntryKind, id string) (string, error)
	UpdateEntrySnapshot(ctx context.Context, kind store.EntryKind, id, data string) error
}

// Notifier 保存失败时向用户提示（toast 等），会话不重试
type Notifier interface {
	Notify(message string)
}

type Options struct {
	Nav       NavContext
	Editor    Editor
	Relay     Relay
	Snapshots SnapshotStore
	Navigator Navigator
	Notifier  Notifier
	Self      ws.PresenceMember
	SaveDelay time.Duration
}

var (
	ErrMissingEditor    = errors.New("docsession: editor required")
	ErrMissingRelay     = errors.New("docsession: relay required")
	ErrMissingSnapshots = errors.New("docsession: snapshot store required")
	ErrNoEntry          = errors.New("docsession: nav context has no entry")
)

const persistTimeout = 5 * time.Second

// Session 单篇文档的编辑会话：引导快照、转发本地变更、
// 回放远端变更、维护协作者光标、防抖落库。一个会话只进一个房间。
type Session struct {
	opts  Options
	docID string
	saver *Saver

	mu       sync.Mutex
	state    string
	overlays map[string]string // 远端协作者 userID -> 光标配色
	detach   []func()
	closed   bool
}

// Open 引导并启动会话。快照读不到时跳回上一级并返回错误，
// 这种情况下不会有任何句柄需要调用方清理。
func Open(ctx context.Context, opts Options) (*Session, error) {
	if opts.Editor == nil {
		return nil, ErrMissingEditor
	}
	if opts.Relay == nil {
		return nil, ErrMissingRelay
	}
	if opts.Snapshots == nil {
		return nil, ErrMissingSnapshots
	}
	docID := opts.Nav.EntryID()
	if docID == "" {
		return nil, ErrNoEntry
	}

	s := &Session{
		opts:     opts,
		docID:    docID,
		saver:    NewSaver(opts.SaveDelay),
		state:    StateInitializing,
		overlays: make(map[string]string),
	}

	// 引导：读快照，失败则退回上一级
	data, err := opts.Snapshots.GetEntrySnapshot(ctx, opts.Nav.Kind, docID)
	if err != nil {
		if opts.Navigator != nil {
			opts.Navigator.Replace(opts.Nav.Fallback())
		}
		return nil, err
	}
	if data != "" {
		var snapshot delta.Delta
		if jsonErr := json.Unmarshal([]byte(data), &snapshot); jsonErr == nil {
			opts.Editor.SetContents(snapshot, SourceAPI)
		}
	}
	s.setState(StateBootstrapped)

	if err := opts.Relay.CreateRoom(docID); err != nil {
		return nil, err
	}
	if err := opts.Relay.TrackPresence(docID, opts.Self); err != nil {
		return nil, err
	}

	s.wire()
	s.setState(StateIdle)
	return s, nil
}

func (s *Session) wire() {
	editor, relay := s.opts.Editor, s.opts.Relay

	s.detach = append(s.detach, editor.OnTextChange(func(change delta.Delta, source Source) {
		if source != SourceUser {
			return
		}
		s.setState(StateEditing)
		relay.SendChanges(s.docID, change)
		s.saver.Schedule(s.persist)
	}))

	s.detach = append(s.detach, editor.OnSelectionChange(func(r *CursorRange, source Source) {
		if source != SourceUser || r == nil {
			return
		}
		relay.SendCursorMove(s.docID, *r, s.opts.Self.ID)
	}))

	s.detach = append(s.detach, relay.OnReceiveChanges(func(docID string, change delta.Delta) {
		if docID != s.docID {
			return
		}
		editor.UpdateContents(change, SourceAPI)
	}))

	s.detach = append(s.detach, relay.OnReceiveCursorMove(func(docID, ownerID string, r CursorRange) {
		if docID != s.docID {
			return
		}
		s.mu.Lock()
		_, known := s.overlays[ownerID]
		s.mu.Unlock()
		// 未经 presence 同步的光标直接丢弃
		if !known {
			return
		}
		editor.Cursors().MoveCursor(ownerID, r)
	}))

	s.detach = append(s.detach, relay.OnPresenceSync(func(docID string, members []ws.PresenceMember) {
		if docID != s.docID {
			return
		}
		s.reconcileOverlays(members)
	}))

	s.detach = append(s.detach, relay.OnConnectionChange(func(connected bool) {
		if !connected {
			return
		}
		// 重连后补发入房与在场登记；失败要让用户知道自己还没回到房间
		if err := relay.CreateRoom(s.docID); err != nil {
			s.notify("Reconnected but could not rejoin the document, edits are not shared")
			return
		}
		if err := relay.TrackPresence(s.docID, s.opts.Self); err != nil {
			s.notify("Reconnected but presence could not be restored")
		}
	}))
}

// reconcileOverlays 按全量成员名单增删光标覆盖层，自己除外
func (s *Session) reconcileOverlays(members []ws.PresenceMember) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	alive := make(map[string]struct{}, len(members))
	var added []ws.PresenceMember
	for _, m := range members {
		if m.ID == s.opts.Self.ID {
			continue
		}
		alive[m.ID] = struct{}{}
		if _, ok := s.overlays[m.ID]; !ok {
			s.overlays[m.ID] = randomCursorColor()
			added = append(added, m)
		}
	}
	var removed []string
	for id := range s.overlays {
		if _, ok := alive[id]; !ok {
			delete(s.overlays, id)
			removed = append(removed, id)
		}
	}
	colors := make(map[string]string, len(added))
	for _, m := range added {
		colors[m.ID] = s.overlays[m.ID]
	}
	s.mu.Unlock()

	cursors := s.opts.Editor.Cursors()
	for _, m := range added {
		cursors.CreateCursor(m.ID, m.Email, colors[m.ID])
	}
	for _, id := range removed {
		cursors.RemoveCursor(id)
	}
}

// persist 防抖到期后的落库。空文档哨兵（长度 <=1，只剩末尾换行）不写。
// 失败只提示，不重试，等下一次输入再触发。
func (s *Session) persist() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.state = StateSaving
	s.mu.Unlock()

	defer s.setState(StateIdle)

	if s.opts.Editor.Length() <= 1 {
		return
	}
	contents := s.opts.Editor.Contents()
	data, err := json.Marshal(contents)
	if err != nil {
		s.notify("Could not serialize document contents")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.opts.Snapshots.UpdateEntrySnapshot(ctx, s.opts.Nav.Kind, s.docID, string(data)); err != nil {
		s.notify("Could not save the document, please try again")
	}
}

func (s *Session) notify(message string) {
	if s.opts.Notifier != nil {
		s.opts.Notifier.Notify(message)
	}
}

func (s *Session) setState(state string) {
	s.mu.Lock()
	if !s.closed {
		s.state = state
	}
	s.mu.Unlock()
}

func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connected 中继链路是否在线（断线期间界面据此提示离线）
func (s *Session) Connected() bool {
	return s.opts.Relay.Connected()
}

// Close 对称清理：取消待保存、退出在场、解绑全部回调。幂等。
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.state = StateClosed
	detach := s.detach
	s.detach = nil
	overlayIDs := make([]string, 0, len(s.overlays))
	for id := range s.overlays {
		overlayIDs = append(overlayIDs, id)
	}
	s.overlays = make(map[string]string)
	s.mu.Unlock()

	s.saver.Cancel()
	s.opts.Relay.LeavePresence(s.docID)
	for _, fn := range detach {
		fn()
	}
	cursors := s.opts.Editor.Cursors()
	for _, id := range overlayIDs {
		cursors.RemoveCursor(id)
	}
	return nil
}
