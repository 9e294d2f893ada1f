package docsession

import (
	"sync"

	"github.com/fmpwizard/go-quilljs-delta/delta"
)

// Source 变更来源。本地输入是 "user"，程序写入（快照回放、远端变更）是 "api"。
// 会话只把 user 来源的变更往外发，api 来源不回声。
type Source string

const (
	SourceUser Source = "user"
	SourceAPI  Source = "api"
)

// CursorRange 光标选区：起点 + 选中长度（0 表示纯光标）
type CursorRange struct {
	Index  int `json:"index"`
	Length int `json:"length"`
}

// Editor 会话控制器面对的编辑器抽象。
// 注册方法返回解绑函数，会话关闭时逐个调用。
type Editor interface {
	SetContents(snapshot delta.Delta, source Source)
	UpdateContents(change delta.Delta, source Source)
	Contents() delta.Delta
	Length() int
	OnTextChange(fn func(change delta.Delta, source Source)) (detach func())
	OnSelectionChange(fn func(r *CursorRange, source Source)) (detach func())
	Cursors() CursorManager
}

// CursorManager 协作者光标覆盖层
type CursorManager interface {
	CreateCursor(id, name, color string)
	MoveCursor(id string, r CursorRange)
	RemoveCursor(id string)
}

// DeltaEditor 纯内存的 Editor 实现，文档状态就是一份 Delta。
// 无界面场景（服务端工具、测试）直接用它。
type DeltaEditor struct {
	mu      sync.Mutex
	doc     *delta.Delta
	textFns map[int]func(change delta.Delta, source Source)
	selFns  map[int]func(r *CursorRange, source Source)
	nextID  int
	cursors *MemoryCursors
}

func NewDeltaEditor() *DeltaEditor {
	return &DeltaEditor{
		doc:     delta.New(nil),
		textFns: make(map[int]func(change delta.Delta, source Source)),
		selFns:  make(map[int]func(r *CursorRange, source Source)),
		cursors: NewMemoryCursors(),
	}
}

func (e *DeltaEditor) SetContents(snapshot delta.Delta, source Source) {
	e.mu.Lock()
	e.doc = delta.New(snapshot.Ops)
	e.mu.Unlock()
}

func (e *DeltaEditor) UpdateContents(change delta.Delta, source Source) {
	e.mu.Lock()
	e.doc = e.doc.Compose(change)
	fns := make([]func(delta.Delta, Source), 0, len(e.textFns))
	for _, fn := range e.textFns {
		fns = append(fns, fn)
	}
	e.mu.Unlock()
	// 回调放到锁外，处理函数里允许再读 Contents
	for _, fn := range fns {
		fn(change, source)
	}
}

func (e *DeltaEditor) Contents() delta.Delta {
	e.mu.Lock()
	defer e.mu.Unlock()
	return *delta.New(e.doc.Ops)
}

func (e *DeltaEditor) Length() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doc.Length()
}

func (e *DeltaEditor) OnTextChange(fn func(change delta.Delta, source Source)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	e.textFns[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.textFns, id)
	}
}

func (e *DeltaEditor) OnSelectionChange(fn func(r *CursorRange, source Source)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	e.selFns[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.selFns, id)
	}
}

// MoveSelection 模拟用户移动光标（触发 selection 回调）
func (e *DeltaEditor) MoveSelection(r *CursorRange, source Source) {
	e.mu.Lock()
	fns := make([]func(*CursorRange, Source), 0, len(e.selFns))
	for _, fn := range e.selFns {
		fns = append(fns, fn)
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn(r, source)
	}
}

func (e *DeltaEditor) Cursors() CursorManager {
	return e.cursors
}
