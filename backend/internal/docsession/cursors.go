package docsession

import (
	"fmt"
	"math/rand"
	"sync"
)

// randomCursorColor 给协作者光标随机配色
func randomCursorColor() string {
	return fmt.Sprintf("#%06x", rand.Intn(0x1000000))
}

type cursorState struct {
	Name  string
	Color string
	Range CursorRange
}

// MemoryCursors CursorManager 的内存实现，配合 DeltaEditor 使用
type MemoryCursors struct {
	mu      sync.Mutex
	cursors map[string]*cursorState
}

func NewMemoryCursors() *MemoryCursors {
	return &MemoryCursors{cursors: make(map[string]*cursorState)}
}

func (m *MemoryCursors) CreateCursor(id, name, color string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cursors[id]; ok {
		return
	}
	m.cursors[id] = &cursorState{Name: name, Color: color}
}

func (m *MemoryCursors) MoveCursor(id string, r CursorRange) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.cursors[id]; ok {
		cur.Range = r
	}
}

func (m *MemoryCursors) RemoveCursor(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cursors, id)
}

// Snapshot 当前全部光标（测试断言用）
func (m *MemoryCursors) Snapshot() map[string]CursorRange {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]CursorRange, len(m.cursors))
	for id, cur := range m.cursors {
		out[id] = cur.Range
	}
	return out
}
