package ws

import (
	"context"
	"sync"
	"testing"
	"time"

	"workspaceServer/backend/internal/cache"
)

// 不碰外部 redis 的 PresenceCache 替身
type fakePresence struct {
	mu      sync.Mutex
	members map[string]map[string]cache.PresenceMember
}

func newFakePresence() *fakePresence {
	return &fakePresence{members: make(map[string]map[string]cache.PresenceMember)}
}

func (f *fakePresence) AddMember(ctx context.Context, docID string, m cache.PresenceMember, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members[docID] == nil {
		f.members[docID] = make(map[string]cache.PresenceMember)
	}
	f.members[docID][m.ID] = m
	return nil
}

func (f *fakePresence) RemoveMember(ctx context.Context, docID string, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.members[docID], userID)
	return nil
}

func (f *fakePresence) AliveMembers(ctx context.Context, docID string) ([]cache.PresenceMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]cache.PresenceMember, 0, len(f.members[docID]))
	for _, m := range f.members[docID] {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakePresence) GetDocuments(ctx context.Context) ([]string, error) { return nil, nil }

func (f *fakePresence) SetCursor(ctx context.Context, docID, userID string, jsonData []byte, ttl time.Duration) error {
	return nil
}

func (f *fakePresence) GetCursor(ctx context.Context, docID, userID string) ([]byte, error) {
	return nil, nil
}

func testConnWithHub(h *Hub, userID string) *Conn {
	return &Conn{
		hub:      h,
		userID:   userID,
		send:     make(chan ServerMessage, 8),
		presence: newFakePresence(),
	}
}

func TestHub_BroadcastDuringTeardownDoesNotPanic(t *testing.T) {
	h := NewHub()
	sender := testConn()
	h.Join("doc-1", sender)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				h.BroadcastChanges("doc-1", sender, []byte(`{"ops":[{"insert":"x"}]}`))
				h.BroadcastPresence("doc-1", []PresenceMember{{ID: "u-1"}})
			}
		}
	}()

	// 连接不断进房又断开；断开流程和 readLoop 一致：先退房，再关闭发送通道。
	// 若广播在退房后仍可能向该通道投递，这里会 panic。
	for i := 0; i < 500; i++ {
		c := testConn()
		h.Join("doc-1", c)
		h.Leave("doc-1", c)
		close(c.send)
	}

	close(stop)
	wg.Wait()
}

func TestConn_SendChangesRequiresMembership(t *testing.T) {
	h := NewHub()
	ctx := context.Background()

	sender := testConnWithHub(h, "alice")
	sender.handleCreateRoom(ctx, "doc-1")

	// doc-2 的旁观者不应收到任何注入的增量
	bystander := testConnWithHub(h, "bob")
	bystander.handleCreateRoom(ctx, "doc-2")
	drain(bystander)

	sender.handleSendChanges(ctx, ClientMessage{
		Type:  EventSendChanges,
		DocID: "doc-2",
		Delta: []byte(`{"ops":[{"insert":"injected"}]}`),
	})

	if got := drain(bystander); len(got) != 0 {
		t.Fatalf("bystander got %d messages, want 0", len(got))
	}
	errs := drain(sender)
	if len(errs) != 1 || errs[0].Type != EventError {
		t.Fatalf("sender messages = %+v, want one error", errs)
	}
}

func TestConn_CursorMoveRequiresMembership(t *testing.T) {
	h := NewHub()
	ctx := context.Background()

	sender := testConnWithHub(h, "alice")
	sender.handleCreateRoom(ctx, "doc-1")

	peer := testConnWithHub(h, "bob")
	peer.handleCreateRoom(ctx, "doc-2")
	drain(peer)

	sender.handleSendCursorMove(ctx, ClientMessage{
		Type:  EventSendCursorMove,
		DocID: "doc-2",
		Range: []byte(`{"index":0,"length":0}`),
	})

	if got := drain(peer); len(got) != 0 {
		t.Fatalf("peer got %d messages, want 0", len(got))
	}
}

func TestConn_SendChangesInOwnRoomBroadcasts(t *testing.T) {
	h := NewHub()
	ctx := context.Background()

	sender := testConnWithHub(h, "alice")
	sender.handleCreateRoom(ctx, "doc-1")
	peer := testConnWithHub(h, "bob")
	peer.handleCreateRoom(ctx, "doc-1")
	drain(peer)

	sender.handleSendChanges(ctx, ClientMessage{
		Type:  EventSendChanges,
		DocID: "doc-1",
		Delta: []byte(`{"ops":[{"insert":"hi"}]}`),
	})

	got := drain(peer)
	if len(got) != 1 || got[0].Type != EventReceiveChanges {
		t.Fatalf("peer messages = %+v, want one receive-changes", got)
	}
	if got := drain(sender); len(got) != 0 {
		t.Fatalf("sender got %d messages, want 0 (no echo)", len(got))
	}
}
