package ws

import (
	"testing"
)

func testConn() *Conn {
	return &Conn{send: make(chan ServerMessage, 8)}
}

func drain(c *Conn) []ServerMessage {
	var out []ServerMessage
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestHub_JoinIdempotent(t *testing.T) {
	h := NewHub()
	c := testConn()

	h.Join("doc-1", c)
	h.Join("doc-1", c)

	if got := len(h.MembersOf("doc-1")); got != 1 {
		t.Fatalf("members = %d, want 1", got)
	}
}

func TestHub_LeaveUnknownIsNoop(t *testing.T) {
	h := NewHub()
	c := testConn()

	// 没进过房间，离开不应该出错或产生房间
	h.Leave("doc-1", c)
	if got := len(h.MembersOf("doc-1")); got != 0 {
		t.Fatalf("members = %d, want 0", got)
	}
}

func TestHub_EmptyRoomReclaimed(t *testing.T) {
	h := NewHub()
	c1, c2 := testConn(), testConn()

	h.Join("doc-1", c1)
	h.Join("doc-1", c2)
	h.Leave("doc-1", c1)
	h.Leave("doc-1", c2)

	h.mu.RLock()
	_, exists := h.rooms["doc-1"]
	h.mu.RUnlock()
	if exists {
		t.Fatal("empty room should be deleted")
	}
}

func TestHub_BroadcastChangesExcludesSender(t *testing.T) {
	h := NewHub()
	sender, peer1, peer2 := testConn(), testConn(), testConn()
	h.Join("doc-1", sender)
	h.Join("doc-1", peer1)
	h.Join("doc-1", peer2)

	other := testConn()
	h.Join("doc-2", other)

	h.BroadcastChanges("doc-1", sender, []byte(`{"ops":[{"insert":"x"}]}`))

	if got := drain(sender); len(got) != 0 {
		t.Fatalf("sender got %d messages, want 0", len(got))
	}
	for i, peer := range []*Conn{peer1, peer2} {
		got := drain(peer)
		if len(got) != 1 {
			t.Fatalf("peer%d got %d messages, want 1", i+1, len(got))
		}
		if got[0].Type != EventReceiveChanges || got[0].DocID != "doc-1" {
			t.Fatalf("peer%d message = %+v", i+1, got[0])
		}
	}
	if got := drain(other); len(got) != 0 {
		t.Fatalf("other room got %d messages, want 0", len(got))
	}
}

func TestHub_BroadcastCursorExcludesSender(t *testing.T) {
	h := NewHub()
	sender, peer := testConn(), testConn()
	h.Join("doc-1", sender)
	h.Join("doc-1", peer)

	h.BroadcastCursor("doc-1", sender, []byte(`{"index":1,"length":0}`), "u-1")

	if got := drain(sender); len(got) != 0 {
		t.Fatalf("sender got %d messages, want 0", len(got))
	}
	got := drain(peer)
	if len(got) != 1 {
		t.Fatalf("peer got %d messages, want 1", len(got))
	}
	if got[0].Type != EventReceiveCursorMove || got[0].CursorOwnerID != "u-1" {
		t.Fatalf("peer message = %+v", got[0])
	}
}

func TestHub_BroadcastPresenceReachesEveryone(t *testing.T) {
	h := NewHub()
	c1, c2 := testConn(), testConn()
	h.Join("doc-1", c1)
	h.Join("doc-1", c2)

	members := []PresenceMember{{ID: "u-1", Email: "a@b.c"}}
	h.BroadcastPresence("doc-1", members)

	for i, c := range []*Conn{c1, c2} {
		got := drain(c)
		if len(got) != 1 {
			t.Fatalf("conn%d got %d messages, want 1", i+1, len(got))
		}
		if got[0].Type != EventPresence || len(got[0].Members) != 1 {
			t.Fatalf("conn%d message = %+v", i+1, got[0])
		}
	}
}

func TestHub_LeaveAllSweepsEveryRoom(t *testing.T) {
	h := NewHub()
	c := testConn()
	h.Join("doc-1", c)
	h.Join("doc-2", c)

	h.LeaveAll(c)

	if got := len(h.MembersOf("doc-1")); got != 0 {
		t.Fatalf("doc-1 members = %d, want 0", got)
	}
	if got := len(h.MembersOf("doc-2")); got != 0 {
		t.Fatalf("doc-2 members = %d, want 0", got)
	}
}

func TestConn_EnqueueDropsWhenFull(t *testing.T) {
	c := &Conn{send: make(chan ServerMessage, 1)}
	c.Enqueue(ServerMessage{Type: EventWelcome})
	// 队列已满，慢消费者只丢消息，不阻塞广播方
	c.Enqueue(ServerMessage{Type: EventPresence})

	got := drain(c)
	if len(got) != 1 || got[0].Type != EventWelcome {
		t.Fatalf("messages = %+v, want only welcome", got)
	}
}
