package docsession

import (
	"testing"

	"github.com/fmpwizard/go-quilljs-delta/delta"
)

func TestDeltaEditor_ComposeChanges(t *testing.T) {
	e := NewDeltaEditor()

	e.UpdateContents(*delta.New(nil).Insert("Hello", nil), SourceUser)
	e.UpdateContents(*delta.New(nil).Retain(5, nil).Insert(" world", nil), SourceUser)

	if got, want := e.Length(), len("Hello world"); got != want {
		t.Fatalf("Length() = %d, want %d", got, want)
	}
}

func TestDeltaEditor_SetContentsReplaces(t *testing.T) {
	e := NewDeltaEditor()
	e.UpdateContents(*delta.New(nil).Insert("old", nil), SourceUser)

	e.SetContents(*delta.New(nil).Insert("brand new\n", nil), SourceAPI)

	if got, want := e.Length(), len("brand new\n"); got != want {
		t.Fatalf("Length() = %d, want %d", got, want)
	}
}

func TestDeltaEditor_DetachStopsCallbacks(t *testing.T) {
	e := NewDeltaEditor()
	var calls int
	detach := e.OnTextChange(func(change delta.Delta, source Source) { calls++ })

	e.UpdateContents(*delta.New(nil).Insert("a", nil), SourceUser)
	detach()
	e.UpdateContents(*delta.New(nil).Insert("b", nil), SourceUser)

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestNavContext_EntryIDAndFallback(t *testing.T) {
	nav := testNav()
	if got := nav.EntryID(); got != "fl-1" {
		t.Fatalf("EntryID() = %q, want fl-1", got)
	}
	if got := nav.Fallback(); got != "/dashboard/ws-1/fd-1" {
		t.Fatalf("Fallback() = %q", got)
	}

	nav.Kind = "folder"
	if got := nav.EntryID(); got != "fd-1" {
		t.Fatalf("EntryID() = %q, want fd-1", got)
	}
	if got := nav.Fallback(); got != "/dashboard/ws-1" {
		t.Fatalf("Fallback() = %q", got)
	}
}
