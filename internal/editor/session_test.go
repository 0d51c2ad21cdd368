package editor

import (
	"testing"

	"blockwiki/api/internal/blocks"
)

func TestEditSessionCommitOnlyWhenChanged(t *testing.T) {
	var s EditSession
	s.Begin(blocks.Block{ID: "a", Type: blocks.TypeText, Content: blocks.Text("hello")})

	s.Set(blocks.Text("hello"))
	if s.Changed() {
		t.Fatal("expected unchanged buffer")
	}
	if _, ok := s.Commit(); ok {
		t.Fatal("expected no patch for unchanged buffer")
	}
	if s.Active() {
		t.Fatal("commit must end the session")
	}

	s.Begin(blocks.Block{ID: "a", Type: blocks.TypeText, Content: blocks.Text("hello")})
	s.Set(blocks.Text("hello world"))
	patch, ok := s.Commit()
	if !ok {
		t.Fatal("expected patch")
	}
	if patch.Content != blocks.Text("hello world") {
		t.Fatalf("unexpected patch content %#v", patch.Content)
	}
	if patch.Language != nil {
		t.Fatal("language must stay nil outside code blocks")
	}
}

func TestEditSessionNormalisesTableBuffer(t *testing.T) {
	var s EditSession
	s.Begin(blocks.Block{ID: "t", Type: blocks.TypeTable, Content: blocks.Grid{{"a", "b"}}})

	s.Set(blocks.Grid{{"a", "b"}, {"c"}})
	patch, ok := s.Commit()
	if !ok {
		t.Fatal("expected patch")
	}
	got := patch.Content.(blocks.Grid)
	if len(got) != 2 || len(got[1]) != 2 || got[1][0] != "c" || got[1][1] != "" {
		t.Fatalf("expected padded grid, got %#v", got)
	}
}

func TestEditSessionBufferIsIsolatedFromBaseline(t *testing.T) {
	grid := blocks.Grid{{"a"}}
	var s EditSession
	s.Begin(blocks.Block{ID: "t", Type: blocks.TypeTable, Content: grid})

	buf := s.Buffer().(blocks.Grid)
	buf[0][0] = "changed"
	if grid[0][0] != "a" {
		t.Fatal("editing the buffer must not touch the stored block")
	}
}

func TestEditSessionCodeLanguage(t *testing.T) {
	var s EditSession
	s.Begin(blocks.Block{ID: "c", Type: blocks.TypeCode, Content: blocks.Text("x"), Language: "plaintext"})
	s.SetLanguage("go")
	if !s.Changed() {
		t.Fatal("language change must count as a change")
	}
	patch, ok := s.Commit()
	if !ok || patch.Language == nil || *patch.Language != "go" {
		t.Fatalf("unexpected patch %#v", patch)
	}
}

func TestEditSessionInactiveIgnoresInput(t *testing.T) {
	var s EditSession
	s.Set(blocks.Text("x"))
	if s.Buffer() != nil || s.Changed() {
		t.Fatal("inactive session must ignore input")
	}
}
