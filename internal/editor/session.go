// Package editor holds the interactive side of a document: per-block edit
// sessions, the item controller state machine and the canvas that owns the
// authoritative block list.
package editor

import "blockwiki/api/internal/blocks"

// EditSession buffers edits to one block until they are committed. The
// baseline is the block as it was when editing began.
type EditSession struct {
	baseline blocks.Block
	buffer   blocks.Content
	language string
	active   bool
}

// Begin starts buffering edits against b.
func (s *EditSession) Begin(b blocks.Block) {
	s.baseline = b
	s.buffer = blocks.CloneContent(b.Content)
	s.language = b.Language
	s.active = true
}

func (s *EditSession) Active() bool {
	return s.active
}

// Set replaces the buffered content.
func (s *EditSession) Set(c blocks.Content) {
	if !s.active {
		return
	}
	s.buffer = c
}

// SetLanguage replaces the buffered code language.
func (s *EditSession) SetLanguage(lang string) {
	if !s.active {
		return
	}
	s.language = lang
}

// Buffer returns the content as it would be committed.
func (s *EditSession) Buffer() blocks.Content {
	if !s.active {
		return nil
	}
	return blocks.Reshape(s.buffer, s.baseline.Type)
}

// Changed reports whether committing would change the block.
func (s *EditSession) Changed() bool {
	if !s.active {
		return false
	}
	if !blocks.EqualContent(s.Buffer(), s.baseline.Content) {
		return true
	}
	return s.baseline.Type == blocks.TypeCode && s.language != s.baseline.Language
}

// Commit ends the session. It returns the patch to apply and true when the
// buffer differs from the baseline.
func (s *EditSession) Commit() (blocks.Patch, bool) {
	defer s.Discard()
	if !s.Changed() {
		return blocks.Patch{}, false
	}
	patch := blocks.Patch{Content: s.Buffer()}
	if s.baseline.Type == blocks.TypeCode {
		lang := s.language
		patch.Language = &lang
	}
	return patch, true
}

// Discard drops the buffer without committing.
func (s *EditSession) Discard() {
	*s = EditSession{}
}
