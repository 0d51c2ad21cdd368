package editor

import (
	"errors"
	"sync"

	"blockwiki/api/internal/blocks"
)

var (
	ErrBlockNotFound = errors.New("block not found")
	ErrNotEditing    = errors.New("block is not being edited")
)

// Mode is the interaction state of one block.
type Mode int

const (
	Viewing Mode = iota
	Editing
)

func (m Mode) String() string {
	if m == Editing {
		return "editing"
	}
	return "viewing"
}

// Confirmer asks the user before a destructive action.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

// Always confirms without asking.
var Always Confirmer = ConfirmFunc(func(string) bool { return true })

const deletePrompt = "Delete this block?"

// Controller drives a single block through viewing and editing. Toolbar
// actions each issue exactly one list operation on the scope that holds
// the block.
type Controller struct {
	mu      sync.Mutex
	canvas  *Canvas
	id      string
	mode    Mode
	session EditSession
}

// ID is the id of the block this controller drives.
func (c *Controller) ID() string {
	return c.id
}

// Mode reports whether the block is being viewed or edited.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Buffer returns the pending content while editing.
func (c *Controller) Buffer() blocks.Content {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Buffer()
}

// ClickBody enters editing with a buffer seeded from the current content.
func (c *Controller) ClickBody() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == Editing {
		return nil
	}
	b, ok := c.canvas.Block(c.id)
	if !ok {
		return ErrBlockNotFound
	}
	c.session.Begin(b)
	c.mode = Editing
	return nil
}

// Input replaces the buffer. Nothing reaches the list until commit.
func (c *Controller) Input(content blocks.Content) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != Editing {
		return ErrNotEditing
	}
	c.session.Set(content)
	return nil
}

// ClickOutside leaves editing and commits the buffer if it changed.
func (c *Controller) ClickOutside() bool { return c.leave() }

// Escape leaves editing and commits the buffer if it changed.
func (c *Controller) Escape() bool { return c.leave() }

// Blur leaves editing and commits the buffer if it changed.
func (c *Controller) Blur() bool { return c.leave() }

func (c *Controller) leave() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != Editing {
		return false
	}
	c.mode = Viewing
	patch, changed := c.session.Commit()
	if !changed {
		return false
	}
	return c.scope().Update(c.id, patch)
}

// SetLanguage buffers a language change while editing and applies it
// directly otherwise.
func (c *Controller) SetLanguage(lang string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == Editing {
		c.session.SetLanguage(lang)
		return false
	}
	return c.scope().Update(c.id, blocks.Patch{Language: &lang})
}

// Source describes this block as a drag source.
func (c *Controller) Source() DragSource {
	return DragSource{BlockID: c.id}
}

// MoveUp moves the block one slot towards the top of its list.
func (c *Controller) MoveUp() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scope().MoveUp(c.id)
}

// MoveDown moves the block one slot towards the end of its list.
func (c *Controller) MoveDown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scope().MoveDown(c.id)
}

// Duplicate inserts a copy of the block after it and returns the copy.
func (c *Controller) Duplicate() (blocks.Block, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scope().Duplicate(c.id)
}

// Convert changes the block type. Any pending buffer is dropped; types that
// need input reopen in editing with the converted content.
func (c *Controller) Convert(t blocks.Type) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.Discard()
	c.mode = Viewing
	if !c.scope().ConvertType(c.id, t) {
		return false
	}
	if blocks.NeedsInput(t) {
		if b, ok := c.canvas.Block(c.id); ok {
			c.session.Begin(b)
			c.mode = Editing
		}
	}
	return true
}

// Delete removes the block once confirm agrees. A nil confirmer never
// agrees.
func (c *Controller) Delete(confirm Confirmer) bool {
	if confirm == nil || !confirm.Confirm(deletePrompt) {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.Discard()
	c.mode = Viewing
	return c.scope().Delete(c.id)
}

// scope resolves the list that currently holds the block.
func (c *Controller) scope() Scope {
	return c.canvas.scopeOf(c.id)
}
