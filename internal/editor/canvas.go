package editor

import (
	"strings"
	"sync"

	"blockwiki/api/internal/blocks"
)

// DragSource is what a drop carries: either an existing block or a type
// picked from the palette.
type DragSource struct {
	BlockID     string      `json:"blockId,omitempty"`
	PaletteType blocks.Type `json:"paletteType,omitempty"`
}

// Canvas owns the authoritative document of one editing session. All
// mutations go through it, one at a time. Listeners run while the canvas is
// locked and must not call back into it.
type Canvas struct {
	mu           sync.Mutex
	doc          blocks.Document
	version      uint64
	listeners    map[int]func(blocks.Document)
	nextListener int
	controllers  map[string]*Controller
}

// NewCanvas wraps doc as the authoritative copy for one editing context.
func NewCanvas(doc blocks.Document) *Canvas {
	if doc.Blocks == nil {
		doc.Blocks = []blocks.Block{}
	}
	return &Canvas{
		doc:         doc,
		listeners:   map[int]func(blocks.Document){},
		controllers: map[string]*Controller{},
	}
}

// Document returns the current document. Block slices are never mutated in
// place, so the result stays valid after later edits.
func (c *Canvas) Document() blocks.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc
}

// Blocks returns the current top-level block list.
func (c *Canvas) Blocks() []blocks.Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc.Blocks
}

// Version increases by one with every change to the document.
func (c *Canvas) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Snapshot serialises the current block list.
func (c *Canvas) Snapshot() ([]byte, error) {
	return blocks.EncodeBlocks(c.Blocks())
}

// Rename sets the document name. Blank or unchanged names are ignored.
func (c *Canvas) Rename(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	name = strings.TrimSpace(name)
	if name == "" || name == c.doc.Name {
		return false
	}
	c.doc.Name = name
	c.changed()
	return true
}

// OnChange registers fn to receive the document after every change. The
// returned func unregisters it.
func (c *Canvas) OnChange(fn func(blocks.Document)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// Root is the top-level block list.
func (c *Canvas) Root() Scope {
	return Scope{canvas: c}
}

// Section is the child list of the container block with id.
func (c *Canvas) Section(id string) (Scope, bool) {
	b, ok := c.Block(id)
	if !ok || !blocks.IsContainer(b.Type) {
		return Scope{}, false
	}
	return Scope{canvas: c, sectionID: id}, true
}

// Block looks up a block anywhere in the document.
func (c *Canvas) Block(id string) (blocks.Block, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return blocks.Find(c.doc.Blocks, id)
}

// Controller returns the controller for block id, creating it on first use.
func (c *Canvas) Controller(id string) (*Controller, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctrl, ok := c.controllers[id]; ok {
		return ctrl, true
	}
	if _, ok := blocks.Find(c.doc.Blocks, id); !ok {
		return nil, false
	}
	ctrl := &Controller{canvas: c, id: id}
	c.controllers[id] = ctrl
	return ctrl, true
}

// Drop applies a drop on the root list.
func (c *Canvas) Drop(src DragSource, overID string) bool {
	return c.Root().Drop(src, overID)
}

// QuickAdd appends a text block to the root list.
func (c *Canvas) QuickAdd(text string) bool {
	return c.Root().QuickAdd(text)
}

// scopeOf finds the list that holds block id.
func (c *Canvas) scopeOf(id string) Scope {
	c.mu.Lock()
	defer c.mu.Unlock()
	parent, _ := parentOf(c.doc.Blocks, id, "")
	return Scope{canvas: c, sectionID: parent}
}

func parentOf(list []blocks.Block, id, parent string) (string, bool) {
	for _, b := range list {
		if b.ID == id {
			return parent, true
		}
		if p, ok := parentOf(b.Children(), id, b.ID); ok {
			return p, true
		}
	}
	return "", false
}

// apply runs fn on the scope's list and publishes the result if the list
// changed.
func (c *Canvas) apply(sectionID string, fn func([]blocks.Block) []blocks.Block) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	current := c.doc.Blocks
	var next []blocks.Block
	if sectionID == "" {
		next = fn(current)
	} else {
		next = blocks.WithinSection(current, sectionID, fn)
	}
	if blocks.Same(next, current) {
		return false
	}
	c.doc.Blocks = next
	c.changed()
	return true
}

func (c *Canvas) changed() {
	c.version++
	for _, fn := range c.listeners {
		fn(c.doc)
	}
}

func (c *Canvas) forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.controllers, id)
}

// Scope exposes the list operations for one block list of the canvas,
// either the root list or the children of a section.
type Scope struct {
	canvas    *Canvas
	sectionID string
}

// SectionID is empty for the root scope.
func (s Scope) SectionID() string {
	return s.sectionID
}

// Blocks returns the list this scope addresses.
func (s Scope) Blocks() []blocks.Block {
	if s.sectionID == "" {
		return s.canvas.Blocks()
	}
	b, _ := s.canvas.Block(s.sectionID)
	return b.Children()
}

// InsertAfter adds a default block of type t after index.
func (s Scope) InsertAfter(t blocks.Type, index int) (blocks.Block, bool) {
	var created blocks.Block
	ok := s.canvas.apply(s.sectionID, func(list []blocks.Block) []blocks.Block {
		next, b := blocks.InsertAfter(list, t, index)
		created = b
		return next
	})
	return created, ok
}

// InsertBlockAfter places an existing block after index.
func (s Scope) InsertBlockAfter(b blocks.Block, index int) bool {
	return s.canvas.apply(s.sectionID, func(list []blocks.Block) []blocks.Block {
		return blocks.InsertBlockAfter(list, b, index)
	})
}

// Update applies p to the block with id.
func (s Scope) Update(id string, p blocks.Patch) bool {
	return s.canvas.apply(s.sectionID, func(list []blocks.Block) []blocks.Block {
		return blocks.Update(list, id, p)
	})
}

// Delete removes the block with id and its subtree.
func (s Scope) Delete(id string) bool {
	ok := s.canvas.apply(s.sectionID, func(list []blocks.Block) []blocks.Block {
		return blocks.Delete(list, id)
	})
	if ok {
		s.canvas.forget(id)
	}
	return ok
}

// Duplicate copies the block with id right after itself under fresh ids.
func (s Scope) Duplicate(id string) (blocks.Block, bool) {
	var dup blocks.Block
	ok := s.canvas.apply(s.sectionID, func(list []blocks.Block) []blocks.Block {
		next, b, _ := blocks.Duplicate(list, id)
		dup = b
		return next
	})
	return dup, ok
}

// MoveUp swaps the block with its predecessor.
func (s Scope) MoveUp(id string) bool {
	return s.canvas.apply(s.sectionID, func(list []blocks.Block) []blocks.Block {
		return blocks.MoveUp(list, id)
	})
}

// MoveDown swaps the block with its successor.
func (s Scope) MoveDown(id string) bool {
	return s.canvas.apply(s.sectionID, func(list []blocks.Block) []blocks.Block {
		return blocks.MoveDown(list, id)
	})
}

// MoveToIndex moves fromID into toID's slot.
func (s Scope) MoveToIndex(fromID, toID string) bool {
	return s.canvas.apply(s.sectionID, func(list []blocks.Block) []blocks.Block {
		return blocks.MoveToIndex(list, fromID, toID)
	})
}

// ConvertType changes the block's type, reshaping its content.
func (s Scope) ConvertType(id string, t blocks.Type) bool {
	return s.canvas.apply(s.sectionID, func(list []blocks.Block) []blocks.Block {
		return blocks.ConvertType(list, id, t)
	})
}

// Drop inserts a palette block after overID (or at the end when there is no
// target) or moves an existing block onto overID's slot.
func (s Scope) Drop(src DragSource, overID string) bool {
	switch {
	case src.PaletteType != "":
		if !src.PaletteType.Valid() {
			return false
		}
		b := blocks.MakeBlock(src.PaletteType)
		return s.canvas.apply(s.sectionID, func(list []blocks.Block) []blocks.Block {
			return blocks.InsertBlockAfter(list, b, blocks.IndexOf(list, overID))
		})
	case src.BlockID != "":
		return s.MoveToIndex(src.BlockID, overID)
	default:
		return false
	}
}

// QuickAdd appends a text block holding text. Blank input is ignored.
func (s Scope) QuickAdd(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	b := blocks.MakeBlock(blocks.TypeText)
	b.Content = blocks.Text(text)
	return s.canvas.apply(s.sectionID, func(list []blocks.Block) []blocks.Block {
		return blocks.Append(list, b)
	})
}
