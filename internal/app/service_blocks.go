package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"blockwiki/api/internal/blocks"
	"blockwiki/api/internal/editor"
)

// BlockAction is one interaction with a block, as issued by its toolbar or
// by focus changes in the host.
type BlockAction struct {
	Name     string
	Section  string
	Content  json.RawMessage
	Type     string
	Language string
	// Confirm answers the delete prompt; only true deletes.
	Confirm *bool
}

// ActionResult reports what an action did. Block is the block after the
// action, or the new copy for duplicate. Draft is the pending edit while the
// block stays in editing mode.
type ActionResult struct {
	Changed bool          `json:"changed"`
	Version uint64        `json:"version"`
	Mode    string        `json:"mode,omitempty"`
	Block   *blocks.Block `json:"block,omitempty"`
	Draft   *blocks.Block `json:"draft,omitempty"`
}

// ListResult reports a list mutation on the canvas.
type ListResult struct {
	Changed bool           `json:"changed"`
	Version uint64         `json:"version"`
	Block   *blocks.Block  `json:"block,omitempty"`
	Blocks  []blocks.Block `json:"blocks"`
}

// scope resolves the list an operation targets: the root list, or the
// children of the section block named by sectionID.
func scope(canvas *editor.Canvas, sectionID string) (editor.Scope, error) {
	sectionID = strings.TrimSpace(sectionID)
	if sectionID == "" {
		return canvas.Root(), nil
	}
	sc, ok := canvas.Section(sectionID)
	if !ok {
		return editor.Scope{}, domainError(http.StatusNotFound, "SECTION_NOT_FOUND", "Section not found", map[string]any{"section": sectionID})
	}
	return sc, nil
}

func listResult(canvas *editor.Canvas, sc editor.Scope, before uint64, b *blocks.Block) ListResult {
	version := canvas.Version()
	list := sc.Blocks()
	if list == nil {
		list = []blocks.Block{}
	}
	return ListResult{Changed: version != before, Version: version, Block: b, Blocks: list}
}

// InsertBlock adds a default block of type typ after index in the scope.
// An index outside the list appends.
func (s *Service) InsertBlock(id, sectionID, typ string, index int) (ListResult, error) {
	sess, err := s.Session(id)
	if err != nil {
		return ListResult{}, err
	}
	t, ok := blocks.ParseType(typ)
	if !ok {
		return ListResult{}, validationError("unknown block type")
	}
	sc, err := scope(sess.canvas, sectionID)
	if err != nil {
		return ListResult{}, err
	}
	before := sess.canvas.Version()
	b, inserted := sc.InsertAfter(t, index)
	if !inserted {
		return listResult(sess.canvas, sc, before, nil), nil
	}
	return listResult(sess.canvas, sc, before, &b), nil
}

func (s *Service) Drop(id, sectionID string, src editor.DragSource, overID string) (ListResult, error) {
	sess, err := s.Session(id)
	if err != nil {
		return ListResult{}, err
	}
	if src.PaletteType != "" && !src.PaletteType.Valid() {
		return ListResult{}, validationError("unknown block type")
	}
	sc, err := scope(sess.canvas, sectionID)
	if err != nil {
		return ListResult{}, err
	}
	before := sess.canvas.Version()
	sc.Drop(src, overID)
	return listResult(sess.canvas, sc, before, nil), nil
}

func (s *Service) QuickAdd(id, sectionID, text string) (ListResult, error) {
	sess, err := s.Session(id)
	if err != nil {
		return ListResult{}, err
	}
	sc, err := scope(sess.canvas, sectionID)
	if err != nil {
		return ListResult{}, err
	}
	before := sess.canvas.Version()
	sc.QuickAdd(text)
	return listResult(sess.canvas, sc, before, nil), nil
}

// Act drives the controller of block blockID through one action.
func (s *Service) Act(id, blockID string, action BlockAction) (ActionResult, error) {
	sess, err := s.Session(id)
	if err != nil {
		return ActionResult{}, err
	}
	canvas := sess.canvas
	if action.Section != "" {
		sc, err := scope(canvas, action.Section)
		if err != nil {
			return ActionResult{}, err
		}
		if blocks.IndexOf(sc.Blocks(), blockID) < 0 {
			return ActionResult{}, editor.ErrBlockNotFound
		}
	}
	ctrl, ok := canvas.Controller(blockID)
	if !ok {
		return ActionResult{}, editor.ErrBlockNotFound
	}

	before := canvas.Version()
	var copied *blocks.Block
	switch action.Name {
	case "click":
		err = ctrl.ClickBody()
	case "input":
		current, _ := canvas.Block(blockID)
		var content blocks.Content
		content, err = decodeInput(current, action.Content)
		if err == nil {
			err = ctrl.Input(content)
		}
	case "blur":
		ctrl.Blur()
	case "escape":
		ctrl.Escape()
	case "click-outside":
		ctrl.ClickOutside()
	case "move-up":
		ctrl.MoveUp()
	case "move-down":
		ctrl.MoveDown()
	case "duplicate":
		if b, ok := ctrl.Duplicate(); ok {
			copied = &b
		}
	case "convert":
		t, ok := blocks.ParseType(action.Type)
		if !ok {
			return ActionResult{}, validationError("unknown block type")
		}
		ctrl.Convert(t)
	case "delete":
		confirmed := action.Confirm != nil && *action.Confirm
		ctrl.Delete(editor.ConfirmFunc(func(string) bool { return confirmed }))
	case "language":
		if strings.TrimSpace(action.Language) == "" {
			return ActionResult{}, validationError("language is required")
		}
		ctrl.SetLanguage(action.Language)
	default:
		return ActionResult{}, domainError(http.StatusNotFound, "UNKNOWN_ACTION", "Unknown block action", map[string]any{"action": action.Name})
	}
	if err != nil {
		return ActionResult{}, err
	}

	result := ActionResult{Version: canvas.Version()}
	result.Changed = result.Version != before
	if copied != nil {
		result.Block = copied
		return result, nil
	}
	current, exists := canvas.Block(blockID)
	if !exists {
		return result, nil
	}
	result.Block = &current
	result.Mode = ctrl.Mode().String()
	if ctrl.Mode() == editor.Editing {
		draft := blocks.Block{ID: current.ID, Type: current.Type, Content: ctrl.Buffer(), Language: current.Language}
		result.Draft = &draft
	}
	return result, nil
}

// decodeInput reads typed content for b the way a stored block's content is
// read, so mismatched shapes are coerced rather than rejected. A section's
// input only replaces its title.
func decodeInput(b blocks.Block, raw json.RawMessage) (blocks.Content, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, validationError("content is required")
	}
	wire, err := json.Marshal(map[string]any{"id": b.ID, "type": b.Type, "content": raw})
	if err != nil {
		return nil, validationError("content is not valid JSON")
	}
	var decoded blocks.Block
	if err := json.Unmarshal(wire, &decoded); err != nil {
		return nil, validationError("content is not valid JSON")
	}
	if section, ok := decoded.Content.(blocks.Section); ok {
		section.Children = b.Children()
		return section, nil
	}
	return decoded.Content, nil
}
