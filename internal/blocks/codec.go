package blocks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// wireBlock is the persisted form of a block. Section-like blocks keep their
// title in content and their children alongside it.
type wireBlock struct {
	ID       string          `json:"id"`
	Type     Type            `json:"type"`
	Content  json.RawMessage `json:"content,omitempty"`
	Language string          `json:"language,omitempty"`
	Level    AlertLevel      `json:"level,omitempty"`
	Children []Block         `json:"children,omitempty"`
}

// MarshalJSON writes an untouched block back exactly as it was read.
func (b Block) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := appendBlock(&buf, b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// appendBlock writes b to buf. Untouched blocks are copied verbatim; changed
// ones are encoded canonically without HTML escaping, and their children go
// through appendBlock again so untouched children keep their bytes.
func appendBlock(buf *bytes.Buffer, b Block) error {
	if b.raw != nil {
		buf.Write(b.raw)
		return nil
	}
	content := b.Content
	if content == nil {
		content = DefaultContentFor(b.Type)
	}
	var (
		payload  any = content
		children []Block
	)
	if section, ok := content.(Section); ok {
		payload = section.Title
		children = section.Children
	}
	raw, err := marshalPlain(payload)
	if err != nil {
		return fmt.Errorf("encode block %s content: %w", b.ID, err)
	}
	head, err := marshalPlain(wireBlock{ID: b.ID, Type: b.Type, Content: raw, Language: b.Language})
	if err != nil {
		return fmt.Errorf("encode block %s: %w", b.ID, err)
	}
	if len(children) == 0 {
		buf.Write(head)
		return nil
	}
	buf.Write(head[:len(head)-1])
	buf.WriteString(`,"children":`)
	if err := appendList(buf, children); err != nil {
		return err
	}
	buf.WriteByte('}')
	return nil
}

func appendList(buf *bytes.Buffer, list []Block) error {
	buf.WriteByte('[')
	for i, b := range list {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := appendBlock(buf, b); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

// marshalPlain is json.Marshal without HTML escaping.
func marshalPlain(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// UnmarshalJSON reads a block and coerces content that does not match the
// declared type. Coerced blocks lose their raw bytes and are written back in
// canonical form on the next save.
func (b *Block) UnmarshalJSON(data []byte) error {
	var w wireBlock
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode block: %w", err)
	}
	content, exact := decodeContent(w)
	*b = Block{ID: w.ID, Type: w.Type, Content: content, Language: w.Language}
	if w.Type == TypeCode && b.Language == "" {
		b.Language = DefaultLanguage
		exact = false
	}
	if exact {
		b.raw = append(json.RawMessage(nil), bytes.TrimSpace(data)...)
	}
	return nil
}

func decodeContent(w wireBlock) (Content, bool) {
	if len(w.Children) > 0 && !IsContainer(w.Type) {
		c, _ := decodeContent(wireBlock{Type: w.Type, Content: w.Content, Level: w.Level})
		return c, false
	}

	switch ShapeOf(w.Type) {
	case ShapeText:
		var s string
		if err := json.Unmarshal(w.Content, &s); err == nil && w.Content != nil {
			return Text(s), true
		}
	case ShapeLines:
		var s string
		if err := json.Unmarshal(w.Content, &s); err == nil && w.Content != nil {
			return Lines(s), true
		}
	case ShapeGrid:
		var g [][]string
		if err := json.Unmarshal(w.Content, &g); err == nil && g != nil {
			if isRectangular(g) {
				return Grid(g), true
			}
			return NormalizeGrid(g), false
		}
	case ShapeCollapsible:
		var c Collapsible
		if isObject(w.Content) && json.Unmarshal(w.Content, &c) == nil {
			return c, true
		}
	case ShapeAlert:
		var a Alert
		if isObject(w.Content) && json.Unmarshal(w.Content, &a) == nil {
			if a.Level.Valid() {
				return a, true
			}
			a.Level = AlertInfo
			return a, false
		}
		var s string
		if json.Unmarshal(w.Content, &s) == nil && w.Content != nil {
			level := w.Level
			if !level.Valid() {
				level = AlertInfo
			}
			return Alert{Level: level, Text: s}, false
		}
	case ShapeSection:
		children, exact := childrenExact(w.Children)
		var title string
		if err := json.Unmarshal(w.Content, &title); err == nil && w.Content != nil {
			return Section{Title: title, Children: children}, exact
		}
		return Section{Title: Flatten(decodeLoose(w.Content)), Children: children}, false
	}
	return Convert(decodeLoose(w.Content), w.Type), false
}

// childrenExact reports whether every child kept its raw bytes, which is
// what allows the parent to keep its own.
func childrenExact(children []Block) ([]Block, bool) {
	for _, child := range children {
		if child.raw == nil {
			return children, false
		}
	}
	return children, true
}

// decodeLoose makes a best guess at content whose JSON shape does not match
// its block type.
func decodeLoose(raw json.RawMessage) Content {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return Text(s)
	}
	var grid [][]string
	if json.Unmarshal(raw, &grid) == nil && grid != nil {
		return Grid(grid)
	}
	var items []string
	if json.Unmarshal(raw, &items) == nil && items != nil {
		return Lines(strings.Join(items, "\n"))
	}
	var obj map[string]any
	if json.Unmarshal(raw, &obj) == nil && obj != nil {
		if text, ok := obj["text"].(string); ok {
			level, _ := obj["level"].(string)
			return Alert{Level: AlertLevel(level), Text: text}
		}
		title, _ := obj["title"].(string)
		body, _ := obj["body"].(string)
		if title != "" || body != "" {
			return Collapsible{Title: title, Body: body}
		}
		return nil
	}
	trimmed := string(bytes.TrimSpace(raw))
	if trimmed == "null" {
		return nil
	}
	return Text(trimmed)
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// DecodeBlocks parses a persisted block list. Entries that are not blocks at
// all become text blocks holding their raw JSON, and missing or repeated ids
// are replaced, so a damaged document still opens.
func DecodeBlocks(data []byte) ([]Block, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return []Block{}, nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, fmt.Errorf("decode blocks: %w", err)
	}
	list := make([]Block, 0, len(entries))
	for _, entry := range entries {
		var b Block
		if err := json.Unmarshal(entry, &b); err != nil {
			b = Block{Type: TypeText, Content: Text(string(entry))}
		}
		list = append(list, b)
	}
	list, _ = ensureUniqueIDs(list, map[string]struct{}{})
	return list, nil
}

// EncodeBlocks serialises a block list. Blocks nobody changed are written
// with the exact bytes they were decoded from. A nil list encodes as [].
func EncodeBlocks(list []Block) ([]byte, error) {
	var buf bytes.Buffer
	if err := appendList(&buf, list); err != nil {
		return nil, fmt.Errorf("encode blocks: %w", err)
	}
	return buf.Bytes(), nil
}

func ensureUniqueIDs(list []Block, seen map[string]struct{}) ([]Block, bool) {
	changed := false
	for i := range list {
		b := &list[i]
		if _, dup := seen[b.ID]; dup || b.ID == "" {
			b.ID = NewID()
			b.raw = nil
			changed = true
		}
		seen[b.ID] = struct{}{}
		if section, ok := b.Content.(Section); ok {
			if _, childChanged := ensureUniqueIDs(section.Children, seen); childChanged {
				b.raw = nil
				changed = true
			}
		}
	}
	return list, changed
}
