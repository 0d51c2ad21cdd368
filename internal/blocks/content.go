package blocks

import (
	"encoding/json"
	"strings"
)

// DefaultLanguage is the language tag of a code block that never set one.
const DefaultLanguage = "plaintext"

// Content is the payload of a block. Exactly one implementation exists per
// Shape; the unexported marker keeps the set closed to this package.
type Content interface {
	Shape() Shape
	isContent()
}

// Text is a single string.
type Text string

// Lines is a newline-delimited list of items.
type Lines string

// Grid is a rectangular table of cells, row-major.
type Grid [][]string

// Collapsible is a titled body that viewers may fold away.
type Collapsible struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// AlertLevel is the severity of an alert block.
type AlertLevel string

const (
	AlertInfo    AlertLevel = "info"
	AlertWarning AlertLevel = "warning"
	AlertError   AlertLevel = "error"
	AlertSuccess AlertLevel = "success"
)

// Valid reports whether l is a known level.
func (l AlertLevel) Valid() bool {
	switch l {
	case AlertInfo, AlertWarning, AlertError, AlertSuccess:
		return true
	default:
		return false
	}
}

// Alert is a highlighted notice.
type Alert struct {
	Level AlertLevel `json:"level"`
	Text  string     `json:"text"`
}

// Section is a titled container of child blocks.
type Section struct {
	Title    string
	Children []Block
}

func (Text) Shape() Shape        { return ShapeText }
func (Lines) Shape() Shape       { return ShapeLines }
func (Grid) Shape() Shape        { return ShapeGrid }
func (Collapsible) Shape() Shape { return ShapeCollapsible }
func (Alert) Shape() Shape       { return ShapeAlert }
func (Section) Shape() Shape     { return ShapeSection }

func (Text) isContent()        {}
func (Lines) isContent()       {}
func (Grid) isContent()        {}
func (Collapsible) isContent() {}
func (Alert) isContent()       {}
func (Section) isContent()     {}

// Items splits l into its list entries.
func (l Lines) Items() []string {
	if l == "" {
		return nil
	}
	return strings.Split(string(l), "\n")
}

// Cols returns the width of g, taken from its first row.
func (g Grid) Cols() int {
	if len(g) == 0 {
		return 0
	}
	return len(g[0])
}

// Block is the atomic content unit of a document.
type Block struct {
	ID       string
	Type     Type
	Content  Content
	Language string

	// raw holds the exact bytes this block was decoded from while it stays
	// untouched; every operation that produces a changed block drops it.
	raw json.RawMessage
}

// Children returns the child blocks of a container block.
func (b Block) Children() []Block {
	if section, ok := b.Content.(Section); ok {
		return section.Children
	}
	return nil
}

// Document is an ordered sequence of top-level blocks plus identity.
type Document struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	ParentID string     `json:"parentId,omitempty"`
	Blocks   []Block    `json:"content"`
	Children []Document `json:"children,omitempty"`
}

// NormalizeGrid returns a rectangular copy of g whose width is the length of
// the first row; shorter rows are padded with empty cells and longer rows are
// truncated. An empty grid becomes the table default.
func NormalizeGrid(g Grid) Grid {
	if len(g) == 0 || len(g[0]) == 0 {
		return defaultGrid()
	}
	width := len(g[0])
	out := make(Grid, len(g))
	for i, row := range g {
		cells := make([]string, width)
		copy(cells, row)
		out[i] = cells
	}
	return out
}

func isRectangular(g Grid) bool {
	if len(g) == 0 || len(g[0]) == 0 {
		return false
	}
	for _, row := range g {
		if len(row) != len(g[0]) {
			return false
		}
	}
	return true
}

func defaultGrid() Grid {
	return Grid{{"", ""}, {"", ""}}
}

// EqualContent reports whether a and b carry the same value. Child blocks
// are compared by id, type, language and content.
func EqualContent(a, b Content) bool {
	switch x := a.(type) {
	case Text:
		y, ok := b.(Text)
		return ok && x == y
	case Lines:
		y, ok := b.(Lines)
		return ok && x == y
	case Grid:
		y, ok := b.(Grid)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if len(x[i]) != len(y[i]) {
				return false
			}
			for j := range x[i] {
				if x[i][j] != y[i][j] {
					return false
				}
			}
		}
		return true
	case Collapsible:
		y, ok := b.(Collapsible)
		return ok && x == y
	case Alert:
		y, ok := b.(Alert)
		return ok && x == y
	case Section:
		y, ok := b.(Section)
		if !ok || x.Title != y.Title || len(x.Children) != len(y.Children) {
			return false
		}
		for i := range x.Children {
			if !EqualBlock(x.Children[i], y.Children[i]) {
				return false
			}
		}
		return true
	case nil:
		return b == nil
	}
	return false
}

// EqualBlock compares two blocks field by field.
func EqualBlock(a, b Block) bool {
	return a.ID == b.ID && a.Type == b.Type && a.Language == b.Language && EqualContent(a.Content, b.Content)
}

// CloneContent returns a deep copy of c so that callers may edit grids and
// child lists without aliasing the original.
func CloneContent(c Content) Content {
	switch v := c.(type) {
	case Grid:
		out := make(Grid, len(v))
		for i, row := range v {
			out[i] = append([]string(nil), row...)
		}
		return out
	case Section:
		children := make([]Block, len(v.Children))
		for i, child := range v.Children {
			children[i] = child
			children[i].Content = CloneContent(child.Content)
		}
		return Section{Title: v.Title, Children: children}
	default:
		return c
	}
}
