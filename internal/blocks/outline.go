package blocks

import "strings"

// Heading is one entry of a document outline.
type Heading struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Index int    `json:"index"`
	Depth int    `json:"depth"`
}

// Outline lists the heading blocks of a document in reading order. Index is
// the position of the heading in a depth-first walk, which is how the viewer
// scrolls to it. A non-empty query keeps only headings whose text contains
// it, ignoring case.
func Outline(list []Block, query string) []Heading {
	query = strings.ToLower(strings.TrimSpace(query))
	headings := []Heading{}
	index := 0
	Walk(list, func(b Block, depth int) {
		defer func() { index++ }()
		if b.Type != TypeHeading {
			return
		}
		text := Flatten(b.Content)
		if query != "" && !strings.Contains(strings.ToLower(text), query) {
			return
		}
		headings = append(headings, Heading{ID: b.ID, Text: text, Index: index, Depth: depth})
	})
	return headings
}

// PlainText flattens a document into newline separated text, one block per
// line group. Dividers and empty blocks contribute nothing.
func PlainText(list []Block) string {
	var sb strings.Builder
	Walk(list, func(b Block, _ int) {
		text := strings.TrimSpace(Flatten(b.Content))
		if text == "" {
			return
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(text)
	})
	return sb.String()
}
