package blocks

import (
	"net/url"
	"strings"
)

// Convert maps content onto the shape of type to. The result is always
// shape-correct; whatever text survives the change is kept.
//
// text and lines carry over verbatim. A grid is seeded from newline rows and
// tab-separated cells, and flattens back the same way. A collapsible takes the
// first line as its title and the rest as body. An alert starts at info level.
// A section keeps the text as its title. Link-like types only accept an http
// or https URL. A divider always resets.
func Convert(c Content, to Type) Content {
	if c == nil || to == TypeDivider {
		return DefaultContentFor(to)
	}

	var out Content
	switch ShapeOf(to) {
	case ShapeText:
		s := Flatten(c)
		if urlTyped(to) && !isHTTPURL(s) {
			return DefaultContentFor(to)
		}
		out = Text(s)
	case ShapeLines:
		out = Lines(Flatten(c))
	case ShapeGrid:
		if g, ok := c.(Grid); ok {
			out = NormalizeGrid(g)
		} else {
			out = gridFromText(Flatten(c))
		}
	case ShapeCollapsible:
		if v, ok := c.(Collapsible); ok {
			out = v
		} else {
			title, body, _ := strings.Cut(Flatten(c), "\n")
			out = Collapsible{Title: title, Body: body}
		}
	case ShapeAlert:
		if v, ok := c.(Alert); ok {
			if !v.Level.Valid() {
				v.Level = AlertInfo
			}
			out = v
		} else {
			out = Alert{Level: AlertInfo, Text: Flatten(c)}
		}
	case ShapeSection:
		if v, ok := c.(Section); ok {
			out = v
		} else {
			out = Section{Title: Flatten(c)}
		}
	}
	if out == nil {
		return DefaultContentFor(to)
	}
	return out
}

// Reshape returns c unchanged when it already has the shape t declares and
// converts it otherwise. Grids are always normalised.
func Reshape(c Content, t Type) Content {
	if c == nil {
		return DefaultContentFor(t)
	}
	if c.Shape() != ShapeOf(t) {
		return Convert(c, t)
	}
	if g, ok := c.(Grid); ok && !isRectangular(g) {
		return NormalizeGrid(g)
	}
	if a, ok := c.(Alert); ok && !a.Level.Valid() {
		a.Level = AlertInfo
		return a
	}
	return c
}

// Flatten renders c as plain text.
func Flatten(c Content) string {
	switch v := c.(type) {
	case Text:
		return string(v)
	case Lines:
		return string(v)
	case Grid:
		rows := make([]string, len(v))
		for i, row := range v {
			rows[i] = strings.Join(row, "\t")
		}
		return strings.Join(rows, "\n")
	case Collapsible:
		if v.Body == "" {
			return v.Title
		}
		return v.Title + "\n" + v.Body
	case Alert:
		return v.Text
	case Section:
		return v.Title
	}
	return ""
}

func gridFromText(s string) Grid {
	if s == "" {
		return defaultGrid()
	}
	lines := strings.Split(s, "\n")
	g := make(Grid, len(lines))
	for i, line := range lines {
		g[i] = strings.Split(line, "\t")
	}
	return NormalizeGrid(g)
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
