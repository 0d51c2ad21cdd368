package export

import (
	"fmt"
	"html"
	"net/url"
	"strings"

	"blockwiki/api/internal/blocks"
)

// HTML renders a block list as an HTML fragment. Blocks of unknown type, or
// whose content does not match their type, render as a plain paragraph.
func HTML(list []blocks.Block) string {
	var sb strings.Builder
	r := htmlRenderer{sb: &sb}
	r.blocks(list, 0)
	return sb.String()
}

// Markdown renders a block list as CommonMark with GFM tables and task lists.
func Markdown(list []blocks.Block) string {
	var parts []string
	md := mdRenderer{}
	md.blocks(list, 0, &parts)
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "\n\n") + "\n"
}

func headingLevel(base, depth int) int {
	return min(base+depth, 6)
}

func todoItem(line string) (text string, done bool) {
	trimmed := strings.TrimSpace(line)
	lower := strings.ToLower(trimmed)
	switch {
	case strings.HasPrefix(lower, "[x]"):
		return strings.TrimSpace(trimmed[3:]), true
	case strings.HasPrefix(lower, "[ ]"):
		return strings.TrimSpace(trimmed[3:]), false
	}
	return trimmed, false
}

func linkURL(s string) (string, bool) {
	s = strings.TrimSpace(s)
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", false
	}
	return u.String(), true
}

func blockText(b blocks.Block) string {
	return strings.TrimSpace(blocks.Flatten(b.Content))
}

type htmlRenderer struct {
	sb      *strings.Builder
	counter int
}

func (r *htmlRenderer) blocks(list []blocks.Block, depth int) {
	for _, b := range list {
		r.block(b, depth)
	}
}

func (r *htmlRenderer) write(format string, args ...any) {
	fmt.Fprintf(r.sb, format, args...)
}

func (r *htmlRenderer) paragraph(b blocks.Block) {
	if text := blockText(b); text != "" {
		r.write("<p>%s</p>\n", escapeLines(text))
	}
}

func (r *htmlRenderer) block(b blocks.Block, depth int) {
	switch b.Type {
	case blocks.TypeDivider:
		r.write("<hr>\n")
	case blocks.TypeAutoNumber:
		r.counter++
		r.write("<p class=\"auto-number\">%d.</p>\n", r.counter)
	case blocks.TypeHeading:
		level := headingLevel(2, depth)
		r.write("<h%d>%s</h%d>\n", level, html.EscapeString(blockText(b)), level)
	case blocks.TypeCode:
		text, _ := b.Content.(blocks.Text)
		r.write("<pre><code class=\"language-%s\">%s</code></pre>\n", html.EscapeString(b.Language), html.EscapeString(string(text)))
	case blocks.TypeQuote:
		if text := blockText(b); text != "" {
			r.write("<blockquote><p>%s</p></blockquote>\n", escapeLines(text))
		}
	case blocks.TypeList, blocks.TypeTodo:
		lines, ok := b.Content.(blocks.Lines)
		if !ok {
			r.paragraph(b)
			return
		}
		items := lines.Items()
		if len(items) == 0 {
			return
		}
		if b.Type == blocks.TypeTodo {
			r.write("<ul class=\"todo\">\n")
			for _, item := range items {
				text, done := todoItem(item)
				checked := ""
				if done {
					checked = " checked"
				}
				r.write("<li><input type=\"checkbox\" disabled%s> %s</li>\n", checked, html.EscapeString(text))
			}
		} else {
			r.write("<ul>\n")
			for _, item := range items {
				r.write("<li>%s</li>\n", html.EscapeString(strings.TrimSpace(item)))
			}
		}
		r.write("</ul>\n")
	case blocks.TypeTable:
		grid, ok := b.Content.(blocks.Grid)
		if !ok || len(grid) == 0 {
			r.paragraph(b)
			return
		}
		r.write("<table>\n<thead><tr>")
		for _, cell := range grid[0] {
			r.write("<th>%s</th>", html.EscapeString(cell))
		}
		r.write("</tr></thead>\n<tbody>\n")
		for _, row := range grid[1:] {
			r.write("<tr>")
			for _, cell := range row {
				r.write("<td>%s</td>", html.EscapeString(cell))
			}
			r.write("</tr>\n")
		}
		r.write("</tbody>\n</table>\n")
	case blocks.TypeSection, blocks.TypeMultiColumn:
		sec, ok := b.Content.(blocks.Section)
		if !ok {
			r.paragraph(b)
			return
		}
		class := "section"
		if b.Type == blocks.TypeMultiColumn {
			class = "columns"
		}
		r.write("<section class=\"%s\">\n", class)
		if title := strings.TrimSpace(sec.Title); title != "" {
			level := headingLevel(3, depth)
			r.write("<h%d>%s</h%d>\n", level, html.EscapeString(title), level)
		}
		r.blocks(sec.Children, depth+1)
		r.write("</section>\n")
	case blocks.TypeCollapsible, blocks.TypeFAQ:
		c, ok := b.Content.(blocks.Collapsible)
		if !ok {
			r.paragraph(b)
			return
		}
		r.write("<details><summary>%s</summary><p>%s</p></details>\n", html.EscapeString(c.Title), escapeLines(c.Body))
	case blocks.TypeAlert:
		a, ok := b.Content.(blocks.Alert)
		if !ok {
			r.paragraph(b)
			return
		}
		r.write("<div class=\"alert alert-%s\" role=\"alert\"><p>%s</p></div>\n", html.EscapeString(string(a.Level)), escapeLines(a.Text))
	case blocks.TypeImage:
		if u, ok := linkURL(blockText(b)); ok {
			r.write("<figure><img src=\"%s\" alt=\"\"></figure>\n", html.EscapeString(u))
			return
		}
		r.paragraph(b)
	case blocks.TypeVideo:
		if u, ok := linkURL(blockText(b)); ok {
			r.write("<video controls src=\"%s\"></video>\n", html.EscapeString(u))
			return
		}
		r.paragraph(b)
	case blocks.TypeLink, blocks.TypeMedia, blocks.TypeAttachment, blocks.TypeExternalAPI, blocks.TypeGoogleMaps:
		if u, ok := linkURL(blockText(b)); ok {
			r.write("<p><a href=\"%s\">%s</a></p>\n", html.EscapeString(u), html.EscapeString(u))
			return
		}
		r.paragraph(b)
	default:
		r.paragraph(b)
	}
}

func escapeLines(s string) string {
	return strings.ReplaceAll(html.EscapeString(s), "\n", "<br>")
}

type mdRenderer struct {
	counter int
}

func (m *mdRenderer) blocks(list []blocks.Block, depth int, out *[]string) {
	for _, b := range list {
		m.block(b, depth, out)
	}
}

func (m *mdRenderer) block(b blocks.Block, depth int, out *[]string) {
	emit := func(s string) {
		if s != "" {
			*out = append(*out, s)
		}
	}
	switch b.Type {
	case blocks.TypeDivider:
		emit("---")
	case blocks.TypeAutoNumber:
		m.counter++
		emit(fmt.Sprintf("%d.", m.counter))
	case blocks.TypeHeading:
		if text := blockText(b); text != "" {
			emit(strings.Repeat("#", headingLevel(2, depth)) + " " + oneLine(text))
		}
	case blocks.TypeCode:
		text, _ := b.Content.(blocks.Text)
		fence := "```"
		for strings.Contains(string(text), fence) {
			fence += "`"
		}
		emit(fence + b.Language + "\n" + strings.TrimRight(string(text), "\n") + "\n" + fence)
	case blocks.TypeQuote:
		if text := blockText(b); text != "" {
			emit(prefixLines(text, "> "))
		}
	case blocks.TypeList, blocks.TypeTodo:
		lines, ok := b.Content.(blocks.Lines)
		if !ok {
			emit(blockText(b))
			return
		}
		var items []string
		for _, item := range lines.Items() {
			if b.Type == blocks.TypeTodo {
				text, done := todoItem(item)
				mark := " "
				if done {
					mark = "x"
				}
				items = append(items, fmt.Sprintf("- [%s] %s", mark, text))
				continue
			}
			items = append(items, "- "+strings.TrimSpace(item))
		}
		emit(strings.Join(items, "\n"))
	case blocks.TypeTable:
		grid, ok := b.Content.(blocks.Grid)
		if !ok || len(grid) == 0 {
			emit(blockText(b))
			return
		}
		rows := make([]string, 0, len(grid)+1)
		rows = append(rows, tableRow(grid[0]))
		sep := make([]string, len(grid[0]))
		for i := range sep {
			sep[i] = "---"
		}
		rows = append(rows, "| "+strings.Join(sep, " | ")+" |")
		for _, row := range grid[1:] {
			rows = append(rows, tableRow(row))
		}
		emit(strings.Join(rows, "\n"))
	case blocks.TypeSection, blocks.TypeMultiColumn:
		sec, ok := b.Content.(blocks.Section)
		if !ok {
			emit(blockText(b))
			return
		}
		if title := strings.TrimSpace(sec.Title); title != "" {
			emit(strings.Repeat("#", headingLevel(3, depth)) + " " + oneLine(title))
		}
		m.blocks(sec.Children, depth+1, out)
	case blocks.TypeCollapsible, blocks.TypeFAQ:
		c, ok := b.Content.(blocks.Collapsible)
		if !ok {
			emit(blockText(b))
			return
		}
		parts := []string{}
		if title := strings.TrimSpace(c.Title); title != "" {
			parts = append(parts, "**"+oneLine(title)+"**")
		}
		if body := strings.TrimSpace(c.Body); body != "" {
			parts = append(parts, body)
		}
		emit(strings.Join(parts, "\n\n"))
	case blocks.TypeAlert:
		a, ok := b.Content.(blocks.Alert)
		if !ok {
			emit(blockText(b))
			return
		}
		level := string(a.Level)
		if !a.Level.Valid() {
			level = string(blocks.AlertInfo)
		}
		label := strings.ToUpper(level[:1]) + level[1:]
		emit(prefixLines("**"+label+":** "+strings.TrimSpace(a.Text), "> "))
	case blocks.TypeImage:
		if u, ok := linkURL(blockText(b)); ok {
			emit("![](" + u + ")")
			return
		}
		emit(blockText(b))
	case blocks.TypeVideo, blocks.TypeLink, blocks.TypeMedia, blocks.TypeAttachment, blocks.TypeExternalAPI, blocks.TypeGoogleMaps:
		if u, ok := linkURL(blockText(b)); ok {
			emit("<" + u + ">")
			return
		}
		emit(blockText(b))
	default:
		emit(blockText(b))
	}
}

func tableRow(cells []string) string {
	escaped := make([]string, len(cells))
	for i, c := range cells {
		escaped[i] = strings.ReplaceAll(oneLine(c), "|", `\|`)
	}
	return "| " + strings.Join(escaped, " | ") + " |"
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func prefixLines(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
