package store

import (
	"errors"
	"sort"
	"time"
)

var ErrNotFound = errors.New("not found")

// Page is a stored document. Content holds the serialised block list exactly
// as it was saved.
type Page struct {
	ID         string
	Name       string
	ParentID   *string
	Content    string
	SearchText string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PageNode is a page with its sub-pages, for the navigation tree.
type PageNode struct {
	Page
	Children []PageNode
}

type Media struct {
	ID          string
	PageID      string
	ObjectKey   string
	FileName    string
	ContentType string
	SizeBytes   int64
	URL         string
	CreatedAt   time.Time
}

type CommitInfo struct {
	Hash      string
	Message   string
	Author    string
	CreatedAt time.Time
}

// BuildTree arranges pages under their parents, siblings sorted by name.
// Pages whose parent is missing become roots.
func BuildTree(pages []Page) []PageNode {
	byParent := map[string][]Page{}
	known := make(map[string]bool, len(pages))
	for _, p := range pages {
		known[p.ID] = true
	}
	var roots []Page
	for _, p := range pages {
		if p.ParentID == nil || !known[*p.ParentID] || *p.ParentID == p.ID {
			roots = append(roots, p)
			continue
		}
		byParent[*p.ParentID] = append(byParent[*p.ParentID], p)
	}

	visited := map[string]bool{}
	var build func([]Page) []PageNode
	build = func(level []Page) []PageNode {
		sort.SliceStable(level, func(i, j int) bool { return level[i].Name < level[j].Name })
		nodes := make([]PageNode, 0, len(level))
		for _, p := range level {
			if visited[p.ID] {
				continue
			}
			visited[p.ID] = true
			nodes = append(nodes, PageNode{Page: p, Children: build(byParent[p.ID])})
		}
		return nodes
	}
	return build(roots)
}
