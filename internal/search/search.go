package search

import "context"

// Result is a single page hit returned to the caller.
type Result struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Snippet  string `json:"snippet"`
	ParentID string `json:"parentId,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text           string
	FilterParentID string
	Limit          int
	Offset         int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push pages into a search index.
type Indexer interface {
	IndexPage(rec PageRecord) error
	DeletePage(id string) error
}

// PageRecord is the data we index for a page. Text is the flattened block
// content.
type PageRecord struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Text     string `json:"text"`
	ParentID string `json:"parentId,omitempty"`
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return 20
	}
	return q.Limit
}

func (q Query) offset() int {
	if q.Offset < 0 {
		return 0
	}
	return q.Offset
}
