package search

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryIndex is an in-process Searcher and Indexer used when neither
// Meilisearch nor Postgres is configured.
type MemoryIndex struct {
	mu      sync.RWMutex
	records map[string]PageRecord
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{records: map[string]PageRecord{}}
}

func (m *MemoryIndex) Healthy() bool { return true }

func (m *MemoryIndex) IndexPage(rec PageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec
	return nil
}

func (m *MemoryIndex) DeletePage(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

// Search returns pages whose name or text contains every query term, name
// matches first.
func (m *MemoryIndex) Search(_ context.Context, q Query) ([]Result, int, error) {
	terms := strings.Fields(strings.ToLower(q.Text))
	if len(terms) == 0 {
		return nil, 0, nil
	}

	type scored struct {
		rec   PageRecord
		score int
	}
	m.mu.RLock()
	var hits []scored
	for _, rec := range m.records {
		if q.FilterParentID != "" && rec.ParentID != q.FilterParentID {
			continue
		}
		name, text := strings.ToLower(rec.Name), strings.ToLower(rec.Text)
		score := 0
		for _, term := range terms {
			switch {
			case strings.Contains(name, term):
				score += 2
			case strings.Contains(text, term):
				score++
			default:
				score = -1
			}
			if score < 0 {
				break
			}
		}
		if score > 0 {
			hits = append(hits, scored{rec: rec, score: score})
		}
	}
	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].rec.Name < hits[j].rec.Name
	})

	total := len(hits)
	start := min(q.offset(), total)
	end := min(start+q.limit(), total)
	results := make([]Result, 0, end-start)
	for _, h := range hits[start:end] {
		results = append(results, Result{
			ID:       h.rec.ID,
			Name:     h.rec.Name,
			ParentID: h.rec.ParentID,
			Snippet:  snippet(h.rec.Text, terms[0], 30),
		})
	}
	return results, total, nil
}

// snippet returns up to words words of text around the first occurrence of
// term, with the match wrapped in <mark>.
func snippet(text, term string, words int) string {
	fields := strings.Fields(text)
	at := 0
	for i, f := range fields {
		if strings.Contains(strings.ToLower(f), term) {
			at = i
			break
		}
	}
	start := max(at-words/2, 0)
	end := min(start+words, len(fields))
	out := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		if i == at && strings.Contains(strings.ToLower(fields[i]), term) {
			out = append(out, "<mark>"+fields[i]+"</mark>")
			continue
		}
		out = append(out, fields[i])
	}
	return strings.Join(out, " ")
}
