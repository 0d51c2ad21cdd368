package search

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/rs/zerolog"
)

func TestMemoryIndexRanksNameMatchesFirst(t *testing.T) {
	idx := NewMemoryIndex()
	_ = idx.IndexPage(PageRecord{ID: "a", Name: "Notes", Text: "deploy checklist for the release"})
	_ = idx.IndexPage(PageRecord{ID: "b", Name: "Release plan", Text: "dates and owners"})
	_ = idx.IndexPage(PageRecord{ID: "c", Name: "Unrelated", Text: "nothing here"})

	results, total, err := idx.Search(context.Background(), Query{Text: "release"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 hits, got %d", total)
	}
	if results[0].ID != "b" || results[1].ID != "a" {
		t.Fatalf("unexpected order: %+v", results)
	}
	if results[1].Snippet != "deploy checklist for the <mark>release</mark>" {
		t.Fatalf("unexpected snippet: %q", results[1].Snippet)
	}
}

func TestMemoryIndexRequiresEveryTerm(t *testing.T) {
	idx := NewMemoryIndex()
	_ = idx.IndexPage(PageRecord{ID: "a", Name: "Alpha", Text: "red green"})
	_ = idx.IndexPage(PageRecord{ID: "b", Name: "Beta", Text: "red blue"})

	results, _, _ := idx.Search(context.Background(), Query{Text: "red blue"})
	if len(results) != 1 || results[0].ID != "b" {
		t.Fatalf("expected only b, got %+v", results)
	}

	_ = idx.DeletePage("b")
	results, _, _ = idx.Search(context.Background(), Query{Text: "red blue"})
	if len(results) != 0 {
		t.Fatalf("expected deleted page gone, got %+v", results)
	}
}

func TestMemoryIndexFiltersAndPages(t *testing.T) {
	idx := NewMemoryIndex()
	_ = idx.IndexPage(PageRecord{ID: "a", Name: "Doc A", Text: "shared", ParentID: "root"})
	_ = idx.IndexPage(PageRecord{ID: "b", Name: "Doc B", Text: "shared", ParentID: "root"})
	_ = idx.IndexPage(PageRecord{ID: "c", Name: "Doc C", Text: "shared"})

	results, total, _ := idx.Search(context.Background(), Query{Text: "shared", FilterParentID: "root", Limit: 1, Offset: 1})
	if total != 2 {
		t.Fatalf("expected 2 filtered hits, got %d", total)
	}
	if len(results) != 1 || results[0].ID != "b" {
		t.Fatalf("unexpected page: %+v", results)
	}
}

type failingSearcher struct{}

func (failingSearcher) Search(context.Context, Query) ([]Result, int, error) {
	return nil, 0, errors.New("boom")
}
func (failingSearcher) Healthy() bool { return true }

func TestServiceFallsBackAndNeverReturnsNilResults(t *testing.T) {
	svc := NewService(nil, failingSearcher{}, zerolog.Nop())
	resp := svc.Search(context.Background(), Query{Text: "x"})
	if resp.Results == nil || len(resp.Results) != 0 || resp.Query != "x" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	svc = NewService(nil, nil, zerolog.Nop())
	if resp := svc.Search(context.Background(), Query{Text: "x"}); resp.Results == nil {
		t.Fatal("expected empty results without any searcher")
	}
}

func TestServiceIndexesIntoLocalIndex(t *testing.T) {
	idx := NewMemoryIndex()
	svc := NewService(nil, idx, zerolog.Nop())
	svc.IndexPage(PageRecord{ID: "p1", Name: "Runbook", Text: "restart the worker"})

	resp := svc.Search(context.Background(), Query{Text: "worker"})
	if resp.Total != 1 || resp.Results[0].ID != "p1" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	svc.DeletePage("p1")
	if resp := svc.Search(context.Background(), Query{Text: "worker"}); resp.Total != 0 {
		t.Fatalf("expected page removed, got %+v", resp)
	}
}

func TestHitToResultPrefersFormattedFields(t *testing.T) {
	hit := meili.Hit{
		"id":         json.RawMessage(`"p1"`),
		"name":       json.RawMessage(`"Runbook"`),
		"text":       json.RawMessage(`"restart the worker"`),
		"parentId":   json.RawMessage(`"root"`),
		"_formatted": json.RawMessage(`{"id":"p1","name":"Runbook","text":"restart the <mark>worker</mark>"}`),
	}

	r := hitToResult(hit)
	if r.ID != "p1" || r.ParentID != "root" || r.Name != "Runbook" {
		t.Fatalf("unexpected result: %+v", r)
	}
	if r.Snippet != "restart the <mark>worker</mark>" {
		t.Fatalf("expected highlighted snippet, got %q", r.Snippet)
	}
}
