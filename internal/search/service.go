package search

import (
	"context"

	"github.com/rs/zerolog"
)

// Service is the facade that tries Meilisearch first and falls back to a
// local searcher (PG FTS or the in-memory index).
type Service struct {
	meili    *Meili
	fallback Searcher
	log      zerolog.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, fallback Searcher, log zerolog.Logger) *Service {
	return &Service{meili: meili, fallback: fallback, log: log.With().Str("component", "search").Logger()}
}

// Search tries Meilisearch if healthy, otherwise falls back.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.log.Warn().Err(err).Msg("meilisearch error, falling back")
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.log.Error().Err(err).Msg("fallback search failed")
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexPage updates a local index synchronously and Meilisearch
// fire-and-forget.
func (s *Service) IndexPage(rec PageRecord) {
	if idx, ok := s.fallback.(Indexer); ok {
		if err := idx.IndexPage(rec); err != nil {
			s.log.Error().Err(err).Str("page_id", rec.ID).Msg("index page locally")
		}
	}
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexPage(rec); err != nil {
			s.log.Error().Err(err).Str("page_id", rec.ID).Msg("index page")
		}
	}()
}

func (s *Service) DeletePage(id string) {
	if idx, ok := s.fallback.(Indexer); ok {
		_ = idx.DeletePage(id)
	}
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeletePage(id); err != nil {
			s.log.Error().Err(err).Str("page_id", id).Msg("delete page")
		}
	}()
}

// ReindexAll pushes every record to the indexes.
func (s *Service) ReindexAll(records []PageRecord) {
	if idx, ok := s.fallback.(Indexer); ok {
		for _, rec := range records {
			_ = idx.IndexPage(rec)
		}
	}
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	if err := s.meili.IndexPages(records); err != nil {
		s.log.Error().Err(err).Int("pages", len(records)).Msg("reindex pages")
	}
}

// ReindexAllFromPG reindexes every page from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	pg, ok := s.fallback.(*PgFTS)
	if s.meili == nil || !s.meili.Healthy() || !ok {
		return
	}
	records, err := pg.LoadAllRecords(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("reindex load failed")
		return
	}
	s.ReindexAll(records)
}

// Close stops background work.
func (s *Service) Close() {
	if s.meili != nil {
		s.meili.Close()
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
