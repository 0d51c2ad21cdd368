package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps pages in process memory. It backs tests and the
// no-database development mode.
type MemoryStore struct {
	mu    sync.RWMutex
	pages map[string]Page
	media map[string][]Media
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pages: map[string]Page{},
		media: map[string][]Media{},
		now:   time.Now,
	}
}

func (s *MemoryStore) ListPages(_ context.Context) ([]Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]Page, 0, len(s.pages))
	for _, p := range s.pages {
		p.Content = ""
		p.SearchText = ""
		items = append(items, p)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func (s *MemoryStore) GetPage(_ context.Context, id string) (Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pages[id]
	if !ok {
		return Page{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) PutPage(_ context.Context, page Page) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if page.Content == "" {
		page.Content = "[]"
	}
	now := s.now()
	if existing, ok := s.pages[page.ID]; ok {
		page.CreatedAt = existing.CreatedAt
	} else {
		page.CreatedAt = now
	}
	page.UpdatedAt = now
	s.pages[page.ID] = page
	return page, nil
}

func (s *MemoryStore) InsertMedia(_ context.Context, m Media) (Media, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pages[m.PageID]; !ok {
		return Media{}, ErrNotFound
	}
	m.CreatedAt = s.now()
	s.media[m.PageID] = append([]Media{m}, s.media[m.PageID]...)
	return m, nil
}

func (s *MemoryStore) ListMedia(_ context.Context, pageID string) ([]Media, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Media{}, s.media[pageID]...), nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}
