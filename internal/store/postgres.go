package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) ListPages(ctx context.Context) ([]Page, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, parent_id, created_at, updated_at
		FROM pages
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	items := make([]Page, 0)
	for rows.Next() {
		var (
			item     Page
			parentID sql.NullString
		)
		if err := rows.Scan(&item.ID, &item.Name, &parentID, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		item.ParentID = nullableString(parentID)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetPage(ctx context.Context, id string) (Page, error) {
	var (
		item     Page
		parentID sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, parent_id, content, search_text, created_at, updated_at
		FROM pages
		WHERE id=$1
	`, id).Scan(&item.ID, &item.Name, &parentID, &item.Content, &item.SearchText, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Page{}, ErrNotFound
	}
	if err != nil {
		return Page{}, fmt.Errorf("get page: %w", err)
	}
	item.ParentID = nullableString(parentID)
	return item, nil
}

// PutPage inserts or fully replaces a page and returns it with its
// timestamps.
func (s *PostgresStore) PutPage(ctx context.Context, page Page) (Page, error) {
	content := page.Content
	if content == "" {
		content = "[]"
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO pages (id, name, parent_id, content, search_text)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name=EXCLUDED.name,
			parent_id=EXCLUDED.parent_id,
			content=EXCLUDED.content,
			search_text=EXCLUDED.search_text,
			updated_at=NOW()
		RETURNING created_at, updated_at
	`, page.ID, page.Name, page.ParentID, content, page.SearchText).Scan(&page.CreatedAt, &page.UpdatedAt)
	if err != nil {
		return Page{}, fmt.Errorf("put page: %w", err)
	}
	page.Content = content
	return page, nil
}

func (s *PostgresStore) InsertMedia(ctx context.Context, m Media) (Media, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO page_media (id, page_id, object_key, file_name, content_type, size_bytes, url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, m.ID, m.PageID, m.ObjectKey, m.FileName, m.ContentType, m.SizeBytes, m.URL).Scan(&m.CreatedAt)
	if err != nil {
		return Media{}, fmt.Errorf("insert media: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) ListMedia(ctx context.Context, pageID string) ([]Media, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, page_id, object_key, file_name, content_type, size_bytes, url, created_at
		FROM page_media
		WHERE page_id=$1
		ORDER BY created_at DESC
	`, pageID)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	items := make([]Media, 0)
	for rows.Next() {
		var m Media
		if err := rows.Scan(&m.ID, &m.PageID, &m.ObjectKey, &m.FileName, &m.ContentType, &m.SizeBytes, &m.URL, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate media: %w", err)
	}
	return items, nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func nullableString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
