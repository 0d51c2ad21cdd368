package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search matches pages.fts with plainto_tsquery, ranks with ts_rank and
// builds snippets with ts_headline.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	const tsQuery = "plainto_tsquery('simple', $1)"
	where := "p.fts @@ " + tsQuery
	args := []any{q.Text}
	if q.FilterParentID != "" {
		where += " AND p.parent_id = $2"
		args = append(args, q.FilterParentID)
	}

	var total int
	if err := p.db.QueryRowContext(ctx, "SELECT count(*) FROM pages p WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT p.id, p.name,
			ts_headline('simple', p.search_text, %s, 'StartSel=<mark>,StopSel=</mark>,MaxFragments=1,MaxWords=30') AS snippet,
			coalesce(p.parent_id, '')
		FROM pages p
		WHERE %s
		ORDER BY ts_rank(p.fts, %s) DESC, p.name
		LIMIT %d OFFSET %d`, tsQuery, where, tsQuery, q.limit(), q.offset()), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Name, &r.Snippet, &r.ParentID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every page as an index record for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]PageRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, search_text, coalesce(parent_id, '')
		FROM pages
	`)
	if err != nil {
		return nil, fmt.Errorf("load pages: %w", err)
	}
	defer rows.Close()

	records := make([]PageRecord, 0)
	for rows.Next() {
		var r PageRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.Text, &r.ParentID); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return records, nil
}
