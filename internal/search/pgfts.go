package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs plainto_tsquery over the serialized item fields, ranked with
// ts_rank and snippeted with ts_headline.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := "to_tsvector('english', i.fields::text) @@ plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2
	if q.FilterItemType != "" {
		where += fmt.Sprintf(" AND it.api_key = $%d", argN)
		args = append(args, q.FilterItemType)
		argN++
	}
	if q.FilterStatus != "" {
		where += fmt.Sprintf(" AND i.status = $%d", argN)
		args = append(args, q.FilterStatus)
		argN++
	}

	ctx := context.Background()

	countSQL := fmt.Sprintf(`
		SELECT count(*)
		FROM items i
		JOIN item_types it ON it.id = i.item_type_id
		WHERE %s`, where)
	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT i.id, i.item_type_id, it.api_key, i.fields, i.status,
			ts_headline('english', i.fields::text, plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet
		FROM items i
		JOIN item_types it ON it.id = i.item_type_id
		WHERE %s
		ORDER BY ts_rank(to_tsvector('english', i.fields::text), plainto_tsquery('english', $1)) DESC
		LIMIT %d OFFSET %d`, where, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var fields []byte
		if err := rows.Scan(&r.ID, &r.ItemTypeID, &r.ItemTypeKey, &fields, &r.Status, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Title = titleFromFields(fields)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// titleFromFields pulls the first non-empty string value out of the raw
// fields object for display.
func titleFromFields(raw []byte) string {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ""
	}
	for _, key := range []string{"title", "name", "label"} {
		if value, ok := fields[key].(string); ok && value != "" {
			return value
		}
	}
	for _, value := range fields {
		if s, ok := value.(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// LoadAllRecords returns every item as an index record for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ItemRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT i.id, i.item_type_id, it.api_key, i.fields, i.status
		FROM items i
		JOIN item_types it ON it.id = i.item_type_id
	`)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	defer rows.Close()

	records := make([]ItemRecord, 0)
	for rows.Next() {
		var record ItemRecord
		var fields []byte
		if err := rows.Scan(&record.ID, &record.ItemTypeID, &record.ItemTypeKey, &fields, &record.Status); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		record.Title = titleFromFields(fields)
		record.Body = string(fields)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return records, nil
}
