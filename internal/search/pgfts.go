package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// PgFTS implements search over the PostgreSQL tsvector columns. It is the
// fallback when Meilisearch is missing or unhealthy.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs a UNION ALL over boards and tasks using plainto_tsquery, ranked
// by ts_rank with ts_headline snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" || len(q.BoardIDs) == 0 {
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

	scope, err := json.Marshal(q.BoardIDs)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal board scope: %w", err)
	}

	const tsQuery = "plainto_tsquery('english', $1)"
	var subQueries []string
	if q.FilterType == "" || q.FilterType == ResultBoard {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'board'::text AS type, b.id, b.title,
				ts_headline('english', coalesce(b.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				b.id AS board_id, ''::text AS list_id,
				ts_rank(b.fts, %s) AS rank
			FROM boards b
			WHERE b.fts @@ %s
			  AND b.id IN (SELECT value FROM jsonb_array_elements_text($2::jsonb) AS s(value))`,
			tsQuery, tsQuery, tsQuery))
	}
	if q.FilterType == "" || q.FilterType == ResultTask {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'task'::text AS type, t.id, t.title,
				ts_headline('english', coalesce(t.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				t.board_id, t.list_id,
				ts_rank(t.fts, %s) AS rank
			FROM tasks t
			WHERE t.fts @@ %s
			  AND t.board_id IN (SELECT value FROM jsonb_array_elements_text($2::jsonb) AS s(value))`,
			tsQuery, tsQuery, tsQuery))
	}
	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	union := strings.Join(subQueries, "\nUNION ALL\n")
	query := fmt.Sprintf(`
		SELECT type, id, title, snippet, board_id, list_id, COUNT(*) OVER() AS total
		FROM (%s) hits
		ORDER BY rank DESC
		LIMIT $3 OFFSET $4
	`, union)

	rows, err := p.db.QueryContext(context.Background(), query, q.Text, scope, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("pg search: %w", err)
	}
	defer rows.Close()

	var results []Result
	total := 0
	for rows.Next() {
		var item Result
		if err := rows.Scan(&item.Type, &item.ID, &item.Title, &item.Snippet, &item.BoardID, &item.ListID, &total); err != nil {
			return nil, 0, fmt.Errorf("scan search hit: %w", err)
		}
		results = append(results, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate search hits: %w", err)
	}
	return results, total, nil
}

// LoadAllRecords reads every board and task for a Meilisearch reindex.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]BoardRecord, []TaskRecord, error) {
	boardRows, err := p.db.QueryContext(ctx, `SELECT id, title, description FROM boards`)
	if err != nil {
		return nil, nil, fmt.Errorf("load boards for reindex: %w", err)
	}
	defer boardRows.Close()

	var boards []BoardRecord
	for boardRows.Next() {
		var b BoardRecord
		if err := boardRows.Scan(&b.ID, &b.Title, &b.Description); err != nil {
			return nil, nil, fmt.Errorf("scan board for reindex: %w", err)
		}
		boards = append(boards, b)
	}
	if err := boardRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate boards for reindex: %w", err)
	}

	taskRows, err := p.db.QueryContext(ctx, `SELECT id, title, description, board_id, list_id, priority FROM tasks`)
	if err != nil {
		return nil, nil, fmt.Errorf("load tasks for reindex: %w", err)
	}
	defer taskRows.Close()

	var tasks []TaskRecord
	for taskRows.Next() {
		var t TaskRecord
		if err := taskRows.Scan(&t.ID, &t.Title, &t.Description, &t.BoardID, &t.ListID, &t.Priority); err != nil {
			return nil, nil, fmt.Errorf("scan task for reindex: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := taskRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate tasks for reindex: %w", err)
	}

	return boards, tasks, nil
}
