package store

import (
	"context"
	"database/sql"
	"fmt"
)

// FTSMatch is one row returned by a full-text search, ranked by
// SQLite's fts5 `rank` column (more negative is a better match; ORDER
// BY rank ascending therefore yields the best matches first).
type FTSMatch struct {
	ObjectID int64
	Rank     float64
}

// SearchFTS runs matchQuery (an fts5 MATCH expression, already quoted
// and optionally column-qualified by the caller) against the fts
// table, returning up to limit matches ordered by rank.
func SearchFTS(ctx context.Context, tx *sql.Tx, matchQuery string, limit int) ([]FTSMatch, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT rowid, rank FROM fts WHERE fts MATCH ? ORDER BY rank LIMIT ?`, matchQuery, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: search fts: %w", err)
	}
	defer rows.Close()

	var out []FTSMatch
	for rows.Next() {
		var m FTSMatch
		if err := rows.Scan(&m.ObjectID, &m.Rank); err != nil {
			return nil, fmt.Errorf("store: scan fts match: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
