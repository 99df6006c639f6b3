package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/codebased/codebased/internal/object"
)

// GetObjectsByIDs hydrates full Objects for ids, in the order SQLite
// returns them (callers that need result order to match ids should
// re-sort). Unknown ids are silently omitted.
func GetObjectsByIDs(ctx context.Context, tx *sql.Tx, ids []int64) (map[int64]object.Object, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT id, path, name, language, kind,
			byte_start, byte_end,
			start_row, start_column, end_row, end_column,
			context_before, context_after
		FROM object WHERE id IN (%s)
	`, placeholderList(len(ids)))

	rows, err := tx.QueryContext(ctx, query, int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("store: get objects: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]object.Object, len(ids))
	for rows.Next() {
		var (
			id                                   int64
			path, name, language, kind           string
			byteStart, byteEnd                   int
			startRow, startCol, endRow, endCol    int
			contextBefore, contextAfter           string
		)
		if err := rows.Scan(&id, &path, &name, &language, &kind,
			&byteStart, &byteEnd, &startRow, &startCol, &endRow, &endCol,
			&contextBefore, &contextAfter); err != nil {
			return nil, fmt.Errorf("store: scan object: %w", err)
		}
		out[id] = object.Object{
			ID:       id,
			Path:     path,
			Name:     name,
			Language: language,
			Kind:     object.Kind(kind),
			ByteRange: object.ByteRange{
				Start: byteStart,
				End:   byteEnd,
			},
			Coords: object.Coordinates{
				Start: object.Point{Row: startRow, Column: startCol},
				End:   object.Point{Row: endRow, Column: endCol},
			},
			ContextBefore: decodeRows(contextBefore),
			ContextAfter:  decodeRows(contextAfter),
		}
	}
	return out, rows.Err()
}
