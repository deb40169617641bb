package artifact

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	_ "github.com/mattn/go-sqlite3"

	"comb/internal/meta"
	"comb/internal/registry"
)

// TableMeta names the SQLite database file and the table holding the
// points.
type TableMeta struct {
	Filename string `json:"filename"`
	Table    string `json:"table"`
}

// TableRow is one row of a table file.
type TableRow struct {
	Key   string
	Value int64
}

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// TableFile reads the rows of one SQLite table as points, in rowid order.
// The class is read-only: no payload writes.
func TableFile() *registry.Class {
	return &registry.Class{
		ID:              TableFileID,
		Kind:            meta.KindFile,
		Arity:           1,
		ParseMetadata:   parseJSON[TableMeta],
		MarshalMetadata: marshalJSON,
		Locate: func(parentLocation string, metadata any) string {
			return filepath.Join(parentLocation, metadata.(TableMeta).Filename)
		},
		Points: readTableRows,
	}
}

func readTableRows(location string, metadata any) ([]any, error) {
	m := metadata.(TableMeta)
	if !tableNamePattern.MatchString(m.Table) {
		return nil, fmt.Errorf("invalid table name %q", m.Table)
	}
	// The driver would create an empty database on open.
	if _, err := os.Stat(location); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", location)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", location, err)
	}
	defer db.Close()

	rows, err := db.Query(fmt.Sprintf("SELECT key, value FROM %s ORDER BY rowid", m.Table))
	if err != nil {
		return nil, fmt.Errorf("failed to query table %s: %w", m.Table, err)
	}
	defer rows.Close()

	var points []any
	for rows.Next() {
		var r TableRow
		if err := rows.Scan(&r.Key, &r.Value); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		points = append(points, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read table %s: %w", m.Table, err)
	}
	return points, nil
}
