package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"comb/internal/meta"
	"comb/internal/node"
	"comb/internal/registry"
)

// ArrayRow is one point of an array file: three integers.
type ArrayRow struct {
	First  int
	Second int
	Third  int
}

// Array is the in-memory array form of an array file, standing in for a
// value owned by code outside this module. It is what the view adapter
// hands to callers.
type Array struct {
	rows []ArrayRow
}

func NewArray(rows []ArrayRow) *Array {
	return &Array{rows: append([]ArrayRow(nil), rows...)}
}

// Rows returns a copy of the array contents.
func (a *Array) Rows() []ArrayRow {
	return append([]ArrayRow(nil), a.rows...)
}

func (a *Array) Len() int {
	return len(a.rows)
}

func (a *Array) Append(rows ...ArrayRow) {
	a.rows = append(a.rows, rows...)
}

// Set replaces the row at index i.
func (a *Array) Set(i int, row ArrayRow) error {
	if i < 0 || i >= len(a.rows) {
		return fmt.Errorf("array index %d out of range for %d rows", i, len(a.rows))
	}
	a.rows[i] = row
	return nil
}

// ArrayCollectionMeta describes a folder of array files.
type ArrayCollectionMeta struct {
	FolderName  string `json:"folder_name"`
	Title       string `json:"title"`
	Description string `json:"description"`
	CreatedBy   string `json:"created_by"`
}

// ArrayFile reads header-less CSV rows of three integers. Extra columns are
// ignored; payload writes are metadata-only, the array form is the mutation
// surface.
func ArrayFile() *registry.Class {
	return &registry.Class{
		ID:              ArrayFileID,
		Kind:            meta.KindFile,
		Arity:           1,
		ParseMetadata:   parseJSON[FileMeta],
		MarshalMetadata: marshalJSON,
		Locate: func(parentLocation string, metadata any) string {
			return filepath.Join(parentLocation, metadata.(FileMeta).Filename)
		},
		Points: readArrayRows,
	}
}

// ArrayFileCollection groups array files under one folder.
func ArrayFileCollection() *registry.Class {
	return &registry.Class{
		ID:              ArrayFileCollectionID,
		Kind:            meta.KindCollection,
		Arity:           1,
		ParseMetadata:   parseJSON[ArrayCollectionMeta],
		MarshalMetadata: marshalJSON,
		Locate: func(parentLocation string, metadata any) string {
			return filepath.Join(parentLocation, metadata.(ArrayCollectionMeta).FolderName)
		},
	}
}

// ArrayView adapts an array file node to its Array form: the view is built
// from the row points and written back over the children when the session
// succeeds.
func ArrayView() node.View {
	return node.View{
		Build: func(children []any) (any, error) {
			rows := make([]ArrayRow, 0, len(children))
			for _, c := range children {
				row, ok := c.(ArrayRow)
				if !ok {
					return nil, fmt.Errorf("cannot render %T as an array row", c)
				}
				rows = append(rows, row)
			}
			return NewArray(rows), nil
		},
		Restore: func(view any) ([]any, error) {
			arr, ok := view.(*Array)
			if !ok {
				return nil, fmt.Errorf("cannot restore %T as an array", view)
			}
			rows := arr.Rows()
			children := make([]any, len(rows))
			for i, row := range rows {
				children[i] = row
			}
			return children, nil
		},
	}
}

func readArrayRows(location string, _ any) ([]any, error) {
	b, err := os.ReadFile(location)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(string(b), "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	points := make([]any, 0, len(lines))
	for i, line := range lines {
		parts := strings.Split(line, ",")
		if len(parts) < 3 {
			return nil, fmt.Errorf("%s: row %d: want three integers, got %q", location, i, line)
		}
		row := ArrayRow{}
		for j, dst := range []*int{&row.First, &row.Second, &row.Third} {
			v, err := strconv.Atoi(strings.TrimSpace(parts[j]))
			if err != nil {
				return nil, fmt.Errorf("%s: row %d: %w", location, i, err)
			}
			*dst = v
		}
		points = append(points, row)
	}
	return points, nil
}
