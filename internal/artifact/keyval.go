package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"comb/internal/meta"
	"comb/internal/registry"
)

// Pair is one key/value point of a CSV file.
type Pair struct {
	Key   string
	Value any
}

// FileMeta names the payload file relative to the parent location.
type FileMeta struct {
	Filename string `json:"filename"`
}

// CollectionMeta describes a folder of files of one value type.
type CollectionMeta struct {
	FolderName  string    `json:"folder_name"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	CreatedBy   string    `json:"created_by"`
	Type        string    `json:"collection_type,omitempty"`
}

// ProjectMeta names a key/value project.
type ProjectMeta struct {
	Name string `json:"project_name"`
}

// KeyIntFile holds key,int rows.
func KeyIntFile() *registry.Class {
	return pairFileClass(KeyIntFileID, func(s string) (any, error) {
		return strconv.Atoi(s)
	})
}

// KeyStrFile holds key,string rows.
func KeyStrFile() *registry.Class {
	return pairFileClass(KeyStrFileID, func(s string) (any, error) {
		return s, nil
	})
}

// KeyBoolFile holds key,bool rows; any casing of "true" is true, everything
// else is false.
func KeyBoolFile() *registry.Class {
	return pairFileClass(KeyBoolFileID, func(s string) (any, error) {
		return strings.EqualFold(s, "true"), nil
	})
}

// KeyIntCollection groups int files under one folder.
func KeyIntCollection() *registry.Class {
	return pairCollectionClass(KeyIntCollectionID, "int collection")
}

// KeyStrCollection groups string files under one folder.
func KeyStrCollection() *registry.Class {
	return pairCollectionClass(KeyStrCollectionID, "str collection")
}

// KeyBoolCollection groups bool files under one folder.
func KeyBoolCollection() *registry.Class {
	return pairCollectionClass(KeyBoolCollectionID, "bool collection")
}

// KeyValProject is the project over the key/value collections. It lives at
// its parent's location.
func KeyValProject() *registry.Class {
	return &registry.Class{
		ID:              KeyValProjectID,
		Kind:            meta.KindProject,
		Arity:           1,
		ParseMetadata:   parseJSON[ProjectMeta],
		MarshalMetadata: marshalJSON,
		Locate: func(parentLocation string, _ any) string {
			return parentLocation
		},
	}
}

func pairFileClass(id uuid.UUID, cast func(string) (any, error)) *registry.Class {
	return &registry.Class{
		ID:              id,
		Kind:            meta.KindFile,
		Arity:           1,
		ParseMetadata:   parseJSON[FileMeta],
		MarshalMetadata: marshalJSON,
		Locate: func(parentLocation string, metadata any) string {
			return filepath.Join(parentLocation, metadata.(FileMeta).Filename)
		},
		Points: func(location string, _ any) ([]any, error) {
			return readPairs(location, cast)
		},
		SavePayload: func(location string, _ any, children []any) error {
			return writePairs(location, children)
		},
	}
}

func pairCollectionClass(id uuid.UUID, label string) *registry.Class {
	return &registry.Class{
		ID:            id,
		Kind:          meta.KindCollection,
		Arity:         1,
		ParseMetadata: parseJSON[CollectionMeta],
		MarshalMetadata: func(metadata any) (json.RawMessage, error) {
			m := metadata.(CollectionMeta)
			m.Type = label
			return json.Marshal(m)
		},
		Locate: func(parentLocation string, metadata any) string {
			return filepath.Join(parentLocation, metadata.(CollectionMeta).FolderName)
		},
	}
}

// readPairs parses a pair file: one header line, then key,value rows.
func readPairs(location string, cast func(string) (any, error)) ([]any, error) {
	b, err := os.ReadFile(location)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(string(b), "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%s: missing header line", location)
	}

	points := make([]any, 0, len(lines)-1)
	for i, line := range lines[1:] {
		parts := strings.Split(line, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("%s: row %d: want key,value, got %q", location, i+1, line)
		}
		value, err := cast(parts[1])
		if err != nil {
			return nil, fmt.Errorf("%s: row %d: %w", location, i+1, err)
		}
		points = append(points, Pair{Key: parts[0], Value: value})
	}
	return points, nil
}

// writePairs writes the header line and one row per pair.
func writePairs(location string, children []any) error {
	var sb strings.Builder
	sb.WriteString("key,value\n")
	for _, c := range children {
		pair, ok := c.(Pair)
		if !ok {
			return fmt.Errorf("%s: cannot serialise %T as a pair", location, c)
		}
		fmt.Fprintf(&sb, "%s,%v\n", pair.Key, pair.Value)
	}
	return os.WriteFile(location, []byte(sb.String()), 0o644)
}
