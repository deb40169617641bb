package meta

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RootDirName is the metadata tree directory inside a workspace root.
const RootDirName = ".comb"

// MetadataFileName is the per-node record inside a child directory.
const MetadataFileName = "metadata.json"

// childrenDirName groups child records under a node's metadata directory.
const childrenDirName = "children"

// Store reads and writes per-node metadata records at deterministic paths:
// <parentDir>/children/<id>/metadata.json. It has no caching and no partial
// write protection beyond creating directories before writing; a crash
// mid-write leaves a record a re-scan will log and skip.
type Store struct {
	log *zap.Logger
}

// NewStore creates a metadata store. A nil logger disables diagnostics.
func NewStore(log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{log: log}
}

// ChildDir returns the metadata directory of a child under its parent's
// metadata directory.
func ChildDir(parentDir string, id uuid.UUID) string {
	return filepath.Join(parentDir, childrenDirName, id.String())
}

// Read loads the record for one child. Absence surfaces as a wrapped
// fs.ErrNotExist; any other failure (unreadable file, malformed JSON,
// unknown kind, a reserved class identifier) means the record exists but
// cannot be trusted.
func (s *Store) Read(parentDir string, id uuid.UUID) (RawMetadata, error) {
	path := filepath.Join(ChildDir(parentDir, id), MetadataFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		return RawMetadata{}, fmt.Errorf("read metadata %s: %w", path, err)
	}

	var raw RawMetadata
	if err := json.Unmarshal(data, &raw); err != nil {
		return RawMetadata{}, fmt.Errorf("parse metadata %s: %w", path, err)
	}
	if !raw.Kind.Valid() {
		return RawMetadata{}, fmt.Errorf("metadata %s: unknown node kind %q", path, raw.Kind)
	}
	// The zero class identifier belongs to the virtual root, which never has
	// a record of its own. A child record claiming it (or missing the field
	// entirely) is corrupt.
	if raw.ClassID == uuid.Nil {
		return RawMetadata{}, fmt.Errorf("metadata %s: reserved class identifier", path)
	}

	return raw, nil
}

// Write persists the record for one child, creating intermediate
// directories as needed. Field order is fixed by the struct, so writing
// unchanged metadata twice produces byte-identical files.
func (s *Store) Write(parentDir string, id uuid.UUID, raw RawMetadata) error {
	dir := ChildDir(parentDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create metadata dir %s: %w", dir, err)
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode metadata for %s: %w", id, err)
	}

	path := filepath.Join(dir, MetadataFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write metadata %s: %w", path, err)
	}
	return nil
}

// ListChildren scans a node's children directory and returns every readable
// record keyed by identifier. A missing children directory yields an empty
// map. Entries that are not directories, are not named by an identifier, or
// hold unreadable records are logged and skipped, never aborting the
// listing.
func (s *Store) ListChildren(dir string) map[uuid.UUID]RawMetadata {
	out := make(map[uuid.UUID]RawMetadata)

	entries, err := os.ReadDir(filepath.Join(dir, childrenDirName))
	if err != nil {
		return out
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		id, err := uuid.Parse(entry.Name())
		if err != nil {
			s.log.Warn("skipping child with malformed identifier",
				zap.String("path", filepath.Join(dir, childrenDirName, entry.Name())),
				zap.Error(err))
			continue
		}

		raw, err := s.Read(dir, id)
		if err != nil {
			s.log.Warn("skipping child with unreadable metadata",
				zap.String("path", ChildDir(dir, id)),
				zap.Error(err))
			continue
		}

		out[id] = raw
	}

	return out
}
