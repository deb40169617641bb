package meta

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Kind labels a node in the artifact hierarchy. Root nodes are virtual
// anchors at the top of a workspace; projects, collections and files mirror
// the coarse-to-fine structure of the data on disk.
type Kind string

const (
	KindRoot       Kind = "root"
	KindProject    Kind = "project"
	KindCollection Kind = "collection"
	KindFile       Kind = "file"
)

// ParseKind validates a node kind read from disk.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindRoot, KindProject, KindCollection, KindFile:
		return k, nil
	}
	return "", fmt.Errorf("unknown node kind %q", s)
}

func (k Kind) Valid() bool {
	_, err := ParseKind(string(k))
	return err == nil
}

// RawMetadata is the on-disk record stored per node in metadata.json.
// Data is opaque to the core; each concrete class owns its parse/serialize
// pair for the payload.
type RawMetadata struct {
	ClassID uuid.UUID       `json:"class_uuid"`
	Kind    Kind            `json:"node_type"`
	Data    json.RawMessage `json:"data"`
}

// RootRaw returns the synthetic record carried by the virtual root. The
// all-zero class identifier marks the root and is never registered.
func RootRaw() RawMetadata {
	return RawMetadata{
		ClassID: uuid.Nil,
		Kind:    KindRoot,
		Data:    json.RawMessage(`{}`),
	}
}
