package datagraph

import (
	"fmt"

	"github.com/google/uuid"

	"comb/internal/meta"
)

// Node is the lightweight descriptor held by the graph for every known
// artifact, distinct from the materialized node object. PrincipalParent is
// the single parent determining the artifact's canonical location; Parents
// may carry secondary parents introduced by joins.
type Node struct {
	ID              uuid.UUID
	Kind            meta.Kind
	Raw             meta.RawMetadata
	PrincipalParent uuid.UUID
	Parents         map[uuid.UUID]struct{}
	Children        map[uuid.UUID]struct{}
}

func (n *Node) String() string {
	return fmt.Sprintf("<%s: %s>", n.ID, n.Kind)
}

// init backfills the relation sets so descriptors built as literals are
// safe to mutate.
func (n *Node) init() {
	if n.Parents == nil {
		n.Parents = make(map[uuid.UUID]struct{})
	}
	if n.Children == nil {
		n.Children = make(map[uuid.UUID]struct{})
	}
}
