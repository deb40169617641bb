package node

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"comb/internal/datagraph"
	"comb/internal/meta"
	"comb/internal/registry"
)

// Node is a materialized artifact: typed metadata plus a lazily derived
// child sequence. Interior nodes (root, project, collection) draw children
// from the data graph; leaf classes derive them from their payload. Two
// nodes are the same artifact iff their identifiers match.
type Node struct {
	id       uuid.UUID
	class    *registry.Class
	metadata any

	// parent is the construction-time principal parent hint, consulted only
	// when the graph has no descriptor for this node.
	parent *Node

	children []any
	loaded   bool

	factory *Factory
	log     *zap.Logger
}

func (n *Node) ID() uuid.UUID { return n.id }

func (n *Node) Kind() meta.Kind { return n.class.Kind }

func (n *Node) Arity() int { return n.class.Arity }

func (n *Node) Metadata() any { return n.metadata }

func (n *Node) Class() *registry.Class { return n.class }

func (n *Node) Loaded() bool { return n.loaded }

func (n *Node) String() string {
	return fmt.Sprintf("<%s: %s>", n.id, n.class.Kind)
}

// Equal reports whether other names the same artifact.
func (n *Node) Equal(other *Node) bool {
	return other != nil && n.id == other.id
}

// PrincipalParent resolves the parent that determines this node's canonical
// location. A graph descriptor wins over the construction-time hint; the
// virtual root resolves to itself.
func (n *Node) PrincipalParent() (*Node, error) {
	if desc, err := n.factory.graph.Lookup(n.id); err == nil {
		return n.factory.Create(desc.PrincipalParent)
	}
	if n.parent != nil {
		return n.parent, nil
	}
	return nil, fmt.Errorf("principal parent of %s: %w", n.id, datagraph.ErrNotFound)
}

// Location resolves the artifact's place on disk by walking the principal
// parent chain. The virtual root is its own parent and terminates the walk.
func (n *Node) Location() (string, error) {
	parent, err := n.PrincipalParent()
	if err != nil {
		return "", err
	}
	if parent.id == n.id {
		return n.class.Locate("", n.metadata), nil
	}
	parentLocation, err := parent.Location()
	if err != nil {
		return "", err
	}
	return n.class.Locate(parentLocation, n.metadata), nil
}

// Children returns the node's child sequence. Loaded nodes answer from the
// cache; unloaded nodes derive the sequence anew on every call, so a failed
// derivation can be retried.
func (n *Node) Children() ([]any, error) {
	if n.loaded {
		return n.children, nil
	}
	return n.materialize()
}

// Load derives and caches the child sequence. Idempotent. A failed
// derivation is logged and leaves the node loaded with no children; Unload
// is the only way to retry.
func (n *Node) Load() {
	if n.loaded {
		return
	}
	children, err := n.materialize()
	if err != nil {
		n.log.Warn("load failed, treating artifact as empty",
			zap.String("node", n.id.String()),
			zap.Error(err),
		)
		children = nil
	}
	n.children = children
	n.loaded = true
}

// Unload drops the cached children. Idempotent.
func (n *Node) Unload() {
	n.children = nil
	n.loaded = false
}

// ReplaceChildren installs an in-memory child sequence and marks the node
// loaded. Persistence still requires Save.
func (n *Node) ReplaceChildren(children []any) {
	n.children = children
	n.loaded = true
}

// materialize derives children without touching the cache: payload points
// for leaf classes, graph children (in descriptor order) for the rest.
func (n *Node) materialize() ([]any, error) {
	if n.class.Points != nil {
		location, err := n.Location()
		if err != nil {
			return nil, fmt.Errorf("locate %s: %w", n.id, err)
		}
		points, err := n.class.Points(location, n.metadata)
		if err != nil {
			return nil, fmt.Errorf("read points of %s: %w", n.id, err)
		}
		return points, nil
	}

	descs := n.factory.graph.ChildrenOf(n.id)
	children := make([]any, 0, len(descs))
	for _, desc := range descs {
		child, err := n.factory.Create(desc.ID)
		if err != nil {
			return nil, fmt.Errorf("materialize child of %s: %w", n.id, err)
		}
		children = append(children, child)
	}
	return children, nil
}

// Save persists this node's metadata record and payload. Only the node's own
// payload is written, never a child's. With recursive set, child nodes are
// saved too; payload points are not nodes and are skipped. The virtual root
// has no record of its own and only recurses.
func (n *Node) Save(recursive bool) error {
	if n.id != uuid.Nil {
		if err := n.saveSelf(); err != nil {
			return err
		}
	}
	if !recursive {
		return nil
	}
	children, err := n.Children()
	if err != nil {
		return fmt.Errorf("save %s: %w", n.id, err)
	}
	for _, c := range children {
		child, ok := c.(*Node)
		if !ok {
			continue
		}
		if err := child.Save(true); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) saveSelf() error {
	parent, err := n.PrincipalParent()
	if err != nil {
		return fmt.Errorf("save %s: %w", n.id, err)
	}
	parentMetaDir, err := parent.metaDir()
	if err != nil {
		return fmt.Errorf("save %s: %w", n.id, err)
	}

	raw, err := n.rawMetadata()
	if err != nil {
		return fmt.Errorf("save %s: %w", n.id, err)
	}
	if err := n.factory.store.Write(parentMetaDir, n.id, raw); err != nil {
		return fmt.Errorf("save %s: %w", n.id, err)
	}

	if n.class.SavePayload == nil {
		return nil
	}
	location, err := n.Location()
	if err != nil {
		return fmt.Errorf("save payload of %s: %w", n.id, err)
	}
	if err := os.MkdirAll(filepath.Dir(location), 0o755); err != nil {
		return fmt.Errorf("save payload of %s: %w", n.id, err)
	}
	children, err := n.Children()
	if err != nil {
		return fmt.Errorf("save payload of %s: %w", n.id, err)
	}
	if err := n.class.SavePayload(location, n.metadata, children); err != nil {
		return fmt.Errorf("save payload of %s: %w", n.id, err)
	}
	return nil
}

// metaDir returns the directory holding this node's child metadata records.
func (n *Node) metaDir() (string, error) {
	if n.id == uuid.Nil {
		return n.factory.graph.RootMetaDir(), nil
	}
	parent, err := n.PrincipalParent()
	if err != nil {
		return "", err
	}
	parentMetaDir, err := parent.metaDir()
	if err != nil {
		return "", err
	}
	return meta.ChildDir(parentMetaDir, n.id), nil
}

func (n *Node) rawMetadata() (meta.RawMetadata, error) {
	data := json.RawMessage(`{}`)
	if n.class.MarshalMetadata != nil {
		var err error
		data, err = n.class.MarshalMetadata(n.metadata)
		if err != nil {
			return meta.RawMetadata{}, fmt.Errorf("marshal metadata: %w", err)
		}
	}
	return meta.RawMetadata{
		ClassID: n.class.ID,
		Kind:    n.class.Kind,
		Data:    data,
	}, nil
}
