package node

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"comb/internal/datagraph"
	"comb/internal/meta"
	"comb/internal/registry"
)

// Factory materializes nodes from graph descriptors. Every node it creates
// stays bound to it, so nodes can resolve their own parents and children.
type Factory struct {
	graph    *datagraph.Graph
	registry *registry.Registry
	store    *meta.Store
	log      *zap.Logger

	root *Node
}

// New returns a factory over graph and reg. A nil store falls back to the
// graph's own store; a nil log discards.
func New(graph *datagraph.Graph, reg *registry.Registry, store *meta.Store, log *zap.Logger) *Factory {
	if log == nil {
		log = zap.NewNop()
	}
	if store == nil {
		store = graph.Store()
	}
	f := &Factory{
		graph:    graph,
		registry: reg,
		store:    store,
		log:      log,
	}
	f.root = &Node{
		id:      uuid.Nil,
		class:   rootClass(graph.RootDataDir()),
		factory: f,
		log:     log,
	}
	return f
}

// Graph returns the data graph the factory materializes from.
func (f *Factory) Graph() *datagraph.Graph { return f.graph }

// Registry returns the class registry consulted on Create.
func (f *Factory) Registry() *registry.Registry { return f.registry }

// Root returns the virtual root node.
func (f *Factory) Root() *Node { return f.root }

// Create materializes the node behind a graph descriptor. Only the zero
// identifier names the virtual root; a record on any other node claiming
// the reserved zero class identifier is corrupt and fails, never aliasing
// the root. Every other class must be registered.
func (f *Factory) Create(id uuid.UUID) (*Node, error) {
	desc, err := f.graph.Lookup(id)
	if err != nil {
		return nil, fmt.Errorf("create node: %w", err)
	}
	if id == uuid.Nil {
		return f.root, nil
	}
	if desc.Raw.ClassID == uuid.Nil {
		return nil, fmt.Errorf("create node %s: reserved class identifier", id)
	}

	class, err := f.registry.Resolve(desc.Raw.ClassID)
	if err != nil {
		return nil, fmt.Errorf("create node %s: %w", id, err)
	}

	var metadata any
	if class.ParseMetadata != nil {
		metadata, err = class.ParseMetadata(desc.Raw.Data)
		if err != nil {
			return nil, fmt.Errorf("create node %s: parse metadata: %w", id, err)
		}
	}

	return &Node{
		id:       id,
		class:    class,
		metadata: metadata,
		factory:  f,
		log:      f.log,
	}, nil
}

// NewDetached builds a typed node that is not (or not yet) present in the
// graph, anchored to parent for location and save resolution. A zero id gets
// a fresh one. The node starts unloaded; wire in-memory children with
// ReplaceChildren before a recursive Save.
func (f *Factory) NewDetached(id uuid.UUID, class *registry.Class, metadata any, parent *Node) *Node {
	if id == uuid.Nil {
		id = uuid.New()
	}
	return &Node{
		id:       id,
		class:    class,
		metadata: metadata,
		parent:   parent,
		factory:  f,
		log:      f.log,
	}
}

// Synthetic builds a loaded node that exists only in memory, owned by the
// same factory as owner and hinted at owner's principal parent. Join results
// are made this way.
func Synthetic(owner *Node, class *registry.Class, metadata any, children []any) *Node {
	parent, err := owner.PrincipalParent()
	if err != nil {
		parent = nil
	}
	n := &Node{
		id:       uuid.New(),
		class:    class,
		metadata: metadata,
		parent:   parent,
		factory:  owner.factory,
		log:      owner.log,
	}
	n.ReplaceChildren(children)
	return n
}

// rootClass describes the virtual root: kind root, located at the
// workspace's data directory, children drawn from the graph.
func rootClass(dataDir string) *registry.Class {
	return &registry.Class{
		ID:    uuid.Nil,
		Kind:  meta.KindRoot,
		Arity: 1,
		Locate: func(string, any) string {
			return dataDir
		},
	}
}
