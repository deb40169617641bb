package datagraph

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"comb/internal/meta"
)

var (
	// ErrNotFound reports a lookup for an identifier the graph has never seen.
	ErrNotFound = errors.New("node not in data graph")

	// ErrCycle reports a principal parent reassignment that would make a node
	// its own ancestor.
	ErrCycle = errors.New("principal parent cycle")
)

// Graph is the in-memory picture of one workspace: every descriptor found by
// scanning the metadata tree under the root metadata directory, keyed by
// identifier. The zero identifier is reserved for the virtual root.
type Graph struct {
	nodes       map[uuid.UUID]*Node
	rootMetaDir string
	store       *meta.Store
	log         *zap.Logger
}

// Build scans the metadata tree rooted at rootMetaDir and returns the graph.
// Unreadable records are logged and skipped together with their subtrees, so
// Build always succeeds even on a damaged workspace.
func Build(rootMetaDir string, store *meta.Store, log *zap.Logger) *Graph {
	if log == nil {
		log = zap.NewNop()
	}
	if store == nil {
		store = meta.NewStore(log)
	}
	g := &Graph{
		nodes:       make(map[uuid.UUID]*Node),
		rootMetaDir: rootMetaDir,
		store:       store,
		log:         log,
	}

	root := &Node{
		ID:              uuid.Nil,
		Kind:            meta.KindRoot,
		Raw:             meta.RootRaw(),
		PrincipalParent: uuid.Nil,
	}
	root.init()
	g.nodes[root.ID] = root

	g.scan(root, rootMetaDir)
	g.log.Debug("data graph built", zap.Int("nodes", len(g.nodes)))
	return g
}

// scan descends one level of the metadata tree under parentDir and recurses
// into every child that produced a readable record.
func (g *Graph) scan(parent *Node, parentDir string) {
	records := g.store.ListChildren(parentDir)

	ids := make([]uuid.UUID, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})

	for _, id := range ids {
		raw := records[id]
		child := &Node{
			ID:              id,
			Kind:            raw.Kind,
			Raw:             raw,
			PrincipalParent: parent.ID,
		}
		child.init()
		child.Parents[parent.ID] = struct{}{}

		g.nodes[id] = child
		parent.Children[id] = struct{}{}

		g.scan(child, meta.ChildDir(parentDir, id))
	}
}

// Root returns the virtual root descriptor.
func (g *Graph) Root() *Node {
	return g.nodes[uuid.Nil]
}

// RootMetaDir returns the directory holding the top-level metadata records.
func (g *Graph) RootMetaDir() string {
	return g.rootMetaDir
}

// RootDataDir returns the directory that artifact locations resolve against.
// It is the parent of the root metadata directory.
func (g *Graph) RootDataDir() string {
	return filepath.Dir(g.rootMetaDir)
}

// Store returns the metadata store the graph was built with.
func (g *Graph) Store() *meta.Store {
	return g.store
}

// Len returns the number of descriptors, virtual root included.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Contains reports whether id names a known descriptor.
func (g *Graph) Contains(id uuid.UUID) bool {
	_, ok := g.nodes[id]
	return ok
}

// Lookup returns the descriptor for id or ErrNotFound.
func (g *Graph) Lookup(id uuid.UUID) (*Node, error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("lookup %s: %w", id, ErrNotFound)
	}
	return n, nil
}

// IDs returns every known identifier in stable order.
func (g *Graph) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
	return ids
}

// ChildrenOf returns the descriptors recorded as children of id, in stable
// order. Identifiers with no surviving descriptor are silently dropped.
func (g *Graph) ChildrenOf(id uuid.UUID) []*Node {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(n.Children))
	for cid := range n.Children {
		if _, ok := g.nodes[cid]; ok {
			ids = append(ids, cid)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})

	children := make([]*Node, len(ids))
	for i, cid := range ids {
		children[i] = g.nodes[cid]
	}
	return children
}

// Insert records a descriptor and links it under its principal parent. An
// existing descriptor with the same identifier is kept unless overwrite is
// set.
func (g *Graph) Insert(n *Node, overwrite bool) {
	if n == nil {
		return
	}
	if _, ok := g.nodes[n.ID]; ok && !overwrite {
		return
	}
	n.init()
	n.Parents[n.PrincipalParent] = struct{}{}
	g.nodes[n.ID] = n
	if parent, ok := g.nodes[n.PrincipalParent]; ok && parent.ID != n.ID {
		parent.Children[n.ID] = struct{}{}
	}
}

// ReassignPrincipalParent moves the node named by id under a new principal
// parent, registering the parent first if the graph has not seen it. The
// request is rejected with ErrCycle before any state changes if the new
// parent is a descendant of the node. Reassigning to the current parent is a
// no-op.
func (g *Graph) ReassignPrincipalParent(id uuid.UUID, parent *Node) error {
	if parent == nil {
		return fmt.Errorf("reassign %s: nil parent", id)
	}
	n, err := g.Lookup(id)
	if err != nil {
		return fmt.Errorf("reassign: %w", err)
	}
	if n.PrincipalParent == parent.ID {
		return nil
	}
	if g.wouldCycle(parent, id) {
		return fmt.Errorf("reassign %s under %s: %w", id, parent.ID, ErrCycle)
	}

	delete(n.Parents, n.PrincipalParent)
	if old, ok := g.nodes[n.PrincipalParent]; ok {
		delete(old.Children, id)
	}

	if !g.Contains(parent.ID) {
		g.Insert(parent, false)
	}
	n.PrincipalParent = parent.ID
	n.Parents[parent.ID] = struct{}{}
	g.nodes[parent.ID].Children[id] = struct{}{}

	g.log.Debug("principal parent reassigned",
		zap.String("node", id.String()),
		zap.String("parent", parent.ID.String()),
	)
	return nil
}

// wouldCycle walks the principal parent chain upward from parent and reports
// whether it reaches child. When the graph already holds a descriptor for the
// parent's identifier, the recorded chain is walked, not the caller's copy.
func (g *Graph) wouldCycle(parent *Node, child uuid.UUID) bool {
	seen := make(map[uuid.UUID]struct{})
	cur := parent
	if known, ok := g.nodes[parent.ID]; ok {
		cur = known
	}
	for {
		if cur.ID == child {
			return true
		}
		if _, ok := seen[cur.ID]; ok {
			return false
		}
		seen[cur.ID] = struct{}{}
		if cur.PrincipalParent == cur.ID {
			return false
		}
		next, ok := g.nodes[cur.PrincipalParent]
		if !ok {
			return false
		}
		cur = next
	}
}
