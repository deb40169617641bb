// Package bootstrap opens a workspace: it registers artifact classes,
// scans the metadata tree and wires the node factory over the result.
package bootstrap

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"comb/internal/datagraph"
	"comb/internal/meta"
	"comb/internal/node"
	"comb/internal/registry"
)

// Context is one open workspace.
type Context struct {
	Graph    *datagraph.Graph
	Registry *registry.Registry
	Store    *meta.Store
	Factory  *node.Factory
	Log      *zap.Logger
}

// Open scans the metadata tree at rootMetaDir and returns a context with the
// given classes registered. The scan itself cannot fail; a class with an
// invalid identifier can.
func Open(rootMetaDir string, classes []*registry.Class, log *zap.Logger) (*Context, error) {
	if log == nil {
		log = zap.NewNop()
	}

	reg := registry.New()
	if err := reg.RegisterAll(classes...); err != nil {
		return nil, fmt.Errorf("failed to register classes: %w", err)
	}

	store := meta.NewStore(log)
	graph := datagraph.Build(rootMetaDir, store, log)
	factory := node.New(graph, reg, store, log)

	return &Context{
		Graph:    graph,
		Registry: reg,
		Store:    store,
		Factory:  factory,
		Log:      log,
	}, nil
}

// Root returns the workspace's virtual root node.
func (c *Context) Root() *node.Node {
	return c.Factory.Root()
}

// CheckFailure records one artifact that could not be materialized.
type CheckFailure struct {
	ID  uuid.UUID
	Err error
}

// Check materializes every scanned artifact and collects the failures, in
// identifier order. A healthy workspace returns no failures.
func (c *Context) Check() []CheckFailure {
	var failures []CheckFailure
	for _, id := range c.Graph.IDs() {
		if id == uuid.Nil {
			continue
		}
		if _, err := c.Factory.Create(id); err != nil {
			failures = append(failures, CheckFailure{ID: id, Err: err})
		}
	}
	return failures
}
