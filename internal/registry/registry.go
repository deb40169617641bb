package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"comb/internal/meta"
)

var (
	// ErrUnknownType reports a class identifier with no registered class.
	ErrUnknownType = errors.New("unknown node type")

	// ErrInvalidClassID reports a class declaring the reserved all-zero
	// identifier, which belongs to the virtual root.
	ErrInvalidClassID = errors.New("invalid class identifier")
)

// Class is the static table describing one concrete artifact type: a stable
// identifier, the node kind it persists as, its join arity, and the
// functions the core dispatches through instead of subtype methods.
//
// Points is nil for interior types whose children come from the data graph;
// file-like leaves read their point payloads through it. SavePayload is
// optional and writes a node's own payload back to its location.
type Class struct {
	ID    uuid.UUID
	Kind  meta.Kind
	Arity int

	ParseMetadata   func(raw json.RawMessage) (any, error)
	MarshalMetadata func(metadata any) (json.RawMessage, error)
	Locate          func(parentLocation string, metadata any) string
	Points          func(location string, metadata any) ([]any, error)
	SavePayload     func(location string, metadata any, children []any) error
}

// Registry maps class identifiers to their Class tables. It is process-wide
// state with explicit startup registration; Reset rebuilds it from scratch
// for test isolation. The lock is the single-writer protection required if
// construction ever crosses goroutines.
type Registry struct {
	mu      sync.RWMutex
	classes map[uuid.UUID]*Class
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{classes: make(map[uuid.UUID]*Class)}
}

// Register adds a class to the registry. Registration is idempotent and
// last write wins. A nil class is silently ignored: abstract layers of a
// type hierarchy never appear on disk and have no table to register. A
// class carrying the reserved all-zero identifier fails with
// ErrInvalidClassID.
func (r *Registry) Register(c *Class) error {
	if c == nil {
		return nil
	}
	if c.ID == uuid.Nil {
		return fmt.Errorf("%w: the all-zero identifier is reserved for the virtual root", ErrInvalidClassID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.classes[c.ID] = c
	return nil
}

// RegisterAll registers classes in order, stopping at the first failure.
func (r *Registry) RegisterAll(cs ...*Class) error {
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Resolve returns the class registered under id.
func (r *Registry) Resolve(id uuid.UUID) (*Class, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.classes[id]
	if !ok {
		return nil, fmt.Errorf("%w: class %s is not registered", ErrUnknownType, id)
	}
	return c, nil
}

// Reset drops every registered class.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classes = make(map[uuid.UUID]*Class)
}

// Len reports the number of registered classes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.classes)
}
