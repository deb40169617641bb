package node

import (
	"errors"
	"fmt"
)

// ErrUnimplemented reports an indexing form that is recognized but not
// supported.
var ErrUnimplemented = errors.New("unimplemented")

// Tuple is one multi-dimensional point, such as a row emitted by a join.
type Tuple []any

// At indexes into the node's children. One index selects a child, negative
// values counting from the end. Two indices drill into a tuple child of a
// node with arity above one. Deeper indexing is not supported.
func (n *Node) At(indices ...int) (any, error) {
	switch len(indices) {
	case 0:
		return nil, fmt.Errorf("at %s: no indices", n.id)

	case 1:
		children, err := n.Children()
		if err != nil {
			return nil, fmt.Errorf("at %s: %w", n.id, err)
		}
		i, err := normalize(indices[0], len(children))
		if err != nil {
			return nil, fmt.Errorf("at %s: %w", n.id, err)
		}
		return children[i], nil

	case 2:
		if n.Arity() <= 1 {
			return nil, fmt.Errorf("at %s: two indices need arity above one, have %d", n.id, n.Arity())
		}
		children, err := n.Children()
		if err != nil {
			return nil, fmt.Errorf("at %s: %w", n.id, err)
		}
		i, err := normalize(indices[0], len(children))
		if err != nil {
			return nil, fmt.Errorf("at %s: %w", n.id, err)
		}
		tuple, ok := children[i].(Tuple)
		if !ok {
			return nil, fmt.Errorf("at %s: child %d is %T, not a tuple", n.id, i, children[i])
		}
		j, err := normalize(indices[1], len(tuple))
		if err != nil {
			return nil, fmt.Errorf("at %s: tuple %d: %w", n.id, i, err)
		}
		return tuple[j], nil

	default:
		return nil, fmt.Errorf("at %s: %d indices: %w", n.id, len(indices), ErrUnimplemented)
	}
}

// Slice returns a copy of the half-open child range [start, stop). Both
// bounds must be non-negative; stop is truncated to the child count.
func (n *Node) Slice(start, stop int) ([]any, error) {
	if start < 0 || stop < 0 {
		return nil, fmt.Errorf("slice %s: negative bounds", n.id)
	}
	children, err := n.Children()
	if err != nil {
		return nil, fmt.Errorf("slice %s: %w", n.id, err)
	}
	if stop > len(children) {
		stop = len(children)
	}
	if start > stop {
		start = stop
	}
	return append([]any(nil), children[start:stop]...), nil
}

// normalize resolves a possibly negative index against length n.
func normalize(i, n int) (int, error) {
	orig := i
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return 0, fmt.Errorf("index %d out of range for %d children", orig, n)
	}
	return i, nil
}
