package pullback

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"comb/internal/node"
	"comb/internal/registry"
)

// Mapper projects a join key out of one operand child. Keys must be
// comparable values.
type Mapper func(child any) (any, error)

// Predicate decides whether a pair of operand children belongs to the join.
type Predicate func(aChild, bChild any) (bool, error)

// Engine computes pullbacks: inner joins over the children of two operand
// nodes. The engine holds no state between calls; a failing mapper or
// predicate costs only the children it touched.
type Engine struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{log: log}
}

// Join matches children of a and b that project to the same key, one result
// row per matching pair, in operand order (a outer, b inner). Children whose
// mapper fails, panics, or yields an uncomparable key are skipped with a
// logged diagnostic.
func (e *Engine) Join(a, b *node.Node, mapA, mapB Mapper) (*node.Node, error) {
	if a == nil || b == nil {
		return nil, errors.New("join: two operand nodes required")
	}
	if mapA == nil || mapB == nil {
		return nil, errors.New("join: two key mappers required")
	}

	aChildren := operandChildren(a)
	bChildren := operandChildren(b)

	index := make(map[any][]any, len(bChildren))
	for _, c := range bChildren {
		key, ok := e.applyMapper(mapB, c, "b")
		if !ok {
			continue
		}
		index[key] = append(index[key], c)
	}

	rows := make([]any, 0)
	for _, ac := range aChildren {
		key, ok := e.applyMapper(mapA, ac, "a")
		if !ok {
			continue
		}
		for _, bc := range index[key] {
			rows = append(rows, splice(ac, a.Arity(), bc, b.Arity()))
		}
	}

	return e.result(a, b, rows), nil
}

// JoinWhere matches every (a-child, b-child) pair the predicate accepts.
// Pairs whose predicate fails or panics are skipped with a logged
// diagnostic.
func (e *Engine) JoinWhere(a, b *node.Node, pred Predicate) (*node.Node, error) {
	if a == nil || b == nil {
		return nil, errors.New("join: two operand nodes required")
	}
	if pred == nil {
		return nil, errors.New("join: predicate required")
	}

	aChildren := operandChildren(a)
	bChildren := operandChildren(b)

	rows := make([]any, 0)
	for _, ac := range aChildren {
		for _, bc := range bChildren {
			match, ok := e.applyPredicate(pred, ac, bc)
			if !ok || !match {
				continue
			}
			rows = append(rows, splice(ac, a.Arity(), bc, b.Arity()))
		}
	}

	return e.result(a, b, rows), nil
}

// result wraps the matched rows in a synthetic table node: a's kind, summed
// arity, operand metadata kept as provenance. The node lives only in memory
// until its owner decides to save it.
func (e *Engine) result(a, b *node.Node, rows []any) *node.Node {
	class := &registry.Class{
		ID:    uuid.New(),
		Kind:  a.Kind(),
		Arity: a.Arity() + b.Arity(),
	}
	table := node.Synthetic(a, class, node.Tuple{a.Metadata(), b.Metadata()}, rows)
	e.log.Debug("pullback computed",
		zap.String("a", a.ID().String()),
		zap.String("b", b.ID().String()),
		zap.Int("rows", len(rows)),
		zap.Int("arity", class.Arity),
	)
	return table
}

// operandChildren loads the operand and returns its children; a node whose
// load failed joins as empty.
func operandChildren(n *node.Node) []any {
	n.Load()
	children, err := n.Children()
	if err != nil {
		return nil
	}
	return children
}

// applyMapper runs the mapper, converting errors, panics and uncomparable
// keys into a skip.
func (e *Engine) applyMapper(m Mapper, child any, operand string) (key any, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("join mapper panicked, skipping child",
				zap.String("operand", operand),
				zap.Any("panic", r),
			)
			ok = false
		}
	}()

	key, err := m(child)
	if err != nil {
		e.log.Warn("join mapper failed, skipping child",
			zap.String("operand", operand),
			zap.Error(err),
		)
		return nil, false
	}
	if t := reflect.TypeOf(key); t != nil && !t.Comparable() {
		e.log.Warn("join key is not comparable, skipping child",
			zap.String("operand", operand),
			zap.String("type", fmt.Sprintf("%T", key)),
		)
		return nil, false
	}
	return key, true
}

// applyPredicate runs the predicate, converting errors and panics into a
// skip.
func (e *Engine) applyPredicate(p Predicate, aChild, bChild any) (match bool, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("join predicate panicked, skipping pair", zap.Any("panic", r))
			match, ok = false, false
		}
	}()

	match, err := p(aChild, bChild)
	if err != nil {
		e.log.Warn("join predicate failed, skipping pair", zap.Error(err))
		return false, false
	}
	return match, true
}

// splice concatenates two matched children into one flat row. A child of a
// multi-dimensional operand contributes its slots, a one-dimensional child
// contributes itself, so chained joins stay flat.
func splice(aChild any, aArity int, bChild any, bArity int) node.Tuple {
	row := make(node.Tuple, 0, aArity+bArity)
	row = append(row, slots(aChild, aArity)...)
	return append(row, slots(bChild, bArity)...)
}

func slots(child any, arity int) node.Tuple {
	if arity > 1 {
		if t, ok := child.(node.Tuple); ok {
			return t
		}
	}
	return node.Tuple{child}
}
