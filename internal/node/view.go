package node

import (
	"errors"
	"fmt"
)

// View renders a node's children into a transient working form and writes
// the form back afterwards. Build materializes the view from the current
// children, Restore converts it back into a child sequence, and OnError, if
// set, observes a failed session together with its view.
type View struct {
	Build   func(children []any) (any, error)
	Restore func(view any) ([]any, error)
	OnError func(view any, err error)
}

// With runs fn against a freshly built view of n. When fn succeeds the
// restored children replace n's in-memory child set; persisting them is
// still the caller's job. When fn fails, OnError sees the view and the
// original error is returned, whatever the hook does.
func (v View) With(n *Node, fn func(view any) error) error {
	if v.Build == nil || v.Restore == nil {
		return errors.New("view: Build and Restore are required")
	}

	children, err := n.Children()
	if err != nil {
		return fmt.Errorf("view of %s: %w", n.id, err)
	}
	view, err := v.Build(children)
	if err != nil {
		return fmt.Errorf("view of %s: build: %w", n.id, err)
	}

	if err := fn(view); err != nil {
		v.fail(view, err)
		return err
	}

	restored, err := v.Restore(view)
	if err != nil {
		return fmt.Errorf("view of %s: restore: %w", n.id, err)
	}
	n.ReplaceChildren(restored)
	return nil
}

// fail invokes OnError, swallowing hook panics so the session error wins.
func (v View) fail(view any, err error) {
	if v.OnError == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	v.OnError(view, err)
}
