package errclass

import (
	"errors"
	"fmt"
)

// Category tags the kind of an outcome. Categories are compared by identity.
type Category struct {
	name   string
	parent *Category
}

// New creates a category under parent. parent may be nil for a root.
func New(name string, parent *Category) *Category {
	return &Category{name: name, parent: parent}
}

// Name returns the category name.
func (c *Category) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

func (c *Category) String() string {
	return c.Name()
}

// Parent returns the parent category, or nil for a root.
func (c *Category) Parent() *Category {
	if c == nil {
		return nil
	}
	return c.parent
}

// Is reports whether c is target or one of target's descendants.
func (c *Category) Is(target *Category) bool {
	if target == nil {
		return false
	}
	for cur := c; cur != nil; cur = cur.parent {
		if cur == target {
			return true
		}
	}
	return false
}

// Well-known categories.
var (
	// Failure is the category of assertion failures.
	Failure = New("AssertionError", nil)
	// Skip marks tests that asked not to be run.
	Skip = New("SkipTest", nil)
	// Deprecated marks tests of deprecated behavior.
	Deprecated = New("DeprecatedTest", nil)
	// Todo marks tests of unimplemented behavior.
	Todo = New("Todo", nil)
	// Blocked is the root of conditions that keep a test from running.
	Blocked = New("Blocked", nil)
)

// Categorized is implemented by errors that carry a category.
type Categorized interface {
	error
	Category() *Category
}

// Of returns the category carried by err or anything it wraps, or nil.
func Of(err error) *Category {
	var c Categorized
	if errors.As(err, &c) {
		return c.Category()
	}
	return nil
}

type categorizedError struct {
	cat *Category
	err error
}

func (e *categorizedError) Error() string       { return e.err.Error() }
func (e *categorizedError) Unwrap() error       { return e.err }
func (e *categorizedError) Category() *Category { return e.cat }

// Wrap tags err with cat. Wrap returns nil if err is nil.
func Wrap(cat *Category, err error) error {
	if err == nil {
		return nil
	}
	return &categorizedError{cat: cat, err: err}
}

// Errorf formats an error and tags it with cat.
func Errorf(cat *Category, format string, args ...any) error {
	return Wrap(cat, fmt.Errorf(format, args...))
}
