package tracer

import "errors"

// ErrCellAlreadySet is returned by a second Cell.Set.
var ErrCellAlreadySet = errors.New("result cell already set")

// Cell is a write-once slot used to hand a value out of a VM run. It is
// owned by the caller of the run and read after the run returned.
type Cell[T any] struct {
	value T
	set   bool
}

// Set stores v. Only the first call succeeds.
func (c *Cell[T]) Set(v T) error {
	if c.set {
		return ErrCellAlreadySet
	}
	c.value, c.set = v, true
	return nil
}

// Get returns the stored value and whether Set was called.
func (c *Cell[T]) Get() (T, bool) {
	return c.value, c.set
}
