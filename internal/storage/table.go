package storage

import (
	"errors"
	"sync"
)

var errDuplicateID = errors.New("duplicate id")

// row holds one entity. mu serializes read-modify-write on the entity;
// val is only written while the store's commit gate is held shared.
type row[T any] struct {
	mu  sync.Mutex
	val T
}

type table[T any] struct {
	mu    sync.RWMutex
	rows  map[string]*row[T]
	order []string
	clone func(T) T
}

func newTable[T any](clone func(T) T) *table[T] {
	if clone == nil {
		clone = func(v T) T { return v }
	}
	return &table[T]{rows: make(map[string]*row[T]), clone: clone}
}

func (t *table[T]) row(id string) (*row[T], bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.rows[id]
	return r, ok
}

// add must be called with the commit gate held.
func (t *table[T]) add(id string, v T) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rows[id]; ok {
		return errDuplicateID
	}
	t.rows[id] = &row[T]{val: v}
	t.order = append(t.order, id)
	return nil
}

// values must be called with the commit gate held exclusively. Rows come
// back in insertion order.
func (t *table[T]) values(keep func(T) bool) []T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]T, 0, len(t.order))
	for _, id := range t.order {
		v := t.rows[id].val
		if keep != nil && !keep(v) {
			continue
		}
		out = append(out, t.clone(v))
	}
	return out
}

func (t *table[T]) get(id string, notFound error) (T, error) {
	r, ok := t.row(id)
	if !ok {
		var zero T
		return zero, notFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return t.clone(r.val), nil
}
