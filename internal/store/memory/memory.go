// Package memory provides an in-memory implementation of store.Store.
//
// It backs the test suites and the runnable examples. Listing order is
// lexicographic, which keeps cursor pagination deterministic.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/gillohner/pubky-tools/internal/errs"
	"github.com/gillohner/pubky-tools/internal/store"
)

// Driver is an in-memory implementation of store.Store.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// New returns an empty in-memory store.
func New() *Driver {
	return &Driver{objects: make(map[string][]byte)}
}

// --- store.Store implementation ---

// Ping always succeeds.
func (d *Driver) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op.
func (d *Driver) Close() error {
	return nil
}

// Get returns the bytes stored at key.
func (d *Driver) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindTimeout, "get cancelled", err)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	value, ok := d.objects[key]
	if !ok {
		return nil, errs.Newf(errs.ErrKindNotFound, "no object at %s", key)
	}

	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Put stores value at key.
func (d *Driver) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.ErrKindTimeout, "put cancelled", err)
	}
	if key == "" {
		return errs.New(errs.ErrKindInvalidInput, "empty key")
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.objects[key] = stored
	return nil
}

// Delete removes the object at key. Deleting an absent key is NotFound.
func (d *Driver) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.ErrKindTimeout, "delete cancelled", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.objects[key]; !ok {
		return errs.Newf(errs.ErrKindNotFound, "no object at %s", key)
	}
	delete(d.objects, key)
	return nil
}

// List returns the full keys stored under prefix in lexicographic order.
func (d *Driver) List(ctx context.Context, prefix string, opts store.ListOptions) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindTimeout, "list cancelled", err)
	}

	d.mu.RLock()
	var matched []string
	for key := range d.objects {
		if strings.HasPrefix(key, prefix) {
			matched = append(matched, key)
		}
	}
	d.mu.RUnlock()

	sort.Strings(matched)
	if opts.Reverse {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}

	if opts.Cursor != "" {
		start := 0
		for i, key := range matched {
			if key == opts.Cursor {
				start = i + 1
				break
			}
		}
		matched = matched[start:]
	}

	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}

	return matched, nil
}

// Len returns the number of stored objects. Test helper.
func (d *Driver) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.objects)
}
