// Package views holds the per-page read models. Each binding exposes the
// load/data/loading/error contract the pages share: Load is idempotent and
// safe to call again on manual retry, filters run over the last loaded set
// without refetching, and results landing after Close are dropped.
package views

import (
	"context"
	"sync"
)

// binding is the shared state cell under every view. A generation counter
// makes late results from a closed or superseded load a no-op instead of a
// stale write.
type binding[T any] struct {
	mu      sync.Mutex
	data    T
	loaded  bool
	loading bool
	err     error
	gen     uint64
	closed  bool
}

// begin marks the binding loading and returns the generation this load
// belongs to.
func (b *binding[T]) begin() (uint64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, false
	}
	b.loading = true
	b.err = nil
	return b.gen, true
}

// settle applies a load result unless the binding was closed or reloaded
// since begin.
func (b *binding[T]) settle(gen uint64, data T, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || gen != b.gen {
		return
	}
	b.loading = false
	if err != nil {
		b.err = err
		return
	}
	b.data = data
	b.loaded = true
	b.err = nil
}

func (b *binding[T]) snapshot() (T, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data, b.loading, b.err
}

func (b *binding[T]) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.loading = false
	b.gen++
}

// run executes one load cycle against fetch.
func (b *binding[T]) run(ctx context.Context, fetch func(context.Context) (T, error)) error {
	gen, ok := b.begin()
	if !ok {
		return nil
	}
	data, err := fetch(ctx)
	b.settle(gen, data, err)
	return err
}
