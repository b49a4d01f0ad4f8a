// Package bus implements an in-process change bus: register a handler,
// get back a handle with an explicit remove, fire invokes every registered
// handler — sequentially by default, or concurrently up to a configured
// bound.
//
// Registration returns a live handle with its own lifecycle rather than an
// index the caller must track itself, backed here by a small map registry.
// Libraries: golang.org/x/sync/errgroup for the bounded concurrent fan-out
// path.
/*
 * Copyright (c) 2024, Open Product Recovery contributors.
 */
package bus

import (
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/CaravanStudios/opr-core-go/cmn/nlog"
	"github.com/CaravanStudios/opr-core-go/core"
)

// ChangeHandler observes one OfferChange. A returned error is logged, not
// propagated: handler errors never abort fan-out to the remaining
// handlers.
type ChangeHandler func(core.OfferChange) error

// Handle is returned by RegisterChangeHandler; Remove unregisters it.
// Safe to call more than once.
type Handle struct {
	remove func()
}

func (h *Handle) Remove() {
	if h != nil && h.remove != nil {
		h.remove()
	}
}

// ChangeBus fans out OfferChange events to every registered handler.
// Concurrency is zero (sequential) unless set via SetConcurrency.
type ChangeBus struct {
	mu          sync.Mutex
	nextID      int
	handlers    map[int]ChangeHandler
	concurrency int
}

func New() *ChangeBus {
	return &ChangeBus{handlers: map[int]ChangeHandler{}}
}

// SetConcurrency bounds how many handlers Fire runs at once. n <= 1 means
// strictly sequential.
func (b *ChangeBus) SetConcurrency(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.concurrency = n
}

func (b *ChangeBus) RegisterChangeHandler(fn ChangeHandler) *Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = fn
	return &Handle{remove: func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, id)
	}}
}

// Fire invokes every currently-registered handler with change.
func (b *ChangeBus) Fire(change core.OfferChange) {
	b.mu.Lock()
	handlers := make([]ChangeHandler, 0, len(b.handlers))
	for _, fn := range b.handlers {
		handlers = append(handlers, fn)
	}
	concurrency := b.concurrency
	b.mu.Unlock()

	if concurrency <= 1 {
		for _, fn := range handlers {
			if err := fn(change); err != nil {
				nlog.Errorf("bus: change handler failed: %v", err)
			}
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(concurrency)
	for _, fn := range handlers {
		fn := fn
		g.Go(func() error {
			if err := fn(change); err != nil {
				nlog.Errorf("bus: change handler failed: %v", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}
