package bus_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/CaravanStudios/opr-core-go/bus"
	"github.com/CaravanStudios/opr-core-go/core"
)

func TestFireInvokesAllHandlers(t *testing.T) {
	b := bus.New()
	var mu sync.Mutex
	var seen []core.ChangeType

	b.RegisterChangeHandler(func(c core.OfferChange) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, c.Type)
		return nil
	})
	b.RegisterChangeHandler(func(c core.OfferChange) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, c.Type)
		return nil
	})

	b.Fire(core.OfferChange{Type: core.ChangeAdd})

	if len(seen) != 2 {
		t.Fatalf("got %d invocations, want 2", len(seen))
	}
}

func TestRemoveStopsDelivery(t *testing.T) {
	b := bus.New()
	calls := 0
	h := b.RegisterChangeHandler(func(core.OfferChange) error {
		calls++
		return nil
	})
	h.Remove()
	b.Fire(core.OfferChange{Type: core.ChangeAdd})
	if calls != 0 {
		t.Fatalf("got %d calls after Remove, want 0", calls)
	}
}

func TestFireToleratesHandlerError(t *testing.T) {
	b := bus.New()
	second := false
	b.RegisterChangeHandler(func(core.OfferChange) error {
		return errors.New("boom")
	})
	b.RegisterChangeHandler(func(core.OfferChange) error {
		second = true
		return nil
	})
	b.Fire(core.OfferChange{Type: core.ChangeAdd})
	if !second {
		t.Fatal("a failing handler must not stop fan-out to the next one")
	}
}

func TestConcurrentFireDeliversToAll(t *testing.T) {
	b := bus.New()
	b.SetConcurrency(4)
	var mu sync.Mutex
	count := 0
	for i := 0; i < 10; i++ {
		b.RegisterChangeHandler(func(core.OfferChange) error {
			mu.Lock()
			count++
			mu.Unlock()
			return nil
		})
	}
	b.Fire(core.OfferChange{Type: core.ChangeUpdate})
	if count != 10 {
		t.Fatalf("got %d, want 10", count)
	}
}
