package producer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/CaravanStudios/opr-core-go/cmn"
	"github.com/CaravanStudios/opr-core-go/core"
	"github.com/CaravanStudios/opr-core-go/producer"
	"github.com/CaravanStudios/opr-core-go/storage"
)

const host = "https://host.example"

type fakeProducer struct {
	org     string
	update  core.OfferSetUpdate
	err     error
	calls   int
	payload []core.ListOffersPayload
}

func (p *fakeProducer) OrgURL() string { return p.org }

func (p *fakeProducer) Produce(_ context.Context, payload core.ListOffersPayload) (core.OfferSetUpdate, error) {
	p.calls++
	p.payload = append(p.payload, payload)
	return p.update, p.err
}

type fakeSink struct {
	calls int
}

func (s *fakeSink) Update(string, core.OfferSetUpdate) error {
	s.calls++
	return nil
}

func openTestStorage(t *testing.T) storage.Storage {
	t.Helper()
	s, err := storage.OpenBuntStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestFirstRoundIsASnapshotRequest(t *testing.T) {
	st := openTestStorage(t)
	clock := cmn.NewFakeClock(1000)
	p := &fakeProducer{org: "producer-1"}
	sink := &fakeSink{}
	l := &producer.Loop{Host: host, Storage: st, Clock: clock, Sink: sink, Producers: []producer.OfferProducer{p}}

	if err := l.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(p.payload) != 1 || p.payload[0].Format != core.ListFormatSnapshot {
		t.Fatalf("got %+v, want one SNAPSHOT request", p.payload)
	}
	if sink.calls != 1 {
		t.Fatalf("got %d UPDATE calls, want 1", sink.calls)
	}
}

func TestSecondRoundIsADiffSinceLastUpdate(t *testing.T) {
	st := openTestStorage(t)
	clock := cmn.NewFakeClock(1000)
	p := &fakeProducer{org: "producer-1"}
	sink := &fakeSink{}
	l := &producer.Loop{Host: host, Storage: st, Clock: clock, Sink: sink, Producers: []producer.OfferProducer{p}}

	if err := l.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	clock.Advance(5000)
	if err := l.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(p.payload) != 2 {
		t.Fatalf("got %d calls, want 2", len(p.payload))
	}
	if p.payload[1].Format != core.ListFormatDiff || p.payload[1].DiffStartTimestampUTC != 1000 {
		t.Fatalf("got %+v, want DIFF since 1000", p.payload[1])
	}
}

func TestNextRunNotYetDueSkipsProducer(t *testing.T) {
	st := openTestStorage(t)
	clock := cmn.NewFakeClock(1000)
	p := &fakeProducer{org: "producer-1", update: core.OfferSetUpdate{}}
	future := int64(50000)
	p.update.EarliestNextRequestUTC = &future
	sink := &fakeSink{}
	l := &producer.Loop{Host: host, Storage: st, Clock: clock, Sink: sink, Producers: []producer.OfferProducer{p}}

	if err := l.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	clock.Advance(1000) // now 2000, still well before nextRunTimestampUTC = 50000
	if err := l.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if p.calls != 1 {
		t.Fatalf("got %d Produce calls, want 1 (second round not due yet)", p.calls)
	}
}

func TestFailedRoundSchedulesBackoffWithoutCallingSink(t *testing.T) {
	st := openTestStorage(t)
	clock := cmn.NewFakeClock(1000)
	p := &fakeProducer{org: "producer-1", err: errors.New("boom")}
	sink := &fakeSink{}
	l := &producer.Loop{Host: host, Storage: st, Clock: clock, Sink: sink, Producers: []producer.OfferProducer{p}, Backoff: producer.FixedBackoff(1000 * time.Millisecond)}

	if err := l.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if sink.calls != 0 {
		t.Fatalf("got %d UPDATE calls after a failed round, want 0", sink.calls)
	}

	var md *core.ProducerMetadata
	if err := st.View(func(tx storage.Txn) error {
		m, _, err := tx.GetOfferProducerMetadata(host, "producer-1")
		md = m
		return err
	}); err != nil {
		t.Fatal(err)
	}
	if md.NextRunTimestampUTC != 2000 {
		t.Fatalf("got nextRun %d, want 2000 (now=1000 + backoff=1000)", md.NextRunTimestampUTC)
	}
}
