// Package producer implements the per-producer polling loop:
// advisory-locked metadata read, DIFF-or-SNAPSHOT request, UPDATE on
// success, backoff on failure.
//
// Grounded on an xaction-factory-style Start/Run lifecycle: attempt to
// "start" (here, acquire the producer-metadata row), run one ingestion
// pass, finish into a backoff state. Libraries:
// github.com/seiflotfy/cuckoofilter for intra-batch offer de-duplication,
// github.com/OneOfOne/xxhash to short-circuit a round whose raw payload
// is byte-identical to the last one seen, golang.org/x/sync/errgroup for
// bounded concurrent fan-out across producers.
/*
 * Copyright (c) 2024, Open Product Recovery contributors.
 */
package producer

import (
	"context"

	"github.com/CaravanStudios/opr-core-go/core"
)

// OfferProducer is one remote or local source of offers. OrgURL
// identifies it for metadata bookkeeping;
// Produce is invoked once per poll with the request the loop built from
// the producer's last-known state.
type OfferProducer interface {
	OrgURL() string
	Produce(ctx context.Context, payload core.ListOffersPayload) (core.OfferSetUpdate, error)
}

// UpdateSink is the narrow slice of model.OfferModel the loop needs: just
// enough to keep this package from importing the whole orchestrator
// surface (and to make the loop trivially testable with a fake).
type UpdateSink interface {
	Update(producerID string, update core.OfferSetUpdate) error
}

// ReservationSweeper is an optional reservation-expiry sweep a Loop
// invokes once per round, after every producer's own pass, so a live
// reservation that nothing else touched still expires on schedule. A
// Sink that doesn't implement it simply isn't swept.
type ReservationSweeper interface {
	SweepExpiredReservations(nowUTC int64) (int, error)
}
