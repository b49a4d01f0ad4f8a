// Package storage implements a host-scoped persistence contract: one KV
// namespace per host, offers/corpora, timelines, views,
// acceptances/rejections, and producer metadata, all accessed inside an
// explicit transaction handle.
//
// Grounded on github.com/tidwall/buntdb: an embedded, ACID, index-capable
// KV store whose Update/View closures map directly onto this
// transaction-handle contract, and whose ordered key scan
// (AscendKeys/DescendKeys) gives the sorted lazy-sequence reads
// (getCorpusOffers, getTimelineForOffer) this engine needs without a
// separate B-tree implementation.
/*
 * Copyright (c) 2024, Open Product Recovery contributors.
 */
package storage

import (
	"github.com/CaravanStudios/opr-core-go/cmn/ivl"
	"github.com/CaravanStudios/opr-core-go/core"
	"github.com/CaravanStudios/opr-core-go/reshare"
)

// KV is one key/value pair returned from the free-form per-host store's
// storeValue/getValues/clearAllValues trio.
type KV struct {
	Key   string
	Value []byte
}

// UpdateResult is the tagged outcome of InsertOrUpdateOfferInCorpus:
// whether the global (cross-producer) offer set gained a brand-new offer,
// observed a newer version of one it already had, or saw nothing change.
type UpdateResult string

const (
	UpdateResultAdd    UpdateResult = "ADD"
	UpdateResultUpdate UpdateResult = "UPDATE"
	UpdateResultNone   UpdateResult = "NONE"
)

// ViewOffer is what a viewing org sees of one offer at an instant: the
// snapshot plus the reshare chain (if any) attached to the listing that
// made it visible.
type ViewOffer struct {
	Snapshot     core.OfferSnapshot
	ReshareChain reshare.Chain // empty when the listing carried none
	IsWildcard   bool          // true if visibility came from a "*" listing, not an explicit one
}

// Txn is the transaction handle passed explicitly to every storage call
// within one Update or View closure. A first read of a
// producer's metadata inside a transaction is the engine's advisory lock;
// buntdb's serialized writer (one Update at a time) plus a
// snapshot-isolated reader set gives the same effect without a bespoke
// locking layer.
type Txn interface {
	// StoreValue/GetValues/ClearAllValues back the free-form per-host KV
	// store. GetValues returns entries whose key has keyPrefix, ordered
	// lexicographically by key.
	StoreValue(host, key string, val []byte) error
	GetValues(host, keyPrefix string) (*Cursor[KV], error)
	ClearAllValues(host, keyPrefix string) (int, error)

	// InsertOrUpdateOfferInCorpus records that producerID's corpus now
	// contains snap (reshared via chain, if any), and reports how that
	// changed the cross-producer offer set.
	InsertOrUpdateOfferInCorpus(host, producerID string, snap core.OfferSnapshot, chain reshare.Chain) (UpdateResult, error)
	DeleteOfferInCorpus(host, producerID string, key core.Key) (UpdateResult, error)
	GetOfferFromCorpus(host, producerID string, key core.Key) (*core.CorpusOffer, bool, error)
	GetCorpusOffers(host, producerID string) (*Cursor[core.CorpusOffer], error)

	// GetOffer fetches the snapshot for key. When atUpdateUTC is nil the
	// most recent snapshot is returned.
	GetOffer(host string, key core.Key, atUpdateUTC *int64) (*core.OfferSnapshot, bool, error)
	PutOfferSnapshot(host string, snap core.OfferSnapshot) error
	// GetOfferSources returns the producer ids whose corpus currently
	// holds key, in no particular order.
	GetOfferSources(host string, key core.Key) ([]string, error)

	// GetTimelineForOffer returns key's timeline entries, optionally
	// restricted to an overlap window and/or one target org, sorted by
	// (StartTimeUTC, TargetOrganizationUrl).
	GetTimelineForOffer(host string, key core.Key, window *ivl.Interval, targetOrg string) (*Cursor[core.TimelineEntry], error)
	AddTimelineEntries(host string, entries []core.TimelineEntry) error
	// TruncateFutureTimelineForOffer deletes every non-rejection entry for
	// key that starts at or after tStar, and clips any non-rejection entry
	// spanning tStar down to end at tStar; rejection entries are left as
	// they are. It is step 2 of the recomputation algorithm:
	// the rebuild only ever extends or replaces the future, never the
	// past.
	TruncateFutureTimelineForOffer(host string, key core.Key, tStar int64) error

	// GetOffersAtTime returns every offer visible to viewingOrg at t,
	// skipping the first skip matches and returning at most limit (0 means
	// unbounded), ordered by (PostingOrgUrl, OfferId).
	GetOffersAtTime(host, viewingOrg string, t int64, skip, limit int) (*Cursor[ViewOffer], error)
	GetOfferAtTime(host, viewingOrg string, key core.Key, t int64) (*ViewOffer, bool, error)

	WriteAccept(host string, acc core.Acceptance) error
	WriteReject(host string, rej core.RejectionRecord) error
	// GetHistory returns acceptances viewingOrg may see, at or after
	// sinceUTC if set, skipping skip entries.
	GetHistory(host, viewingOrg string, sinceUTC *int64, skip int) (*Cursor[core.Acceptance], error)

	// WriteOfferProducerMetadata/GetOfferProducerMetadata back the
	// producer loop's per-producer bookkeeping and advisory lock.
	WriteOfferProducerMetadata(host string, md core.ProducerMetadata) error
	GetOfferProducerMetadata(host, producerID string) (*core.ProducerMetadata, bool, error)
	// ListProducerIDs returns every producer id that has ever had metadata
	// recorded for host, in no particular order. Backs the corpus-wide
	// scans the GC and reservation-sweep passes need.
	ListProducerIDs(host string) (*Cursor[string], error)

	// TouchKnownOfferingOrg/ListKnownOfferingOrgs back the
	// KnownOfferingOrg bookkeeping.
	TouchKnownOfferingOrg(host, orgURL string, seenAtUTC int64) error
	ListKnownOfferingOrgs(host string, sinceUTC int64) (*Cursor[core.KnownOfferingOrg], error)

	// DeleteOfferSnapshot removes a snapshot no longer referenced by any
	// corpus offer, timeline entry, or acceptance — the corpus GC pass's
	// unit of work.
	DeleteOfferSnapshot(host string, key core.Key, updateUTC int64) error
}

// Storage is the engine's persistence boundary. Every
// operation runs inside Update (read-write) or View (read-only); buntdb
// enforces at most one in-flight Update per database, which is the
// engine's whole concurrency story for a single process.
type Storage interface {
	Update(fn func(Txn) error) error
	View(fn func(Txn) error) error
	Close() error
}
