package producer

import (
	"context"
	"sort"
	"sync"

	"github.com/OneOfOne/xxhash"
	"github.com/google/uuid"
	cuckoo "github.com/seiflotfy/cuckoofilter"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sync/errgroup"

	"github.com/CaravanStudios/opr-core-go/cmn"
	"github.com/CaravanStudios/opr-core-go/cmn/nlog"
	"github.com/CaravanStudios/opr-core-go/core"
	"github.com/CaravanStudios/opr-core-go/storage"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Loop drives one poll round across every registered producer. Each
// producer's round is independent of the others; Concurrency bounds how
// many run at once (0 or 1 means strictly sequential, one producer at a
// time; a bound above 1 shortens wall-clock time for a round with many
// slow, independent remote producers — the per-producer metadata
// read/write still goes through one storage.Storage.Update call each, so
// buntdb's single-writer serialization is what actually protects the
// advisory lock, not the loop's own scheduling).
type Loop struct {
	Host        string
	Storage     storage.Storage
	Clock       cmn.Clock
	Sink        UpdateSink
	Producers   []OfferProducer
	Backoff     BackoffPolicy
	Concurrency int

	// lastPayloadHash short-circuits a round whose producer returns
	// byte-identical raw content to the last round: if the xxhash of the
	// marshaled OfferSetUpdate matches, UPDATE is skipped entirely (it
	// would be a no-op diff anyway). Keyed by producer org URL; guarded by
	// hashMu since independent producers' rounds may run concurrently
	// (Concurrency > 1).
	hashMu          sync.Mutex
	lastPayloadHash map[string]uint64
}

func (l *Loop) backoff() BackoffPolicy {
	if l.Backoff != nil {
		return l.Backoff
	}
	if d := cmn.GCO.Get().DefaultProducerBackoff; d > 0 {
		return FixedBackoff(d)
	}
	return DefaultBackoff
}

// Run executes one round over every producer.
func (l *Loop) Run(ctx context.Context) error {
	concurrency := l.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, p := range l.Producers {
		p := p
		g.Go(func() error {
			l.runOne(ctx, p)
			return nil // a single producer's failure never aborts the round
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if sweeper, ok := l.Sink.(ReservationSweeper); ok {
		if n, err := sweeper.SweepExpiredReservations(l.Clock.NowUTCMs()); err != nil {
			nlog.Warningf("producer: reservation sweep failed: %v", err)
		} else if n > 0 {
			nlog.Infof("producer: reservation sweep recomputed %d offer(s)", n)
		}
	}
	return nil
}

func (l *Loop) runOne(ctx context.Context, p OfferProducer) {
	now := l.Clock.NowUTCMs()
	producerID := p.OrgURL()
	roundID := uuid.NewString()

	var md core.ProducerMetadata
	var proceed, fresh bool
	err := l.Storage.Update(func(tx storage.Txn) error {
		existing, found, err := tx.GetOfferProducerMetadata(l.Host, producerID)
		if err != nil {
			return err
		}
		if !found {
			md = core.ProducerMetadata{OrganizationUrl: producerID, NextRunTimestampUTC: now, LastUpdateTimeUTC: &now}
			proceed = true
			fresh = true
			return tx.WriteOfferProducerMetadata(l.Host, md)
		}
		md = *existing
		if md.NextRunTimestampUTC > now {
			proceed = false
			return tx.WriteOfferProducerMetadata(l.Host, md)
		}
		proceed = true
		return nil
	})
	if err != nil {
		// Metadata row locked/contended by another in-flight round: treated
		// as "already running" and skipped.
		nlog.Warningf("producer: %s round %s metadata read failed, skipping round: %v", producerID, roundID, err)
		return
	}
	if !proceed {
		return
	}

	payload := core.ListOffersPayload{Format: core.ListFormatSnapshot}
	if md.LastUpdateTimeUTC != nil && !fresh {
		payload = core.ListOffersPayload{Format: core.ListFormatDiff, DiffStartTimestampUTC: *md.LastUpdateTimeUTC}
	}

	update, err := p.Produce(ctx, payload)
	if err != nil {
		nlog.Errorf("producer: %s round %s failed: %v", producerID, roundID, err)
		next := now + l.backoff().Backoff(producerID).Milliseconds()
		_ = l.Storage.Update(func(tx storage.Txn) error {
			md.NextRunTimestampUTC = next
			return tx.WriteOfferProducerMetadata(l.Host, md)
		})
		return
	}

	if l.shortCircuitUnchanged(producerID, update) {
		nlog.Infof("producer: %s round %s unchanged since last poll, skipping UPDATE", producerID, roundID)
	} else {
		dedupeOffers(producerID, update.Offers)
		if err := l.Sink.Update(producerID, update); err != nil {
			nlog.Errorf("producer: %s round %s UPDATE failed: %v", producerID, roundID, err)
			next := now + l.backoff().Backoff(producerID).Milliseconds()
			_ = l.Storage.Update(func(tx storage.Txn) error {
				md.NextRunTimestampUTC = next
				return tx.WriteOfferProducerMetadata(l.Host, md)
			})
			return
		}
	}

	next := now
	if update.EarliestNextRequestUTC != nil {
		next = *update.EarliestNextRequestUTC
	}
	_ = l.Storage.Update(func(tx storage.Txn) error {
		lastUpdate := now
		md.LastUpdateTimeUTC = &lastUpdate
		md.NextRunTimestampUTC = next
		return tx.WriteOfferProducerMetadata(l.Host, md)
	})
}

// shortCircuitUnchanged reports whether update's marshaled bytes match the
// previous round's for producerID, and records the new hash either way.
func (l *Loop) shortCircuitUnchanged(producerID string, update core.OfferSetUpdate) bool {
	b, err := json.Marshal(update)
	if err != nil {
		return false
	}
	h := xxhash.Checksum64(b)
	l.hashMu.Lock()
	defer l.hashMu.Unlock()
	if l.lastPayloadHash == nil {
		l.lastPayloadHash = map[string]uint64{}
	}
	prev, ok := l.lastPayloadHash[producerID]
	l.lastPayloadHash[producerID] = h
	return ok && prev == h
}

// dedupeOffers logs (and, via the cuckoo filter, detects) duplicate offer
// ids arriving in a single producer round — a defensive check ahead of
// toOfferSet's own last-wins map semantics, since a producer returning
// the same id twice usually indicates a bug worth surfacing rather than
// silently overwriting.
func dedupeOffers(producerID string, offers []core.Offer) {
	if len(offers) < 2 {
		return
	}
	filter := cuckoo.NewFilter(uint(nextPow2(len(offers) * 2)))
	var dupes []string
	for _, o := range offers {
		key := []byte(o.Key().String())
		if !filter.InsertUnique(key) {
			dupes = append(dupes, o.Key().String())
		}
	}
	if len(dupes) > 0 {
		sort.Strings(dupes)
		nlog.Warningf("producer: %s returned %d duplicate offer id(s) in one round: %v", producerID, len(dupes), dupes)
	}
}

func nextPow2(n int) int {
	if n < 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
