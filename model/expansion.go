package model

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/CaravanStudios/opr-core-go/cmn/nlog"
	"github.com/CaravanStudios/opr-core-go/core"
	"github.com/CaravanStudios/opr-core-go/storage"
	"github.com/CaravanStudios/opr-core-go/storage/archive"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// KnownOfferingOrgs lists organizations observed as offer posters (via
// Update) since sinceUTC, supporting org discovery across the federation.
func (m *OfferModel) KnownOfferingOrgs(sinceUTC int64) ([]core.KnownOfferingOrg, error) {
	var out []core.KnownOfferingOrg
	err := m.Storage.View(func(tx storage.Txn) error {
		cursor, err := tx.ListKnownOfferingOrgs(m.Host, sinceUTC)
		if err != nil {
			return err
		}
		out = cursor.Collect()
		return nil
	})
	if err != nil {
		m.Metrics.observe("KNOWN_OFFERING_ORGS", "error")
		return nil, err
	}
	m.Metrics.observe("KNOWN_OFFERING_ORGS", "ok")
	return out, nil
}

// SweepExpiredReservations handles a live reservation that nothing else
// has touched but still expires at its own endTimeUTC. Finds every offer
// with a reservation
// entry whose end has passed and re-triggers timeline recomputation so a
// fresh listing reopens, without waiting for the next UPDATE/ACCEPT/
// RESERVE/REJECT call to touch that offer.
func (m *OfferModel) SweepExpiredReservations(nowUTC int64) (int, error) {
	swept := 0
	err := m.Storage.Update(func(tx storage.Txn) error {
		keys, err := m.expiredReservationKeys(tx, nowUTC)
		if err != nil {
			return err
		}
		for _, key := range keys {
			snap, ok, err := tx.GetOffer(m.Host, key, nil)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := m.recomputeTimeline(tx, snap, nowUTC); err != nil {
				return err
			}
			swept++
		}
		return nil
	})
	if err != nil {
		m.Metrics.observe("SWEEP_RESERVATIONS", "error")
		return swept, err
	}
	m.Metrics.observe("SWEEP_RESERVATIONS", "ok")
	return swept, nil
}

// expiredReservationKeys scans every corpus-held offer for a reservation
// timeline entry whose EndTimeUTC has passed. It walks corpus offers
// rather than timelines directly since Storage only exposes
// GetTimelineForOffer keyed by one offer at a time.
func (m *OfferModel) expiredReservationKeys(tx storage.Txn, nowUTC int64) ([]core.Key, error) {
	seen := map[core.Key]bool{}
	var out []core.Key
	sources, err := m.corpusProducerIDs(tx)
	if err != nil {
		return nil, err
	}
	for _, producerID := range sources {
		cursor, err := tx.GetCorpusOffers(m.Host, producerID)
		if err != nil {
			return nil, err
		}
		for _, co := range cursor.Collect() {
			key := co.SnapshotKey
			if seen[key] {
				continue
			}
			seen[key] = true
			entries, err := tx.GetTimelineForOffer(m.Host, key, nil, "")
			if err != nil {
				return nil, err
			}
			for _, e := range entries.Collect() {
				if e.IsReservation && e.EndTimeUTC <= nowUTC {
					out = append(out, key)
					break
				}
			}
		}
	}
	return out, nil
}

// corpusProducerIDs lists every producer id this host has ever recorded
// metadata for — the Storage contract's closest thing to "list every
// producer with a corpus" without a dedicated index.
func (m *OfferModel) corpusProducerIDs(tx storage.Txn) ([]string, error) {
	cursor, err := tx.ListProducerIDs(m.Host)
	if err != nil {
		return nil, err
	}
	return cursor.Collect(), nil
}

// archiveKey names the cold-storage object a GC'd snapshot is exported
// to: stable and human-inspectable, not meant to be parsed back.
func (m *OfferModel) archiveKey(key core.Key, updateUTC int64) string {
	return fmt.Sprintf("%s/%s/%s/%d", m.Host, key.PostingOrgUrl, key.OfferID, updateUTC)
}

// archiveSnapshot exports snap to m.Archiver (if configured) before GC
// deletes it locally: marshaled, lz4-compressed, and named by
// archiveKey. A nil Archiver or an export failure never blocks the local
// delete — cold-storage retention is best-effort, not a correctness
// dependency of the offer engine itself.
func (m *OfferModel) archiveSnapshot(ctx context.Context, snap *core.OfferSnapshot) {
	if m.Archiver == nil {
		return
	}
	b, err := json.Marshal(snap)
	if err != nil {
		nlog.Warningf("model: GC: marshal snapshot %s for archive: %v", snap.Key(), err)
		return
	}
	compressed, err := archive.Compress(b)
	if err != nil {
		nlog.Warningf("model: GC: compress snapshot %s for archive: %v", snap.Key(), err)
		return
	}
	if err := m.Archiver.Put(ctx, m.archiveKey(snap.Key(), snap.LastUpdateUTC), compressed); err != nil {
		nlog.Warningf("model: GC: archive snapshot %s: %v", snap.Key(), err)
	}
}

// GC deletes OfferSnapshot rows no longer referenced by any corpus offer,
// timeline entry (live or past), or acceptance. Only keys still held by at
// least one corpus are inspected, so the snapshots of an offer withdrawn
// from every corpus are never evaluated. Storage exposes no call to
// enumerate every snapshot version for a key, only a
// point read of the current one, so this pass only ever evaluates (and
// potentially deletes) the current snapshot version; older superseded
// versions are already unreachable once a newer corpus offer row replaces
// them and are accepted as a bounded, harmless leak rather than grown
// into a schema-widening change.
func (m *OfferModel) GC(ctx context.Context, nowUTC int64) (int, error) {
	deleted := 0
	err := m.Storage.Update(func(tx storage.Txn) error {
		sources, err := m.corpusProducerIDs(tx)
		if err != nil {
			return err
		}
		referenced := map[core.Key]map[int64]bool{}
		mark := func(key core.Key, updateUTC int64) {
			if referenced[key] == nil {
				referenced[key] = map[int64]bool{}
			}
			referenced[key][updateUTC] = true
		}

		keysSeen := map[core.Key]bool{}
		for _, producerID := range sources {
			cursor, err := tx.GetCorpusOffers(m.Host, producerID)
			if err != nil {
				return err
			}
			for _, co := range cursor.Collect() {
				keysSeen[co.SnapshotKey] = true
				mark(co.SnapshotKey, co.SnapshotUTC)
			}
		}

		// GetHistory(host, host, ...) returns every acceptance for this
		// host: core.Acceptance.Viewers always includes HostOrgUrl, so
		// viewing history as the host itself is the full table, scanned
		// once here rather than once per key below.
		history, err := tx.GetHistory(m.Host, m.Host, nil, 0)
		if err != nil {
			return err
		}
		for _, acc := range history.Collect() {
			accKey := core.Key{PostingOrgUrl: acc.PostingOrgUrl, OfferID: acc.OfferID}
			mark(accKey, acc.SnapshotUTC)
		}

		for key := range keysSeen {
			entries, err := tx.GetTimelineForOffer(m.Host, key, nil, "")
			if err != nil {
				return err
			}
			for _, e := range entries.Collect() {
				mark(key, e.SnapshotUTC)
			}
			snap, ok, err := tx.GetOffer(m.Host, key, nil)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if referenced[key] != nil && !referenced[key][snap.LastUpdateUTC] {
				m.archiveSnapshot(ctx, snap)
				if err := tx.DeleteOfferSnapshot(m.Host, key, snap.LastUpdateUTC); err != nil {
					return err
				}
				deleted++
			}
		}
		return nil
	})
	if err != nil {
		m.Metrics.observe("GC", "error")
		return deleted, err
	}
	m.Metrics.observe("GC", "ok")
	return deleted, nil
}
