package model

import (
	"reflect"

	"github.com/CaravanStudios/opr-core-go/cmn"
	"github.com/CaravanStudios/opr-core-go/cmn/nlog"
	"github.com/CaravanStudios/opr-core-go/core"
	"github.com/CaravanStudios/opr-core-go/patch"
	"github.com/CaravanStudios/opr-core-go/reshare"
	"github.com/CaravanStudios/opr-core-go/storage"
)

// Update implements UPDATE(producerId, update): materialize
// the prior corpus, build the new one from a snapshot or a delta, drop
// offers that fail validation or chain verification, write the surviving
// corpus rows, recompute affected timelines, and fire ADD/UPDATE/DELETE
// change events.
func (m *OfferModel) Update(producerID string, update core.OfferSetUpdate) error {
	now := m.now()
	var changes []core.OfferChange

	err := m.Storage.Update(func(tx storage.Txn) error {
		if err := m.ensureProducerMetadata(tx, producerID, now); err != nil {
			return err
		}

		oldMap, err := m.loadCorpusOffers(tx, producerID)
		if err != nil {
			return err
		}

		var newMap map[core.Key]core.Offer
		if update.IsDelta() {
			newMap, err = patch.ApplyOfferPatchesAsMap(oldMap, update.Delta)
			if err != nil {
				return cmn.Wrap(cmn.CodeBadUpdateSet, err, "apply producer delta")
			}
		} else {
			newMap = patch.ToOfferSet(update.Offers)
		}

		sourceOrg := update.SourceOrgUrl
		if sourceOrg == "" {
			sourceOrg = producerID
		}
		accepted := m.filterBadOffers(newMap, sourceOrg)

		touched := map[core.Key]bool{}

		for key, offer := range accepted {
			old, existed := oldMap[key]
			if existed && reflect.DeepEqual(old, offer) {
				continue
			}
			snap := core.OfferSnapshot{
				PostingOrgUrl: key.PostingOrgUrl,
				OfferID:       key.OfferID,
				LastUpdateUTC: offer.OfferUpdateUTC,
				Offer:         offer,
				ExpirationUTC: offer.OfferExpirationUTC,
			}
			result, err := tx.InsertOrUpdateOfferInCorpus(m.Host, producerID, snap, offer.ReshareChain)
			if err != nil {
				return err
			}
			touched[key] = true
			if err := tx.TouchKnownOfferingOrg(m.Host, offer.OfferedBy, now); err != nil {
				return err
			}
			if result == storage.UpdateResultNone {
				continue
			}
			ct := core.ChangeAdd
			var oldPtr *core.Offer
			if result == storage.UpdateResultUpdate {
				ct = core.ChangeUpdate
				o := old
				oldPtr = &o
			}
			newOffer := offer
			changes = append(changes, core.OfferChange{Type: ct, TimestampUTC: now, OldValue: oldPtr, NewValue: &newOffer})
		}

		for key, old := range oldMap {
			if _, stillPresent := accepted[key]; stillPresent {
				continue
			}
			result, err := tx.DeleteOfferInCorpus(m.Host, producerID, key)
			if err != nil {
				return err
			}
			touched[key] = true
			if result == storage.UpdateResultUpdate {
				o := old
				changes = append(changes, core.OfferChange{Type: core.ChangeDelete, TimestampUTC: now, OldValue: &o})
			}
		}

		for key := range touched {
			snap, ok, err := tx.GetOffer(m.Host, key, nil)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := m.recomputeTimeline(tx, snap, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		m.Metrics.observe("UPDATE", "error")
		return err
	}
	m.Metrics.observe("UPDATE", "ok")
	m.fire(changes)
	return nil
}

// ensureProducerMetadata guarantees producerID has a metadata row before
// Update touches its corpus, so corpus-wide scans (GC, the reservation
// sweep) that enumerate producers via Storage.ListProducerIDs see every
// producer Update has ever been called for, even one driven directly
// rather than through the producer loop.
func (m *OfferModel) ensureProducerMetadata(tx storage.Txn, producerID string, now int64) error {
	_, found, err := tx.GetOfferProducerMetadata(m.Host, producerID)
	if err != nil {
		return err
	}
	if found {
		return nil
	}
	return tx.WriteOfferProducerMetadata(m.Host, core.ProducerMetadata{
		OrganizationUrl:     producerID,
		NextRunTimestampUTC: now,
		LastUpdateTimeUTC:   &now,
	})
}

func (m *OfferModel) loadCorpusOffers(tx storage.Txn, producerID string) (map[core.Key]core.Offer, error) {
	cursor, err := tx.GetCorpusOffers(m.Host, producerID)
	if err != nil {
		return nil, err
	}
	rows := cursor.Collect()
	out := make(map[core.Key]core.Offer, len(rows))
	for _, co := range rows {
		updateUTC := co.SnapshotUTC
		snap, ok, err := tx.GetOffer(m.Host, co.SnapshotKey, &updateUTC)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out[co.SnapshotKey] = snap.Offer
	}
	return out, nil
}

// filterBadOffers drops offers that fail the
// timestamp invariant, fail schema validation, or can't be attributed to
// sourceOrg (directly, or via a reshare chain rooted at offeredBy whose
// final subject is this host and whose initial entitlements name the
// offer). The chain requirement applies whenever offeredBy != sourceOrg:
// it proves the offer was legitimately delegated all the way down to this
// host, regardless of how many producer hops relayed it and regardless of
// the final link's scope (RESHARE vs ACCEPT is enforced later, per
// candidate, by timeline recomputation — not here).
func (m *OfferModel) filterBadOffers(in map[core.Key]core.Offer, sourceOrg string) map[core.Key]core.Offer {
	out := make(map[core.Key]core.Offer, len(in))
	for key, offer := range in {
		if !offer.Valid() {
			nlog.Warningf("model: dropping offer %s: invalid timestamps", key)
			continue
		}
		if m.Validator != nil {
			if err := m.Validator.Validate(offer.Payload); err != nil {
				nlog.Warningf("model: dropping offer %s: schema validation failed: %v", key, err)
				continue
			}
		}
		if offer.OfferedBy != sourceOrg {
			if len(offer.ReshareChain) == 0 {
				nlog.Warningf("model: dropping offer %s: offeredBy %q != source %q, no reshare chain", key, offer.OfferedBy, sourceOrg)
				continue
			}
			if _, err := m.Verifier.VerifyChain(offer.ReshareChain, reshare.VerifyOptions{
				InitialIssuer:       offer.OfferedBy,
				InitialEntitlements: []string{offer.ID},
				FinalSubject:        m.Host,
			}); err != nil {
				nlog.Warningf("model: dropping offer %s: reshare chain verification failed: %v", key, err)
				continue
			}
		}
		out[key] = offer
	}
	return out
}
