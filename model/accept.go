package model

import (
	"github.com/CaravanStudios/opr-core-go/cmn"
	"github.com/CaravanStudios/opr-core-go/core"
	"github.com/CaravanStudios/opr-core-go/storage"
)

// Accept implements ACCEPT(offerId, acceptingOrg,
// ifNotNewerThanTimestampUTC?, decodedReshareChain?): resolve the entry
// currently visible to acceptingOrg, guard against a stale caller view,
// write the Acceptance (and its history-viewer relation, implicit in
// core.Acceptance.Viewers), truncate the offer's live timeline, and fire
// an ACCEPT change event.
func (m *OfferModel) Accept(payload core.AcceptOfferPayload) (*core.Offer, error) {
	now := m.now()
	var accepted *core.Offer
	var changes []core.OfferChange

	err := m.Storage.Update(func(tx storage.Txn) error {
		key, ok := core.ParseKey(payload.OfferID)
		if !ok {
			key = core.Key{OfferID: payload.OfferID}
		}

		vo, found, err := tx.GetOfferAtTime(m.Host, payload.AcceptingOrg, key, now)
		if err != nil {
			return err
		}
		if !found {
			return cmn.NewError(cmn.CodeNoAvailOffer, nil, map[string]interface{}{"offerId": payload.OfferID})
		}

		if payload.IfNotNewerThanTimestampUTC != nil && vo.Snapshot.LastUpdateUTC > *payload.IfNotNewerThanTimestampUTC {
			offer := vo.Snapshot.Offer
			return cmn.NewError(cmn.CodeOfferChanged, nil, map[string]interface{}{
				"offerId":       payload.OfferID,
				"lastUpdateUTC": vo.Snapshot.LastUpdateUTC,
				"currentOffer":  offer,
			})
		}

		acc := core.Acceptance{
			HostOrgUrl:          m.Host,
			PostingOrgUrl:       key.PostingOrgUrl,
			OfferID:             key.OfferID,
			SnapshotUTC:         vo.Snapshot.LastUpdateUTC,
			AcceptedBy:          payload.AcceptingOrg,
			AcceptedAtUTC:       now,
			DecodedReshareChain: payload.DecodedReshareChain,
		}
		if err := tx.WriteAccept(m.Host, acc); err != nil {
			return err
		}

		if err := tx.TruncateFutureTimelineForOffer(m.Host, key, now); err != nil {
			return err
		}

		offer := vo.Snapshot.Offer
		accepted = &offer
		changes = append(changes, core.OfferChange{Type: core.ChangeAccept, TimestampUTC: now, OldValue: &offer, NewValue: &offer})
		return nil
	})
	if err != nil {
		m.Metrics.observe("ACCEPT", "error")
		return nil, err
	}
	m.Metrics.observe("ACCEPT", "ok")
	m.fire(changes)
	return accepted, nil
}
