package model

import (
	"github.com/CaravanStudios/opr-core-go/cmn"
	"github.com/CaravanStudios/opr-core-go/core"
	"github.com/CaravanStudios/opr-core-go/storage"
)

// Reject implements REJECT(rejectingOrg, offerId,
// offeredByUrl?): resolve the entry visible to rejectingOrg (defaulting
// offeredByUrl to the local host when absent only to shape the lookup
// key; rejections are recorded against the offer's actual posting org),
// write a non-expiring rejection entry, then recompute the timeline so
// listings that had targeted the rejector shrink out of the schedule.
func (m *OfferModel) Reject(payload core.RejectOfferPayload) error {
	now := m.now()
	var changes []core.OfferChange

	err := m.Storage.Update(func(tx storage.Txn) error {
		offeredBy := payload.OfferedByUrl
		if offeredBy == "" {
			offeredBy = m.Host
		}
		key, ok := core.ParseKey(payload.OfferID)
		if !ok {
			key = core.Key{PostingOrgUrl: offeredBy, OfferID: payload.OfferID}
		}

		vo, found, err := tx.GetOfferAtTime(m.Host, payload.RejectingOrg, key, now)
		if err != nil {
			return err
		}
		if !found {
			return cmn.NewError(cmn.CodeNoAvailOffer, nil, map[string]interface{}{"offerId": payload.OfferID})
		}
		offer := vo.Snapshot.Offer
		key = core.Key{PostingOrgUrl: vo.Snapshot.PostingOrgUrl, OfferID: vo.Snapshot.OfferID}

		rej := core.RejectionRecord{
			HostOrgUrl:    m.Host,
			RejectingOrg:  payload.RejectingOrg,
			OfferID:       key.OfferID,
			PostingOrgUrl: key.PostingOrgUrl,
			RejectedAtUTC: now,
		}
		if err := tx.WriteReject(m.Host, rej); err != nil {
			return err
		}

		snap, ok, err := tx.GetOffer(m.Host, key, nil)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := m.recomputeTimeline(tx, snap, now); err != nil {
			return err
		}

		changes = append(changes, core.OfferChange{Type: core.ChangeRemoteReject, TimestampUTC: now, OldValue: &offer, NewValue: &offer})
		return nil
	})
	if err != nil {
		m.Metrics.observe("REJECT", "error")
		return err
	}
	m.Metrics.observe("REJECT", "ok")
	m.fire(changes)
	return nil
}
