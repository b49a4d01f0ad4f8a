package model

import (
	"github.com/CaravanStudios/opr-core-go/cmn"
	"github.com/CaravanStudios/opr-core-go/cmn/cos"
	"github.com/CaravanStudios/opr-core-go/core"
	"github.com/CaravanStudios/opr-core-go/storage"
)

// Reserve implements RESERVE(offerId, requestedReservationSecs,
// orgUrl): resolve the entry as ACCEPT does, cap the reservation length by
// the listing's remaining window, the offer's own maxReservationTimeSecs,
// and the caller's request, write a reservation timeline entry over
// [now, now+length), then recompute the offer's timeline so every other
// org's listing yields to it.
func (m *OfferModel) Reserve(payload core.ReserveOfferPayload) (reservationExpirationUTC int64, err error) {
	now := m.now()
	var changes []core.OfferChange

	err = m.Storage.Update(func(tx storage.Txn) error {
		key, ok := core.ParseKey(payload.OfferID)
		if !ok {
			key = core.Key{OfferID: payload.OfferID}
		}

		vo, found, err := tx.GetOfferAtTime(m.Host, payload.OrgUrl, key, now)
		if err != nil {
			return err
		}
		if !found {
			return cmn.NewError(cmn.CodeNoAvailOffer, nil, map[string]interface{}{"offerId": payload.OfferID})
		}

		offer := vo.Snapshot.Offer
		listingEnd, err := m.activeListingEnd(tx, key, payload.OrgUrl, now)
		if err != nil {
			return err
		}
		remaining := listingEnd - now
		lengthMs := payload.RequestedReservationSecs * 1000
		if lengthMs > remaining {
			lengthMs = remaining
		}
		if offer.MaxReservationTimeSecs != nil {
			capMs := *offer.MaxReservationTimeSecs * 1000
			if lengthMs > capMs {
				lengthMs = capMs
			}
		} else if lengthMs > cos.MaxSafeInteger {
			lengthMs = cos.MaxSafeInteger
		}
		if lengthMs <= 0 {
			return cmn.NewError(cmn.CodeNoAvailOffer, nil, map[string]interface{}{"offerId": payload.OfferID, "reason": "no remaining window"})
		}
		reservationExpirationUTC = now + lengthMs

		entry := core.TimelineEntry{
			HostOrgUrl:            m.Host,
			PostingOrgUrl:         key.PostingOrgUrl,
			OfferID:               key.OfferID,
			SnapshotUTC:           vo.Snapshot.LastUpdateUTC,
			TargetOrganizationUrl: payload.OrgUrl,
			StartTimeUTC:          now,
			EndTimeUTC:            reservationExpirationUTC,
			IsReservation:         true,
			ReservationHolder:     payload.OrgUrl,
		}
		if err := tx.TruncateFutureTimelineForOffer(m.Host, key, now); err != nil {
			return err
		}
		if err := tx.AddTimelineEntries(m.Host, []core.TimelineEntry{entry}); err != nil {
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

		changes = append(changes, core.OfferChange{Type: core.ChangeRemoteReserve, TimestampUTC: now, OldValue: &offer, NewValue: &offer})
		return nil
	})
	if err != nil {
		m.Metrics.observe("RESERVE", "error")
		return 0, err
	}
	m.Metrics.observe("RESERVE", "ok")
	m.fire(changes)
	return reservationExpirationUTC, nil
}
