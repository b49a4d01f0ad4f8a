package model

import (
	"github.com/CaravanStudios/opr-core-go/core"
	"github.com/CaravanStudios/opr-core-go/patch"
	"github.com/CaravanStudios/opr-core-go/storage"
)

// List implements LIST(viewingOrg, payload): a SNAPSHOT
// returns every offer currently visible to viewingOrg; a DIFF returns the
// patch set between two instants, with a leading "clear" when the earlier
// instant had nothing visible.
func (m *OfferModel) List(viewingOrg string, payload core.ListOffersPayload) ([]core.OfferPatch, error) {
	now := m.now()
	var out []core.OfferPatch

	err := m.Storage.View(func(tx storage.Txn) error {
		if payload.Format == core.ListFormatSnapshot {
			offers, err := m.snapshotOffers(tx, viewingOrg, now)
			if err != nil {
				return err
			}
			patches, err := patch.DiffAsOfferPatches(nil, patch.ToOfferSet(offers))
			if err != nil {
				return err
			}
			out = patches
			return nil
		}

		oldOffers, err := m.snapshotOffers(tx, viewingOrg, payload.DiffStartTimestampUTC)
		if err != nil {
			return err
		}
		newOffers, err := m.snapshotOffers(tx, viewingOrg, now)
		if err != nil {
			return err
		}
		oldSet := patch.ToOfferSet(oldOffers)
		newSet := patch.ToOfferSet(newOffers)
		patches, err := patch.DiffAsOfferPatches(oldSet, newSet)
		if err != nil {
			return err
		}
		if len(oldSet) == 0 {
			patches = append([]core.OfferPatch{{Op: core.PatchOpClear}}, patches...)
		}
		out = patches
		return nil
	})
	if err != nil {
		m.Metrics.observe("LIST", "error")
		return nil, err
	}
	m.Metrics.observe("LIST", "ok")
	return out, nil
}

func (m *OfferModel) snapshotOffers(tx storage.Txn, viewingOrg string, at int64) ([]core.Offer, error) {
	var out []core.Offer
	skip := 0
	const pageSize = 256
	for {
		cursor, err := tx.GetOffersAtTime(m.Host, viewingOrg, at, skip, pageSize)
		if err != nil {
			return nil, err
		}
		page := cursor.Collect()
		for _, v := range page {
			offer := v.Snapshot.Offer
			if len(v.ReshareChain) > 0 {
				offer.ReshareChain = v.ReshareChain
			}
			out = append(out, offer)
		}
		if len(page) < pageSize {
			return out, nil
		}
		skip += len(page)
	}
}
