package model

import (
	"github.com/CaravanStudios/opr-core-go/core"
	"github.com/CaravanStudios/opr-core-go/storage"
)

// HistoryPage is one page of HISTORY results: the acceptance records
// viewingOrg may see plus an opaque token for the next page.
type HistoryPage struct {
	Entries       []core.Acceptance
	NextPageToken string
}

// History implements HISTORY(viewingOrg, {historySinceUTC?, pageToken?,
// maxResultsPerPage?}): acceptance records visible to viewingOrg,
// paginated via the opaque skip token this engine chose (see DESIGN.md).
func (m *OfferModel) History(viewingOrg string, payload core.HistoryPayload) (*HistoryPage, error) {
	skip, err := storage.DecodePageToken(payload.PageToken)
	if err != nil {
		m.Metrics.observe("HISTORY", "error")
		return nil, err
	}
	pageSize := payload.MaxResultsPerPage
	if pageSize <= 0 {
		pageSize = 256
	}

	var page HistoryPage
	err = m.Storage.View(func(tx storage.Txn) error {
		cursor, err := tx.GetHistory(m.Host, viewingOrg, payload.HistorySinceUTC, skip)
		if err != nil {
			return err
		}
		for i := 0; i < pageSize; i++ {
			acc, ok := cursor.Next()
			if !ok {
				return nil
			}
			key := core.Key{PostingOrgUrl: acc.PostingOrgUrl, OfferID: acc.OfferID}
			snapshotUTC := acc.SnapshotUTC
			if snap, found, err := tx.GetOffer(m.Host, key, &snapshotUTC); err != nil {
				return err
			} else if found {
				acc.Offer = &snap.Offer
			}
			page.Entries = append(page.Entries, acc)
		}
		if _, more := cursor.Next(); more {
			page.NextPageToken = storage.EncodePageToken(skip + len(page.Entries))
		}
		return nil
	})
	if err != nil {
		m.Metrics.observe("HISTORY", "error")
		return nil, err
	}
	m.Metrics.observe("HISTORY", "ok")
	return &page, nil
}
