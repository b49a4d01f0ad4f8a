package core

import "github.com/CaravanStudios/opr-core-go/reshare"

// WildcardOrg is the "*" target that matches every viewing organization.
const WildcardOrg = "*"

// TimelineEntry is the authoritative record of an offer's visibility to an
// organization over a half-open interval. Invariants: per (offer,
// targetOrg) no two non-rejection entries overlap; at any instant at most
// one reservation exists for a given offer across all targets.
type TimelineEntry struct {
	HostOrgUrl            string
	PostingOrgUrl         string
	OfferID               string
	SnapshotUTC           int64
	TargetOrganizationUrl string // may be WildcardOrg
	StartTimeUTC          int64
	EndTimeUTC            int64
	IsReservation         bool
	IsRejection           bool
	// ReservationHolder is set only when IsReservation is true: the org
	// that holds the reservation (may differ from TargetOrganizationUrl
	// bookkeeping in storage, but for this engine the two always agree).
	ReservationHolder string
	ReshareChain       reshare.Chain // only ever set on a listing
}

// SetInterval implements cmn/ivl.Updatable.
func (e *TimelineEntry) SetInterval(start, end int64) {
	e.StartTimeUTC = start
	e.EndTimeUTC = end
}

// IsListing reports whether the entry is a plain listing (neither a
// reservation nor a rejection).
func (e *TimelineEntry) IsListing() bool { return !e.IsReservation && !e.IsRejection }

func (e *TimelineEntry) OfferKey() Key {
	return Key{PostingOrgUrl: e.PostingOrgUrl, OfferID: e.OfferID}
}
