package core

import "github.com/CaravanStudios/opr-core-go/reshare"

// Acceptance is a terminal record. Visible to the host, the acceptor, and
// every sharing org named in the decoded reshare chain (the
// AcceptanceHistoryViewer relation).
type Acceptance struct {
	HostOrgUrl          string
	PostingOrgUrl       string
	OfferID             string
	SnapshotUTC         int64
	AcceptedBy          string
	AcceptedAtUTC       int64
	DecodedReshareChain reshare.DecodedChain

	// Offer is the accepted snapshot's offer payload, attached by the
	// HISTORY read path (not stored with the acceptance row itself).
	Offer *Offer `json:"offer,omitempty"`
}

// Viewers returns {HostOrgUrl, AcceptedBy} ∪ {link.SharingOrgUrl : link ∈
// DecodedReshareChain}.
func (a *Acceptance) Viewers() []string {
	out := []string{a.HostOrgUrl, a.AcceptedBy}
	out = append(out, a.DecodedReshareChain.SharingOrgs()...)
	return out
}

// Rejection is stored, in this engine, as a non-expiring TimelineEntry
// with IsRejection = true: behavior is identical to a separate record.
// RejectionRecord is the argument storage.Txn.WriteReject takes; Storage
// never persists it as its own row and no read returns it.
type RejectionRecord struct {
	HostOrgUrl    string
	RejectingOrg  string
	OfferID       string
	PostingOrgUrl string
	RejectedAtUTC int64
}
