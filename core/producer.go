package core

import "github.com/CaravanStudios/opr-core-go/reshare"

// ProducerMetadata is per-producer bookkeeping. The first read of a
// producer's metadata within a transaction acts as an advisory lock:
// under SERIALIZABLE-like isolation a second concurrent reader either
// blocks or observes a conflict.
type ProducerMetadata struct {
	OrganizationUrl     string
	NextRunTimestampUTC int64
	LastUpdateTimeUTC   *int64
}

// KnownOfferingOrg records an organization observed as an offer poster.
type KnownOfferingOrg struct {
	OrgUrl        string
	LastSeenAtUTC int64
}

// ListFormat is a tagged variant: a LIST request is either a full
// SNAPSHOT or a DIFF since some prior instant.
type ListFormat string

const (
	ListFormatSnapshot ListFormat = "SNAPSHOT"
	ListFormatDiff     ListFormat = "DIFF"
)

// ListOffersPayload drives the LIST operation.
type ListOffersPayload struct {
	Format                ListFormat
	DiffStartTimestampUTC int64 // only meaningful when Format == ListFormatDiff
}

// AcceptOfferPayload drives ACCEPT.
type AcceptOfferPayload struct {
	OfferID                    string
	AcceptingOrg               string
	IfNotNewerThanTimestampUTC *int64
	DecodedReshareChain        reshare.DecodedChain
}

// ReserveOfferPayload drives RESERVE.
type ReserveOfferPayload struct {
	OfferID                  string
	RequestedReservationSecs int64
	OrgUrl                   string
}

// RejectOfferPayload drives REJECT.
type RejectOfferPayload struct {
	RejectingOrg string
	OfferID      string
	OfferedByUrl string // defaults to hostOrgUrl when empty
}

// HistoryPayload drives HISTORY.
type HistoryPayload struct {
	HistorySinceUTC   *int64
	PageToken         string
	MaxResultsPerPage int
}

// OfferSetUpdate is a producer's result: either a full offer sequence or
// a delta of OfferPatches, plus polling bookkeeping.
type OfferSetUpdate struct {
	Offers                        []Offer      // set when this is a full snapshot
	Delta                         []OfferPatch // set when this is a diff
	SourceOrgUrl                  string
	UpdateCurrentAsOfTimestampUTC int64
	EarliestNextRequestUTC        *int64
}

func (u *OfferSetUpdate) IsDelta() bool { return u.Delta != nil }

// ChangeType is a tagged variant for OfferChange.Type.
type ChangeType string

const (
	ChangeAdd           ChangeType = "ADD"
	ChangeUpdate        ChangeType = "UPDATE"
	ChangeDelete        ChangeType = "DELETE"
	ChangeAccept        ChangeType = "ACCEPT"
	ChangeRemoteAccept  ChangeType = "REMOTE_ACCEPT"
	ChangeRemoteReject  ChangeType = "REMOTE_REJECT"
	ChangeRemoteReserve ChangeType = "REMOTE_RESERVE"
)

// OfferChange is a change-bus event.
type OfferChange struct {
	Type         ChangeType
	TimestampUTC int64
	OldValue     *Offer
	NewValue     *Offer
}
