// Package core holds the OPR data model entities and the listing-policy
// contract: plain Go structs and narrow interfaces, in a sparse
// doc-comment convention matching the rest of this engine.
/*
 * Copyright (c) 2024, Open Product Recovery contributors.
 */
package core

import (
	"strings"

	"github.com/CaravanStudios/opr-core-go/reshare"
)

// Offer is immutable once identified by (PostingOrgUrl, OfferId,
// OfferUpdateUTC). Invariants: OfferExpirationUTC >= OfferCreationUTC;
// OfferUpdateUTC >= OfferCreationUTC.
type Offer struct {
	ID                     string
	OfferedBy              string // = posting org
	OfferCreationUTC       int64
	OfferUpdateUTC         int64 // defaults to OfferCreationUTC when unset by the caller
	OfferExpirationUTC     int64
	MaxReservationTimeSecs *int64
	ReshareChain           reshare.Chain `json:"reshareChain,omitempty"`

	// Payload carries the offer's domain content (item description,
	// quantities, images, ...) that this engine treats opaquely: it is
	// validated against a JSON schema by an external collaborator and is
	// otherwise passed through byte-for-byte.
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Valid checks the two timestamp invariants an Offer must satisfy.
func (o *Offer) Valid() bool {
	return o.OfferExpirationUTC >= o.OfferCreationUTC && o.OfferUpdateUTC >= o.OfferCreationUTC
}

// Key identifies an offer globally, independent of version.
type Key struct {
	PostingOrgUrl string
	OfferID       string
}

func (k Key) String() string { return k.PostingOrgUrl + "#" + k.OfferID }

// ParseKey reverses Key.String, the wire format the ACCEPT/RESERVE/REJECT
// payloads use for their offerId field.
func ParseKey(s string) (Key, bool) {
	post, id, ok := strings.Cut(s, "#")
	if !ok {
		return Key{}, false
	}
	return Key{PostingOrgUrl: post, OfferID: id}, true
}

func (o *Offer) Key() Key { return Key{PostingOrgUrl: o.OfferedBy, OfferID: o.ID} }

// OfferSnapshot is a specific, immutable version of an offer, keyed by
// (PostingOrgUrl, OfferId, LastUpdateUTC). Created when a corpus update
// introduces a new version, never mutated, removed only when every
// referencing record (corpus offer, timeline entry, acceptance) is gone.
type OfferSnapshot struct {
	PostingOrgUrl string
	OfferID       string
	LastUpdateUTC int64
	Offer         Offer
	ExpirationUTC int64
}

func (s *OfferSnapshot) Key() Key {
	return Key{PostingOrgUrl: s.PostingOrgUrl, OfferID: s.OfferID}
}
