package core

import (
	"github.com/CaravanStudios/opr-core-go/cmn/cos"
	"github.com/CaravanStudios/opr-core-go/reshare"
)

// Listing is one candidate visibility window a ListingPolicy proposes for
// an offer, before reservation-subtraction and reshare-chain extension.
type Listing struct {
	OrgUrl       string // may be WildcardOrg
	StartTimeUTC int64
	EndTimeUTC   int64
	Scopes       []reshare.Scope // defaults to [ACCEPT] when nil
}

// ListingPolicy decides to whom a specific snapshot is visible and for how
// long. Implementations must be pure functions: same inputs, same output,
// no hidden state or side effects.
type ListingPolicy interface {
	GetListings(offer *Offer, firstListingTimeUTC, nowUTC int64, rejections, sharedBy cos.StringSet) []Listing
}

// UniversalAcceptPolicy is the default policy: one listing per allowed org
// URL (wildcard permitted) from firstListingTimeUTC to the offer's
// expiration, excluding orgs that already rejected or already appear in a
// reshare link.
type UniversalAcceptPolicy struct {
	// AllowedOrgs names the orgs this policy will list to. A nil/empty
	// slice defaults to [WildcardOrg] — list to everyone.
	AllowedOrgs []string
}

func (p UniversalAcceptPolicy) GetListings(offer *Offer, firstListingTimeUTC, _ int64, rejections, sharedBy cos.StringSet) []Listing {
	allowed := p.AllowedOrgs
	if len(allowed) == 0 {
		allowed = []string{WildcardOrg}
	}
	out := make([]Listing, 0, len(allowed))
	for _, org := range allowed {
		if rejections.Has(org) || sharedBy.Has(org) {
			continue
		}
		out = append(out, Listing{
			OrgUrl:       org,
			StartTimeUTC: firstListingTimeUTC,
			EndTimeUTC:   offer.OfferExpirationUTC,
		})
	}
	return out
}
