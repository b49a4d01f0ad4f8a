package core_test

import (
	"testing"

	"github.com/CaravanStudios/opr-core-go/cmn/cos"
	"github.com/CaravanStudios/opr-core-go/core"
)

func TestUniversalAcceptPolicyDefaultsToWildcard(t *testing.T) {
	offer := &core.Offer{ID: "pear", OfferedBy: "https://a", OfferExpirationUTC: 10000}
	listings := core.UniversalAcceptPolicy{}.GetListings(offer, 1, 1, cos.NewStringSet(), cos.NewStringSet())
	if len(listings) != 1 || listings[0].OrgUrl != core.WildcardOrg {
		t.Fatalf("got %+v", listings)
	}
	if listings[0].StartTimeUTC != 1 || listings[0].EndTimeUTC != 10000 {
		t.Fatalf("got %+v", listings[0])
	}
}

func TestUniversalAcceptPolicyExcludesRejectionsAndSharedBy(t *testing.T) {
	offer := &core.Offer{ID: "pear", OfferedBy: "https://a", OfferExpirationUTC: 10000}
	policy := core.UniversalAcceptPolicy{AllowedOrgs: []string{"https://b", "https://c", "https://d"}}

	listings := policy.GetListings(offer, 0, 0,
		cos.NewStringSet("https://c"),
		cos.NewStringSet("https://d"))

	if len(listings) != 1 || listings[0].OrgUrl != "https://b" {
		t.Fatalf("got %+v", listings)
	}
}

func TestOfferValid(t *testing.T) {
	cases := []struct {
		name string
		o    core.Offer
		want bool
	}{
		{"ok", core.Offer{OfferCreationUTC: 0, OfferUpdateUTC: 0, OfferExpirationUTC: 10}, true},
		{"expiration before creation", core.Offer{OfferCreationUTC: 10, OfferExpirationUTC: 5}, false},
		{"update before creation", core.Offer{OfferCreationUTC: 10, OfferUpdateUTC: 5, OfferExpirationUTC: 20}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.o.Valid(); got != c.want {
				t.Fatalf("got %v, want %v", got, c.want)
			}
		})
	}
}
