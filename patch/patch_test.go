package patch_test

import (
	"reflect"
	"testing"

	"github.com/CaravanStudios/opr-core-go/core"
	"github.com/CaravanStudios/opr-core-go/patch"
)

func mustInt64(v int64) *int64 { return &v }

func TestDiffRoundTrip(t *testing.T) {
	a := []core.Offer{
		{ID: "p1", OfferedBy: "https://a", OfferCreationUTC: 0, OfferExpirationUTC: 100},
		{ID: "p2", OfferedBy: "https://a", OfferCreationUTC: 0, OfferExpirationUTC: 100},
	}
	b := []core.Offer{
		{ID: "p2", OfferedBy: "https://a", OfferCreationUTC: 0, OfferExpirationUTC: 500, OfferUpdateUTC: 5},
		{ID: "p3", OfferedBy: "https://a", OfferCreationUTC: 0, OfferExpirationUTC: 100, MaxReservationTimeSecs: mustInt64(30)},
	}

	oldSet := patch.ToOfferSet(a)
	newSet := patch.ToOfferSet(b)

	patches, err := patch.DiffAsOfferPatches(oldSet, newSet)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}

	got, err := patch.ApplyOfferPatchesAsMap(oldSet, patches)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if !reflect.DeepEqual(got, newSet) {
		t.Fatalf("round trip mismatch:\ngot  %+v\nwant %+v", got, newSet)
	}
}

func TestDiffEmptyOldProducesOnlyAdds(t *testing.T) {
	b := []core.Offer{
		{ID: "p1", OfferedBy: "https://a", OfferExpirationUTC: 10},
		{ID: "p2", OfferedBy: "https://a", OfferExpirationUTC: 10},
	}
	patches, err := patch.DiffAsOfferPatches(nil, patch.ToOfferSet(b))
	if err != nil {
		t.Fatal(err)
	}
	if len(patches) != 2 {
		t.Fatalf("got %d patches, want 2", len(patches))
	}
	for _, p := range patches {
		if p.Op != core.PatchOpAdd {
			t.Fatalf("got op %v, want add", p.Op)
		}
	}
}

func TestApplyClearEmptiesSet(t *testing.T) {
	old := patch.ToOfferSet([]core.Offer{{ID: "p1", OfferedBy: "https://a"}})
	got, err := patch.ApplyOfferPatchesAsMap(old, []core.OfferPatch{{Op: core.PatchOpClear}})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("got %+v, want empty", got)
	}
}

func TestApplyRemoveUnknownOfferRejected(t *testing.T) {
	_, err := patch.ApplyOfferPatchesAsMap(nil, []core.OfferPatch{
		{Op: core.PatchOpRemove, Target: core.Key{PostingOrgUrl: "https://a", OfferID: "p1"}},
	})
	if err == nil {
		t.Fatal("expected PATCH_REJECTED")
	}
}
