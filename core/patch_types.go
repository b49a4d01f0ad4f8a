package core

// PatchOp is the OfferPatch tagged-variant discriminator: tagged Go
// variants in place of a discriminated-union JSON encoding.
type PatchOp string

const (
	// PatchOpClear is the literal "clear": empties the working offer set.
	PatchOpClear PatchOp = "clear"
	// PatchOpAdd introduces a new offer, identified by a versioned id.
	PatchOpAdd PatchOp = "add"
	// PatchOpRemove deletes an offer, identified by its (unversioned) id.
	PatchOpRemove PatchOp = "remove"
	// PatchOpMutate carries an RFC 6902 JSON Patch against the prior value.
	PatchOpMutate PatchOp = "patch"
)

// OfferPatch is either the literal "clear" (Op == PatchOpClear) or a
// targeted operation against one offer.
type OfferPatch struct {
	Op PatchOp

	// Target identifies the offer this patch applies to. Unused for
	// PatchOpClear.
	Target Key

	// TargetUpdateUTC is set for PatchOpAdd — the "VersionedStructuredOfferId"
	// variant of the target, naming the exact version being introduced.
	TargetUpdateUTC int64

	// NewOffer carries the full offer value for PatchOpAdd.
	NewOffer *Offer

	// JSONPatch carries an RFC 6902 patch document (a JSON array of
	// operations) for PatchOpMutate.
	JSONPatch []byte
}
