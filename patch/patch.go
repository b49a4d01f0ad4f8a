// Package patch implements the offer-patch diff engine: toOfferSet,
// diffAsOfferPatches, applyOfferPatchesAsMap, and the minimal JSON-diff/
// apply machinery they need.
//
// Applying an RFC 6902 JSON Patch document is delegated to
// github.com/evanphx/json-patch/v5 (see DESIGN.md). Computing the minimal
// diff that produces such a document has no suitable library available;
// it is hand-written here (see DESIGN.md).
/*
 * Copyright (c) 2024, Open Product Recovery contributors.
 */
package patch

import (
	"sort"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"
	jsoniter "github.com/json-iterator/go"

	"github.com/CaravanStudios/opr-core-go/cmn"
	"github.com/CaravanStudios/opr-core-go/core"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ToOfferSet builds a postingOrg#offerId-keyed map from an offer slice.
func ToOfferSet(offers []core.Offer) map[core.Key]core.Offer {
	set := make(map[core.Key]core.Offer, len(offers))
	for _, o := range offers {
		set[o.Key()] = o
	}
	return set
}

// sortedKeys returns set's keys ordered lexicographically by
// (PostingOrgUrl, OfferId) for deterministic patch output.
func sortedKeys(set map[core.Key]core.Offer) []core.Key {
	keys := make([]core.Key, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].PostingOrgUrl != keys[j].PostingOrgUrl {
			return keys[i].PostingOrgUrl < keys[j].PostingOrgUrl
		}
		return keys[i].OfferID < keys[j].OfferID
	})
	return keys
}

// unionKeys returns the union of a's and b's keys, in the same
// deterministic order as sortedKeys.
func unionKeys(a, b map[core.Key]core.Offer) []core.Key {
	union := make(map[core.Key]core.Offer, len(a)+len(b))
	for k, v := range a {
		union[k] = v
	}
	for k, v := range b {
		union[k] = v
	}
	return sortedKeys(union)
}

// DiffAsOfferPatches computes the minimal patch list that transforms
// oldSet into newSet. It never prepends "clear" — that decision belongs
// to the LIST operation, which applies the "only when the start snapshot
// is empty" rule.
func DiffAsOfferPatches(oldSet, newSet map[core.Key]core.Offer) ([]core.OfferPatch, error) {
	var out []core.OfferPatch
	for _, key := range unionKeys(oldSet, newSet) {
		oldOffer, inOld := oldSet[key]
		newOffer, inNew := newSet[key]
		switch {
		case inOld && !inNew:
			out = append(out, core.OfferPatch{Op: core.PatchOpRemove, Target: key})
		case !inOld && inNew:
			no := newOffer
			out = append(out, core.OfferPatch{
				Op:              core.PatchOpAdd,
				Target:          key,
				TargetUpdateUTC: newOffer.OfferUpdateUTC,
				NewOffer:        &no,
			})
		case inOld && inNew:
			ops, changed, err := diffOffers(oldOffer, newOffer)
			if err != nil {
				return nil, err
			}
			if changed {
				out = append(out, core.OfferPatch{Op: core.PatchOpMutate, Target: key, JSONPatch: ops})
			}
		}
	}
	return out, nil
}

// ApplyOfferPatchesAsMap applies patches to old in order. A "clear" patch
// empties the working set. Applying an unknown or
// inapplicable op fails with PATCH_REJECTED.
func ApplyOfferPatchesAsMap(old map[core.Key]core.Offer, patches []core.OfferPatch) (map[core.Key]core.Offer, error) {
	working := make(map[core.Key]core.Offer, len(old))
	for k, v := range old {
		working[k] = v
	}

	for _, p := range patches {
		switch p.Op {
		case core.PatchOpClear:
			working = map[core.Key]core.Offer{}
		case core.PatchOpRemove:
			if _, ok := working[p.Target]; !ok {
				return nil, cmn.NewError(cmn.CodePatchRejected, nil, map[string]interface{}{"reason": "remove: offer not present", "target": p.Target})
			}
			delete(working, p.Target)
		case core.PatchOpAdd:
			if _, ok := working[p.Target]; ok {
				return nil, cmn.NewError(cmn.CodePatchRejected, nil, map[string]interface{}{"reason": "add: offer already present", "target": p.Target})
			}
			if p.NewOffer == nil {
				return nil, cmn.NewError(cmn.CodePatchRejected, nil, map[string]interface{}{"reason": "add: missing offer value"})
			}
			working[p.Target] = *p.NewOffer
		case core.PatchOpMutate:
			cur, ok := working[p.Target]
			if !ok {
				return nil, cmn.NewError(cmn.CodePatchRejected, nil, map[string]interface{}{"reason": "patch: offer not present", "target": p.Target})
			}
			mutated, err := applyJSONPatch(cur, p.JSONPatch)
			if err != nil {
				return nil, cmn.NewError(cmn.CodePatchRejected, err, map[string]interface{}{"reason": "patch: apply failed", "target": p.Target})
			}
			working[p.Target] = mutated
		default:
			return nil, cmn.NewError(cmn.CodePatchRejected, nil, map[string]interface{}{"reason": "unknown op", "op": p.Op})
		}
	}
	return working, nil
}

// applyJSONPatch applies an RFC 6902 document (produced by diffOffers, or
// supplied by a remote producer) to cur using evanphx/json-patch.
func applyJSONPatch(cur core.Offer, doc []byte) (core.Offer, error) {
	curBytes, err := json.Marshal(cur)
	if err != nil {
		return core.Offer{}, err
	}
	p, err := jsonpatch.DecodePatch(doc)
	if err != nil {
		return core.Offer{}, err
	}
	newBytes, err := p.Apply(curBytes)
	if err != nil {
		return core.Offer{}, err
	}
	var out core.Offer
	if err := json.Unmarshal(newBytes, &out); err != nil {
		return core.Offer{}, err
	}
	return out, nil
}

// diffOffers returns (ops, changed, err): an RFC 6902 document describing
// how to turn a into b, and whether they differ at all.
func diffOffers(a, b core.Offer) ([]byte, bool, error) {
	aBytes, err := json.Marshal(a)
	if err != nil {
		return nil, false, err
	}
	bBytes, err := json.Marshal(b)
	if err != nil {
		return nil, false, err
	}
	if string(aBytes) == string(bBytes) {
		return nil, false, nil
	}

	var aVal, bVal interface{}
	if err := json.Unmarshal(aBytes, &aVal); err != nil {
		return nil, false, err
	}
	if err := json.Unmarshal(bBytes, &bVal); err != nil {
		return nil, false, err
	}

	var ops []map[string]interface{}
	diffValues("", aVal, bVal, &ops)
	doc, err := json.Marshal(ops)
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

// diffValues recursively compares a and b, appending RFC 6902
// add/remove/replace operations to ops. Objects are diffed key-by-key;
// every other JSON value type (arrays included) is treated as atomic —
// a difference anywhere inside one produces a single "replace" at that
// value's path.
func diffValues(path string, a, b interface{}, ops *[]map[string]interface{}) {
	switch {
	case a == nil && b == nil:
		return
	case a == nil:
		*ops = append(*ops, map[string]interface{}{"op": "add", "path": pathOrRoot(path), "value": b})
	case b == nil:
		*ops = append(*ops, map[string]interface{}{"op": "remove", "path": pathOrRoot(path)})
	default:
		aMap, aIsMap := a.(map[string]interface{})
		bMap, bIsMap := b.(map[string]interface{})
		if aIsMap && bIsMap {
			diffObjects(path, aMap, bMap, ops)
			return
		}
		if !deepEqualJSON(a, b) {
			*ops = append(*ops, map[string]interface{}{"op": "replace", "path": pathOrRoot(path), "value": b})
		}
	}
}

func diffObjects(path string, a, b map[string]interface{}, ops *[]map[string]interface{}) {
	keys := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		keys[k] = struct{}{}
	}
	for k := range b {
		keys[k] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)
	for _, k := range sorted {
		av, aok := a[k]
		bv, bok := b[k]
		childPath := path + "/" + escapePointerSegment(k)
		switch {
		case aok && !bok:
			*ops = append(*ops, map[string]interface{}{"op": "remove", "path": childPath})
		case !aok && bok:
			*ops = append(*ops, map[string]interface{}{"op": "add", "path": childPath, "value": bv})
		default:
			diffValues(childPath, av, bv, ops)
		}
	}
}

func pathOrRoot(path string) string {
	if path == "" {
		return ""
	}
	return path
}

func escapePointerSegment(s string) string {
	s = strings.ReplaceAll(s, "~", "~0")
	s = strings.ReplaceAll(s, "/", "~1")
	return s
}

func deepEqualJSON(a, b interface{}) bool {
	ab, err1 := json.Marshal(a)
	bb, err2 := json.Marshal(b)
	if err1 != nil || err2 != nil {
		return false
	}
	return string(ab) == string(bb)
}
