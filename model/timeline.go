package model

import (
	"sort"

	"github.com/CaravanStudios/opr-core-go/cmn"
	"github.com/CaravanStudios/opr-core-go/cmn/cos"
	"github.com/CaravanStudios/opr-core-go/cmn/debug"
	"github.com/CaravanStudios/opr-core-go/cmn/ivl"
	"github.com/CaravanStudios/opr-core-go/core"
	"github.com/CaravanStudios/opr-core-go/reshare"
	"github.com/CaravanStudios/opr-core-go/storage"
)

// candidateChain is one producer's view of how this snapshot reached this
// host, decoded far enough to check qualification without yet knowing the
// eventual recipient.
type candidateChain struct {
	chain   reshare.Chain
	decoded reshare.DecodedChain
}

// recomputeTimeline rebuilds every timeline entry for snap's offer key. It
// must run inside an Update transaction; callers (UPDATE, ACCEPT, RESERVE,
// REJECT) invoke it once per offer touched, after writing whatever
// triggered the recompute.
func (m *OfferModel) recomputeTimeline(tx storage.Txn, snap *core.OfferSnapshot, now int64) error {
	key := snap.Key()
	offer := &snap.Offer

	candidates, anyDirectShare, err := m.candidateChains(tx, key, offer)
	if err != nil {
		return err
	}

	existing, err := tx.GetTimelineForOffer(m.Host, key, nil, "")
	if err != nil {
		return err
	}
	entries := existing.Collect()

	firstListingTime := now
	rejections := cos.NewStringSet()
	var liveReservation *core.TimelineEntry
	for i := range entries {
		e := &entries[i]
		switch {
		case e.IsRejection:
			rejections.Add(e.TargetOrganizationUrl)
		case e.IsReservation:
			if e.StartTimeUTC <= now && now < e.EndTimeUTC {
				liveReservation = e
			}
		default:
			if e.StartTimeUTC < firstListingTime {
				firstListingTime = e.StartTimeUTC
			}
		}
	}

	sharedBy := cos.NewStringSet()
	for _, c := range candidates {
		for _, org := range c.decoded.SharingOrgs() {
			sharedBy.Add(org)
		}
	}

	localChain, localListingAllowed := m.localAcceptChain(offer, candidates, anyDirectShare)
	bestRoot, haveRoot := m.bestReshareRoot(offer, candidates)

	listings := m.Policy.GetListings(offer, firstListingTime, now, rejections, sharedBy)
	for i := range listings {
		if listings[i].StartTimeUTC < now {
			listings[i].StartTimeUTC = now
		}
	}

	var reservationInterval ivl.Interval
	var reservationHolder string
	carryReservation := liveReservation != nil
	if carryReservation {
		reservationHolder = liveReservation.ReservationHolder
		reservationInterval = ivl.Interval{Start: now, End: liveReservation.EndTimeUTC}

		// A reservation grants its holder exclusive access regardless of
		// whether the policy lists per-org or via WildcardOrg. If the
		// holder has no listing of its own, clone the wildcard one (if any)
		// to the reserved window so the holder keeps visibility once it's
		// carved out of everyone else's below.
		holderListed := false
		for _, l := range listings {
			if l.OrgUrl == reservationHolder {
				holderListed = true
				break
			}
		}
		if !holderListed {
			for _, l := range listings {
				if l.OrgUrl == core.WildcardOrg {
					clone := l
					clone.OrgUrl = reservationHolder
					clone.StartTimeUTC = reservationInterval.Start
					clone.EndTimeUTC = reservationInterval.End
					listings = append(listings, clone)
					break
				}
			}
		}
	}

	var newEntries []core.TimelineEntry
	if localListingAllowed {
		newEntries = append(newEntries, core.TimelineEntry{
			HostOrgUrl:            m.Host,
			PostingOrgUrl:         key.PostingOrgUrl,
			OfferID:               key.OfferID,
			SnapshotUTC:           snap.LastUpdateUTC,
			TargetOrganizationUrl: m.Host,
			StartTimeUTC:          now,
			EndTimeUTC:            offer.OfferExpirationUTC,
			ReshareChain:          localChain,
		})
	}

	for _, listing := range listings {
		scopes := listing.Scopes
		if len(scopes) == 0 {
			scopes = []reshare.Scope{reshare.ScopeAccept}
		}
		// Every listing here targets an org other than this host (the
		// host's own local-accept entry was already appended above), so
		// it always needs a signed link proving the recipient's
		// entitlement to act on it — whether that's a fresh RESHARE root
		// (offer originates here) or an extension of a chain that already
		// reached this host with RESHARE scope.
		if !haveRoot {
			continue
		}
		extended, _, err := m.Signer.Extend(bestRoot.chain, bestRoot.decoded, m.Host, listing.OrgUrl, scopes, []string{offer.ID})
		if err != nil {
			return cmn.Wrap(cmn.CodeInvalidChain, err, "extend reshare chain")
		}
		chain := extended

		window := ivl.Interval{Start: listing.StartTimeUTC, End: listing.EndTimeUTC}
		windows := []ivl.Interval{window}
		if carryReservation && listing.OrgUrl != reservationHolder {
			windows = ivl.SubtractAll(window, []ivl.Interval{reservationInterval})
		}
		for _, w := range windows {
			if w.Empty() {
				continue
			}
			newEntries = append(newEntries, core.TimelineEntry{
				HostOrgUrl:            m.Host,
				PostingOrgUrl:         key.PostingOrgUrl,
				OfferID:               key.OfferID,
				SnapshotUTC:           snap.LastUpdateUTC,
				TargetOrganizationUrl: listing.OrgUrl,
				StartTimeUTC:          w.Start,
				EndTimeUTC:            w.End,
				ReshareChain:          chain,
			})
		}
	}

	if carryReservation {
		newEntries = append(newEntries, core.TimelineEntry{
			HostOrgUrl:            m.Host,
			PostingOrgUrl:         key.PostingOrgUrl,
			OfferID:               key.OfferID,
			SnapshotUTC:           snap.LastUpdateUTC,
			TargetOrganizationUrl: liveReservation.ReservationHolder,
			StartTimeUTC:          reservationInterval.Start,
			EndTimeUTC:            reservationInterval.End,
			IsReservation:         true,
			ReservationHolder:     liveReservation.ReservationHolder,
		})
	}

	if err := tx.TruncateFutureTimelineForOffer(m.Host, key, now); err != nil {
		return err
	}
	if len(newEntries) == 0 {
		return nil
	}
	if err := tx.AddTimelineEntries(m.Host, newEntries); err != nil {
		return err
	}

	if cmn.GCO.Get().EnableInternalChecks {
		return m.checkTimelineInvariants(tx, key, now)
	}
	return nil
}

// activeListingEnd returns the EndTimeUTC of the listing that currently
// makes key visible to viewingOrg at now — explicit preferred over
// wildcard, mirroring storage.collectVisible's tie-break — used by
// RESERVE to cap a reservation at the remaining length of that window.
func (m *OfferModel) activeListingEnd(tx storage.Txn, key core.Key, viewingOrg string, now int64) (int64, error) {
	window := ivl.Interval{Start: now, End: now + 1}
	cursor, err := tx.GetTimelineForOffer(m.Host, key, &window, "")
	if err != nil {
		return 0, err
	}
	var best *core.TimelineEntry
	for _, e := range cursor.Collect() {
		e := e
		if e.IsRejection || e.IsReservation {
			continue
		}
		if e.TargetOrganizationUrl != viewingOrg && e.TargetOrganizationUrl != core.WildcardOrg {
			continue
		}
		if now < e.StartTimeUTC || now >= e.EndTimeUTC {
			continue
		}
		if best == nil || (best.TargetOrganizationUrl == core.WildcardOrg && e.TargetOrganizationUrl != core.WildcardOrg) {
			best = &e
		}
	}
	if best == nil {
		return 0, cmn.NewError(cmn.CodeNoAvailOffer, nil, map[string]interface{}{"offerId": key.String()})
	}
	return best.EndTimeUTC, nil
}

// candidateChains collects, for every producer currently carrying key in
// its corpus, the reshare chain it arrived with, decoded far enough to
// inspect issuer/recipient handoffs. anyDirectShare reports whether at
// least one producer holds the offer with no chain at all (a direct feed
// from the posting org, trusted unconditionally).
func (m *OfferModel) candidateChains(tx storage.Txn, key core.Key, offer *core.Offer) ([]candidateChain, bool, error) {
	sources, err := tx.GetOfferSources(m.Host, key)
	if err != nil {
		return nil, false, err
	}
	var out []candidateChain
	anyDirect := false
	for _, producerID := range sources {
		co, ok, err := tx.GetOfferFromCorpus(m.Host, producerID, key)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		if len(co.ReshareChain) == 0 {
			anyDirect = true
			continue
		}
		decoded, err := m.Verifier.DecodeChain(co.ReshareChain, offer.OfferedBy, []string{offer.ID})
		if err != nil {
			continue // unverifiable chain: not a usable candidate, not a fatal error
		}
		out = append(out, candidateChain{chain: co.ReshareChain, decoded: decoded})
	}
	return out, anyDirect, nil
}

// localAcceptChain resolves the chain (if any) proving this host may list
// the offer to itself for local acceptance: trivial when the offer
// originates here or arrived via a direct share, otherwise
// the shortest candidate chain that both terminates at this host and
// carries ACCEPT scope.
func (m *OfferModel) localAcceptChain(offer *core.Offer, candidates []candidateChain, anyDirectShare bool) (reshare.Chain, bool) {
	if offer.OfferedBy == m.Host || anyDirectShare {
		return nil, true
	}
	var best *candidateChain
	for i := range candidates {
		c := &candidates[i]
		if c.decoded.LastRecipient() != m.Host {
			continue
		}
		if !reshare.HasScope(c.decoded.LastScopes(), reshare.ScopeAccept) {
			continue
		}
		if best == nil || len(c.chain) < len(best.chain) {
			best = c
		}
	}
	if best == nil {
		return nil, false
	}
	return best.chain, true
}

// bestReshareRoot picks the shortest candidate chain this host can extend
// to re-list the offer onward: any chain whose last link carries RESHARE
// scope, or the empty root chain when the offer originates at this host.
func (m *OfferModel) bestReshareRoot(offer *core.Offer, candidates []candidateChain) (candidateChain, bool) {
	if offer.OfferedBy == m.Host {
		return candidateChain{}, true
	}
	var best *candidateChain
	for i := range candidates {
		c := &candidates[i]
		if !reshare.HasScope(c.decoded.LastScopes(), reshare.ScopeReshare) {
			continue
		}
		if best == nil || len(c.chain) < len(best.chain) {
			best = c
		}
	}
	if best == nil {
		return candidateChain{}, false
	}
	return *best, true
}

// checkTimelineInvariants verifies, for one offer key, that no two
// non-rejection entries targeting the same org overlap and that at most
// one reservation is live at any instant.
func (m *OfferModel) checkTimelineInvariants(tx storage.Txn, key core.Key, now int64) error {
	c, err := tx.GetTimelineForOffer(m.Host, key, nil, "")
	if err != nil {
		return err
	}
	entries := c.Collect()
	sort.Slice(entries, func(i, j int) bool { return entries[i].StartTimeUTC < entries[j].StartTimeUTC })

	byTarget := map[string][]core.TimelineEntry{}
	var reservations []core.TimelineEntry
	for _, e := range entries {
		if e.IsRejection {
			continue
		}
		if e.IsReservation {
			reservations = append(reservations, e)
			continue
		}
		byTarget[e.TargetOrganizationUrl] = append(byTarget[e.TargetOrganizationUrl], e)
	}
	for i := 1; i < len(reservations); i++ {
		if reservations[i].StartTimeUTC < reservations[i-1].EndTimeUTC {
			debug.Assert(false, "multiple live reservations for", key)
			return cmn.NewError(cmn.CodeMultipleReservations, nil, map[string]interface{}{"key": key.String()})
		}
	}
	for org, es := range byTarget {
		for i := 1; i < len(es); i++ {
			if es[i].StartTimeUTC < es[i-1].EndTimeUTC {
				debug.Assert(false, "overlapping timeline entries for", key, org)
				return cmn.NewError(cmn.CodeTimelineOverlap, nil, map[string]interface{}{"key": key.String(), "org": org})
			}
		}
	}
	return nil
}
