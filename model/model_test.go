package model_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/CaravanStudios/opr-core-go/cmn"
	"github.com/CaravanStudios/opr-core-go/core"
	"github.com/CaravanStudios/opr-core-go/model"
	"github.com/CaravanStudios/opr-core-go/reshare"
	"github.com/CaravanStudios/opr-core-go/storage"
)

const (
	host = "https://host.example"
	orgA = "https://a.example"
	orgB = "https://b.example"
	orgC = "https://c.example"
)

func newTestModel() (*model.OfferModel, *cmn.FakeClock) {
	st, err := storage.OpenBuntStorage(":memory:")
	Expect(err).NotTo(HaveOccurred())

	keys := reshare.StaticHMACKeys{
		host: []byte("secret-host"),
		orgA: []byte("secret-a"),
		orgB: []byte("secret-b"),
		orgC: []byte("secret-c"),
	}
	clock := cmn.NewFakeClock(1000)
	signer := reshare.NewJWTSigner(keys, 0)
	signer.Now = func() time.Time { return time.UnixMilli(clock.NowUTCMs()) }
	verifier := reshare.NewJWTVerifier(keys)

	m := model.New(host, st, signer, verifier, core.UniversalAcceptPolicy{})
	m.Clock = clock
	return m, clock
}

func mustUpdate(m *model.OfferModel, producerID string, update core.OfferSetUpdate) {
	Expect(m.Update(producerID, update)).To(Succeed())
}

var _ = Describe("offer model", func() {
	var (
		m     *model.OfferModel
		clock *cmn.FakeClock
	)

	BeforeEach(func() {
		m, clock = newTestModel()
	})

	// A locally-originated offer is listed to every org, and a
	// directly-fed remote offer (no reshare chain) is visible only for the
	// host's own local acceptance, never reshared onward.
	It("lists a locally-originated offer to every viewing org, carrying a freshly signed reshare chain", func() {
		offer := core.Offer{
			ID:                 "pear",
			OfferedBy:          host,
			OfferCreationUTC:   1000,
			OfferUpdateUTC:     1000,
			OfferExpirationUTC: 100000,
		}
		mustUpdate(m, host, core.OfferSetUpdate{Offers: []core.Offer{offer}})

		patches, err := m.List(orgA, core.ListOffersPayload{Format: core.ListFormatSnapshot})
		Expect(err).NotTo(HaveOccurred())
		Expect(addedOfferIDs(patches)).To(ConsistOf("pear"))

		listed := addedOffer(patches, "pear")
		Expect(listed.ReshareChain).To(HaveLen(1))
		decoded, err := m.Verifier.DecodeChain(listed.ReshareChain, host, []string{"pear"})
		Expect(err).NotTo(HaveOccurred())
		Expect(decoded).To(HaveLen(1))
		Expect(decoded[0].SharingOrgUrl).To(Equal(host))
		Expect(decoded[0].RecipientOrgUrl).To(Equal(core.WildcardOrg))
		Expect(decoded[0].Scopes).To(ConsistOf(reshare.ScopeAccept))
	})

	// Property #8: when an offer has both a wildcard and an explicit
	// listing for the same org, LIST returns it exactly once, carrying the
	// explicit listing's reshare chain rather than the wildcard's.
	It("prefers the explicit listing's reshare chain over the wildcard's", func() {
		m.Policy = core.UniversalAcceptPolicy{AllowedOrgs: []string{"*", orgA}}
		offer := core.Offer{
			ID:                 "pear",
			OfferedBy:          host,
			OfferCreationUTC:   1000,
			OfferUpdateUTC:     1000,
			OfferExpirationUTC: 100000,
		}
		mustUpdate(m, host, core.OfferSetUpdate{Offers: []core.Offer{offer}})

		patches, err := m.List(orgA, core.ListOffersPayload{Format: core.ListFormatSnapshot})
		Expect(err).NotTo(HaveOccurred())
		Expect(addedOfferIDs(patches)).To(ConsistOf("pear"))

		listed := addedOffer(patches, "pear")
		Expect(listed.ReshareChain).To(HaveLen(1))
		decoded, err := m.Verifier.DecodeChain(listed.ReshareChain, host, []string{"pear"})
		Expect(err).NotTo(HaveOccurred())
		Expect(decoded).To(HaveLen(1))
		Expect(decoded[0].RecipientOrgUrl).To(Equal(orgA))
	})

	It("does not reshare a directly-fed remote offer without a chain, but keeps it locally acceptable", func() {
		offer := core.Offer{
			ID:                 "pear",
			OfferedBy:          orgA,
			OfferCreationUTC:   1000,
			OfferUpdateUTC:     1000,
			OfferExpirationUTC: 100000,
		}
		mustUpdate(m, orgA, core.OfferSetUpdate{SourceOrgUrl: orgA, Offers: []core.Offer{offer}})

		patches, err := m.List(orgB, core.ListOffersPayload{Format: core.ListFormatSnapshot})
		Expect(err).NotTo(HaveOccurred())
		Expect(addedOfferIDs(patches)).To(BeEmpty())

		patches, err = m.List(host, core.ListOffersPayload{Format: core.ListFormatSnapshot})
		Expect(err).NotTo(HaveOccurred())
		Expect(addedOfferIDs(patches)).To(ConsistOf("pear"))
	})

	// A reshared offer accepted locally is visible in HISTORY to every
	// org named in its reshare chain, and to no one else.
	It("accepts a reshared offer locally and surfaces it in every sharing org's history", func() {
		keys := reshare.StaticHMACKeys{
			host: []byte("secret-host"),
			orgA: []byte("secret-a"),
			orgB: []byte("secret-b"),
		}
		signer := reshare.NewJWTSigner(keys, 0)
		chain, decoded, err := signer.Extend(nil, nil, orgA, orgB, []reshare.Scope{reshare.ScopeReshare}, []string{"pear"})
		Expect(err).NotTo(HaveOccurred())
		chain, decoded, err = signer.Extend(chain, decoded, orgB, host, []reshare.Scope{reshare.ScopeAccept}, nil)
		Expect(err).NotTo(HaveOccurred())

		offer := core.Offer{
			ID:                 "pear",
			OfferedBy:          orgA,
			OfferCreationUTC:   1000,
			OfferUpdateUTC:     1000,
			OfferExpirationUTC: 100000,
			ReshareChain:       chain,
		}
		mustUpdate(m, orgB, core.OfferSetUpdate{SourceOrgUrl: orgB, Offers: []core.Offer{offer}})

		clock.SetTime(5000)
		accepted, err := m.Accept(core.AcceptOfferPayload{
			OfferID:             core.Key{PostingOrgUrl: orgA, OfferID: "pear"}.String(),
			AcceptingOrg:        host,
			DecodedReshareChain: decoded,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(accepted.ID).To(Equal("pear"))

		for _, viewer := range []string{orgA, orgB, host} {
			page, err := m.History(viewer, core.HistoryPayload{})
			Expect(err).NotTo(HaveOccurred())
			Expect(page.Entries).To(HaveLen(1), "viewer %s", viewer)
		}

		page, err := m.History(orgC, core.HistoryPayload{})
		Expect(err).NotTo(HaveOccurred())
		Expect(page.Entries).To(BeEmpty())
	})

	// A reservation makes an offer exclusive to its holder until the
	// reservation expires, after which it reopens.
	It("makes a reservation exclusive to its holder until it expires", func() {
		offer := core.Offer{
			ID:                 "pear",
			OfferedBy:          host,
			OfferCreationUTC:   1000,
			OfferUpdateUTC:     1000,
			OfferExpirationUTC: 1000000,
		}
		mustUpdate(m, host, core.OfferSetUpdate{Offers: []core.Offer{offer}})

		key := core.Key{PostingOrgUrl: host, OfferID: "pear"}
		expiry, err := m.Reserve(core.ReserveOfferPayload{
			OfferID:                  key.String(),
			RequestedReservationSecs: 10,
			OrgUrl:                   orgA,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(expiry).To(Equal(clock.NowUTCMs() + 10000))

		patches, err := m.List(orgB, core.ListOffersPayload{Format: core.ListFormatSnapshot})
		Expect(err).NotTo(HaveOccurred())
		Expect(addedOfferIDs(patches)).To(BeEmpty())

		patches, err = m.List(orgA, core.ListOffersPayload{Format: core.ListFormatSnapshot})
		Expect(err).NotTo(HaveOccurred())
		Expect(addedOfferIDs(patches)).To(ConsistOf("pear"))

		clock.SetTime(clock.NowUTCMs() + 10000)
		swept, err := m.SweepExpiredReservations(clock.NowUTCMs())
		Expect(err).NotTo(HaveOccurred())
		Expect(swept).To(Equal(1))

		patches, err = m.List(orgB, core.ListOffersPayload{Format: core.ListFormatSnapshot})
		Expect(err).NotTo(HaveOccurred())
		Expect(addedOfferIDs(patches)).To(ConsistOf("pear"))
	})

	// A DIFF list prepends "clear" only when nothing was visible at the
	// start of the window, and otherwise reports plain adds.
	It("reports a diff list as a clear-then-adds the first time, then plain adds", func() {
		since := clock.NowUTCMs()

		clock.Advance(100)
		pearCreated := clock.NowUTCMs()
		offer := core.Offer{
			ID:                 "pear",
			OfferedBy:          host,
			OfferCreationUTC:   pearCreated,
			OfferUpdateUTC:     pearCreated,
			OfferExpirationUTC: pearCreated + 100000,
		}
		mustUpdate(m, host, core.OfferSetUpdate{Offers: []core.Offer{offer}})

		patches, err := m.List(orgA, core.ListOffersPayload{Format: core.ListFormatDiff, DiffStartTimestampUTC: since})
		Expect(err).NotTo(HaveOccurred())
		Expect(patches[0].Op).To(Equal(core.PatchOpClear))
		Expect(addedOfferIDs(patches)).To(ConsistOf("pear"))

		// checkpoint is the instant pear's listing began: a diff starting
		// here already sees pear, so only banana's later introduction
		// should show up as a plain add, with no leading "clear".
		checkpoint := pearCreated

		clock.Advance(1000)
		bananaCreated := clock.NowUTCMs()
		second := core.Offer{
			ID:                 "banana",
			OfferedBy:          host,
			OfferCreationUTC:   bananaCreated,
			OfferUpdateUTC:     bananaCreated,
			OfferExpirationUTC: bananaCreated + 100000,
		}
		mustUpdate(m, host, core.OfferSetUpdate{Offers: []core.Offer{offer, second}})

		patches, err = m.List(orgA, core.ListOffersPayload{Format: core.ListFormatDiff, DiffStartTimestampUTC: checkpoint})
		Expect(err).NotTo(HaveOccurred())
		Expect(patches[0].Op).NotTo(Equal(core.PatchOpClear))
		Expect(addedOfferIDs(patches)).To(ConsistOf("banana"))
	})

	// Rejecting an offer shortens its future listing to that org. A
	// wildcard-only policy has no per-org row for rejection to remove, so
	// this exercises UniversalAcceptPolicy configured with an explicit org
	// list (the shape that makes per-org rejection meaningful).
	It("shortens a rejecting org's future listing", func() {
		m.Policy = core.UniversalAcceptPolicy{AllowedOrgs: []string{orgA, orgB}}
		offer := core.Offer{
			ID:                 "pear",
			OfferedBy:          host,
			OfferCreationUTC:   1000,
			OfferUpdateUTC:     1000,
			OfferExpirationUTC: 100000,
		}
		mustUpdate(m, host, core.OfferSetUpdate{Offers: []core.Offer{offer}})

		Expect(m.Reject(core.RejectOfferPayload{
			RejectingOrg: orgA,
			OfferID:      core.Key{PostingOrgUrl: host, OfferID: "pear"}.String(),
			OfferedByUrl: host,
		})).To(Succeed())

		patches, err := m.List(orgA, core.ListOffersPayload{Format: core.ListFormatSnapshot})
		Expect(err).NotTo(HaveOccurred())
		Expect(addedOfferIDs(patches)).To(BeEmpty())

		patches, err = m.List(orgB, core.ListOffersPayload{Format: core.ListFormatSnapshot})
		Expect(err).NotTo(HaveOccurred())
		Expect(addedOfferIDs(patches)).To(ConsistOf("pear"))
	})

	It("rejects a stale accept with OFFER_HAS_CHANGED and reports the current offer", func() {
		offer := core.Offer{
			ID:                 "pear",
			OfferedBy:          host,
			OfferCreationUTC:   1000,
			OfferUpdateUTC:     1000,
			OfferExpirationUTC: 100000,
		}
		mustUpdate(m, host, core.OfferSetUpdate{Offers: []core.Offer{offer}})

		stale := int64(500)
		_, err := m.Accept(core.AcceptOfferPayload{
			OfferID:                    core.Key{PostingOrgUrl: host, OfferID: "pear"}.String(),
			AcceptingOrg:               host,
			IfNotNewerThanTimestampUTC: &stale,
		})
		Expect(err).To(HaveOccurred())
		Expect(cmn.IsCode(err, cmn.CodeOfferChanged)).To(BeTrue())
	})

	It("creates default producer metadata on first read and upserts on write", func() {
		md, err := m.GetProducerMetadata(orgA)
		Expect(err).NotTo(HaveOccurred())
		Expect(md.OrganizationUrl).To(Equal(orgA))

		bumped := *md
		next := md.NextRunTimestampUTC + 60000
		bumped.NextRunTimestampUTC = next
		Expect(m.PutProducerMetadata(bumped)).To(Succeed())

		md2, err := m.GetProducerMetadata(orgA)
		Expect(err).NotTo(HaveOccurred())
		Expect(md2.NextRunTimestampUTC).To(Equal(next))
	})

	It("tracks known offering orgs across Update calls", func() {
		offer := core.Offer{
			ID:                 "pear",
			OfferedBy:          orgA,
			OfferCreationUTC:   1000,
			OfferUpdateUTC:     1000,
			OfferExpirationUTC: 100000,
		}
		mustUpdate(m, orgA, core.OfferSetUpdate{SourceOrgUrl: orgA, Offers: []core.Offer{offer}})

		orgs, err := m.KnownOfferingOrgs(0)
		Expect(err).NotTo(HaveOccurred())
		var urls []string
		for _, o := range orgs {
			urls = append(urls, o.OrgUrl)
		}
		Expect(urls).To(ContainElement(orgA))
	})

	It("runs a GC pass without error after an offer is withdrawn from its corpus", func() {
		offer := core.Offer{
			ID:                 "pear",
			OfferedBy:          host,
			OfferCreationUTC:   1000,
			OfferUpdateUTC:     1000,
			OfferExpirationUTC: 100000,
		}
		mustUpdate(m, host, core.OfferSetUpdate{Offers: []core.Offer{offer}})
		mustUpdate(m, host, core.OfferSetUpdate{Offers: []core.Offer{}})

		n, err := m.GC(context.Background(), clock.NowUTCMs())
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeNumerically(">=", 0))
	})
})

func addedOfferIDs(patches []core.OfferPatch) []string {
	var ids []string
	for _, p := range patches {
		if p.Op == core.PatchOpAdd {
			ids = append(ids, p.Target.OfferID)
		}
	}
	return ids
}

func addedOffer(patches []core.OfferPatch, offerID string) core.Offer {
	for _, p := range patches {
		if p.Op == core.PatchOpAdd && p.Target.OfferID == offerID {
			return *p.NewOffer
		}
	}
	return core.Offer{}
}
