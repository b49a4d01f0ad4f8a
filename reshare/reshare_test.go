package reshare_test

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/CaravanStudios/opr-core-go/cmn"
	"github.com/CaravanStudios/opr-core-go/reshare"
)

var _ = Describe("reshare chain", func() {
	var (
		keys     reshare.StaticHMACKeys
		signer   *reshare.JWTSigner
		verifier *reshare.JWTVerifier
	)

	BeforeEach(func() {
		keys = reshare.StaticHMACKeys{
			"https://a": []byte("secret-a"),
			"https://b": []byte("secret-b"),
			"https://host": []byte("secret-host"),
		}
		signer = reshare.NewJWTSigner(keys, time.Hour)
		verifier = reshare.NewJWTVerifier(keys)
	})

	It("verifies a single-hop chain end to end (scenario A)", func() {
		chain, decoded, err := signer.Extend(nil, nil, "https://a", "https://b", []reshare.Scope{reshare.ScopeAccept}, []string{"pear"})
		Expect(err).NotTo(HaveOccurred())
		Expect(chain).To(HaveLen(1))

		got, err := verifier.VerifyChain(chain, reshare.VerifyOptions{
			InitialIssuer:       "https://a",
			InitialEntitlements: []string{"pear"},
			FinalSubject:        "https://b",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(decoded))
	})

	It("verifies a reshared, then locally-accepted two-hop chain (scenario B)", func() {
		chain, decoded, err := signer.Extend(nil, nil, "https://a", "https://b", []reshare.Scope{reshare.ScopeReshare}, []string{"pear"})
		Expect(err).NotTo(HaveOccurred())

		chain, decoded, err = signer.Extend(chain, decoded, "https://b", "https://host", []reshare.Scope{reshare.ScopeAccept}, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(chain).To(HaveLen(2))

		got, err := verifier.VerifyChain(chain, reshare.VerifyOptions{
			InitialIssuer:       "https://a",
			InitialEntitlements: []string{"pear"},
			FinalSubject:        "https://host",
			RequireScope:        reshare.ScopeAccept,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(got.SharingOrgs()).To(Equal([]string{"https://a", "https://b"}))
	})

	It("fails with INVALID_CHAIN when a link is tampered with", func() {
		chain, _, err := signer.Extend(nil, nil, "https://a", "https://b", []reshare.Scope{reshare.ScopeAccept}, []string{"pear"})
		Expect(err).NotTo(HaveOccurred())

		tampered := make(reshare.Chain, len(chain))
		copy(tampered, chain)
		tampered[0] = tampered[0] + "x"

		_, err = verifier.VerifyChain(tampered, reshare.VerifyOptions{
			InitialIssuer:       "https://a",
			InitialEntitlements: []string{"pear"},
			FinalSubject:        "https://b",
		})
		Expect(err).To(HaveOccurred())
		Expect(cmn.IsCode(err, cmn.CodeInvalidChain)).To(BeTrue())
	})

	It("fails with INVALID_CHAIN on entitlement mismatch", func() {
		chain, _, err := signer.Extend(nil, nil, "https://a", "https://b", []reshare.Scope{reshare.ScopeAccept}, []string{"pear"})
		Expect(err).NotTo(HaveOccurred())

		_, err = verifier.VerifyChain(chain, reshare.VerifyOptions{
			InitialIssuer:       "https://a",
			InitialEntitlements: []string{"banana"},
			FinalSubject:        "https://b",
		})
		Expect(err).To(HaveOccurred())
		Expect(cmn.IsCode(err, cmn.CodeInvalidChain)).To(BeTrue())
	})

	It("allows an empty chain only when issuer equals final subject", func() {
		decoded, err := verifier.VerifyChain(nil, reshare.VerifyOptions{
			InitialIssuer: "https://host",
			FinalSubject:  "https://host",
			AllowEmpty:    true,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(decoded).To(BeEmpty())

		_, err = verifier.VerifyChain(nil, reshare.VerifyOptions{
			InitialIssuer: "https://a",
			FinalSubject:  "https://host",
			AllowEmpty:    true,
		})
		Expect(err).To(HaveOccurred())
	})
})
