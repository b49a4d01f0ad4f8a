package reshare

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// linkClaims is the JWT payload for one reshare-chain hop.
type linkClaims struct {
	jwt.RegisteredClaims
	Scopes       []Scope  `json:"scopes"`
	Entitlements []string `json:"entitlements"`
}

// Signer produces a new chain by appending one signed link with a
// specified recipient and scope set, preserving entitlements of the root.
type Signer interface {
	// Extend appends a link to prev (encoded) / prevDecoded (decoded,
	// kept in lockstep) signed by sharingOrg, naming recipientOrg and
	// scopes. When prev is empty, sharingOrg must be the offer's
	// offeredBy and entitlements must be supplied explicitly (the chain
	// root); otherwise entitlements are carried over from the root link
	// and the entitlements argument is ignored.
	Extend(prev Chain, prevDecoded DecodedChain, sharingOrg, recipientOrg string, scopes []Scope, rootEntitlements []string) (Chain, DecodedChain, error)
}

type JWTSigner struct {
	Keys KeyProvider
	// TTL bounds each link's JWT expiry; zero means no expiry claim.
	TTL time.Duration
	Now func() time.Time
}

func NewJWTSigner(keys KeyProvider, ttl time.Duration) *JWTSigner {
	return &JWTSigner{Keys: keys, TTL: ttl, Now: time.Now}
}

func (s *JWTSigner) Extend(prev Chain, prevDecoded DecodedChain, sharingOrg, recipientOrg string, scopes []Scope, rootEntitlements []string) (Chain, DecodedChain, error) {
	entitlements := rootEntitlements
	if len(prevDecoded) > 0 {
		entitlements = prevDecoded[0].Entitlements
	}

	key, method, err := s.Keys.SigningKey(sharingOrg)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	claims := linkClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   sharingOrg,
			Subject:  recipientOrg,
			IssuedAt: jwt.NewNumericDate(now()),
		},
		Scopes:       scopes,
		Entitlements: entitlements,
	}
	if s.TTL > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now().Add(s.TTL))
	}

	tok := jwt.NewWithClaims(method, claims)
	signed, err := tok.SignedString(key)
	if err != nil {
		return nil, nil, err
	}

	outChain := make(Chain, 0, len(prev)+1)
	outChain = append(outChain, prev...)
	outChain = append(outChain, signed)

	outDecoded := make(DecodedChain, 0, len(prevDecoded)+1)
	outDecoded = append(outDecoded, prevDecoded...)
	outDecoded = append(outDecoded, Link{
		SharingOrgUrl:   sharingOrg,
		RecipientOrgUrl: recipientOrg,
		Scopes:          scopes,
		Entitlements:    entitlements,
	})
	return outChain, outDecoded, nil
}
