// Package reshare implements reshare-chain cryptography: an ordered list
// of JWT-signed links delegating the right to re-list or accept a
// specific offer across organizations.
//
// Built on github.com/golang-jwt/jwt/v4; the wiring shape (one Claims
// struct per link, JWTSigner.Extend / JWTVerifier.DecodeChain wrapping
// jwt.NewWithClaims / jwt.ParseWithClaims) is the idiomatic use of that library.
/*
 * Copyright (c) 2024, Open Product Recovery contributors.
 */
package reshare

// Scope restricts what a chain link's recipient may do with it.
type Scope string

const (
	ScopeReshare Scope = "RESHARE"
	ScopeAccept  Scope = "ACCEPT"
)

func HasScope(scopes []Scope, want Scope) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}

// Link is one decoded hop of a reshare chain.
type Link struct {
	SharingOrgUrl   string
	RecipientOrgUrl string
	Scopes          []Scope
	Entitlements    []string
}

// Chain is an ordered list of JWT-encoded links, as stored on an Offer or
// TimelineEntry and relayed across the wire.
type Chain []string

// DecodedChain is a Chain after verification, exposed to callers that need
// to inspect issuers (e.g. for acceptance-history visibility).
type DecodedChain []Link

// SharingOrgs returns the set of SharingOrgUrl across every link, used by
// HISTORY visibility and by the listing policy's "sharedBy" parameter.
func (c DecodedChain) SharingOrgs() []string {
	out := make([]string, len(c))
	for i, l := range c {
		out[i] = l.SharingOrgUrl
	}
	return out
}

// LastRecipient returns the recipient of the chain's final link, or "" for
// an empty chain.
func (c DecodedChain) LastRecipient() string {
	if len(c) == 0 {
		return ""
	}
	return c[len(c)-1].RecipientOrgUrl
}

// LastScopes returns the scopes of the chain's final link, or nil for an
// empty chain.
func (c DecodedChain) LastScopes() []Scope {
	if len(c) == 0 {
		return nil
	}
	return c[len(c)-1].Scopes
}
