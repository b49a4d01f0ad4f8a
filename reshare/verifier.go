package reshare

import (
	"github.com/golang-jwt/jwt/v4"

	"github.com/CaravanStudios/opr-core-go/cmn"
)

// VerifyOptions parameterizes chain verification for its two call sites:
// local acceptance (FinalSubject = hostOrgUrl) and re-listing
// (FinalSubject = the prospective listing target).
type VerifyOptions struct {
	InitialIssuer       string
	InitialEntitlements []string
	FinalSubject        string
	// RequireScope, if non-empty, demands the final link carry this scope.
	RequireScope Scope
	// AllowEmpty permits a zero-length chain to verify successfully when
	// InitialIssuer == FinalSubject (the offer is locally originated and
	// no delegation is needed at all).
	AllowEmpty bool
}

type Verifier interface {
	VerifyChain(chain Chain, opts VerifyOptions) (DecodedChain, error)
	// DecodeChain verifies every link's signature and the issuer/recipient
	// handoff between links, and that the first link's issuer/entitlements
	// match, but does not check the final recipient or required scope —
	// used by the model's timeline recomputation to inspect a candidate
	// reshare chain (whose eventual recipient isn't known yet) before
	// picking the shortest one that qualifies for a given purpose.
	DecodeChain(chain Chain, initialIssuer string, initialEntitlements []string) (DecodedChain, error)
}

type JWTVerifier struct {
	Keys KeyProvider
}

func NewJWTVerifier(keys KeyProvider) *JWTVerifier { return &JWTVerifier{Keys: keys} }

func invalidChain(detail string) error {
	return cmn.NewError(cmn.CodeInvalidChain, nil, map[string]interface{}{"reason": detail})
}

func (v *JWTVerifier) DecodeChain(chain Chain, initialIssuer string, initialEntitlements []string) (DecodedChain, error) {
	if len(chain) == 0 {
		return DecodedChain{}, nil
	}

	decoded := make(DecodedChain, 0, len(chain))
	for i, tokStr := range chain {
		key, err := v.Keys.VerificationKey(issuerOf(tokStr))
		if err != nil {
			return nil, invalidChain("unknown issuer: " + err.Error())
		}

		var claims linkClaims
		tok, err := jwt.ParseWithClaims(tokStr, &claims, func(*jwt.Token) (interface{}, error) {
			return key, nil
		})
		if err != nil || !tok.Valid {
			return nil, invalidChain("signature verification failed")
		}

		link := Link{
			SharingOrgUrl:   claims.Issuer,
			RecipientOrgUrl: claims.Subject,
			Scopes:          claims.Scopes,
			Entitlements:    claims.Entitlements,
		}

		if i == 0 {
			if link.SharingOrgUrl != initialIssuer {
				return nil, invalidChain("first link issuer mismatch")
			}
			if !entitlementsContainAll(link.Entitlements, initialEntitlements) {
				return nil, invalidChain("entitlement mismatch")
			}
		} else {
			if link.SharingOrgUrl != decoded[i-1].RecipientOrgUrl {
				return nil, invalidChain("issuer does not match previous recipient")
			}
		}
		decoded = append(decoded, link)
	}
	return decoded, nil
}

func (v *JWTVerifier) VerifyChain(chain Chain, opts VerifyOptions) (DecodedChain, error) {
	if len(chain) == 0 {
		if opts.AllowEmpty && opts.InitialIssuer == opts.FinalSubject {
			return DecodedChain{}, nil
		}
		return nil, invalidChain("empty chain")
	}

	decoded, err := v.DecodeChain(chain, opts.InitialIssuer, opts.InitialEntitlements)
	if err != nil {
		return nil, err
	}

	last := decoded[len(decoded)-1]
	if last.RecipientOrgUrl != opts.FinalSubject {
		return nil, invalidChain("final subject mismatch")
	}
	if opts.RequireScope != "" && !HasScope(last.Scopes, opts.RequireScope) {
		return nil, invalidChain("missing required scope " + string(opts.RequireScope))
	}
	return decoded, nil
}

// issuerOf reads the unverified issuer claim so the verifier knows which
// org's key to try; the signature check below is what actually proves
// authenticity, so trusting this claim for key lookup alone is safe.
func issuerOf(tokStr string) string {
	var claims linkClaims
	_, _, _ = new(jwt.Parser).ParseUnverified(tokStr, &claims)
	return claims.Issuer
}

func entitlementsContainAll(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, h := range have {
		set[h] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}
