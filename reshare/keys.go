package reshare

import "github.com/golang-jwt/jwt/v4"

// KeyProvider resolves the key material each org signs and verifies with.
// The outer multi-tenant config layer (out of scope for this engine) is
// expected to supply a concrete implementation backed by JWKS/KMS; this
// package only depends on the narrow contract.
type KeyProvider interface {
	// SigningKey returns the key and method this node uses when acting as
	// orgUrl (i.e. when orgUrl is the local hostOrgUrl).
	SigningKey(orgUrl string) (key interface{}, method jwt.SigningMethod, err error)
	// VerificationKey returns the key used to verify a link whose issuer is
	// orgUrl.
	VerificationKey(orgUrl string) (key interface{}, err error)
}

// StaticHMACKeys is a simple in-memory KeyProvider keyed by org URL,
// sufficient for tests and for single-process deployments where every
// participating org's shared secret is configured locally.
type StaticHMACKeys map[string][]byte

func (k StaticHMACKeys) SigningKey(orgUrl string) (interface{}, jwt.SigningMethod, error) {
	secret, ok := k[orgUrl]
	if !ok {
		return nil, nil, &UnknownOrgError{OrgUrl: orgUrl}
	}
	return secret, jwt.SigningMethodHS256, nil
}

func (k StaticHMACKeys) VerificationKey(orgUrl string) (interface{}, error) {
	secret, ok := k[orgUrl]
	if !ok {
		return nil, &UnknownOrgError{OrgUrl: orgUrl}
	}
	return secret, nil
}

type UnknownOrgError struct{ OrgUrl string }

func (e *UnknownOrgError) Error() string { return "reshare: unknown signing org " + e.OrgUrl }
