// Package jwt signs and verifies short-lived access tokens.
//
// Verification is stateless: signature, algorithm, kid, issuer, audience and
// expiry. Revocation of access tokens happens only through expiry.
package jwt
