// Package auth resolves bearer credentials into rbac principals.
//
// Two credential kinds are accepted:
//
//   - Opaque API tokens ("gh_" + base64url of 32 random bytes). Only the hex
//     sha256 of a token is stored; lookups are by hash.
//   - OIDC ID tokens from the configured issuer, verified with go-oidc. The
//     subject claim must already be linked to a local user.
//
// Chain combines authenticators so one Authorization header can carry either.
// The same TokenGenerator issues OAuth client secrets ("ghs_" prefix).
package auth
