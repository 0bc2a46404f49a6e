// Package auth issues and verifies the bearer tokens that guard the
// gateway's admin API.
//
// Tokens are HS256 JWTs signed with the configured secret. They carry a
// subject (who the token was issued to) and a role. Verification is by
// signature and expiry only; there is no server-side token store.
package auth
