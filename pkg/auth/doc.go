// Package auth resolves who is calling: it verifies bearer session tokens,
// carries the resulting Session through the request context and looks up
// caller profiles (email and role) from the profiles table.
//
// # Roles
//
// A single Role enum replaces string comparisons at call sites. Whether a
// role may read the audit log is answered by one predicate:
//
//	if !profile.Role.CanReadAuditLog() {
//		return ErrForbidden
//	}
//
// # Session verification
//
// Two verifiers are provided. JWTVerifier checks HS256 access tokens issued
// by the hosted auth backend using its shared secret. OIDCVerifier checks
// RS256 ID tokens against an OpenID Connect issuer's published keys.
//
// # Profiles
//
// SQLProfileStore reads the profiles table. CachedProfileStore (in-process,
// expiring LRU) and RedisProfileStore (shared) decorate any ProfileStore.
// Misses are never cached.
package auth
