// Package identity derives the client identity used as a rate-limit key.
//
// Resolver.ClientIP returns the address of the caller. When the service runs
// behind a trusted reverse proxy, the Forwarded, X-Forwarded-For and X-Real-Ip
// headers are consulted in that order; otherwise only the connection address
// is used. Whatever the source, the value must parse as an IPv4 or IPv6
// address and is reduced to hex digits, dots and colons before it can become
// part of a storage key. When nothing usable is found the sentinel Unknown is
// returned, so all such callers share one bucket.
//
// Validate checks identities supplied by callers (user ids, api keys) before
// any storage is touched.
package identity
