// Package ratelimit parses server-issued backoff directives and tracks which
// telemetry categories are currently disabled.
//
// The collector answers envelope submissions with an X-Faultline-Rate-Limits
// header listing comma-separated entries of the form
//
//	retry_after:categories:scope:reason
//
// where trailing fields are optional and categories is a ;-separated list.
// An entry with no categories disables every category. Directives can arrive
// on any response, not just 429s; a 429 without the header falls back to a
// blanket limit derived from Retry-After.
//
// Parsing never fails: malformed entries are skipped, and a response that
// cannot be parsed simply teaches the limiter nothing new.
package ratelimit
