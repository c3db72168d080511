// Package cache fronts a sheet source with a short-lived read cache keyed by
// sheet identifier. Serving data up to one TTL old is accepted; the cache is
// not needed for correctness.
package cache
