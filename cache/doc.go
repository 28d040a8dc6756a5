// Package cache provides a bounded response cache for remote API reads.
//
// The HTTP client uses it to absorb bursts of status polls: a GET
// response is stored under a key derived from the request, and repeat
// requests within the TTL are served locally instead of hitting the
// remote service (and its rate limit) again.
//
// Expiry is lazy. An entry past its TTL is deleted when read and
// reported as a miss; there is no background sweeper. When the cache is
// full, the entry with the oldest insertion time is evicted, which for
// polling workloads approximates least-recently-useful without keeping
// access bookkeeping.
//
// Key canonicalizes requests so that logically identical ones collide:
//
//	k := cache.Key("GET", "/api/v1/runs/42", map[string]string{"skip": "0"}, nil)
//	if data, ok := c.Get(k); ok {
//	    return data // fresh enough
//	}
package cache
