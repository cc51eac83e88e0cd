// Package cache provides a Redis-backed response cache for PokeAPI JSON
// resources.
//
// PokeAPI data changes rarely and the service asks clients to cache locally.
// The cache manager stores whole responses keyed by endpoint so repeated
// harvest runs do not re-download every generation and species document:
//
// - TTL from Cache-Control max-age, falling back to Expires, then DefaultTTL
// - ETag support for conditional requests (If-None-Match)
// - Last-Modified support (If-Modified-Since)
// - Deterministic cache key generation
// - Prometheus metrics for observability
//
// The cache only ever holds transport responses. The harvested dataset is
// always rebuilt and written as a flat file.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient)
//
//	key := cache.CacheKey{Endpoint: "/api/v2/generation/1/"}
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the API, then:
//		entry, _ = cache.ResponseToEntry(resp)
//		_ = manager.Set(ctx, key, entry)
//	}
//
// # Conditional Requests
//
//	if cache.ShouldMakeConditionalRequest(entry) {
//		cache.AddConditionalHeaders(req, entry)
//		// the API answers 304 if the document is unchanged
//	}
//
// # Metrics
//
//   - harvester_cache_hits_total{layer="redis"}
//   - harvester_cache_misses_total
//   - harvester_cache_size_bytes{layer="redis"}
//   - harvester_304_responses_total
//   - harvester_cache_errors_total{operation}
package cache
