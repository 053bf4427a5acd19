// Package cachestore caches small string values (identity lookups, mostly) with a fixed TTL.
//
// Values are namespaced so that unrelated callers can share one store. An in-process LRU is the default; a Redis
// backend lets several crawler processes share resolutions.
package cachestore
