// Package providercache memoizes provider responses in a namespaced,
// versioned sqlite store. Keys are canonical tuples of provider, request
// kind, normalized query, and client version; payloads are canonical bytes
// guarded by a checksum. Eviction removes the oldest insertions first so
// cache behavior is identical across reruns.
package providercache
