// Package textutil provides the deterministic text transforms the planner and
// identification engine share: filesystem-safe path segments, normalized
// provider queries, and token-vector similarity.
package textutil
