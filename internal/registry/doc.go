// Package registry holds the two versioned vocabularies queries resolve
// against: frames (interpretation policies) and expectations (obligation
// rules that make absence computable).
//
// Both registries are in-memory, safe for concurrent use, and versioned.
// Definitions are immutable once registered; "latest" is a resolvable alias
// computed from the version set, never a mutable pointer. Definition files
// are CUE, loaded through the CUE Go API.
package registry
