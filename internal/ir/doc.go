// Package ir provides the constrained value types shared by the query IR,
// the compiler, and the executor.
//
// Values form a sealed union (Null, String, Int, Float, Bool, List). The
// sealed interface keeps predicate values statically auditable: a backend
// either handles a variant or the type switch makes the omission visible.
//
// The package also provides canonical JSON serialization (sorted keys, NFC
// normalized strings, no HTML escaping). Canonical bytes are the basis for
// content-addressed query hashes, which in turn are how plan determinism is
// audited: the same query must always hash and compile to the same bytes.
package ir
