// Key-value storage backends for the flywheel coordination layer.
//
// Includes a common Store interface and two implementations: one backed by
// Redis, one by an in-process map with TTL emulation. The client facade
// selects between them at call time, so both must expose identical
// missing-key and expiry semantics.
//
// Stores only ever see serialized string values; the Encode/Decode rules
// are applied by the facade, which keeps the serialization contract
// identical in both modes by construction.
package store
