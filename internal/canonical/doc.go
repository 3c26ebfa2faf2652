// Package canonical renders engine values (actions, mutations, states,
// effects) as canonical JSON so that recorded sessions and harness traces
// are byte-stable across runs.
//
// Canonical form:
//   - object keys sorted by UTF-16 code units (RFC 8785)
//   - strings NFC normalized, no HTML escaping
//   - integers only; floats are rejected
//
// Values are first marshaled with encoding/json, so struct tags and
// json.Marshaler implementations are honored.
package canonical
