// Package ir is the canonical value layer used to fingerprint states.
//
// Values form a sealed set (Null, String, Int, Bool, Array, Object) with no
// floats. MarshalCanonical renders them as RFC 8785 canonical JSON, and
// StateDigest hashes a state's canonical form with domain separation so that
// equal dumps always produce equal digests.
package ir
