package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for digests. The version suffix allows the algorithm to
// change without colliding with stored digests.
const (
	DomainState = "kmc/state/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data) as lowercase hex.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// StateDigest fingerprints a state dump: the state is converted through its
// JSON form, canonicalized and hashed. Equal dumps give equal digests
// regardless of map iteration order.
func StateDigest(state any) (string, error) {
	v, err := FromGo(state)
	if err != nil {
		return "", fmt.Errorf("state digest: %w", err)
	}
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("state digest: %w", err)
	}
	return hashWithDomain(DomainState, canonical), nil
}

// MustStateDigest is like StateDigest but panics on error.
// Use only in tests or when the state is known to be marshalable.
func MustStateDigest(state any) string {
	d, err := StateDigest(state)
	if err != nil {
		panic(err)
	}
	return d
}
