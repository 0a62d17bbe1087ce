package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dump struct {
	Tasks []uint64
	Files map[string]int64
}

func TestStateDigest_Deterministic(t *testing.T) {
	a := dump{Tasks: []uint64{1, 2}, Files: map[string]int64{"/a": 1, "/b": 2, "/c": 3}}
	b := dump{Tasks: []uint64{1, 2}, Files: map[string]int64{"/c": 3, "/b": 2, "/a": 1}}

	da, err := StateDigest(a)
	require.NoError(t, err)
	db, err := StateDigest(b)
	require.NoError(t, err)

	assert.Equal(t, da, db)
	assert.Len(t, da, 64)
	assert.Regexp(t, `^[0-9a-f]{64}$`, da)
}

func TestStateDigest_ChangesWithContent(t *testing.T) {
	a := MustStateDigest(dump{Tasks: []uint64{1, 2}})
	b := MustStateDigest(dump{Tasks: []uint64{2, 1}})
	assert.NotEqual(t, a, b)
}

func TestStateDigest_DomainSeparated(t *testing.T) {
	v := dump{Tasks: []uint64{1}}
	canonical, err := MarshalCanonical(mustFromGo(t, v))
	require.NoError(t, err)

	plain := sha256.Sum256(canonical)
	assert.NotEqual(t, hex.EncodeToString(plain[:]), MustStateDigest(v))
	assert.Equal(t, hashWithDomain(DomainState, canonical), MustStateDigest(v))
}

func TestHashWithDomain_NullSeparator(t *testing.T) {
	// "ab" + 0x00 + "c" must differ from "a" + 0x00 + "bc".
	assert.NotEqual(t, hashWithDomain("ab", []byte("c")), hashWithDomain("a", []byte("bc")))
}

func TestMustStateDigest_Panics(t *testing.T) {
	assert.Panics(t, func() { MustStateDigest(func() {}) })
	assert.Panics(t, func() { MustStateDigest(1.5) })
}

func mustFromGo(t *testing.T, v any) Value {
	t.Helper()
	iv, err := FromGo(v)
	require.NoError(t, err)
	return iv
}
