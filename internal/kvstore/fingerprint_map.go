package kvstore

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"

	"github.com/tidwall/btree"
)

// Fingerprint is a 16-byte diagnostic digest of version||key||value, per
// spec.md §4.2. Fingerprints are never a correctness or recovery witness —
// only the commit marker is (spec.md §9) — they exist purely so debug builds
// can assert an index entry was not silently corrupted out from under a scan.
type Fingerprint [16]byte

// ComputeFingerprint hashes version||key||value and truncates to 16 bytes.
func ComputeFingerprint(version uint32, key, value []byte) Fingerprint {
	h := sha256.New()
	var versionBuf [4]byte
	binary.BigEndian.PutUint32(versionBuf[:], version)
	h.Write(versionBuf[:])
	h.Write(key)
	h.Write(value)
	sum := h.Sum(nil)
	var fp Fingerprint
	copy(fp[:], sum[:16])
	return fp
}

type fpItem struct {
	key []byte
	fp  Fingerprint
}

func fpLess(a, b fpItem) bool {
	return bytes.Compare(a.key, b.key) < 0
}

// FingerprintMap is the parallel sidecar map every index-store write also
// updates (spec.md §4.2). It deliberately uses a second, independent ordered
// map implementation (tidwall/btree) from the primary store's (google/btree)
// so no code path can assume the two trees share an iteration order.
type FingerprintMap struct {
	tree *btree.BTreeG[fpItem]
}

// NewFingerprintMap constructs an empty fingerprint sidecar.
func NewFingerprintMap() *FingerprintMap {
	return &FingerprintMap{tree: btree.NewBTreeG(fpLess)}
}

// Set records the fingerprint for key.
func (f *FingerprintMap) Set(key []byte, fp Fingerprint) {
	f.tree.Set(fpItem{key: key, fp: fp})
}

// Get returns the fingerprint for key, if present.
func (f *FingerprintMap) Get(key []byte) (Fingerprint, bool) {
	it, ok := f.tree.Get(fpItem{key: key})
	if !ok {
		return Fingerprint{}, false
	}
	return it.fp, true
}

// Delete removes the fingerprint for key.
func (f *FingerprintMap) Delete(key []byte) {
	f.tree.Delete(fpItem{key: key})
}

// Clear removes every fingerprint.
func (f *FingerprintMap) Clear() {
	f.tree.Clear()
}

// Verify reports whether the fingerprint on file for key matches the
// provided version/key/value triple, recomputing it with ComputeFingerprint.
func (f *FingerprintMap) Verify(version uint32, key, value []byte) bool {
	want, ok := f.Get(key)
	if !ok {
		return false
	}
	return want == ComputeFingerprint(version, key, value)
}
