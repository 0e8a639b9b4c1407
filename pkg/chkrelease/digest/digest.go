// Package digest provides the content fingerprint used to compare archive
// members against their live-filesystem counterparts. The fingerprint is a
// 128-bit content checksum (MD5) chosen for low accidental-collision
// probability, not for tamper resistance.
package digest

import (
	"crypto/md5" //nolint:gosec // content checksum, not a security primitive
	"encoding/hex"
	"io"
	"os"
)

// Size is the fingerprint length in bytes.
const Size = md5.Size

// Fingerprint is a fixed-length content digest. The zero value is a real
// digest of nothing in particular; use Absent for the missing-file
// sentinel, which is guaranteed to compare unequal to every real digest.
type Fingerprint struct {
	sum    [Size]byte
	absent bool
}

// Absent returns the sentinel fingerprint for a path that does not exist
// or cannot be read. It never equals a computed fingerprint.
func Absent() Fingerprint {
	return Fingerprint{absent: true}
}

// IsAbsent reports whether the fingerprint is the absent sentinel.
func (f Fingerprint) IsAbsent() bool {
	return f.absent
}

// Equal reports whether two fingerprints represent identical content.
// The absent sentinel equals nothing, including another absent sentinel.
func (f Fingerprint) Equal(other Fingerprint) bool {
	if f.absent || other.absent {
		return false
	}
	return f.sum == other.sum
}

// String returns the hex encoding of the digest, or "absent" for the
// sentinel.
func (f Fingerprint) String() string {
	if f.absent {
		return "absent"
	}
	return hex.EncodeToString(f.sum[:])
}

// Reader computes the fingerprint of everything readable from r.
// It returns the number of bytes consumed alongside the fingerprint.
func Reader(r io.Reader) (Fingerprint, int64, error) {
	h := md5.New() //nolint:gosec // content checksum, not a security primitive
	n, err := io.Copy(h, r)
	if err != nil {
		return Fingerprint{}, n, err
	}

	var f Fingerprint
	copy(f.sum[:], h.Sum(nil))
	return f, n, nil
}

// File computes the fingerprint of a file's content. Any open or read
// error is returned to the caller; use FileOrAbsent when a missing path
// should map to the absent sentinel instead.
func File(path string) (Fingerprint, int64, error) {
	fh, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, 0, err
	}
	defer fh.Close()

	return Reader(fh)
}

// FileOrAbsent computes the fingerprint of a file's content, mapping a
// missing or unreadable path to the absent sentinel. This is the live-side
// entry point: per-entry filesystem absence is a comparison outcome, not
// an error.
func FileOrAbsent(path string) (Fingerprint, int64) {
	f, n, err := File(path)
	if err != nil {
		return Absent(), 0
	}
	return f, n
}
