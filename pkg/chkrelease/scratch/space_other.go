//go:build !unix

package scratch

import "errors"

// FreeBytes is unsupported off unix; callers treat the error as "skip the
// preflight check".
func FreeBytes(string) (int64, error) {
	return 0, errors.ErrUnsupported
}
