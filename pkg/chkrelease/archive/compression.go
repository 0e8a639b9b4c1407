package archive

import (
	"compress/bzip2"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Magic byte prefixes for the supported compression formats.
var (
	magicGzip  = []byte{0x1f, 0x8b}
	magicZstd  = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicBzip2 = []byte{'B', 'Z', 'h'}
)

// peeker is the subset of *bufio.Reader needed for format sniffing.
type peeker interface {
	io.Reader
	Peek(n int) ([]byte, error)
}

// wrapCompression sniffs the archive's leading bytes and returns a reader
// that yields the decompressed tar stream, plus a closer for any
// decompressor that needs one. A stream with no recognized magic is
// assumed to be plain tar; the tar reader reports corruption on its own.
func wrapCompression(r peeker) (io.Reader, io.Closer, error) {
	head, err := r.Peek(4)
	if err != nil && len(head) == 0 {
		// Empty or unreadable stream: hand it to tar as-is.
		return r, nil, nil
	}

	switch {
	case hasPrefix(head, magicGzip):
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return gz, gz, nil

	case hasPrefix(head, magicZstd):
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		rc := dec.IOReadCloser()
		return rc, rc, nil

	case hasPrefix(head, magicBzip2):
		// compress/bzip2 has no Close.
		return bzip2.NewReader(r), nil, nil

	default:
		return r, nil, nil
	}
}

// hasPrefix reports whether b starts with prefix. Unlike bytes.HasPrefix
// it tolerates a short b from a truncated Peek.
func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}
