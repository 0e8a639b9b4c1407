// Package archive provides the entry source for the audit loop: a
// forward-only iterator over a tar archive's members, with on-demand
// materialization of one member's content at a time.
//
// The archive is never unpacked up front. Each call to Materialize stages
// exactly the current member into the caller's scratch area, keeping disk
// usage proportional to the largest single member rather than the whole
// release.
package archive

import (
	"archive/tar"
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fabacab/chkrelease/pkg/chkrelease/types"
)

// Source iterates a tar archive in storage order. It is single-pass:
// entries are surfaced exactly once, and a member can only be materialized
// while it is the current entry.
type Source struct {
	path string
	file *os.File
	dec  io.Closer // decompressor, nil for plain tar
	tr   *tar.Reader

	current      *types.Entry
	materialized bool
	surfaced     int64
}

// Open opens the archive at path and prepares it for iteration.
// Compressed archives (gzip, zstd, bzip2) are detected by magic bytes and
// decompressed transparently. Any failure here is an AccessError.
func Open(path string) (*Source, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &AccessError{Path: path, Err: err}
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, &AccessError{Path: path, Err: err}
	}
	if info.IsDir() {
		file.Close()
		return nil, &AccessError{Path: path, Err: errors.New("is a directory, not an archive")}
	}

	br := bufio.NewReader(file)
	reader, dec, err := wrapCompression(br)
	if err != nil {
		file.Close()
		return nil, &AccessError{Path: path, Err: err}
	}

	return &Source{
		path: path,
		file: file,
		dec:  dec,
		tr:   tar.NewReader(reader),
	}, nil
}

// Path returns the archive path the source was opened from.
func (s *Source) Path() string {
	return s.path
}

// Surfaced returns the number of entries handed out by Next so far.
func (s *Source) Surfaced() int64 {
	return s.surfaced
}

// Next advances to the next non-directory member and returns it.
// Directories never surface. It returns io.EOF when the archive is
// exhausted and an AccessError if the archive cannot be read further,
// which indicates corruption rather than drift.
func (s *Source) Next() (*types.Entry, error) {
	for {
		hdr, err := s.tr.Next()
		if errors.Is(err, io.EOF) {
			s.current = nil
			return nil, io.EOF
		}
		if err != nil {
			s.current = nil
			return nil, &AccessError{Path: s.path, Err: err}
		}

		entryType := classify(hdr)
		if entryType == types.TypeDirectory {
			continue
		}

		s.current = &types.Entry{
			Path:     normalizeName(hdr.Name),
			Type:     entryType,
			Size:     hdr.Size,
			Linkname: hdr.Linkname,
		}
		s.materialized = false
		s.surfaced++
		return s.current, nil
	}
}

// Materialize extracts the current member's content into destDir, placing
// it under the member's relative path, and returns the staged path. It
// must be called at most once per entry, before the next call to Next.
// Failure is an ExtractError: the run must abort, a member that cannot be
// materialized means the archive is malformed.
func (s *Source) Materialize(destDir string) (string, error) {
	if s.current == nil {
		return "", &ExtractError{Member: "", Err: errors.New("no current entry")}
	}
	if s.materialized {
		return "", &ExtractError{Member: s.current.Path, Err: errors.New("already materialized")}
	}
	if s.current.Type != types.TypeRegular {
		return "", &ExtractError{Member: s.current.Path, Err: fmt.Errorf("cannot materialize %s entry", s.current.Type)}
	}

	rel, err := safeRelPath(s.current.Path)
	if err != nil {
		return "", &ExtractError{Member: s.current.Path, Err: err}
	}

	staged := filepath.Join(destDir, rel)
	if err := os.MkdirAll(filepath.Dir(staged), 0o755); err != nil {
		return "", &ExtractError{Member: s.current.Path, Err: err}
	}

	out, err := os.OpenFile(staged, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", &ExtractError{Member: s.current.Path, Err: err}
	}

	if _, err := io.Copy(out, s.tr); err != nil {
		out.Close()
		os.Remove(staged)
		return "", &ExtractError{Member: s.current.Path, Err: err}
	}
	if err := out.Close(); err != nil {
		os.Remove(staged)
		return "", &ExtractError{Member: s.current.Path, Err: err}
	}

	s.materialized = true
	return staged, nil
}

// Close releases the underlying file and any decompressor.
func (s *Source) Close() error {
	var errs []error
	if s.dec != nil {
		errs = append(errs, s.dec.Close())
	}
	if s.file != nil {
		errs = append(errs, s.file.Close())
	}
	return errors.Join(errs...)
}

// classify maps a tar header to an entry type tag.
func classify(hdr *tar.Header) types.EntryType {
	switch hdr.Typeflag {
	case tar.TypeReg:
		return types.TypeRegular
	case tar.TypeSymlink:
		return types.TypeSymlink
	case tar.TypeDir:
		return types.TypeDirectory
	default:
		return types.TypeOther
	}
}

// normalizeName strips the "./" prefix GNU tar commonly records so that
// member paths join cleanly against the comparison root.
func normalizeName(name string) string {
	name = strings.TrimPrefix(name, "./")
	return strings.TrimSuffix(name, "/")
}

// safeRelPath rejects member names that would escape the staging
// directory (absolute paths or ".." traversal).
func safeRelPath(name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("absolute member path %q", name)
	}
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("member path %q escapes the staging area", name)
	}
	return clean, nil
}
