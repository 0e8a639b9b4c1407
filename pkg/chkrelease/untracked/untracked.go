// Package untracked walks the comparison root and lists regular files
// that are not members of the reference archive. It runs after the audit
// loop, so the member set is complete by the time it is consulted.
package untracked

import (
	"io/fs"
	"path/filepath"
	"sort"
	"sync"

	"github.com/charlievieth/fastwalk"
)

// Find walks root and returns the slash-separated relative paths of
// regular files that do not appear in known, sorted for deterministic
// output. Unreadable subtrees are skipped rather than failing the
// listing.
func Find(root string, known map[string]struct{}) ([]string, error) {
	conf := fastwalk.Config{
		Follow: false, // Don't follow symlinks.
	}

	var (
		mu     sync.Mutex
		extras []string
	)

	err := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// An unreadable entry is not the audit's concern here.
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if _, ok := known[rel]; ok {
			return nil
		}

		mu.Lock()
		extras = append(extras, rel)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(extras)
	return extras, nil
}
