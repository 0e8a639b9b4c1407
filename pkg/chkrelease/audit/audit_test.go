package audit

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabacab/chkrelease/pkg/chkrelease/archive"
	"github.com/fabacab/chkrelease/pkg/chkrelease/scratch"
)

// tarEntry describes one member for the test archive builder.
type tarEntry struct {
	name     string
	content  string
	typeflag byte
	linkname string
}

func writeTar(t *testing.T, path string, entries []tarEntry) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	tw := tar.NewWriter(f)
	for _, e := range entries {
		flag := e.typeflag
		if flag == 0 {
			flag = tar.TypeReg
		}
		hdr := &tar.Header{
			Name:     e.name,
			Mode:     0o644,
			Size:     int64(len(e.content)),
			Typeflag: flag,
			Linkname: e.linkname,
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if flag == tar.TypeReg {
			_, err := tw.Write([]byte(e.content))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
}

func writeLive(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// newRun builds an Auditor over the given archive and root with buffered
// result and diagnostic streams.
func newRun(t *testing.T, archivePath, root string, mutate func(*Options)) (*Auditor, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var result, diag bytes.Buffer
	opts := Options{
		Archive:      archivePath,
		Root:         root,
		ResultWriter: &result,
		DiagWriter:   &diag,
		Scratch:      scratch.New(scratch.WithBase(t.TempDir())),
	}
	if mutate != nil {
		mutate(&opts)
	}
	a := New(opts)
	t.Cleanup(func() { _ = a.opts.Scratch.Release() })
	return a, &result, &diag
}

// TestAuditScenario is the canonical three-entry scenario: one match, one
// mismatch, one symlink with no live counterpart.
func TestAuditScenario(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "release.tar")
	writeTar(t, archivePath, []tarEntry{
		{name: "a.txt", content: "1"},
		{name: "b.txt", content: "2"},
		{name: "link", typeflag: tar.TypeSymlink, linkname: "a.txt"},
	})

	root := filepath.Join(dir, "live")
	writeLive(t, root, "a.txt", "1")
	writeLive(t, root, "b.txt", "X")

	a, result, _ := newRun(t, archivePath, root, nil)
	res, err := a.Run(context.Background())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(result.String(), "\n"), "\n")
	assert.Equal(t, []string{
		"b.txt does not match the archived copy",
		"link is a symbolic link, skipping",
	}, lines)

	assert.Equal(t, int64(3), res.Counters.Total)
	assert.Equal(t, int64(3), res.Counters.Audited)
	assert.Equal(t, int64(1), res.Counters.Modified)
	assert.Equal(t, int64(1), res.Counters.Skipped)
	assert.Equal(t, 1, res.ExitStatus())
	assert.False(t, res.Interrupted)
}

func TestAuditAllMatching(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "release.tar")
	writeTar(t, archivePath, []tarEntry{
		{name: "a.txt", content: "same"},
		{name: "sub/b.txt", content: "also same"},
	})

	root := filepath.Join(dir, "live")
	writeLive(t, root, "a.txt", "same")
	writeLive(t, root, "sub/b.txt", "also same")

	a, result, _ := newRun(t, archivePath, root, nil)
	res, err := a.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, result.String())
	assert.Equal(t, int64(2), res.Counters.Total)
	assert.Equal(t, int64(0), res.Counters.Modified)
	assert.Equal(t, 0, res.ExitStatus())
}

func TestAuditMissingLiveFile(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "release.tar")
	writeTar(t, archivePath, []tarEntry{
		{name: "gone.txt", content: "content"},
	})

	root := filepath.Join(dir, "live")
	require.NoError(t, os.MkdirAll(root, 0o755))

	a, result, _ := newRun(t, archivePath, root, nil)
	res, err := a.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "gone.txt does not exist\n", result.String())
	assert.Equal(t, int64(1), res.Counters.Modified)
	assert.Equal(t, 1, res.ExitStatus())
}

// An empty live file and a missing live file must classify differently
// from each other only in wording; both are modified. The absent
// sentinel must never collide with the digest of empty content.
func TestAuditEmptyFileVsMissing(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "release.tar")
	writeTar(t, archivePath, []tarEntry{
		{name: "empty.txt", content: ""},
		{name: "missing.txt", content: ""},
	})

	root := filepath.Join(dir, "live")
	writeLive(t, root, "empty.txt", "")

	a, result, _ := newRun(t, archivePath, root, nil)
	res, err := a.Run(context.Background())
	require.NoError(t, err)

	// empty.txt matches (both empty); missing.txt is reported absent.
	assert.Equal(t, "missing.txt does not exist\n", result.String())
	assert.Equal(t, int64(1), res.Counters.Modified)
}

func TestAuditSwappedWording(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "release.tar")
	writeTar(t, archivePath, []tarEntry{
		{name: "a.txt", content: "1"},
		{name: "b.txt", content: "2"},
	})

	root := filepath.Join(dir, "live")
	writeLive(t, root, "a.txt", "X")

	a, result, _ := newRun(t, archivePath, root, func(o *Options) { o.Swapped = true })
	res, err := a.Run(context.Background())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(result.String(), "\n"), "\n")
	assert.Equal(t, []string{
		"a.txt does not match the copy on disk",
		"b.txt is not in the reference directory",
	}, lines)

	// Same counters either direction.
	assert.Equal(t, int64(2), res.Counters.Modified)
}

// Role reversal must not change which paths are reported, only wording.
func TestAuditRoleReversalSameOutcome(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "release.tar")
	writeTar(t, archivePath, []tarEntry{
		{name: "a.txt", content: "1"},
		{name: "b.txt", content: "2"},
		{name: "c.txt", content: "3"},
	})

	root := filepath.Join(dir, "live")
	writeLive(t, root, "a.txt", "1")
	writeLive(t, root, "b.txt", "changed")
	writeLive(t, root, "c.txt", "3")

	paths := func(swapped bool) []string {
		a, result, _ := newRun(t, archivePath, root, func(o *Options) { o.Swapped = swapped })
		_, err := a.Run(context.Background())
		require.NoError(t, err)
		var got []string
		for _, line := range strings.Split(strings.TrimRight(result.String(), "\n"), "\n") {
			if line == "" {
				continue
			}
			got = append(got, strings.Fields(line)[0])
		}
		return got
	}

	assert.Equal(t, paths(false), paths(true))
}

func TestAuditMissingRoot(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "release.tar")
	writeTar(t, archivePath, []tarEntry{{name: "a.txt", content: "1"}})

	a, _, _ := newRun(t, archivePath, filepath.Join(dir, "nope"), nil)
	_, err := a.Run(context.Background())
	assert.Error(t, err)
}

func TestAuditMissingArchive(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "live")
	require.NoError(t, os.MkdirAll(root, 0o755))

	a, _, _ := newRun(t, filepath.Join(dir, "nope.tar"), root, nil)
	_, err := a.Run(context.Background())
	require.Error(t, err)

	var accessErr *archive.AccessError
	assert.True(t, errors.As(err, &accessErr))
}

func TestAuditCorruptArchiveIsFatal(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "release.tar")
	writeTar(t, archivePath, []tarEntry{
		{name: "a.txt", content: "1"},
		{name: "b.txt", content: strings.Repeat("x", 600)},
	})

	// Truncate into the second member's data so listing succeeds but
	// materialization cannot complete.
	require.NoError(t, os.Truncate(archivePath, 512+512+512+10))

	root := filepath.Join(dir, "live")
	writeLive(t, root, "a.txt", "1")
	writeLive(t, root, "b.txt", strings.Repeat("x", 600))

	a, _, _ := newRun(t, archivePath, root, nil)
	res, err := a.Run(context.Background())
	require.Error(t, err)

	// Counters reflect progress up to the fatal extraction.
	assert.Equal(t, int64(2), res.Counters.Total)
	assert.Equal(t, int64(1), res.Counters.Audited)
}

func TestAuditInterruption(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "release.tar")
	var entries []tarEntry
	for i := 0; i < 20; i++ {
		entries = append(entries, tarEntry{name: fmt.Sprintf("f%02d.txt", i), content: "x"})
	}
	writeTar(t, archivePath, entries)

	root := filepath.Join(dir, "live")
	require.NoError(t, os.MkdirAll(root, 0o755))

	ctx, cancel := context.WithCancel(context.Background())

	var result bytes.Buffer
	a := New(Options{
		Archive: archivePath,
		Root:    root,
		// Cancel as soon as the first result line lands: the loop must
		// notice at the next entry boundary, not mid-entry.
		ResultWriter: writerFunc(func(p []byte) (int, error) {
			cancel()
			return result.Write(p)
		}),
		DiagWriter: &bytes.Buffer{},
		Scratch:    scratch.New(scratch.WithBase(t.TempDir())),
	})

	res, err := a.Run(ctx)
	require.NoError(t, err)
	assert.True(t, res.Interrupted)

	// Exactly one entry was processed past the cancellation trigger.
	assert.Equal(t, int64(1), res.Counters.Audited)
	assert.Equal(t, int64(1), res.Counters.Modified)
	assert.LessOrEqual(t, res.Counters.Skipped, res.Counters.Audited)
	assert.LessOrEqual(t, res.Counters.Audited, res.Counters.Total)
}

func TestAuditProgressRequest(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "release.tar")
	writeTar(t, archivePath, []tarEntry{{name: "a.txt", content: "1"}})

	root := filepath.Join(dir, "live")
	writeLive(t, root, "a.txt", "1")

	a, _, diag := newRun(t, archivePath, root, nil)
	a.RequestProgress()

	_, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, diag.String(), "progress: total=0 audited=0 modified=0 skipped=0")
}

func TestAuditPeriodicProgress(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "release.tar")
	var entries []tarEntry
	for i := 0; i < 25; i++ {
		entries = append(entries, tarEntry{name: fmt.Sprintf("f%02d.txt", i), content: "x"})
	}
	writeTar(t, archivePath, entries)

	root := filepath.Join(dir, "live")
	require.NoError(t, os.MkdirAll(root, 0o755))

	a, _, diag := newRun(t, archivePath, root, func(o *Options) { o.Progress = true })
	_, err := a.Run(context.Background())
	require.NoError(t, err)

	// 25 entries at the default interval of 10 yields two snapshots.
	assert.Equal(t, 2, strings.Count(diag.String(), "progress:"))
	assert.Contains(t, diag.String(), "audited=10")
	assert.Contains(t, diag.String(), "audited=20")
}

func TestAuditUntracked(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "release.tar")
	writeTar(t, archivePath, []tarEntry{{name: "a.txt", content: "1"}})

	root := filepath.Join(dir, "live")
	writeLive(t, root, "a.txt", "1")
	writeLive(t, root, "stray.txt", "who put this here")

	a, result, _ := newRun(t, archivePath, root, func(o *Options) { o.Untracked = true })
	res, err := a.Run(context.Background())
	require.NoError(t, err)

	assert.Contains(t, result.String(), "stray.txt is not in the archive\n")
	// Untracked files never count toward the exit status.
	assert.Equal(t, int64(0), res.Counters.Modified)
	assert.Equal(t, 0, res.ExitStatus())
}

// Idempotence: two runs over unchanged inputs produce identical output
// and counters, and leave no scratch residue.
func TestAuditIdempotent(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "release.tar")
	writeTar(t, archivePath, []tarEntry{
		{name: "a.txt", content: "1"},
		{name: "b.txt", content: "2"},
	})

	root := filepath.Join(dir, "live")
	writeLive(t, root, "a.txt", "1")

	scratchBase := t.TempDir()

	runOnce := func() (string, int64) {
		area := scratch.New(scratch.WithBase(scratchBase))
		var result bytes.Buffer
		a := New(Options{
			Archive:      archivePath,
			Root:         root,
			ResultWriter: &result,
			DiagWriter:   &bytes.Buffer{},
			Scratch:      area,
		})
		res, err := a.Run(context.Background())
		require.NoError(t, err)
		require.NoError(t, area.Release())
		return result.String(), res.Counters.Modified
	}

	out1, mod1 := runOnce()
	out2, mod2 := runOnce()
	assert.Equal(t, out1, out2)
	assert.Equal(t, mod1, mod2)

	// No scratch residue after release.
	leftover, err := os.ReadDir(scratchBase)
	require.NoError(t, err)
	assert.Empty(t, leftover)
}

// writerFunc adapts a function to io.Writer.
type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) {
	return f(p)
}
