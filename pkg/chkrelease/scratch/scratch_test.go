package scratch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireIsIdempotent(t *testing.T) {
	base := t.TempDir()
	area := New(WithBase(base))

	first, err := area.Acquire()
	require.NoError(t, err)
	assert.DirExists(t, first)
	assert.True(t, strings.HasPrefix(filepath.Base(first), "chkrelease-"))

	second, err := area.Acquire()
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, first, area.Path())
}

func TestAcquireUniquePerArea(t *testing.T) {
	base := t.TempDir()

	a, err := New(WithBase(base)).Acquire()
	require.NoError(t, err)
	b, err := New(WithBase(base)).Acquire()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestReleaseRemovesEverything(t *testing.T) {
	area := New(WithBase(t.TempDir()))

	dir, err := area.Acquire()
	require.NoError(t, err)
	staged := filepath.Join(dir, "sub", "member")
	require.NoError(t, os.MkdirAll(filepath.Dir(staged), 0o755))
	require.NoError(t, os.WriteFile(staged, []byte("x"), 0o644))

	require.NoError(t, area.Release())
	assert.NoDirExists(t, dir)

	// Idempotent.
	require.NoError(t, area.Release())
}

func TestReleaseWithoutAcquire(t *testing.T) {
	area := New(WithBase(t.TempDir()))
	require.NoError(t, area.Release())

	// Acquire after release is refused; the run is past cleanup.
	_, err := area.Acquire()
	assert.Error(t, err)
}

func TestKeepModeSkipsRelease(t *testing.T) {
	area := New(WithBase(t.TempDir()), WithKeep(true))
	assert.True(t, area.Keep())
	assert.False(t, New(WithBase(t.TempDir())).Keep())

	dir, err := area.Acquire()
	require.NoError(t, err)
	staged := filepath.Join(dir, "member")
	require.NoError(t, os.WriteFile(staged, []byte("x"), 0o644))

	// Discard keeps staged files in keep mode.
	area.Discard(staged)
	assert.FileExists(t, staged)

	require.NoError(t, area.Release())
	assert.DirExists(t, dir)
	assert.FileExists(t, staged)
}

func TestDiscardRemovesStagedFile(t *testing.T) {
	area := New(WithBase(t.TempDir()))

	dir, err := area.Acquire()
	require.NoError(t, err)
	staged := filepath.Join(dir, "member")
	require.NoError(t, os.WriteFile(staged, []byte("x"), 0o644))

	area.Discard(staged)
	assert.NoFileExists(t, staged)

	// Discarding nothing is a no-op.
	area.Discard("")
}
