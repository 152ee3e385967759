package cleanup_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/testr"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zynqcloud/photo-storage/internal/cleanup"
)

func age(t *testing.T, fsys afero.Fs, name string, d time.Duration) {
	t.Helper()
	old := time.Now().Add(-d)
	require.NoError(t, fsys.Chtimes(name, old, old))
}

func TestSpoolRemovesStaleEntries(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/spool/old/pic.jpg", []byte("x"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/spool/fresh/pic.jpg", []byte("y"), 0o644))
	age(t, fsys, "/spool/old", 48*time.Hour)

	removed := cleanup.Spool(fsys, "/spool", 24*time.Hour, testr.New(t))
	assert.Equal(t, 1, removed)

	ok, _ := afero.DirExists(fsys, "/spool/old")
	assert.False(t, ok)
	ok, _ = afero.DirExists(fsys, "/spool/fresh")
	assert.True(t, ok)
}

func TestSpoolMissingDir(t *testing.T) {
	assert.Zero(t, cleanup.Spool(afero.NewMemMapFs(), "/nope", time.Hour, logr.Discard()))
}

func TestRunPeriodicFirstPass(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/spool/old/pic.jpg", []byte("x"), 0o644))
	age(t, fsys, "/spool/old", 2*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cleanup.RunPeriodic(ctx, fsys, "/spool", time.Hour, time.Hour, logr.Discard())

	assert.Eventually(t, func() bool {
		ok, _ := afero.DirExists(fsys, "/spool/old")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestRunPeriodicZeroIntervalRunsOnce(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/spool/old/pic.jpg", []byte("x"), 0o644))
	age(t, fsys, "/spool/old", 2*time.Hour)

	require.NotPanics(t, func() {
		cleanup.RunPeriodic(context.Background(), fsys, "/spool", time.Hour, 0, logr.Discard())
	})
	assert.Eventually(t, func() bool {
		ok, _ := afero.DirExists(fsys, "/spool/old")
		return !ok
	}, time.Second, 10*time.Millisecond)
}
