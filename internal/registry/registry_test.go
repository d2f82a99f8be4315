package registry

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/danmuck/cratectl/internal/semver"
	"github.com/danmuck/cratectl/internal/testutil/testlog"
)

func open(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func req(t *testing.T, s string) semver.Req {
	t.Helper()
	r, err := semver.ParseReq(s)
	require.NoError(t, err)
	return r
}

func TestPutAndFeatures(t *testing.T) {
	testlog.Start(t)
	db := open(t)

	require.NoError(t, db.Put("rodio", "0.9.2", []string{"default", "flac", "vorbis", "wav"}))

	feats, ok, err := db.Features("rodio", req(t, "0.9"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"default", "flac", "vorbis", "wav"}, feats)

	_, ok, err = db.Features("rodio", req(t, "0.10"))
	require.NoError(t, err)
	require.False(t, ok, "requirement outside the indexed range must not match")

	_, ok, err = db.Features("cpal", req(t, "*"))
	require.NoError(t, err)
	require.False(t, ok, "unknown crate must report not found")
}

func TestFeaturesPicksHighestMatching(t *testing.T) {
	testlog.Start(t)
	db := open(t)

	require.NoError(t, db.Put("shred", "0.7.0", []string{"default"}))
	require.NoError(t, db.Put("shred", "0.7.2", []string{"default", "nightly"}))
	require.NoError(t, db.Put("shred", "0.8.0", []string{"default", "nightly", "parallel"}))

	feats, ok, err := db.Features("shred", req(t, "0.7"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"default", "nightly"}, feats)
}

func TestPutReplacesFeatures(t *testing.T) {
	testlog.Start(t)
	db := open(t)

	require.NoError(t, db.Put("serde", "1.0.0", []string{"std"}))
	require.NoError(t, db.Put("serde", "1.0.0", []string{"derive", "std"}))

	feats, ok, err := db.Features("serde", req(t, "1"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"derive", "std"}, feats)
}

func TestPutRejectsBadVersion(t *testing.T) {
	testlog.Start(t)
	db := open(t)

	require.Error(t, db.Put("serde", "1.0", nil))
}

func TestImportDump(t *testing.T) {
	testlog.Start(t)
	db := open(t)

	dump := strings.Join([]string{
		`{"name": "rodio", "version": "0.9.2", "features": ["flac", "vorbis"]}`,
		``,
		`{"name": "shred", "version": "0.7.2", "features": ["nightly"]}`,
		`not json`,
		`{"name": "", "version": "1.0.0"}`,
	}, "\n")

	sum, err := db.ImportDump(strings.NewReader(dump))
	require.NoError(t, err)
	require.NotEmpty(t, sum.ID)
	require.Equal(t, 2, sum.Crates)
	require.Equal(t, 2, sum.Skipped)

	feats, ok, err := db.Features("shred", req(t, "0.7"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"nightly"}, feats)
}
