package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupScratch(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)
	return tmp
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	setupScratch(t)

	meta := Meta{
		URL:       "https://example.com/big.iso",
		OutputDir: "/downloads",
		Filename:  "big.iso",
		Segments:  6,
		TotalSize: 250 << 20,
	}
	require.NoError(t, Save("deadbeef", meta))

	got, err := Load("deadbeef")
	require.NoError(t, err)
	assert.Equal(t, meta, got)
}

func TestLoad_Missing(t *testing.T) {
	setupScratch(t)

	_, err := Load("nope")
	assert.ErrorIs(t, err, ErrStateMissing)
}

func TestLoad_Corrupt(t *testing.T) {
	setupScratch(t)

	tests := []struct {
		name    string
		content string
	}{
		{"truncated", "https://example.com/x\n/out"},
		{"bad segment count", "u\n/out\nx\nzero\n100"},
		{"zero segments", "u\n/out\nx\n0\n100"},
		{"bad size", "u\n/out\nx\n4\nlarge"},
		{"zero size", "u\n/out\nx\n4\n0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := StateFile("corrupt")
			require.NoError(t, err)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			_, err = Load("corrupt")
			assert.ErrorIs(t, err, ErrStateMissing)
		})
	}
}

func TestSegmentSize(t *testing.T) {
	setupScratch(t)

	size, err := SegmentSize("abc", 1)
	require.NoError(t, err)
	assert.Zero(t, size, "missing segment counts as zero bytes")

	path, err := SegmentFile("abc", 1)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("12345"), 0644))

	size, err = SegmentSize("abc", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)
}

func TestMerge_Order(t *testing.T) {
	setupScratch(t)
	outDir := t.TempDir()

	parts := []string{"HELLO", " ", "WORLD"}
	for i, content := range parts {
		path, err := SegmentFile("m1", i+1)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}

	merged, err := Merge("m1", outDir, 3)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "m1.downloaded"), merged)

	data, err := os.ReadFile(merged)
	require.NoError(t, err)
	assert.Equal(t, "HELLO WORLD", string(data))
}

func TestMerge_MissingSegmentFails(t *testing.T) {
	setupScratch(t)
	outDir := t.TempDir()

	path, err := SegmentFile("m2", 1)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("only one"), 0644))

	_, err = Merge("m2", outDir, 2)
	require.Error(t, err)

	// The partial merge target must not linger.
	_, statErr := os.Stat(filepath.Join(outDir, "m2.downloaded"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestCleanup(t *testing.T) {
	setupScratch(t)

	require.NoError(t, Save("c1", Meta{URL: "u", OutputDir: "o", Filename: "f", Segments: 2, TotalSize: 10}))
	for i := 1; i <= 2; i++ {
		path, err := SegmentFile("c1", i)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	}

	Cleanup("c1", 2)

	_, err := Load("c1")
	assert.ErrorIs(t, err, ErrStateMissing)
	for i := 1; i <= 2; i++ {
		size, err := SegmentSize("c1", i)
		require.NoError(t, err)
		assert.Zero(t, size)
	}

	root, err := Root()
	require.NoError(t, err)
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), "c1", "no residue for cleaned id")
	}
}

func TestLock_SingleOwner(t *testing.T) {
	setupScratch(t)

	fl, err := Lock("owned")
	require.NoError(t, err)
	defer fl.Unlock()

	_, err = Lock("owned")
	assert.Error(t, err, "second acquisition of the same id must fail")

	fl2, err := Lock("other")
	require.NoError(t, err)
	fl2.Unlock()
}

func TestList(t *testing.T) {
	setupScratch(t)

	require.NoError(t, Save("l1", Meta{URL: "u1", OutputDir: "o", Filename: "a", Segments: 1, TotalSize: 5}))
	require.NoError(t, Save("l2", Meta{URL: "u2", OutputDir: "o", Filename: "b", Segments: 3, TotalSize: 9}))

	// A stray corrupt record is skipped, not fatal.
	path, err := StateFile("bad")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("junk"), 0644))

	list, err := List()
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, "u1", list["l1"].URL)
	assert.Equal(t, 3, list["l2"].Segments)
}

func TestDownloaded(t *testing.T) {
	setupScratch(t)

	for i, content := range []string{"1234", "56"} {
		path, err := SegmentFile("d1", i+1)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}

	assert.Equal(t, int64(6), Downloaded("d1", 2))
	assert.Equal(t, int64(6), Downloaded("d1", 3), "missing third segment adds zero")
}
