package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parafetch/parafetch/internal/engine/types"
)

func TestSegmentCount(t *testing.T) {
	cfg := &types.Config{}

	tests := []struct {
		name           string
		totalSize      int64
		supportsRanges bool
		want           int
	}{
		{"no range support", 500 * types.MB, false, 1},
		{"tiny file", 11, true, 1},
		{"just under one span", 50*types.MB - 1, true, 1},
		{"one span", 50 * types.MB, true, 2},
		{"250 MiB", 250 * types.MB, true, 6},
		{"huge file hits cap", 10 * types.GB, true, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, segmentCount(tt.totalSize, tt.supportsRanges, cfg))
		})
	}
}

func TestBuildSegments_Tiling(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())

	tests := []struct {
		name      string
		totalSize int64
		n         int
	}{
		{"divisible", 600, 6},
		{"remainder", 1001, 4},
		{"single", 11, 1},
		{"more segments than bytes would allow evenly", 10, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segments, err := buildSegments("aabb", tt.totalSize, tt.n)
			require.NoError(t, err)
			require.Len(t, segments, tt.n)

			assert.Equal(t, int64(0), segments[0].start)
			assert.Equal(t, tt.totalSize-1, segments[tt.n-1].end)

			var covered int64
			for i, seg := range segments {
				assert.Equal(t, i+1, seg.ordinal)
				assert.Equal(t, seg.end-seg.start+1, seg.size)
				if i > 0 {
					assert.Equal(t, segments[i-1].end+1, seg.start, "segments must be contiguous")
				}
				covered += seg.size
			}
			assert.Equal(t, tt.totalSize, covered, "segments must cover the file exactly")

			// All segments except the last share the uniform chunk size.
			chunk := tt.totalSize / int64(tt.n)
			for _, seg := range segments[:tt.n-1] {
				assert.Equal(t, chunk, seg.size)
			}
		})
	}
}
