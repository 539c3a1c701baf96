package engine

import (
	"sync/atomic"

	"github.com/parafetch/parafetch/internal/engine/state"
	"github.com/parafetch/parafetch/internal/engine/types"
)

// segment is one contiguous byte range of the remote file and its backing
// scratch file. The downloaded counter is advanced only by the transfer's
// write path and read by the progress timer.
type segment struct {
	ordinal    int   // 1-based
	start, end int64 // inclusive absolute offsets
	size       int64
	path       string
	downloaded atomic.Int64
}

func (s *segment) remaining() int64 {
	return s.size - s.downloaded.Load()
}

// segmentCount picks N for a file: 1 when the origin ignores ranges,
// otherwise 1 + totalSize/span (span 50 MiB by default), capped at the
// configured maximum (8 by default).
func segmentCount(totalSize int64, supportsRanges bool, cfg *types.Config) int {
	if !supportsRanges || totalSize <= 0 {
		return 1
	}
	n := 1 + int(totalSize/cfg.GetSegmentSpan())
	if max := cfg.GetMaxSegments(); n > max {
		n = max
	}
	return n
}

// buildSegments lays out n segments tiling [0, totalSize-1]. The uniform
// chunk is totalSize/n; the last segment absorbs the remainder.
func buildSegments(id string, totalSize int64, n int) ([]*segment, error) {
	chunk := totalSize / int64(n)
	segments := make([]*segment, n)

	for i := 0; i < n; i++ {
		path, err := state.SegmentFile(id, i+1)
		if err != nil {
			return nil, err
		}
		seg := &segment{
			ordinal: i + 1,
			start:   int64(i) * chunk,
			end:     int64(i+1)*chunk - 1,
			path:    path,
		}
		if i == n-1 {
			seg.end = totalSize - 1
		}
		seg.size = seg.end - seg.start + 1
		segments[i] = seg
	}
	return segments, nil
}
