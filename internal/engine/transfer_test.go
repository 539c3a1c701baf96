package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parafetch/parafetch/internal/limiter"
)

// stubFetcher serves segment ranges straight from a byte slice.
type stubFetcher struct {
	data []byte
	// short truncates every body to this many bytes when positive.
	short int
	// failAfter injects a read error after this many bytes when positive.
	failAfter int
}

func (s *stubFetcher) open(ctx context.Context, start, end int64, ranged bool) (io.ReadCloser, error) {
	body := s.data
	if ranged {
		body = s.data[start : end+1]
	}
	if s.short > 0 && s.short < len(body) {
		body = body[:s.short]
	}
	var r io.Reader = bytes.NewReader(body)
	if s.failAfter > 0 {
		r = io.MultiReader(bytes.NewReader(body[:s.failAfter]), &failingReader{})
	}
	return io.NopCloser(r), nil
}

type failingReader struct{}

func (*failingReader) Read([]byte) (int, error) {
	return 0, errors.New("stream torn")
}

func newTestSegment(t *testing.T, start, end int64) (*segment, *os.File) {
	t.Helper()
	seg := &segment{
		ordinal: 1,
		start:   start,
		end:     end,
		size:    end - start + 1,
		path:    filepath.Join(t.TempDir(), "seg.part1"),
	}
	f, err := os.OpenFile(seg.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	require.NoError(t, err)
	return seg, f
}

func TestTransfer_DeliversRange(t *testing.T) {
	data := []byte("0123456789abcdef")
	seg, f := newTestSegment(t, 4, 11)
	defer f.Close()

	tr := &transfer{
		seg:    seg,
		file:   f,
		fetch:  &stubFetcher{data: data},
		lim:    limiter.New(0),
		ranged: true,
		bufLen: 3, // force multiple reads
	}
	require.NoError(t, tr.run(context.Background()))

	assert.Equal(t, seg.size, seg.downloaded.Load())
	got, err := os.ReadFile(seg.path)
	require.NoError(t, err)
	assert.Equal(t, data[4:12], got)
}

func TestTransfer_ResumesMidSegment(t *testing.T) {
	data := []byte("0123456789abcdef")
	seg, f := newTestSegment(t, 0, 15)
	defer f.Close()

	// Half the segment is already on disk.
	require.NoError(t, os.WriteFile(seg.path, data[:8], 0644))
	seg.downloaded.Store(8)

	tr := &transfer{
		seg:    seg,
		file:   f,
		fetch:  &stubFetcher{data: data},
		lim:    limiter.New(0),
		ranged: true,
		bufLen: 64,
	}
	require.NoError(t, tr.run(context.Background()))

	assert.Equal(t, seg.size, seg.downloaded.Load())
	got, err := os.ReadFile(seg.path)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestTransfer_EarlyEOFIsNotAnError(t *testing.T) {
	data := []byte("0123456789abcdef")
	seg, f := newTestSegment(t, 0, 15)
	defer f.Close()

	tr := &transfer{
		seg:    seg,
		file:   f,
		fetch:  &stubFetcher{data: data, short: 5},
		lim:    limiter.New(0),
		ranged: true,
		bufLen: 64,
	}
	require.NoError(t, tr.run(context.Background()), "a dried-up stream is the stalled check's job")

	assert.Equal(t, int64(5), seg.downloaded.Load(), "counter equals the on-disk length")
}

func TestTransfer_ClampsOverDelivery(t *testing.T) {
	// A full body answered to a non-ranged single-segment request longer
	// than the segment must not grow the scratch file past its size.
	data := []byte("0123456789abcdef")
	seg, f := newTestSegment(t, 0, 7)
	defer f.Close()

	tr := &transfer{
		seg:    seg,
		file:   f,
		fetch:  &stubFetcher{data: data},
		lim:    limiter.New(0),
		ranged: false,
		bufLen: 64,
	}
	require.NoError(t, tr.run(context.Background()))

	assert.Equal(t, seg.size, seg.downloaded.Load())
	got, err := os.ReadFile(seg.path)
	require.NoError(t, err)
	assert.Equal(t, data[:8], got)
}

func TestTransfer_ReadErrorIsTransport(t *testing.T) {
	data := []byte("0123456789abcdef")
	seg, f := newTestSegment(t, 0, 15)
	defer f.Close()

	tr := &transfer{
		seg:    seg,
		file:   f,
		fetch:  &stubFetcher{data: data, failAfter: 4},
		lim:    limiter.New(0),
		ranged: true,
		bufLen: 64,
	}
	err := tr.run(context.Background())
	require.Error(t, err)

	var te *transferError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, errTransport, te.kind)
	assert.Equal(t, int64(4), seg.downloaded.Load(), "bytes delivered before the tear are kept")
}

func TestTransfer_AlreadyCompleteIsNoOp(t *testing.T) {
	seg, f := newTestSegment(t, 0, 9)
	defer f.Close()
	seg.downloaded.Store(10)

	calls := &stubFetcher{data: make([]byte, 10)}
	tr := &transfer{seg: seg, file: f, fetch: calls, lim: limiter.New(0), ranged: true, bufLen: 8}
	require.NoError(t, tr.run(context.Background()))
	assert.Equal(t, int64(10), seg.downloaded.Load())
}
