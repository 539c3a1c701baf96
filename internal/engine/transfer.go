package engine

import (
	"context"
	"io"
	"os"

	"github.com/parafetch/parafetch/internal/limiter"
	"github.com/parafetch/parafetch/internal/utils"
)

// transfer error kinds, used to pick the retry status message.
type errKind int

const (
	// errConnect: the origin could not be reached at all.
	errConnect errKind = iota
	// errTransport: the connection was established but the stream broke.
	errTransport
)

type transferError struct {
	kind errKind
	err  error
}

func (e *transferError) Error() string { return e.err.Error() }
func (e *transferError) Unwrap() error { return e.err }

// transfer drives one segment: it opens the body at the segment's resume
// offset and appends to the scratch file until the range is satisfied.
type transfer struct {
	seg    *segment
	file   *os.File // append-mode handle, owned by the engine
	fetch  fetcher
	lim    *limiter.Limiter
	ranged bool
	bufLen int
}

// run pumps the segment body into the scratch file. A nil return means the
// stream ended cleanly; whether the range is actually complete is judged by
// the engine from the on-disk counters (an early EOF is how flaky origins
// fail, and is handled by the stalled check, not here).
func (t *transfer) run(ctx context.Context) error {
	seg := t.seg
	if seg.remaining() <= 0 {
		return nil
	}

	start := seg.start + seg.downloaded.Load()
	body, err := t.fetch.open(ctx, start, seg.end, t.ranged)
	if err != nil {
		return err
	}

	// Closing the body on cancellation unblocks reads for transports that
	// do not honor the request context themselves (FTP data connections).
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			body.Close()
		case <-watchDone:
		}
	}()
	defer func() {
		close(watchDone)
		body.Close()
	}()

	buf := make([]byte, t.bufLen)
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if err := t.lim.WaitN(ctx, n); err != nil {
				return ctx.Err()
			}
			// Never write past the segment end: a misbehaving origin that
			// streams beyond the requested range must not corrupt the
			// scratch file length invariant.
			keep := int64(n)
			if rem := seg.remaining(); keep > rem {
				keep = rem
			}
			wn, werr := t.file.Write(buf[:keep])
			if werr != nil || int64(wn) != keep {
				utils.Debug("transfer %d: short write (%d/%d): %v", seg.ordinal, wn, keep, werr)
				return &transferError{kind: errTransport, err: shortWriteError(werr)}
			}
			seg.downloaded.Add(keep)
			if seg.remaining() <= 0 {
				return nil
			}
		}

		if rerr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
				// Partial delivery; the engine's stalled check decides.
				return nil
			}
			return &transferError{kind: errTransport, err: rerr}
		}
	}
}

func shortWriteError(err error) error {
	if err != nil {
		return err
	}
	return io.ErrShortWrite
}
