// Package engine implements the parallel segmented download engine: probe,
// segment planning, the concurrent pump, pause/resume/cancel, transient
// recovery, and final reassembly.
package engine

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/parafetch/parafetch/internal/engine/events"
	"github.com/parafetch/parafetch/internal/engine/state"
	"github.com/parafetch/parafetch/internal/engine/types"
	"github.com/parafetch/parafetch/internal/limiter"
	"github.com/parafetch/parafetch/internal/utils"
)

// Terminal messages, matching what observers display verbatim.
const (
	MsgCompleted    = "Completed"
	MsgMergeError   = "Merge Error"
	MsgCancelled    = "Cancelled"
	MsgInitFailed   = "Initialization failed"
	MsgProbeFailed  = "Could not connect to server."
	MsgStateMissing = "Resume failed: State missing"
	MsgFileAccess   = "File access error"
)

// Status strings emitted on phase transitions.
const (
	statusConnecting  = "Connecting..."
	statusPaused      = "Paused"
	statusMerging     = "Merging files..."
	statusNetworkLost = "Network lost. Retrying..."
	statusConnDropped = "Connection dropped. Retrying..."
	statusStalled     = "Stream stalled. Retrying..."
	statusResumed     = "Resumed"
)

type pumpOutcome int

const (
	pumpComplete pumpOutcome = iota
	pumpPaused
	pumpCancelled
	pumpRetry
)

// Engine manages the lifecycle of one download. Public operations may be
// called from any goroutine; all mutable download state is owned by the
// worker goroutine spawned by Start or Resume. Events are delivered from
// that worker, in order, to every attached observer.
type Engine struct {
	cfg        *types.Config
	dispatcher events.Dispatcher

	mu             sync.Mutex
	id             string
	url            string
	outputDir      string
	filename       string
	totalSize      int64
	supportsRanges bool
	segments       []*segment
	files          []*os.File
	limiters       []*limiter.Limiter
	fetch          fetcher
	lock           *flock.Flock
	running        bool
	sessionCancel  context.CancelFunc
	bytesAtStart   int64
	sessionStart   time.Time

	speedCap  atomic.Int64
	pauseReq  atomic.Bool
	cancelReq atomic.Bool

	wake chan struct{}

	terminateOnce sync.Once
	done          chan struct{}
}

// New creates an engine. A nil config uses defaults.
func New(cfg *types.Config) *Engine {
	e := &Engine{
		cfg:  cfg,
		done: make(chan struct{}),
		wake: make(chan struct{}, 1),
	}
	e.speedCap.Store(cfg.GetSpeedCap())
	return e
}

// Attach registers an observer. Must be called before Start or Resume.
func (e *Engine) Attach(o events.Observer) {
	e.dispatcher.Attach(o)
}

// Wait blocks until the engine reaches a terminal state, i.e. after the
// Finished event. A paused engine has not terminated, so Wait keeps
// waiting across pause/resume cycles.
func (e *Engine) Wait() {
	<-e.done
}

// ID returns the download identifier, or "" before Start.
func (e *Engine) ID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.id
}

// Start allocates an identifier, emits it, and begins the download on the
// worker goroutine. The identifier is returned immediately; everything
// else arrives through the event stream.
func (e *Engine) Start(rawurl, outputDir string) (string, error) {
	e.mu.Lock()
	if e.running || e.id != "" {
		e.mu.Unlock()
		return "", errors.New("engine already started")
	}
	id := newID()
	e.id = id
	e.url = rawurl
	e.outputDir = outputDir
	e.running = true
	e.mu.Unlock()

	e.dispatcher.IDAssigned(id)
	go e.runFresh(id, rawurl, outputDir)
	return id, nil
}

// Resume loads persisted state for id and continues the download. Works on
// a fresh engine (after a crash or restart) and on an engine that was
// paused earlier in this process.
func (e *Engine) Resume(id string) error {
	select {
	case <-e.done:
		return errors.New("engine terminated")
	default:
	}

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return errors.New("engine already running")
	}
	if e.id != "" && e.id != id {
		e.mu.Unlock()
		return fmt.Errorf("engine owns download %s", e.id)
	}
	firstUse := e.id == ""
	e.id = id
	e.running = true
	e.mu.Unlock()

	e.pauseReq.Store(false)
	e.cancelReq.Store(false)

	if firstUse {
		e.dispatcher.IDAssigned(id)
	}
	go e.runResume(id)
	return nil
}

// Pause requests graceful suspension: in-flight writes complete, segment
// files are flushed, state is persisted, and the engine parks until Resume
// or Cancel.
func (e *Engine) Pause() {
	e.pauseReq.Store(true)
	e.interrupt()
}

// Cancel stops the download and deletes all scratch state. Terminal.
func (e *Engine) Cancel() {
	e.cancelReq.Store(true)
	e.interrupt()

	// A suspended download has no worker to notice the flag; clean up
	// directly.
	e.mu.Lock()
	running := e.running
	id := e.id
	n := len(e.segments)
	e.mu.Unlock()

	if !running && id != "" {
		select {
		case <-e.done:
			return
		default:
		}
		if n == 0 {
			if meta, err := state.Load(id); err == nil {
				n = meta.Segments
			}
		}
		state.Cleanup(id, n)
		e.finish(false, MsgCancelled)
	}
}

// SetSpeedCap applies a per-download rate limit in bytes/sec, split evenly
// across the segment transfers. 0 removes the limit. Live transfers pick
// the change up immediately.
func (e *Engine) SetSpeedCap(bytesPerSec int64) {
	if bytesPerSec < 0 {
		bytesPerSec = 0
	}
	e.speedCap.Store(bytesPerSec)

	e.mu.Lock()
	defer e.mu.Unlock()
	per := perTransferCap(bytesPerSec, len(e.segments))
	for _, lim := range e.limiters {
		lim.SetLimit(per)
	}
}

func perTransferCap(total int64, n int) int64 {
	if total <= 0 || n <= 0 {
		return 0
	}
	return total / int64(n)
}

func newID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// interrupt cancels the current pump session and wakes a recovery wait.
func (e *Engine) interrupt() {
	e.mu.Lock()
	cancel := e.sessionCancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// runFresh is the worker path for Start: probe, plan, then pump.
func (e *Engine) runFresh(id, rawurl, outputDir string) {
	e.dispatcher.StatusChanged(statusConnecting)

	lock, err := state.Lock(id)
	if err != nil {
		e.finish(false, MsgInitFailed)
		return
	}
	e.mu.Lock()
	e.lock = lock
	e.mu.Unlock()

	// The probe runs under the session cancel so Pause/Cancel issued while
	// the HEAD request is in flight interrupts it instead of waiting out
	// the probe budget.
	probeCtx, cancelProbe := context.WithCancel(context.Background())
	e.mu.Lock()
	e.sessionCancel = cancelProbe
	e.mu.Unlock()

	pr, err := probe(probeCtx, rawurl, e.cfg)

	cancelProbe()
	e.mu.Lock()
	e.sessionCancel = nil
	e.mu.Unlock()

	if e.cancelReq.Load() {
		e.releaseLock()
		state.Cleanup(id, 0)
		e.finish(false, MsgCancelled)
		return
	}

	if err != nil {
		if e.pauseReq.Load() {
			// The pause interrupted the probe before any state existed;
			// park without scratch. A later resume of this id reports
			// the state as missing, which is exactly true.
			e.releaseLock()
			state.Cleanup(id, 0)
			e.dispatcher.Paused(id)
			e.dispatcher.StatusChanged(statusPaused)
			e.mu.Lock()
			e.running = false
			e.mu.Unlock()
			return
		}
		utils.Debug("engine %s: probe: %v", id, err)
		e.releaseLock()
		state.Cleanup(id, 0)
		e.finish(false, MsgProbeFailed)
		return
	}

	fetch, err := newFetcher(pr.EffectiveURL, e.cfg)
	if err != nil {
		e.releaseLock()
		state.Cleanup(id, 0)
		e.finish(false, MsgProbeFailed)
		return
	}

	n := segmentCount(pr.TotalSize, pr.SupportsRange, e.cfg)
	segments, err := buildSegments(id, pr.TotalSize, n)
	if err == nil {
		err = os.MkdirAll(outputDir, 0755)
	}
	var files []*os.File
	if err == nil {
		files, err = openSegmentFiles(segments, false)
	}
	if err != nil {
		utils.Debug("engine %s: init: %v", id, err)
		closeAll(files)
		state.Cleanup(id, n)
		e.releaseLock()
		e.finish(false, MsgInitFailed)
		return
	}

	meta := state.Meta{
		URL:       pr.EffectiveURL,
		OutputDir: outputDir,
		Filename:  pr.Filename,
		Segments:  n,
		TotalSize: pr.TotalSize,
	}
	if err := state.Save(id, meta); err != nil {
		closeAll(files)
		state.Cleanup(id, n)
		e.releaseLock()
		e.finish(false, MsgInitFailed)
		return
	}

	e.mu.Lock()
	e.url = pr.EffectiveURL
	e.filename = pr.Filename
	e.totalSize = pr.TotalSize
	e.supportsRanges = pr.SupportsRange
	e.segments = segments
	e.files = files
	e.fetch = fetch
	e.mu.Unlock()

	// Flags raised during Planning act here, while the plan is already
	// persisted: a pause leaves a fully resumable download.
	if e.cancelReq.Load() {
		e.abort()
		return
	}
	if e.pauseReq.Load() {
		e.suspend()
		return
	}

	e.dispatcher.StatusChanged(fmt.Sprintf("Downloading with %d connections...", n))
	e.pumpSessions()
}

// runResume is the worker path for Resume: reload the plan, measure the
// scratch files, reopen them for append, then pump whatever is left.
func (e *Engine) runResume(id string) {
	lock, err := state.Lock(id)
	if err != nil {
		e.finish(false, MsgInitFailed)
		return
	}
	e.mu.Lock()
	e.lock = lock
	e.mu.Unlock()

	meta, err := state.Load(id)
	if err != nil {
		e.releaseLock()
		e.finish(false, MsgStateMissing)
		return
	}

	fetch, err := newFetcher(meta.URL, e.cfg)
	if err != nil {
		e.releaseLock()
		e.finish(false, MsgStateMissing)
		return
	}

	segments, err := buildSegments(id, meta.TotalSize, meta.Segments)
	if err != nil {
		e.releaseLock()
		e.finish(false, MsgFileAccess)
		return
	}

	// The scratch file length is the delivered byte count. An overlong
	// file (torn state from some earlier crash) is trimmed back to its
	// segment size so the tiling invariant holds.
	for _, seg := range segments {
		size, err := state.SegmentSize(id, seg.ordinal)
		if err != nil {
			e.releaseLock()
			e.finish(false, MsgFileAccess)
			return
		}
		if size > seg.size {
			if err := os.Truncate(seg.path, seg.size); err != nil {
				e.releaseLock()
				e.finish(false, MsgFileAccess)
				return
			}
			size = seg.size
		}
		seg.downloaded.Store(size)
	}

	files, err := openSegmentFiles(segments, true)
	if err != nil {
		closeAll(files)
		e.releaseLock()
		e.finish(false, MsgFileAccess)
		return
	}

	e.mu.Lock()
	e.url = meta.URL
	e.outputDir = meta.OutputDir
	e.filename = meta.Filename
	e.totalSize = meta.TotalSize
	// Range support was not persisted; segment count over one implies it,
	// and partially delivered segments must use ranges regardless.
	e.supportsRanges = meta.Segments > 1
	e.segments = segments
	e.files = files
	e.fetch = fetch
	e.mu.Unlock()

	if e.cancelReq.Load() {
		e.abort()
		return
	}
	if e.pauseReq.Load() {
		e.suspend()
		return
	}

	e.dispatcher.StatusChanged(statusResumed)
	e.pumpSessions()
}

func openSegmentFiles(segments []*segment, resume bool) ([]*os.File, error) {
	files := make([]*os.File, len(segments))
	for i, seg := range segments {
		flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
		if resume {
			flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		}
		f, err := os.OpenFile(seg.path, flags, 0644)
		if err != nil {
			closeAll(files)
			return nil, fmt.Errorf("opening segment %d: %w", seg.ordinal, err)
		}
		files[i] = f
	}
	return files, nil
}

func closeAll(files []*os.File) {
	for _, f := range files {
		if f != nil {
			f.Close()
		}
	}
}

// pumpSessions runs pump sessions until the download completes, pauses, is
// cancelled, or exhausts its recovery budget. Each retry reconstructs only
// the incomplete segments from their on-disk lengths.
func (e *Engine) pumpSessions() {
	attempts := 0
	maxAttempts := e.cfg.GetMaxRecoveryAttempts()

	for {
		outcome, retryStatus, progressed := e.pumpOnce()

		switch outcome {
		case pumpComplete:
			e.finalize()
			return
		case pumpCancelled:
			e.abort()
			return
		case pumpPaused:
			e.suspend()
			return
		case pumpRetry:
			if progressed {
				attempts = 0
			}
			attempts++
			if attempts > maxAttempts {
				utils.Debug("engine %s: recovery exhausted after %d attempts", e.ID(), attempts-1)
				e.closeFiles()
				e.releaseLock()
				e.finish(false, MsgProbeFailed)
				return
			}

			e.dispatcher.StatusChanged(retryStatus)
			timer := time.NewTimer(e.cfg.GetRecoveryWait())
			select {
			case <-timer.C:
			case <-e.wake:
				timer.Stop()
			}
			if e.cancelReq.Load() {
				e.abort()
				return
			}
			if e.pauseReq.Load() {
				e.suspend()
				return
			}
		}
	}
}

// pumpOnce runs one pump session: start transfers for every incomplete
// segment, publish progress on a timer, and wait for all of them to stop.
func (e *Engine) pumpOnce() (pumpOutcome, string, bool) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e.mu.Lock()
	e.sessionCancel = cancel
	segments := e.segments
	files := e.files
	fetch := e.fetch
	supportsRanges := e.supportsRanges
	total := e.totalSize
	n := len(segments)

	var startBytes int64
	for _, s := range segments {
		startBytes += s.downloaded.Load()
	}
	e.bytesAtStart = startBytes
	e.sessionStart = time.Now()

	per := perTransferCap(e.speedCap.Load(), n)
	lims := make([]*limiter.Limiter, n)
	for i := range lims {
		lims[i] = limiter.New(per)
	}
	e.limiters = lims
	e.mu.Unlock()

	// The progress timer reads the counters independently of the pump.
	progressDone := make(chan struct{})
	var tickWG sync.WaitGroup
	tickWG.Add(1)
	go func() {
		defer tickWG.Done()
		ticker := time.NewTicker(e.cfg.GetProgressInterval())
		defer ticker.Stop()
		for {
			select {
			case <-progressDone:
				return
			case <-ticker.C:
				e.emitProgress(false)
			}
		}
	}()

	var wg sync.WaitGroup
	errCh := make(chan error, n)
	for i, seg := range segments {
		if seg.remaining() <= 0 {
			continue
		}
		t := &transfer{
			seg:    seg,
			file:   files[i],
			fetch:  fetch,
			lim:    lims[i],
			ranged: supportsRanges || seg.downloaded.Load() > 0,
			bufLen: e.cfg.GetWorkerBuffer(),
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := t.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- err
			}
		}()
	}

	wg.Wait()
	close(progressDone)
	tickWG.Wait()
	close(errCh)

	var downloaded int64
	for _, s := range segments {
		downloaded += s.downloaded.Load()
	}
	progressed := downloaded > startBytes

	// Completion wins over a pause/cancel flag raised too late to stop the
	// last bytes: a fully delivered file must be merged, never suspended
	// into a no-op resume or cleaned up as if data were still partial.
	if downloaded >= total {
		return pumpComplete, "", progressed
	}

	if e.cancelReq.Load() {
		return pumpCancelled, "", progressed
	}
	if e.pauseReq.Load() {
		return pumpPaused, "", progressed
	}

	retryStatus := ""
	for err := range errCh {
		var te *transferError
		if errors.As(err, &te) && te.kind == errConnect {
			retryStatus = statusNetworkLost
			break
		}
		retryStatus = statusConnDropped
	}
	if retryStatus != "" {
		return pumpRetry, retryStatus, progressed
	}

	// Every transfer ended cleanly yet bytes are missing: the streams
	// dried up early.
	return pumpRetry, statusStalled, progressed
}

// finalize concatenates the segments, moves the result into place, and
// removes all scratch state.
func (e *Engine) finalize() {
	e.dispatcher.StatusChanged(statusMerging)
	e.closeFiles()

	e.mu.Lock()
	id := e.id
	outDir := e.outputDir
	name := e.filename
	n := len(e.segments)
	e.mu.Unlock()

	merged, err := state.Merge(id, outDir, n)
	if err != nil {
		utils.Debug("engine %s: merge: %v", id, err)
		e.releaseLock()
		e.finish(false, MsgMergeError)
		return
	}

	target := filepath.Join(outDir, name)
	if _, err := os.Stat(target); err == nil {
		os.Remove(target)
	}
	if err := os.Rename(merged, target); err != nil {
		os.Remove(merged)
		e.releaseLock()
		e.finish(false, MsgMergeError)
		return
	}

	state.Cleanup(id, n)
	e.releaseLock()
	utils.Debug("engine %s: completed -> %s", id, target)
	e.finish(true, MsgCompleted)
}

// suspend persists state and parks the engine. Scratch files survive; the
// download can continue via Resume on this engine or a future process.
func (e *Engine) suspend() {
	e.mu.Lock()
	id := e.id
	meta := state.Meta{
		URL:       e.url,
		OutputDir: e.outputDir,
		Filename:  e.filename,
		Segments:  len(e.segments),
		TotalSize: e.totalSize,
	}
	files := e.files
	e.mu.Unlock()

	for _, f := range files {
		if f != nil {
			f.Sync()
		}
	}
	if err := state.Save(id, meta); err != nil {
		utils.Debug("engine %s: saving pause state: %v", id, err)
	}
	e.closeFiles()
	e.releaseLock()

	e.dispatcher.Paused(id)
	e.emitProgress(true)
	e.dispatcher.StatusChanged(statusPaused)

	e.mu.Lock()
	e.running = false
	e.sessionCancel = nil
	e.mu.Unlock()
}

// abort removes every trace of the download and terminates.
func (e *Engine) abort() {
	e.closeFiles()

	e.mu.Lock()
	id := e.id
	n := len(e.segments)
	e.mu.Unlock()

	state.Cleanup(id, n)
	e.releaseLock()
	e.finish(false, MsgCancelled)
}

func (e *Engine) finish(success bool, message string) {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()

	e.terminateOnce.Do(func() {
		e.dispatcher.Finished(success, message)
		close(e.done)
	})
}

func (e *Engine) closeFiles() {
	e.mu.Lock()
	files := e.files
	e.files = nil
	e.mu.Unlock()
	closeAll(files)
}

func (e *Engine) releaseLock() {
	e.mu.Lock()
	lock := e.lock
	e.lock = nil
	e.mu.Unlock()
	if lock != nil {
		lock.Unlock()
	}
}

// emitProgress publishes one aggregate and one per-segment snapshot. With
// paused set, speed and ETA report zero.
func (e *Engine) emitProgress(paused bool) {
	e.mu.Lock()
	total := e.totalSize
	segments := e.segments
	bytesAtStart := e.bytesAtStart
	sessionStart := e.sessionStart
	e.mu.Unlock()

	if total <= 0 || len(segments) == 0 {
		return
	}

	var downloaded int64
	segProgress := make([]events.SegmentProgress, len(segments))
	for i, s := range segments {
		d := s.downloaded.Load()
		downloaded += d
		segProgress[i] = events.SegmentProgress{
			Ordinal:       s.ordinal,
			Downloaded:    d,
			Size:          s.size,
			StartOffset:   s.start,
			TotalFileSize: total,
		}
	}

	var speed, eta float64
	if !paused {
		sessionBytes := downloaded - bytesAtStart
		if sessionBytes < 0 {
			sessionBytes = 0
		}
		elapsed := time.Since(sessionStart).Seconds()
		if elapsed > 0.1 {
			speed = float64(sessionBytes) / elapsed
		}
		if speed > 0 {
			eta = float64(total-downloaded) / speed
		}
	}

	e.dispatcher.Progress(events.Progress{
		Ratio:      float64(downloaded) / float64(total),
		Downloaded: downloaded,
		Total:      total,
		Speed:      speed,
		ETA:        eta,
	})
	e.dispatcher.SegmentProgress(segProgress)
}
