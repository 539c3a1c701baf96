package cmd

import (
	"fmt"
	"os"
	"sync"

	"github.com/cheggaaa/pb/v3"

	"github.com/parafetch/parafetch/internal/engine/events"
)

type runResult struct {
	success bool
	paused  bool
	message string
}

// renderer is the CLI's engine observer: it drives a progress bar from the
// event stream and reports the terminal outcome on done.
type renderer struct {
	mu   sync.Mutex
	bar  *pb.ProgressBar
	done chan runResult
}

func newRenderer() *renderer {
	return &renderer{done: make(chan runResult, 1)}
}

func (r *renderer) IDAssigned(id string) {}

func (r *renderer) StatusChanged(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bar != nil {
		r.bar.Set("prefix", status+" ")
		return
	}
	fmt.Fprintln(os.Stderr, status)
}

func (r *renderer) Progress(p events.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bar == nil {
		tmpl := `{{string . "prefix"}}{{counters . }} {{bar . }} {{percent . }} {{speed . }}`
		r.bar = pb.ProgressBarTemplate(tmpl).Start64(p.Total)
		r.bar.Set(pb.Bytes, true)
		r.bar.Set(pb.SIBytesPrefix, true)
	}
	r.bar.SetCurrent(p.Downloaded)
}

func (r *renderer) SegmentProgress(segments []events.SegmentProgress) {}

func (r *renderer) Paused(id string) {
	r.finishBar()
	r.done <- runResult{paused: true}
}

func (r *renderer) Finished(success bool, message string) {
	r.mu.Lock()
	if r.bar != nil && success {
		r.bar.SetCurrent(r.bar.Total())
	}
	r.mu.Unlock()
	r.finishBar()

	if success {
		fmt.Fprintln(os.Stderr, message)
	}
	r.done <- runResult{success: success, message: message}
}

func (r *renderer) finishBar() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bar != nil {
		r.bar.Finish()
		r.bar = nil
	}
}
