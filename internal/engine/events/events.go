// Package events defines the engine's outbound event stream: payload
// types, the Observer interface consumers implement, and a fan-out
// dispatcher. The engine is agnostic about who listens; a TUI, a CLI
// progress bar, and a test recorder all attach the same way.
package events

// Progress is the aggregate state emitted while pumping.
type Progress struct {
	Ratio      float64 // completed fraction of the whole file
	Downloaded int64   // bytes on disk across all segments
	Total      int64   // total file size
	Speed      float64 // bytes/sec measured over the current session
	ETA        float64 // seconds remaining at the current speed, 0 when unknown
}

// SegmentProgress is one segment's slice of a progress snapshot.
type SegmentProgress struct {
	Ordinal       int   // 1-based segment number
	Downloaded    int64 // bytes delivered for this segment
	Size          int64 // segment length
	StartOffset   int64 // absolute start offset within the file
	TotalFileSize int64
}

// Observer receives the engine's event callbacks. Calls arrive from the
// engine's worker goroutine, one at a time; implementations that need to do
// slow work should hand off to their own goroutine.
type Observer interface {
	// IDAssigned fires once, before any other event for the download.
	IDAssigned(id string)
	// StatusChanged carries the human-readable phase transitions.
	StatusChanged(status string)
	// Progress fires on the progress timer cadence while pumping.
	Progress(p Progress)
	// SegmentProgress fires alongside Progress with per-segment detail.
	SegmentProgress(segments []SegmentProgress)
	// Paused fires after a graceful pause once state is persisted.
	Paused(id string)
	// Finished is terminal; no further events follow for this download.
	Finished(success bool, message string)
}

// Dispatcher fans events out to every attached observer in attach order.
// Attach must happen before the engine starts; after that the dispatcher is
// only read from the worker goroutine.
type Dispatcher struct {
	observers []Observer
}

func (d *Dispatcher) Attach(o Observer) {
	if o == nil {
		return
	}
	d.observers = append(d.observers, o)
}

func (d *Dispatcher) IDAssigned(id string) {
	for _, o := range d.observers {
		o.IDAssigned(id)
	}
}

func (d *Dispatcher) StatusChanged(status string) {
	for _, o := range d.observers {
		o.StatusChanged(status)
	}
}

func (d *Dispatcher) Progress(p Progress) {
	for _, o := range d.observers {
		o.Progress(p)
	}
}

func (d *Dispatcher) SegmentProgress(segments []SegmentProgress) {
	for _, o := range d.observers {
		o.SegmentProgress(segments)
	}
}

func (d *Dispatcher) Paused(id string) {
	for _, o := range d.observers {
		o.Paused(id)
	}
}

func (d *Dispatcher) Finished(success bool, message string) {
	for _, o := range d.observers {
		o.Finished(success, message)
	}
}
