package events

// Message types delivered by ChannelObserver. Consumers type-switch on the
// channel's payloads the same way they would on a UI message loop.

type IDAssignedMsg struct {
	ID string
}

type StatusMsg struct {
	Status string
}

type ProgressMsg struct {
	Progress Progress
}

type SegmentProgressMsg struct {
	Segments []SegmentProgress
}

type PausedMsg struct {
	ID string
}

type FinishedMsg struct {
	Success bool
	Message string
}

// ChannelObserver adapts the Observer callbacks onto a channel of messages.
// Progress and segment snapshots never block the engine: when the buffer is
// full, the new snapshot is dropped and the ones already queued are kept.
// Lifecycle events (IDAssigned, Paused, Finished, status changes) are
// delivered blocking so they cannot be lost.
type ChannelObserver struct {
	C chan any
}

// NewChannelObserver creates an observer with the given buffer size.
func NewChannelObserver(buffer int) *ChannelObserver {
	if buffer < 1 {
		buffer = 64
	}
	return &ChannelObserver{C: make(chan any, buffer)}
}

func (c *ChannelObserver) IDAssigned(id string)   { c.C <- IDAssignedMsg{ID: id} }
func (c *ChannelObserver) StatusChanged(s string) { c.C <- StatusMsg{Status: s} }
func (c *ChannelObserver) Paused(id string)       { c.C <- PausedMsg{ID: id} }

func (c *ChannelObserver) Finished(success bool, message string) {
	c.C <- FinishedMsg{Success: success, Message: message}
}

func (c *ChannelObserver) Progress(p Progress) {
	select {
	case c.C <- ProgressMsg{Progress: p}:
	default:
	}
}

func (c *ChannelObserver) SegmentProgress(segments []SegmentProgress) {
	select {
	case c.C <- SegmentProgressMsg{Segments: segments}:
	default:
	}
}

// Close closes the message channel. Call only after Finished was observed.
func (c *ChannelObserver) Close() {
	close(c.C)
}
