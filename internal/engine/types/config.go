// Package types holds the engine configuration and shared constants.
package types

import "time"

const (
	KB = 1024
	MB = 1024 * KB
	GB = 1024 * MB
)

// Defaults used when a Config field is zero (or the Config is nil).
const (
	// ProbeTimeout bounds the whole probe request: connect plus transfer.
	ProbeTimeout = 10 * time.Second

	// ProgressInterval is the cadence of progress/segmentProgress events.
	ProgressInterval = 200 * time.Millisecond

	// RecoveryWait is how long the engine sits in Recovering before it
	// rebuilds the incomplete transfers.
	RecoveryWait = 3 * time.Second

	// MaxRecoveryAttempts bounds consecutive recoveries that make no byte
	// progress. The counter resets whenever a pump session advances.
	MaxRecoveryAttempts = 10

	// WorkerBuffer is the per-transfer read buffer size.
	WorkerBuffer = 32 * KB

	// MaxSegments caps the segment count regardless of file size.
	MaxSegments = 8

	// SegmentSpan is the file-size span that earns one extra segment:
	// N = 1 + totalSize/SegmentSpan, capped at MaxSegments.
	SegmentSpan = 50 * MB

	DialTimeout           = 10 * time.Second
	ResponseHeaderTimeout = 30 * time.Second
	IdleConnTimeout       = 90 * time.Second

	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/120.0.0.0 Safari/537.36"
)

// Config tunes a single engine instance. The zero value (and a nil pointer)
// behave like the defaults above, so callers only set what they care about.
type Config struct {
	ProbeTimeout        time.Duration
	ProgressInterval    time.Duration
	RecoveryWait        time.Duration
	MaxRecoveryAttempts int
	WorkerBuffer        int
	MaxSegments         int
	SegmentSpan         int64
	UserAgent           string

	// SpeedCap is the initial per-download rate limit in bytes/sec.
	// 0 means unlimited. Adjustable at runtime via Engine.SetSpeedCap.
	SpeedCap int64

	// Insecure disables TLS peer verification, matching the behavior of
	// clients that need to talk to hosts with broken certificate chains.
	Insecure bool
}

func (c *Config) GetProbeTimeout() time.Duration {
	if c == nil || c.ProbeTimeout <= 0 {
		return ProbeTimeout
	}
	return c.ProbeTimeout
}

func (c *Config) GetProgressInterval() time.Duration {
	if c == nil || c.ProgressInterval <= 0 {
		return ProgressInterval
	}
	return c.ProgressInterval
}

func (c *Config) GetRecoveryWait() time.Duration {
	if c == nil || c.RecoveryWait <= 0 {
		return RecoveryWait
	}
	return c.RecoveryWait
}

func (c *Config) GetMaxRecoveryAttempts() int {
	if c == nil || c.MaxRecoveryAttempts <= 0 {
		return MaxRecoveryAttempts
	}
	return c.MaxRecoveryAttempts
}

func (c *Config) GetWorkerBuffer() int {
	if c == nil || c.WorkerBuffer <= 0 {
		return WorkerBuffer
	}
	return c.WorkerBuffer
}

func (c *Config) GetMaxSegments() int {
	if c == nil || c.MaxSegments <= 0 {
		return MaxSegments
	}
	return c.MaxSegments
}

func (c *Config) GetSegmentSpan() int64 {
	if c == nil || c.SegmentSpan <= 0 {
		return SegmentSpan
	}
	return c.SegmentSpan
}

func (c *Config) GetUserAgent() string {
	if c == nil || c.UserAgent == "" {
		return DefaultUserAgent
	}
	return c.UserAgent
}

func (c *Config) GetSpeedCap() int64 {
	if c == nil || c.SpeedCap < 0 {
		return 0
	}
	return c.SpeedCap
}

func (c *Config) GetInsecure() bool {
	return c != nil && c.Insecure
}
