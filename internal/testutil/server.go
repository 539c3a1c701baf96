// Package testutil provides a range-aware mock origin for engine tests.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// MockServer is an httptest-backed origin that understands byte ranges and
// can inject latency and truncated responses.
type MockServer struct {
	srv *httptest.Server

	data         []byte
	rangeSupport bool
	latency      time.Duration
	disposition  string
	contentType  string

	// dropAfter truncates the body of the first dropCount range/GET
	// requests after this many bytes, simulating a dying connection.
	dropAfter int64
	dropCount atomic.Int32

	requests       atomic.Int32
	rangedRequests atomic.Int32
}

type Option func(*MockServer)

// WithData serves the given bytes.
func WithData(data []byte) Option {
	return func(m *MockServer) { m.data = data }
}

// WithFileSize serves size deterministic pseudo-random bytes.
func WithFileSize(size int64) Option {
	return func(m *MockServer) { m.data = DeterministicData(size) }
}

// WithRangeSupport toggles Accept-Ranges advertising and 206 handling.
func WithRangeSupport(enabled bool) Option {
	return func(m *MockServer) { m.rangeSupport = enabled }
}

// WithLatency sleeps between body chunks so tests can interrupt transfers.
func WithLatency(d time.Duration) Option {
	return func(m *MockServer) { m.latency = d }
}

// WithContentDisposition sets the Content-Disposition header.
func WithContentDisposition(v string) Option {
	return func(m *MockServer) { m.disposition = v }
}

// WithContentType sets the Content-Type header.
func WithContentType(v string) Option {
	return func(m *MockServer) { m.contentType = v }
}

// WithDropAfter truncates the first n body responses after the given byte
// count, so the client observes a broken stream that heals on retry.
func WithDropAfter(bytes int64, n int) Option {
	return func(m *MockServer) {
		m.dropAfter = bytes
		m.dropCount.Store(int32(n))
	}
}

// DeterministicData generates size bytes that are stable across calls.
func DeterministicData(size int64) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i*31 + 7)
	}
	return data
}

// NewMockServer starts the server. Callers must Close it.
func NewMockServer(opts ...Option) *MockServer {
	m := &MockServer{rangeSupport: true}
	for _, opt := range opts {
		opt(m)
	}
	m.srv = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

func (m *MockServer) URL() string { return m.srv.URL + "/file.bin" }

func (m *MockServer) Close() { m.srv.Close() }

// Data returns the served payload.
func (m *MockServer) Data() []byte { return m.data }

// Requests returns how many requests were handled.
func (m *MockServer) Requests() int { return int(m.requests.Load()) }

// RangedRequests returns how many requests carried a Range header.
func (m *MockServer) RangedRequests() int { return int(m.rangedRequests.Load()) }

func (m *MockServer) handle(w http.ResponseWriter, r *http.Request) {
	m.requests.Add(1)
	if r.Header.Get("Range") != "" {
		m.rangedRequests.Add(1)
	}

	if m.rangeSupport {
		w.Header().Set("Accept-Ranges", "bytes")
	} else {
		w.Header().Set("Accept-Ranges", "none")
	}
	if m.disposition != "" {
		w.Header().Set("Content-Disposition", m.disposition)
	}
	if m.contentType != "" {
		w.Header().Set("Content-Type", m.contentType)
	}

	total := int64(len(m.data))

	if r.Method == http.MethodHead {
		w.Header().Set("Content-Length", strconv.FormatInt(total, 10))
		w.WriteHeader(http.StatusOK)
		return
	}

	start, end := int64(0), total-1
	status := http.StatusOK
	if rangeHdr := r.Header.Get("Range"); rangeHdr != "" && m.rangeSupport {
		var ok bool
		start, end, ok = parseRange(rangeHdr, total)
		if !ok {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		status = http.StatusPartialContent
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, total))
	}

	body := m.data[start : end+1]
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)

	limit := int64(len(body))
	truncated := false
	if m.dropAfter > 0 && m.dropCount.Load() > 0 && limit > m.dropAfter {
		if m.dropCount.Add(-1) >= 0 {
			limit = m.dropAfter
			truncated = true
		}
	}

	const chunk = 1024
	for off := int64(0); off < limit; off += chunk {
		stop := off + chunk
		if stop > limit {
			stop = limit
		}
		if _, err := w.Write(body[off:stop]); err != nil {
			return
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		if m.latency > 0 {
			time.Sleep(m.latency)
		}
	}

	if truncated {
		// Kill the connection so the client sees a torn body rather than
		// a clean end.
		panic(http.ErrAbortHandler)
	}
}

func parseRange(hdr string, total int64) (int64, int64, bool) {
	spec, ok := strings.CutPrefix(hdr, "bytes=")
	if !ok {
		return 0, 0, false
	}
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || start < 0 || start >= total {
		return 0, 0, false
	}
	end := total - 1
	if parts[1] != "" {
		end, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil || end < start {
			return 0, 0, false
		}
		if end >= total {
			end = total - 1
		}
	}
	return start, end, true
}
