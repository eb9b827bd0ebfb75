// Package testutil provides HTTP test servers and fixtures for the engine
// tests: plain media servers, failure injectors and HLS fixture trees.
package testutil

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"time"
)

// MockServer is a configurable HTTP test server for download testing.
type MockServer struct {
	Server *httptest.Server

	// Configuration
	FileSize      int64         // Size of the served file
	ContentType   string        // Content-Type header value
	RandomData    bool          // If true, serve random data; otherwise zeros
	Latency       time.Duration // Artificial latency per request
	OmitLength    bool          // Suppress Content-Length (unknown-size stream)
	TruncateAt    int64         // Stop the body early after this many bytes (0 = serve all)
	FailFirstN    int           // Respond 500 to the first N requests
	StatusCode    int           // Fixed status code override (0 = 200)
	CustomHandler http.HandlerFunc

	// Tracking
	RequestCount atomic.Int64
	BytesServed  atomic.Int64

	data []byte
}

// MockServerOption configures a MockServer.
type MockServerOption func(*MockServer)

// WithFileSize sets the size of the served payload.
func WithFileSize(size int64) MockServerOption {
	return func(m *MockServer) { m.FileSize = size }
}

// WithContentType sets the Content-Type header.
func WithContentType(ct string) MockServerOption {
	return func(m *MockServer) { m.ContentType = ct }
}

// WithRandomData serves random bytes instead of zeros.
func WithRandomData() MockServerOption {
	return func(m *MockServer) { m.RandomData = true }
}

// WithLatency adds artificial per-request latency.
func WithLatency(d time.Duration) MockServerOption {
	return func(m *MockServer) { m.Latency = d }
}

// WithOmitLength suppresses the Content-Length header.
func WithOmitLength() MockServerOption {
	return func(m *MockServer) { m.OmitLength = true }
}

// WithTruncateAt cuts the body short after n bytes while still declaring the
// full Content-Length, simulating a dropped connection.
func WithTruncateAt(n int64) MockServerOption {
	return func(m *MockServer) { m.TruncateAt = n }
}

// WithFailFirstN makes the first n requests fail with a 500.
func WithFailFirstN(n int) MockServerOption {
	return func(m *MockServer) { m.FailFirstN = n }
}

// WithStatusCode makes every response use the given status with an empty body.
func WithStatusCode(code int) MockServerOption {
	return func(m *MockServer) { m.StatusCode = code }
}

// WithHandler replaces the default handler entirely.
func WithHandler(h http.HandlerFunc) MockServerOption {
	return func(m *MockServer) { m.CustomHandler = h }
}

// NewMockServer creates and starts a MockServer. Close it when done.
func NewMockServer(opts ...MockServerOption) *MockServer {
	m := &MockServer{
		FileSize:    1024,
		ContentType: "application/octet-stream",
	}
	for _, opt := range opts {
		opt(m)
	}

	m.data = make([]byte, m.FileSize)
	if m.RandomData {
		rand.Read(m.data)
	}

	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the server's base URL.
func (m *MockServer) URL() string { return m.Server.URL }

// Data returns the payload the server serves.
func (m *MockServer) Data() []byte { return m.data }

// Close shuts the server down.
func (m *MockServer) Close() { m.Server.Close() }

func (m *MockServer) handle(w http.ResponseWriter, r *http.Request) {
	count := m.RequestCount.Add(1)

	if m.Latency > 0 {
		time.Sleep(m.Latency)
	}
	if m.CustomHandler != nil {
		m.CustomHandler(w, r)
		return
	}
	if m.FailFirstN > 0 && count <= int64(m.FailFirstN) {
		http.Error(w, "simulated failure", http.StatusInternalServerError)
		return
	}
	if m.StatusCode != 0 && m.StatusCode != http.StatusOK {
		http.Error(w, http.StatusText(m.StatusCode), m.StatusCode)
		return
	}

	w.Header().Set("Content-Type", m.ContentType)
	if !m.OmitLength {
		w.Header().Set("Content-Length", strconv.FormatInt(m.FileSize, 10))
	}
	w.WriteHeader(http.StatusOK)

	body := m.data
	if m.TruncateAt > 0 && m.TruncateAt < int64(len(body)) {
		body = body[:m.TruncateAt]
	}
	n, _ := w.Write(body)
	m.BytesServed.Add(int64(n))
}

// SlowBodyHandler writes total bytes in chunks with delay between chunks,
// for cancellation and inactivity tests.
func SlowBodyHandler(total int64, chunk int, delay time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", strconv.FormatInt(total, 10))
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		buf := make([]byte, chunk)
		var written int64
		for written < total {
			n := int64(len(buf))
			if written+n > total {
				n = total - written
			}
			if _, err := w.Write(buf[:n]); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
			written += n
			select {
			case <-r.Context().Done():
				return
			case <-time.After(delay):
			}
		}
	}
}

// HTMLHandler serves an HTML error page, simulating an expired signed URL.
func HTMLHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body>This link has expired.</body></html>")
	}
}
