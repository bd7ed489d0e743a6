package relay

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Stats is a point-in-time snapshot of connection statistics.
type Stats struct {
	RequestsServed int64
	BytesIn        int64
	BytesOut       int64
	TotalLatency   time.Duration
	AvgLatency     time.Duration
	MinLatency     time.Duration
	MaxLatency     time.Duration
	ConnectedAt    time.Time
	Reconnects     int
	IsConnected    bool
}

// Collector accumulates traffic and latency counters shared by the relay
// transports. All methods are safe for concurrent use and lock-free, so the
// request path never serializes on metrics. The zero value is ready to use.
type Collector struct {
	requestsServed    atomic.Int64
	bytesIn           atomic.Int64
	bytesOut          atomic.Int64
	totalLatencyNanos atomic.Int64
	minLatencyNanos   atomic.Int64
	maxLatencyNanos   atomic.Int64
}

// RequestServed counts one completed request and folds its latency into the
// min/max/total aggregates.
func (c *Collector) RequestServed(latency time.Duration) {
	c.requestsServed.Add(1)

	nanos := latency.Nanoseconds()
	c.totalLatencyNanos.Add(nanos)

	for {
		current := c.minLatencyNanos.Load()
		if current != 0 && current <= nanos {
			break
		}
		if c.minLatencyNanos.CompareAndSwap(current, nanos) {
			break
		}
	}

	for {
		current := c.maxLatencyNanos.Load()
		if current >= nanos {
			break
		}
		if c.maxLatencyNanos.CompareAndSwap(current, nanos) {
			break
		}
	}
}

// AddBytesIn counts bytes received from the relay.
func (c *Collector) AddBytesIn(n int64) {
	c.bytesIn.Add(n)
}

// AddBytesOut counts bytes sent to the relay.
func (c *Collector) AddBytesOut(n int64) {
	c.bytesOut.Add(n)
}

// Snapshot returns the traffic and latency counters. Connection state fields
// (ConnectedAt, Reconnects, IsConnected) are the transport's to fill in.
func (c *Collector) Snapshot() Stats {
	reqs := c.requestsServed.Load()
	totalLatency := c.totalLatencyNanos.Load()

	var avgLatency time.Duration
	if reqs > 0 {
		avgLatency = time.Duration(totalLatency / reqs)
	}

	return Stats{
		RequestsServed: reqs,
		BytesIn:        c.bytesIn.Load(),
		BytesOut:       c.bytesOut.Load(),
		TotalLatency:   time.Duration(totalLatency),
		AvgLatency:     avgLatency,
		MinLatency:     time.Duration(c.minLatencyNanos.Load()),
		MaxLatency:     time.Duration(c.maxLatencyNanos.Load()),
	}
}

// Uptime returns the duration since connection.
func (s *Stats) Uptime() time.Duration {
	if s.ConnectedAt.IsZero() {
		return 0
	}
	return time.Since(s.ConnectedAt)
}

// AvgLatencyMs returns average latency in milliseconds.
func (s *Stats) AvgLatencyMs() float64 {
	return float64(s.AvgLatency.Nanoseconds()) / 1e6
}

// MinLatencyMs returns minimum latency in milliseconds.
func (s *Stats) MinLatencyMs() float64 {
	return float64(s.MinLatency.Nanoseconds()) / 1e6
}

// MaxLatencyMs returns maximum latency in milliseconds.
func (s *Stats) MaxLatencyMs() float64 {
	return float64(s.MaxLatency.Nanoseconds()) / 1e6
}

// FormatStats returns a human-readable summary of connection statistics.
func FormatStats(stats *Stats) string {
	if stats == nil {
		return "No stats available"
	}

	status := "Disconnected"
	if stats.IsConnected {
		status = "Connected"
	}

	return fmt.Sprintf(`Tunnel Status: %s
Requests Served: %d
Bytes In: %s
Bytes Out: %s
Uptime: %s
Reconnects: %d`,
		status,
		stats.RequestsServed,
		formatBytes(stats.BytesIn),
		formatBytes(stats.BytesOut),
		formatDuration(stats.Uptime()),
		stats.Reconnects,
	)
}

// FormatDetailedStats returns a detailed human-readable statistics report,
// including latency and throughput sections when traffic has been served.
func FormatDetailedStats(stats *Stats) string {
	if stats == nil {
		return "No stats available"
	}

	status := "Disconnected"
	if stats.IsConnected {
		status = "Connected"
	}

	latencySection := ""
	if stats.RequestsServed > 0 {
		latencySection = fmt.Sprintf(`
Latency:
  Average: %.2f ms
  Minimum: %.2f ms
  Maximum: %.2f ms`,
			stats.AvgLatencyMs(),
			stats.MinLatencyMs(),
			stats.MaxLatencyMs(),
		)
	}

	throughputSection := ""
	if stats.Uptime() > 0 {
		reqsPerSec := float64(stats.RequestsServed) / stats.Uptime().Seconds()
		bytesPerSec := float64(stats.BytesIn+stats.BytesOut) / stats.Uptime().Seconds()
		throughputSection = fmt.Sprintf(`
Throughput:
  Requests/sec: %.2f
  Bytes/sec: %s`,
			reqsPerSec,
			formatBytes(int64(bytesPerSec)),
		)
	}

	return fmt.Sprintf(`Tunnel Status: %s

Connection:
  Uptime: %s
  Reconnects: %d

Traffic:
  Requests Served: %d
  Bytes In: %s
  Bytes Out: %s
  Total: %s%s%s`,
		status,
		formatDuration(stats.Uptime()),
		stats.Reconnects,
		stats.RequestsServed,
		formatBytes(stats.BytesIn),
		formatBytes(stats.BytesOut),
		formatBytes(stats.BytesIn+stats.BytesOut),
		latencySection,
		throughputSection,
	)
}

// formatBytes formats bytes in human-readable format.
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// formatDuration formats a duration in human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		secs := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, mins)
}
