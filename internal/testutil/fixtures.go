package testutil

import (
	"time"

	"github.com/HerbHall/ipscan/pkg/models"
)

// NewHostResult returns an online ICMP HostResult for 192.168.1.100 with a
// 1ms latency. Override fields with the With* options.
func NewHostResult(opts ...func(*models.HostResult)) models.HostResult {
	latency := 1.0
	h := models.HostResult{
		IP:        "192.168.1.100",
		Status:    models.HostStatusOnline,
		Method:    models.ProbeMethodICMP,
		LatencyMs: &latency,
		LastScan:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339Nano),
	}
	for _, opt := range opts {
		opt(&h)
	}
	return h
}

// WithIP sets the host address.
func WithIP(ip string) func(*models.HostResult) {
	return func(h *models.HostResult) { h.IP = ip }
}

// WithHostname sets the resolved hostname.
func WithHostname(name string) func(*models.HostResult) {
	return func(h *models.HostResult) { h.Hostname = name }
}

// WithManualName sets the user-assigned name.
func WithManualName(name string) func(*models.HostResult) {
	return func(h *models.HostResult) { h.ManualName = name }
}

// WithStatus sets the status. Non-online statuses also clear latency and
// method, matching what the prober reports for unreachable hosts.
func WithStatus(s models.HostStatus) func(*models.HostResult) {
	return func(h *models.HostResult) {
		h.Status = s
		if s != models.HostStatusOnline {
			h.LatencyMs = nil
			h.Method = models.ProbeMethodNone
		}
	}
}

// WithLatency sets the round-trip latency in milliseconds.
func WithLatency(ms float64) func(*models.HostResult) {
	return func(h *models.HostResult) { h.LatencyMs = &ms }
}

// WithMethod sets the probe method that reached the host.
func WithMethod(m models.ProbeMethod) func(*models.HostResult) {
	return func(h *models.HostResult) { h.Method = m }
}
