package models

// HostStatus represents the liveness classification of a scanned address.
type HostStatus string

const (
	HostStatusOnline  HostStatus = "online"
	HostStatusOffline HostStatus = "offline"
	// HostStatusUnknown marks a placeholder whose probe has not finished yet.
	HostStatusUnknown HostStatus = "unknown"
)

// ProbeMethod indicates which probe established liveness.
type ProbeMethod string

const (
	ProbeMethodICMP ProbeMethod = "icmp"
	ProbeMethodTCP  ProbeMethod = "tcp"
	ProbeMethodNone ProbeMethod = "none"
)

// HostResult is the per-address entry of a scan snapshot.
type HostResult struct {
	IP         string      `json:"ip" example:"192.168.1.10"`
	Hostname   string      `json:"hostname" example:"nas.lan"`
	ManualName string      `json:"manual_name" example:"Living room NAS"`
	Status     HostStatus  `json:"status" example:"online"`
	Method     ProbeMethod `json:"method,omitempty" example:"icmp"`
	LatencyMs  *float64    `json:"latency_ms" example:"1.42"`
	LastScan   string      `json:"last_scan" example:"2026-01-02T15:04:05Z"`
}

// Online reports whether the host was classified online.
func (h HostResult) Online() bool {
	return h.Status == HostStatusOnline
}
