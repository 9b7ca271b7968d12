package models

// Snapshot is a point-in-time copy of a scan session. Items are ordered by
// ascending numeric address.
type Snapshot struct {
	ID         string       `json:"id,omitempty"`
	Range      string       `json:"range,omitempty" example:"192.168.1.0/24"`
	StartedAt  string       `json:"started_at,omitempty"`
	ScannedAt  string       `json:"scanned_at"`
	DurationMs int64        `json:"duration_ms"`
	Total      int          `json:"total"`
	Completed  int          `json:"completed"`
	Online     int          `json:"online"`
	Offline    int          `json:"offline"`
	Scanning   bool         `json:"scanning"`
	Items      []HostResult `json:"items"`
}

// EmptySnapshot returns the snapshot reported before any scan has run.
func EmptySnapshot() *Snapshot {
	return &Snapshot{Items: []HostResult{}}
}

// Find returns the item for ip, if present.
func (s *Snapshot) Find(ip string) (HostResult, bool) {
	for i := range s.Items {
		if s.Items[i].IP == ip {
			return s.Items[i], true
		}
	}
	return HostResult{}, false
}
