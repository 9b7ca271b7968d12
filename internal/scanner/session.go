package scanner

import (
	"net/netip"
	"slices"
	"sync"
	"time"

	"github.com/HerbHall/ipscan/pkg/models"
)

// Session is the mutable aggregate of one scan. Positions are allocated when
// the session is created, so items keep the range order regardless of the
// order in which probes complete. All access goes through mu; readers get
// copies and never observe a half-written HostResult.
type Session struct {
	id        string
	rangeSpec string
	startedAt time.Time
	now       func() time.Time

	mu        sync.RWMutex
	order     []string
	items     map[string]models.HostResult
	total     int
	completed int
	online    int
	scanning  bool
	duration  time.Duration
	scannedAt time.Time
}

func newSession(id, rangeSpec string, addrs []netip.Addr, names map[string]string, now func() time.Time) *Session {
	s := &Session{
		id:        id,
		rangeSpec: rangeSpec,
		startedAt: now(),
		now:       now,
		order:     make([]string, len(addrs)),
		items:     make(map[string]models.HostResult, len(addrs)),
		total:     len(addrs),
		scanning:  true,
	}
	for i, a := range addrs {
		ip := a.String()
		s.order[i] = ip
		s.items[ip] = placeholder(ip, names[ip])
	}
	return s
}

// sessionFromSnapshot rebuilds a finalized session from a persisted snapshot.
func sessionFromSnapshot(snap *models.Snapshot, now func() time.Time) *Session {
	s := &Session{
		id:        snap.ID,
		rangeSpec: snap.Range,
		now:       now,
		order:     make([]string, 0, len(snap.Items)),
		items:     make(map[string]models.HostResult, len(snap.Items)),
		total:     snap.Total,
		completed: snap.Completed,
		online:    snap.Online,
		duration:  time.Duration(snap.DurationMs) * time.Millisecond,
	}
	s.startedAt, _ = time.Parse(time.RFC3339Nano, snap.StartedAt)
	s.scannedAt, _ = time.Parse(time.RFC3339Nano, snap.ScannedAt)
	for _, item := range snap.Items {
		if _, dup := s.items[item.IP]; dup {
			continue
		}
		s.order = append(s.order, item.IP)
		s.items[item.IP] = item
	}
	slices.SortFunc(s.order, compareAddrStrings)
	return s
}

func placeholder(ip, manualName string) models.HostResult {
	return models.HostResult{
		IP:         ip,
		ManualName: manualName,
		Status:     models.HostStatusUnknown,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Scanning reports whether the session still has probes outstanding.
func (s *Session) Scanning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanning
}

// merge stores a probe result and advances the counters, returning the row as
// stored. The manual name already held by the session wins over whatever the
// result carries. When
// the last result arrives the session is finalized under the same lock, so
// completed == total exactly when scanning turns false.
func (s *Session) merge(res models.HostResult) (merged models.HostResult, completed int, finalized bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.scanning {
		return res, s.completed, false
	}
	existing, tracked := s.items[res.IP]
	if !tracked {
		return res, s.completed, false
	}
	res.ManualName = existing.ManualName
	s.items[res.IP] = res
	s.completed++
	if res.Online() {
		s.online++
	}
	if s.completed == s.total {
		s.scanning = false
		s.scannedAt = s.now()
		s.duration = s.scannedAt.Sub(s.startedAt)
		return res, s.completed, true
	}
	return res, s.completed, false
}

// setManualName updates the manual name for ip, adding a placeholder at its
// sorted position if the address is not tracked.
func (s *Session) setManualName(ip, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item, ok := s.items[ip]; ok {
		item.ManualName = name
		s.items[ip] = item
		return
	}
	pos, _ := slices.BinarySearchFunc(s.order, ip, compareAddrStrings)
	s.order = slices.Insert(s.order, pos, ip)
	s.items[ip] = placeholder(ip, name)
}

// Snapshot returns a consistent copy of the session.
func (s *Session) Snapshot() *models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &models.Snapshot{
		ID:        s.id,
		Range:     s.rangeSpec,
		Total:     s.total,
		Completed: s.completed,
		Online:    s.online,
		Offline:   s.completed - s.online,
		Scanning:  s.scanning,
		Items:     make([]models.HostResult, len(s.order)),
	}
	if !s.startedAt.IsZero() {
		snap.StartedAt = s.startedAt.UTC().Format(time.RFC3339Nano)
	}
	if s.scanning {
		snap.DurationMs = s.now().Sub(s.startedAt).Milliseconds()
	} else {
		snap.DurationMs = s.duration.Milliseconds()
		if !s.scannedAt.IsZero() {
			snap.ScannedAt = s.scannedAt.UTC().Format(time.RFC3339Nano)
		}
	}
	for i, ip := range s.order {
		snap.Items[i] = s.items[ip]
	}
	return snap
}
