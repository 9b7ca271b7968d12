package scanner

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HerbHall/ipscan/internal/testutil"
	"github.com/HerbHall/ipscan/pkg/models"
)

// scriptedProber reports hosts in online as reachable over ICMP and tracks
// how many probes run at once. A non-nil gate blocks every probe until it is
// closed or the context ends.
type scriptedProber struct {
	online  map[string]bool
	delay   time.Duration
	gate    chan struct{}
	started chan string

	inFlight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
}

func (p *scriptedProber) Probe(ctx context.Context, addr netip.Addr, _ time.Duration) Outcome {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		old := p.peak.Load()
		if n <= old || p.peak.CompareAndSwap(old, n) {
			break
		}
	}
	p.calls.Add(1)
	if p.started != nil {
		p.started <- addr.String()
	}
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return offline()
		}
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.online[addr.String()] {
		return Outcome{Status: models.HostStatusOnline, Method: models.ProbeMethodICMP, Latency: 2 * time.Millisecond}
	}
	return offline()
}

type recordingResolver struct {
	mu     sync.Mutex
	looked []string
}

func (r *recordingResolver) LookupName(_ context.Context, ip string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.looked = append(r.looked, ip)
	return "host-" + ip
}

type recordingSaver struct {
	mu    sync.Mutex
	saved []*models.Snapshot
	err   error
}

func (s *recordingSaver) SaveSnapshot(_ context.Context, snap *models.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, snap)
	return s.err
}

func (s *recordingSaver) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

func scanConfig(rangeSpec string, concurrency int) models.ScanConfig {
	return models.ScanConfig{
		Range:                   rangeSpec,
		Concurrency:             concurrency,
		TimeoutMs:               100,
		AutoScanIntervalSeconds: 60,
	}
}

func TestCoordinator_RunCompletes(t *testing.T) {
	prober := &scriptedProber{online: map[string]bool{"10.0.0.2": true, "10.0.0.4": true}}
	resolver := &recordingResolver{}
	saver := &recordingSaver{}
	bus := testutil.NewMockBus()
	c := NewCoordinator(Options{
		Prober:   prober,
		Resolver: resolver,
		Bus:      bus,
		Saver:    saver,
		Logger:   testutil.Logger(),
	})

	snap, err := c.Run(context.Background(), scanConfig("10.0.0.1-10.0.0.5", 3))
	require.NoError(t, err)

	assert.False(t, snap.Scanning)
	assert.Equal(t, 5, snap.Total)
	assert.Equal(t, 5, snap.Completed)
	assert.Equal(t, 2, snap.Online)
	assert.Equal(t, 3, snap.Offline)
	assert.NotEmpty(t, snap.ID)
	assert.NotEmpty(t, snap.ScannedAt)

	for i, item := range snap.Items {
		assert.Equal(t, netip.AddrFrom4([4]byte{10, 0, 0, byte(i + 1)}).String(), item.IP)
		assert.NotEmpty(t, item.LastScan)
		if item.Online() {
			assert.Equal(t, "host-"+item.IP, item.Hostname)
			require.NotNil(t, item.LatencyMs)
		} else {
			assert.Equal(t, models.HostStatusOffline, item.Status)
			assert.Nil(t, item.LatencyMs)
			assert.Empty(t, item.Hostname)
		}
	}

	assert.ElementsMatch(t, []string{"10.0.0.2", "10.0.0.4"}, resolver.looked, "only online hosts are resolved")
	assert.Equal(t, 1, saver.count())
	assert.False(t, c.Scanning())
	assert.Equal(t, snap.ID, c.Current().ID)

	topics := bus.Topics()
	require.Len(t, topics, 7)
	assert.Equal(t, TopicScanStarted, topics[0])
	assert.Equal(t, TopicScanCompleted, topics[6])
}

func TestCoordinator_ConcurrencyBound(t *testing.T) {
	prober := &scriptedProber{delay: 3 * time.Millisecond}
	c := NewCoordinator(Options{Prober: prober})

	snap, err := c.Run(context.Background(), scanConfig("10.0.0.0/26", 4))
	require.NoError(t, err)

	assert.Equal(t, int32(62), prober.calls.Load())
	assert.Equal(t, 62, snap.Completed)
	assert.LessOrEqual(t, prober.peak.Load(), int32(4))
	assert.Positive(t, prober.peak.Load())
}

func TestCoordinator_ConcurrencyLargerThanRange(t *testing.T) {
	prober := &scriptedProber{}
	c := NewCoordinator(Options{Prober: prober})

	snap, err := c.Run(context.Background(), scanConfig("10.0.0.1", 500))
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Total)
	assert.Equal(t, int32(1), prober.peak.Load())
}

func TestCoordinator_ProgressIsMonotonic(t *testing.T) {
	prober := &scriptedProber{delay: time.Millisecond, online: map[string]bool{"10.0.0.7": true}}
	c := NewCoordinator(Options{Prober: prober})

	done := make(chan struct{})
	var observed []*models.Snapshot
	go func() {
		defer close(done)
		for {
			snap := c.Current()
			observed = append(observed, snap)
			if !snap.Scanning && snap.Total > 0 {
				return
			}
			time.Sleep(200 * time.Microsecond)
		}
	}()

	_, err := c.Run(context.Background(), scanConfig("10.0.0.0/27", 2))
	require.NoError(t, err)
	<-done

	last := 0
	for _, snap := range observed {
		if snap.Total == 0 {
			continue
		}
		assert.GreaterOrEqual(t, snap.Completed, last)
		last = snap.Completed
		if snap.Scanning {
			assert.Less(t, snap.Completed, snap.Total)
		} else {
			assert.Equal(t, snap.Total, snap.Completed)
		}
		assert.Len(t, snap.Items, snap.Total, "placeholders are visible from the start")
	}
	assert.Equal(t, 30, last)
}

func TestCoordinator_ManualNameSurvivesScan(t *testing.T) {
	c := NewCoordinator(Options{Prober: &scriptedProber{online: map[string]bool{"10.0.0.2": true}}})

	ip, name, err := c.SetManualName(" 10.0.0.2 ", "  kitchen pi  ")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", ip)
	assert.Equal(t, "kitchen pi", name)

	snap, err := c.Run(context.Background(), scanConfig("10.0.0.1-10.0.0.3", 2))
	require.NoError(t, err)

	item, ok := snap.Find("10.0.0.2")
	require.True(t, ok)
	assert.Equal(t, "kitchen pi", item.ManualName)
	assert.True(t, item.Online())
}

func TestCoordinator_HostProbedEventCarriesManualName(t *testing.T) {
	bus := testutil.NewMockBus()
	c := NewCoordinator(Options{
		Prober: &scriptedProber{online: map[string]bool{"10.0.0.2": true}},
		Bus:    bus,
	})
	_, _, err := c.SetManualName("10.0.0.2", "nas")
	require.NoError(t, err)

	_, err = c.Run(context.Background(), scanConfig("10.0.0.1-10.0.0.2", 2))
	require.NoError(t, err)

	names := map[string]string{}
	for _, e := range bus.Events() {
		if e.Topic != TopicHostProbed {
			continue
		}
		ev, ok := e.Payload.(HostProbedEvent)
		require.True(t, ok)
		names[ev.Host.IP] = ev.Host.ManualName
	}
	assert.Equal(t, map[string]string{"10.0.0.1": "", "10.0.0.2": "nas"}, names)
}

func TestCoordinator_ManualNameDuringScan(t *testing.T) {
	prober := &scriptedProber{gate: make(chan struct{}), started: make(chan string, 8)}
	c := NewCoordinator(Options{Prober: prober})

	result := make(chan *models.Snapshot, 1)
	go func() {
		snap, _ := c.Run(context.Background(), scanConfig("10.0.0.1-10.0.0.2", 2))
		result <- snap
	}()
	<-prober.started

	_, _, err := c.SetManualName("10.0.0.1", "nas")
	require.NoError(t, err)
	close(prober.gate)

	snap := <-result
	require.NotNil(t, snap)
	item, _ := snap.Find("10.0.0.1")
	assert.Equal(t, "nas", item.ManualName)
}

func TestCoordinator_RejectsConcurrentRun(t *testing.T) {
	prober := &scriptedProber{gate: make(chan struct{}), started: make(chan string, 8)}
	saver := &recordingSaver{}
	c := NewCoordinator(Options{Prober: prober, Saver: saver})

	result := make(chan error, 1)
	go func() {
		_, err := c.Run(context.Background(), scanConfig("10.0.0.1-10.0.0.4", 1))
		result <- err
	}()
	<-prober.started
	require.True(t, c.Scanning())

	before := c.Current()
	snap, err := c.Run(context.Background(), scanConfig("10.1.0.0/24", 8))
	assert.ErrorIs(t, err, ErrScanInProgress)
	assert.Nil(t, snap)
	after := c.Current()
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, before.Range, after.Range)
	assert.Equal(t, before.Items, after.Items)

	close(prober.gate)
	require.NoError(t, <-result)
	assert.Equal(t, 1, saver.count())
}

func TestCoordinator_StartOpensSessionBeforeReturning(t *testing.T) {
	prober := &scriptedProber{gate: make(chan struct{})}
	c := NewCoordinator(Options{Prober: prober})

	done, err := c.Start(context.Background(), scanConfig("10.0.0.1-10.0.0.3", 1))
	require.NoError(t, err)

	cur := c.Current()
	assert.True(t, cur.Scanning)
	assert.Len(t, cur.Items, 3)
	assert.Equal(t, 0, cur.Completed)

	_, err = c.Start(context.Background(), scanConfig("10.0.0.1", 1))
	assert.ErrorIs(t, err, ErrScanInProgress)

	close(prober.gate)
	res := <-done
	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.Snapshot.Completed)
	assert.False(t, c.Scanning())
}

func TestCoordinator_StartRejectsInvalidConfig(t *testing.T) {
	c := NewCoordinator(Options{Prober: &scriptedProber{}})
	done, err := c.Start(context.Background(), scanConfig("not-a-range", 1))
	assert.True(t, IsValidation(err))
	assert.Nil(t, done)
	assert.False(t, c.Scanning())
}

func TestCoordinator_ValidationCreatesNoSession(t *testing.T) {
	prober := &scriptedProber{}
	saver := &recordingSaver{}
	c := NewCoordinator(Options{Prober: prober, Saver: saver})

	tests := []struct {
		name  string
		cfg   models.ScanConfig
		field string
	}{
		{"empty range", scanConfig("", 4), "range"},
		{"malformed range", scanConfig("10.0.0.300/24", 4), "range"},
		{"reversed range", scanConfig("10.0.0.9-10.0.0.1", 4), "range"},
		{"zero concurrency", scanConfig("10.0.0.0/30", 0), "concurrency"},
		{"zero timeout", models.ScanConfig{Range: "10.0.0.1", Concurrency: 1, AutoScanIntervalSeconds: 60}, "timeout_ms"},
		{"short interval", models.ScanConfig{Range: "10.0.0.1", Concurrency: 1, TimeoutMs: 10, AutoScanIntervalSeconds: 1}, "auto_scan_interval_seconds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Run(context.Background(), tt.cfg)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	assert.False(t, c.Scanning())
	assert.Zero(t, prober.calls.Load())
	assert.Zero(t, saver.count())
	assert.Empty(t, c.Current().Items)
}

func TestCoordinator_CancelDiscardsSession(t *testing.T) {
	saver := &recordingSaver{}
	first := &scriptedProber{}
	c := NewCoordinator(Options{Prober: first, Saver: saver})
	prev, err := c.Run(context.Background(), scanConfig("10.0.0.1", 1))
	require.NoError(t, err)

	blocking := &scriptedProber{gate: make(chan struct{}), started: make(chan string, 64)}
	c.prober = blocking

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		_, err := c.Run(ctx, scanConfig("10.0.1.0/28", 2))
		result <- err
	}()
	<-blocking.started
	cancel()

	assert.ErrorIs(t, <-result, context.Canceled)
	assert.False(t, c.Scanning())
	assert.Equal(t, 1, saver.count(), "a discarded session is never persisted")
	assert.Equal(t, prev.ID, c.Current().ID)

	// The coordinator accepts new scans after a discard.
	c.prober = first
	_, err = c.Run(context.Background(), scanConfig("10.0.0.1", 1))
	require.NoError(t, err)
}

func TestCoordinator_SaveFailureKeepsResult(t *testing.T) {
	saver := &recordingSaver{err: errors.New("disk full")}
	c := NewCoordinator(Options{Prober: &scriptedProber{}, Saver: saver, Logger: testutil.Logger()})

	snap, err := c.Run(context.Background(), scanConfig("10.0.0.1-10.0.0.2", 2))
	require.NoError(t, err)
	assert.Equal(t, snap.ID, c.Current().ID)
	assert.False(t, c.Current().Scanning)
}

func TestCoordinator_RateLimited(t *testing.T) {
	prober := &scriptedProber{}
	c := NewCoordinator(Options{Prober: prober, RateLimit: 1000})

	snap, err := c.Run(context.Background(), scanConfig("10.0.0.0/28", 4))
	require.NoError(t, err)
	assert.Equal(t, 14, snap.Completed)
}

func TestCoordinator_Restore(t *testing.T) {
	c := NewCoordinator(Options{Prober: &scriptedProber{}})
	c.LoadNames(map[string]string{"10.0.0.1": "gateway"})

	assert.False(t, c.Restore(&models.Snapshot{ID: "crashed", Scanning: true}))
	assert.Empty(t, c.Current().ID)

	ok := c.Restore(&models.Snapshot{
		ID:        "prev",
		Range:     "10.0.0.1-10.0.0.2",
		Total:     2,
		Completed: 2,
		Items: []models.HostResult{
			{IP: "10.0.0.1", Status: models.HostStatusOnline},
			{IP: "10.0.0.2", Status: models.HostStatusOffline},
		},
	})
	require.True(t, ok)

	snap := c.Current()
	assert.Equal(t, "prev", snap.ID)
	item, _ := snap.Find("10.0.0.1")
	assert.Equal(t, "gateway", item.ManualName)
}

func TestCoordinator_SetManualName(t *testing.T) {
	c := NewCoordinator(Options{Prober: &scriptedProber{}})

	_, _, err := c.SetManualName("not-an-ip", "x")
	assert.True(t, IsValidation(err))

	long := make([]rune, MaxManualNameLength+1)
	for i := range long {
		long[i] = 'é'
	}
	_, _, err = c.SetManualName("10.0.0.1", string(long))
	assert.True(t, IsValidation(err))

	_, _, err = c.SetManualName("10.0.0.1", string(long[:MaxManualNameLength]))
	require.NoError(t, err)

	_, _, err = c.SetManualName("10.0.0.9", "printer")
	require.NoError(t, err)
	item, ok := c.Current().Find("10.0.0.9")
	require.True(t, ok, "untracked address gets a placeholder")
	assert.Equal(t, models.HostStatusUnknown, item.Status)
	assert.Equal(t, "printer", item.ManualName)

	_, name, err := c.SetManualName("10.0.0.9", "   ")
	require.NoError(t, err)
	assert.Empty(t, name)
	item, _ = c.Current().Find("10.0.0.9")
	assert.Empty(t, item.ManualName)
	assert.NotContains(t, c.Names(), "10.0.0.9")
}
