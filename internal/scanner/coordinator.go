package scanner

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/HerbHall/ipscan/internal/event"
	"github.com/HerbHall/ipscan/pkg/models"
)

// Event topics published by the coordinator.
const (
	TopicScanStarted   = "scanner.scan.started"
	TopicHostProbed    = "scanner.host.probed"
	TopicScanCompleted = "scanner.scan.completed"
)

const eventSource = "scanner"

// ScanStartedEvent is the payload for TopicScanStarted.
type ScanStartedEvent struct {
	ScanID string `json:"scan_id"`
	Range  string `json:"range"`
	Total  int    `json:"total"`
}

// HostProbedEvent is the payload for TopicHostProbed.
type HostProbedEvent struct {
	ScanID    string            `json:"scan_id"`
	Host      models.HostResult `json:"host"`
	Completed int               `json:"completed"`
	Total     int               `json:"total"`
}

// ScanCompletedEvent is the payload for TopicScanCompleted.
type ScanCompletedEvent struct {
	ScanID     string `json:"scan_id"`
	Range      string `json:"range"`
	Total      int    `json:"total"`
	Online     int    `json:"online"`
	DurationMs int64  `json:"duration_ms"`
}

// Metrics receives scan and probe counters. metrics.Collector implements it.
type Metrics interface {
	ProbeStarted()
	ProbeFinished(method, status string)
	ScanFinished(d time.Duration, online int)
	ScanCancelled()
	ScanRejected()
}

// SnapshotSaver persists finalized snapshots.
type SnapshotSaver interface {
	SaveSnapshot(ctx context.Context, snap *models.Snapshot) error
}

// Options configures a Coordinator. Only Prober is required.
type Options struct {
	Prober   Prober
	Resolver Resolver
	Bus      event.Publisher
	Metrics  Metrics
	Saver    SnapshotSaver
	// RateLimit caps probe dispatch in probes per second; 0 disables pacing.
	RateLimit float64
	Now       func() time.Time
	Logger    *zap.Logger
}

// Coordinator runs scans. At most one session is unfinalized at any time.
type Coordinator struct {
	prober   Prober
	resolver Resolver
	bus      event.Publisher
	metrics  Metrics
	saver    SnapshotSaver
	limiter  *rate.Limiter
	now      func() time.Time
	logger   *zap.Logger

	mu     sync.Mutex
	active *Session
	latest *Session
	names  map[string]string
}

// NewCoordinator creates a Coordinator from opts.
func NewCoordinator(opts Options) *Coordinator {
	c := &Coordinator{
		prober:   opts.Prober,
		resolver: opts.Resolver,
		bus:      opts.Bus,
		metrics:  opts.Metrics,
		saver:    opts.Saver,
		now:      opts.Now,
		logger:   opts.Logger,
		names:    make(map[string]string),
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if opts.RateLimit > 0 {
		burst := max(1, int(opts.RateLimit))
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c
}

// Run executes one full scan with cfg and returns the finalized snapshot.
// It fails with a *ValidationError before creating a session when cfg is
// invalid, and with ErrScanInProgress when another scan is unfinalized.
// Cancelling ctx discards the session: nothing is persisted and the
// previous result stays authoritative.
func (c *Coordinator) Run(ctx context.Context, cfg models.ScanConfig) (*models.Snapshot, error) {
	sess, addrs, err := c.begin(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return c.execute(ctx, sess, addrs, cfg)
}

// Result is the outcome of a scan launched with Start.
type Result struct {
	Snapshot *models.Snapshot
	Err      error
}

// Start validates cfg and opens the session before returning, so Current
// reports the scanning snapshot as soon as Start succeeds. Probing continues
// in the background and the returned channel receives exactly one Result.
func (c *Coordinator) Start(ctx context.Context, cfg models.ScanConfig) (<-chan Result, error) {
	sess, addrs, err := c.begin(ctx, cfg)
	if err != nil {
		return nil, err
	}
	out := make(chan Result, 1)
	go func() {
		snap, err := c.execute(ctx, sess, addrs, cfg)
		out <- Result{Snapshot: snap, Err: err}
	}()
	return out, nil
}

func (c *Coordinator) begin(ctx context.Context, cfg models.ScanConfig) (*Session, []netip.Addr, error) {
	addrs, err := prepare(cfg)
	if err != nil {
		return nil, nil, err
	}

	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		if c.metrics != nil {
			c.metrics.ScanRejected()
		}
		return nil, nil, ErrScanInProgress
	}
	sess := newSession(uuid.NewString(), cfg.Range, addrs, c.names, c.now)
	c.active = sess
	c.mu.Unlock()

	c.logger.Info("scan started",
		zap.String("scan_id", sess.ID()),
		zap.String("range", cfg.Range),
		zap.Int("total", len(addrs)),
		zap.Int("concurrency", cfg.Concurrency),
		zap.Duration("timeout", cfg.Timeout()),
	)
	c.publish(ctx, TopicScanStarted, ScanStartedEvent{ScanID: sess.ID(), Range: cfg.Range, Total: len(addrs)})
	return sess, addrs, nil
}

func (c *Coordinator) execute(ctx context.Context, sess *Session, addrs []netip.Addr, cfg models.ScanConfig) (*models.Snapshot, error) {
	if p, ok := c.resolver.(Preparer); ok {
		p.Prepare(ctx)
	}

	c.dispatch(ctx, sess, addrs, cfg)

	if sess.Scanning() {
		c.mu.Lock()
		if c.active == sess {
			c.active = nil
		}
		c.mu.Unlock()
		if c.metrics != nil {
			c.metrics.ScanCancelled()
		}
		c.logger.Warn("scan discarded before completion",
			zap.String("scan_id", sess.ID()),
			zap.String("range", cfg.Range),
		)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, errors.New("scan ended with probes outstanding")
	}

	return c.finalize(ctx, sess), nil
}

// dispatch feeds addrs to min(concurrency, len(addrs)) workers and waits for
// them. Pacing happens here so workers never hold a slot while waiting.
func (c *Coordinator) dispatch(ctx context.Context, sess *Session, addrs []netip.Addr, cfg models.ScanConfig) {
	jobs := make(chan netip.Addr)
	var wg sync.WaitGroup
	for range min(cfg.Concurrency, len(addrs)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for addr := range jobs {
				c.probeHost(ctx, sess, addr, cfg.Timeout())
			}
		}()
	}

feed:
	for _, addr := range addrs {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				break
			}
		}
		select {
		case jobs <- addr:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
}

func (c *Coordinator) probeHost(ctx context.Context, sess *Session, addr netip.Addr, timeout time.Duration) {
	if ctx.Err() != nil {
		return
	}
	if c.metrics != nil {
		c.metrics.ProbeStarted()
	}
	out := c.prober.Probe(ctx, addr, timeout)
	if c.metrics != nil {
		c.metrics.ProbeFinished(string(out.Method), string(out.Status))
	}
	// A probe cut short by cancellation is not a real offline verdict.
	if ctx.Err() != nil {
		return
	}

	res := models.HostResult{
		IP:        addr.String(),
		Status:    out.Status,
		Method:    out.Method,
		LatencyMs: out.LatencyMs(),
	}
	if out.Status == models.HostStatusOnline && c.resolver != nil {
		res.Hostname = c.resolver.LookupName(ctx, res.IP)
	}
	res.LastScan = c.now().UTC().Format(time.RFC3339Nano)

	res, completed, _ := sess.merge(res)
	c.logger.Debug("host probed",
		zap.String("ip", res.IP),
		zap.String("status", string(res.Status)),
		zap.String("method", string(res.Method)),
		zap.String("hostname", res.Hostname),
	)
	c.publish(ctx, TopicHostProbed, HostProbedEvent{
		ScanID:    sess.ID(),
		Host:      res,
		Completed: completed,
		Total:     sess.total,
	})
}

func (c *Coordinator) finalize(ctx context.Context, sess *Session) *models.Snapshot {
	c.mu.Lock()
	c.latest = sess
	if c.active == sess {
		c.active = nil
	}
	c.mu.Unlock()

	snap := sess.Snapshot()
	c.logger.Info("scan complete",
		zap.String("scan_id", snap.ID),
		zap.String("range", snap.Range),
		zap.Int64("duration_ms", snap.DurationMs),
		zap.Int("online", snap.Online),
		zap.Int("offline", snap.Offline),
	)

	if c.saver != nil {
		if err := c.saver.SaveSnapshot(context.WithoutCancel(ctx), snap); err != nil {
			c.logger.Warn("persist snapshot failed", zap.String("scan_id", snap.ID), zap.Error(err))
		}
	}
	if c.metrics != nil {
		c.metrics.ScanFinished(time.Duration(snap.DurationMs)*time.Millisecond, snap.Online)
	}
	c.publish(ctx, TopicScanCompleted, ScanCompletedEvent{
		ScanID:     snap.ID,
		Range:      snap.Range,
		Total:      snap.Total,
		Online:     snap.Online,
		DurationMs: snap.DurationMs,
	})
	return snap
}

func (c *Coordinator) publish(ctx context.Context, topic string, payload any) {
	if c.bus == nil {
		return
	}
	_ = c.bus.Publish(context.WithoutCancel(ctx), event.Event{
		Topic:     topic,
		Source:    eventSource,
		Timestamp: c.now(),
		Payload:   payload,
	})
}

// Scanning reports whether a scan is currently unfinalized.
func (c *Coordinator) Scanning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Current returns the in-flight session when one exists, otherwise the last
// finalized one, otherwise an empty snapshot.
func (c *Coordinator) Current() *models.Snapshot {
	c.mu.Lock()
	sess := c.active
	if sess == nil {
		sess = c.latest
	}
	c.mu.Unlock()

	if sess == nil {
		return models.EmptySnapshot()
	}
	return sess.Snapshot()
}

// Restore installs a previously persisted snapshot as the latest result.
// Snapshots captured mid-scan are rejected and reported as false.
func (c *Coordinator) Restore(snap *models.Snapshot) bool {
	if snap == nil || snap.Scanning {
		return false
	}
	sess := sessionFromSnapshot(snap, c.now)

	c.mu.Lock()
	defer c.mu.Unlock()
	for ip, name := range c.names {
		sess.setManualName(ip, name)
	}
	c.latest = sess
	return true
}

// LoadNames seeds the manual name table, typically from persistence.
func (c *Coordinator) LoadNames(names map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ip, name := range names {
		if name == "" {
			continue
		}
		c.names[ip] = name
		for _, s := range []*Session{c.active, c.latest} {
			if s != nil {
				s.setManualName(ip, name)
			}
		}
	}
}

// SetManualName assigns a display name to ip, creating a placeholder entry
// when the address is not tracked. Names are trimmed; an empty name clears
// the entry. It returns the canonical ip and the stored name.
func (c *Coordinator) SetManualName(ip, name string) (string, string, error) {
	ip, err := NormalizeIP(ip)
	if err != nil {
		return "", "", err
	}
	name, err = NormalizeManualName(name)
	if err != nil {
		return "", "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if name == "" {
		delete(c.names, ip)
	} else {
		c.names[ip] = name
	}
	applied := false
	for _, s := range []*Session{c.active, c.latest} {
		if s != nil {
			s.setManualName(ip, name)
			applied = true
		}
	}
	if !applied && name != "" {
		// Nothing scanned yet: start an empty finalized result to carry the
		// placeholder so it is visible immediately.
		c.latest = sessionFromSnapshot(models.EmptySnapshot(), c.now)
		c.latest.setManualName(ip, name)
	}
	return ip, name, nil
}

// Names returns a copy of the manual name table.
func (c *Coordinator) Names() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.names))
	for ip, name := range c.names {
		out[ip] = name
	}
	return out
}
