package scanner

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/ipscan/pkg/models"
)

// ProbeStep is one row of the ordered probe policy. TimeoutShare scales the
// configured per-probe timeout for this step.
type ProbeStep struct {
	Method       models.ProbeMethod
	Port         int
	TimeoutShare float64
}

// DefaultProbePolicy tries ICMP with the full budget, then TCP connects to a
// fixed list of commonly open ports with half the budget each. The first
// success wins, so a probe never runs longer than timeout * 3.
var DefaultProbePolicy = []ProbeStep{
	{Method: models.ProbeMethodICMP, TimeoutShare: 1},
	{Method: models.ProbeMethodTCP, Port: 80, TimeoutShare: 0.5},
	{Method: models.ProbeMethodTCP, Port: 443, TimeoutShare: 0.5},
	{Method: models.ProbeMethodTCP, Port: 22, TimeoutShare: 0.5},
	{Method: models.ProbeMethodTCP, Port: 445, TimeoutShare: 0.5},
}

// MaxProbeDuration returns the worst-case duration of one probe pass.
func MaxProbeDuration(policy []ProbeStep, timeout time.Duration) time.Duration {
	var total time.Duration
	for _, step := range policy {
		total += stepBudget(step, timeout)
	}
	return total
}

func stepBudget(step ProbeStep, timeout time.Duration) time.Duration {
	if step.TimeoutShare <= 0 {
		return timeout
	}
	return time.Duration(float64(timeout) * step.TimeoutShare)
}

// Outcome is the liveness classification of one address.
type Outcome struct {
	Status  models.HostStatus
	Method  models.ProbeMethod
	Latency time.Duration
}

// LatencyMs returns the latency in milliseconds, or nil when offline.
func (o Outcome) LatencyMs() *float64 {
	if o.Status != models.HostStatusOnline {
		return nil
	}
	ms := float64(o.Latency.Microseconds()) / 1000.0
	return &ms
}

func offline() Outcome {
	return Outcome{Status: models.HostStatusOffline, Method: models.ProbeMethodNone}
}

// Prober classifies the liveness of a single address. Unreachability is a
// normal outcome, so Probe has no error return.
type Prober interface {
	Probe(ctx context.Context, addr netip.Addr, timeout time.Duration) Outcome
}

// Dialer is satisfied by *net.Dialer.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// LayeredProber walks a probe policy in order and stops at the first step
// that reaches the host.
type LayeredProber struct {
	pinger Pinger
	dialer Dialer
	policy []ProbeStep
	logger *zap.Logger
}

// Compile-time interface guard.
var _ Prober = (*LayeredProber)(nil)

// NewLayeredProber creates a prober. A nil pinger disables the ICMP steps,
// a nil dialer uses a plain net.Dialer, and an empty policy means
// DefaultProbePolicy.
func NewLayeredProber(pinger Pinger, dialer Dialer, logger *zap.Logger, policy ...ProbeStep) *LayeredProber {
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	if len(policy) == 0 {
		policy = DefaultProbePolicy
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LayeredProber{
		pinger: pinger,
		dialer: dialer,
		policy: policy,
		logger: logger,
	}
}

// Probe runs a single pass over the policy for addr.
func (p *LayeredProber) Probe(ctx context.Context, addr netip.Addr, timeout time.Duration) Outcome {
	ip := addr.String()
	for _, step := range p.policy {
		if ctx.Err() != nil {
			break
		}
		budget := stepBudget(step, timeout)

		switch step.Method {
		case models.ProbeMethodICMP:
			if p.pinger == nil {
				continue
			}
			rtt, err := p.pinger.Ping(ctx, ip, budget)
			if err == nil {
				return Outcome{Status: models.HostStatusOnline, Method: models.ProbeMethodICMP, Latency: rtt}
			}
			if errors.Is(err, ErrICMPUnavailable) {
				p.logger.Debug("icmp skipped", zap.String("ip", ip))
				continue
			}
			p.logger.Debug("icmp failed", zap.String("ip", ip), zap.Error(err))

		case models.ProbeMethodTCP:
			if rtt, ok := p.connect(ctx, ip, step.Port, budget); ok {
				return Outcome{Status: models.HostStatusOnline, Method: models.ProbeMethodTCP, Latency: rtt}
			}
		}
	}
	return offline()
}

// connect reports whether a TCP handshake to ip:port completes within budget.
func (p *LayeredProber) connect(ctx context.Context, ip string, port int, budget time.Duration) (time.Duration, bool) {
	dialCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	start := time.Now()
	conn, err := p.dialer.DialContext(dialCtx, "tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
	if err != nil {
		return 0, false
	}
	rtt := time.Since(start)
	_ = conn.Close()
	return rtt, true
}
