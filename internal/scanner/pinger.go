package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"golang.org/x/net/icmp"
)

// ErrICMPUnavailable is returned by a Pinger when the process may not send
// ICMP echo requests. The probe step is skipped, not counted as a failure.
var ErrICMPUnavailable = errors.New("icmp unavailable")

var errNoReply = errors.New("no echo reply")

// Pinger sends a single ICMP echo request and returns the round-trip time.
type Pinger interface {
	Ping(ctx context.Context, ip string, timeout time.Duration) (time.Duration, error)
}

// ICMPMode describes how (and whether) this process can send ICMP echo.
type ICMPMode int

const (
	ICMPUnavailable ICMPMode = iota
	ICMPUnprivileged
	ICMPPrivileged
)

func (m ICMPMode) String() string {
	switch m {
	case ICMPUnprivileged:
		return "unprivileged"
	case ICMPPrivileged:
		return "privileged"
	default:
		return "unavailable"
	}
}

// DetectICMPMode opens and closes an ICMP socket to find out which mode the
// current principal is allowed to use.
// On Windows, pro-bing always needs privileged mode.
// On Linux/macOS, unprivileged "udp4" ICMP (ping_group_range) is preferred.
func DetectICMPMode() ICMPMode {
	if runtime.GOOS == "windows" {
		return ICMPPrivileged
	}
	if conn, err := icmp.ListenPacket("udp4", ""); err == nil {
		conn.Close()
		return ICMPUnprivileged
	}
	if conn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0"); err == nil {
		conn.Close()
		return ICMPPrivileged
	}
	return ICMPUnavailable
}

// ProBingPinger pings targets using ICMP via pro-bing.
type ProBingPinger struct {
	privileged bool
	// denied latches once the kernel refuses the socket, so later probes
	// skip ICMP without paying for another failed open.
	denied atomic.Bool
}

// NewPinger returns a Pinger for the given mode, or nil when ICMP is
// unavailable so that callers skip the ICMP step entirely.
func NewPinger(mode ICMPMode) Pinger {
	if mode == ICMPUnavailable {
		return nil
	}
	return &ProBingPinger{privileged: mode == ICMPPrivileged}
}

// Ping sends one echo request to ip and waits up to timeout for the reply.
func (p *ProBingPinger) Ping(ctx context.Context, ip string, timeout time.Duration) (time.Duration, error) {
	if p.denied.Load() {
		return 0, ErrICMPUnavailable
	}

	pinger, err := probing.NewPinger(ip)
	if err != nil {
		return 0, fmt.Errorf("create pinger: %w", err)
	}
	pinger.Count = 1
	pinger.Timeout = timeout
	pinger.SetPrivileged(p.privileged)

	// Run pinger in a goroutine for context cancellation.
	done := make(chan error, 1)
	go func() {
		done <- pinger.Run()
	}()

	select {
	case runErr := <-done:
		if runErr != nil {
			if errors.Is(runErr, os.ErrPermission) {
				p.denied.Store(true)
				return 0, fmt.Errorf("%w: %v", ErrICMPUnavailable, runErr)
			}
			return 0, fmt.Errorf("ping %s: %w", ip, runErr)
		}
		stats := pinger.Statistics()
		if stats.PacketsRecv == 0 {
			return 0, errNoReply
		}
		return stats.AvgRtt, nil

	case <-ctx.Done():
		pinger.Stop()
		return 0, ctx.Err()
	}
}
