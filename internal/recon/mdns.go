//go:build !windows

package recon

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
	"go.uber.org/zap"

	"github.com/HerbHall/ipscan/internal/scanner"
)

// mdnsServices lists the service types swept for host announcements.
var mdnsServices = []string{
	"_workstation._tcp",
	"_device-info._tcp",
	"_http._tcp",
	"_ssh._tcp",
	"_smb._tcp",
	"_ipp._tcp",
	"_printer._tcp",
	"_airplay._tcp",
	"_googlecast._tcp",
	"_hap._tcp",
}

var (
	_ scanner.Resolver = (*MDNSResolver)(nil)
	_ scanner.Preparer = (*MDNSResolver)(nil)
)

// MDNSResolver answers name lookups from multicast DNS announcements. Hosts
// that never registered a PTR record (printers, phones, media players) often
// announce themselves this way. Prepare starts a background sweep at scan
// start; LookupName waits for it, bounded by the sweep timeout.
type MDNSResolver struct {
	timeout time.Duration
	logger  *zap.Logger
	query   func(*mdns.QueryParam) error

	mu    sync.RWMutex
	names map[string]string
	done  chan struct{}
}

// NewMDNSResolver creates a resolver whose sweeps listen for timeout.
func NewMDNSResolver(timeout time.Duration, logger *zap.Logger) *MDNSResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	done := make(chan struct{})
	close(done)
	return &MDNSResolver{
		timeout: timeout,
		logger:  logger,
		query:   mdns.Query,
		names:   make(map[string]string),
		done:    done,
	}
}

// Prepare starts a sweep unless one is already running.
func (r *MDNSResolver) Prepare(ctx context.Context) {
	r.mu.Lock()
	select {
	case <-r.done:
	default:
		r.mu.Unlock()
		return
	}
	done := make(chan struct{})
	r.done = done
	r.mu.Unlock()

	go func() {
		defer close(done)
		r.sweep(ctx)
	}()
}

// LookupName returns the announced host name for ip, or "".
func (r *MDNSResolver) LookupName(ctx context.Context, ip string) string {
	r.mu.RLock()
	done := r.done
	r.mu.RUnlock()

	wait := time.NewTimer(r.timeout)
	defer wait.Stop()
	select {
	case <-done:
	case <-ctx.Done():
	case <-wait.C:
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names[ip]
}

func (r *MDNSResolver) sweep(ctx context.Context) {
	var wg sync.WaitGroup
	for _, svc := range mdnsServices {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(service string) {
			defer wg.Done()
			r.queryService(service)
		}(svc)
	}
	wg.Wait()

	r.mu.RLock()
	n := len(r.names)
	r.mu.RUnlock()
	r.logger.Debug("mDNS sweep complete", zap.Int("names", n))
}

func (r *MDNSResolver) queryService(service string) {
	entries := make(chan *mdns.ServiceEntry, 16)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			r.record(entry)
		}
	}()

	params := mdns.DefaultParams(service)
	params.Timeout = r.timeout
	params.Entries = entries
	params.DisableIPv6 = true

	if err := r.query(params); err != nil {
		r.logger.Debug("mDNS query failed",
			zap.String("service", service),
			zap.Error(err),
		)
	}
	close(entries)
	wg.Wait()
}

func (r *MDNSResolver) record(entry *mdns.ServiceEntry) {
	if entry == nil {
		return
	}
	ip := entryIP(entry)
	host := strings.TrimSuffix(entry.Host, ".")
	if ip == "" || host == "" {
		return
	}
	r.mu.Lock()
	r.names[ip] = host
	r.mu.Unlock()
}

func entryIP(entry *mdns.ServiceEntry) string {
	if entry.AddrV4 != nil && !entry.AddrV4.IsUnspecified() {
		return entry.AddrV4.String()
	}
	if entry.Addr != nil && !entry.Addr.IsUnspecified() && entry.Addr.To4() != nil {
		return entry.Addr.To4().String()
	}
	return ""
}
