package scanner

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"
)

// DefaultResolveTimeout bounds a single reverse lookup.
const DefaultResolveTimeout = 500 * time.Millisecond

// Resolver maps an address back to a hostname. Lookups are best effort: any
// failure yields the empty string.
type Resolver interface {
	LookupName(ctx context.Context, ip string) string
}

// Preparer is implemented by resolvers that refresh state once per scan.
type Preparer interface {
	Prepare(ctx context.Context)
}

// SystemResolver uses the Go resolver (hosts file, then the system DNS).
type SystemResolver struct {
	resolver *net.Resolver
	timeout  time.Duration
}

// NewSystemResolver creates a SystemResolver bounded by timeout.
func NewSystemResolver(timeout time.Duration) *SystemResolver {
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}
	return &SystemResolver{resolver: net.DefaultResolver, timeout: timeout}
}

func (r *SystemResolver) LookupName(ctx context.Context, ip string) string {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	names, err := r.resolver.LookupAddr(ctx, ip)
	if err != nil || len(names) == 0 {
		return ""
	}
	return trimFQDN(names[0])
}

// DNSResolver sends PTR queries directly to a list of DNS servers.
type DNSResolver struct {
	client  *dns.Client
	servers []string
	timeout time.Duration
}

// NewDNSResolver creates a DNSResolver. Servers are host or host:port; the
// port defaults to 53.
func NewDNSResolver(servers []string, timeout time.Duration) *DNSResolver {
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}
	normalized := make([]string, 0, len(servers))
	for _, s := range servers {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(s); err != nil {
			s = net.JoinHostPort(s, "53")
		}
		normalized = append(normalized, s)
	}
	return &DNSResolver{
		client:  &dns.Client{Timeout: timeout},
		servers: normalized,
		timeout: timeout,
	}
}

func (r *DNSResolver) LookupName(ctx context.Context, ip string) string {
	arpa, err := dns.ReverseAddr(ip)
	if err != nil {
		return ""
	}
	msg := new(dns.Msg)
	msg.SetQuestion(arpa, dns.TypePTR)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	for _, server := range r.servers {
		if ctx.Err() != nil {
			return ""
		}
		in, _, err := r.client.ExchangeContext(ctx, msg, server)
		if err != nil || in == nil {
			continue
		}
		if in.Rcode != dns.RcodeSuccess {
			// NXDOMAIN is authoritative; other servers would say the same.
			if in.Rcode == dns.RcodeNameError {
				return ""
			}
			continue
		}
		for _, rr := range in.Answer {
			if ptr, ok := rr.(*dns.PTR); ok {
				return trimFQDN(ptr.Ptr)
			}
		}
		return ""
	}
	return ""
}

// ChainResolver returns the first non-empty name from its members.
type ChainResolver []Resolver

func (c ChainResolver) LookupName(ctx context.Context, ip string) string {
	for _, r := range c {
		if name := r.LookupName(ctx, ip); name != "" {
			return name
		}
	}
	return ""
}

// Prepare forwards to every member that implements Preparer.
func (c ChainResolver) Prepare(ctx context.Context) {
	for _, r := range c {
		if p, ok := r.(Preparer); ok {
			p.Prepare(ctx)
		}
	}
}

// NewResolver picks a PTR resolver. An explicit server wins; otherwise the
// nameservers from resolvConf are queried directly; if that file cannot be
// read the system resolver is used.
func NewResolver(server, resolvConf string, timeout time.Duration, logger *zap.Logger) Resolver {
	if server != "" {
		logger.Info("reverse lookups via configured server", zap.String("server", server))
		return NewDNSResolver([]string{server}, timeout)
	}
	if resolvConf != "" {
		cfg, err := dns.ClientConfigFromFile(resolvConf)
		if err == nil && len(cfg.Servers) > 0 {
			servers := make([]string, len(cfg.Servers))
			for i, s := range cfg.Servers {
				servers[i] = net.JoinHostPort(s, cfg.Port)
			}
			logger.Info("reverse lookups via resolv.conf", zap.Strings("servers", servers))
			return NewDNSResolver(servers, timeout)
		}
		logger.Debug("resolv.conf unusable, falling back to system resolver", zap.Error(err))
	}
	return NewSystemResolver(timeout)
}

// trimFQDN removes the trailing dot from a fully qualified name.
func trimFQDN(name string) string {
	return strings.TrimSuffix(name, ".")
}
