//go:build !windows

package recon

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestMDNSResolver_SweepAndLookup(t *testing.T) {
	r := NewMDNSResolver(500*time.Millisecond, zap.NewNop())
	var queries atomic.Int32
	r.query = func(p *mdns.QueryParam) error {
		queries.Add(1)
		if p.Service == "_ipp._tcp" {
			p.Entries <- &mdns.ServiceEntry{Host: "printer.local.", AddrV4: net.IPv4(192, 168, 1, 40)}
			p.Entries <- &mdns.ServiceEntry{Host: "", AddrV4: net.IPv4(192, 168, 1, 41)}
			p.Entries <- &mdns.ServiceEntry{Host: "ghost.local.", AddrV4: net.IPv4zero}
		}
		if p.Service == "_ssh._tcp" {
			return errors.New("no multicast route")
		}
		return nil
	}

	r.Prepare(context.Background())

	assert.Equal(t, "printer.local", r.LookupName(context.Background(), "192.168.1.40"))
	assert.Empty(t, r.LookupName(context.Background(), "192.168.1.41"))
	assert.Equal(t, int32(len(mdnsServices)), queries.Load())
}

func TestMDNSResolver_LookupBoundedByTimeout(t *testing.T) {
	r := NewMDNSResolver(50*time.Millisecond, nil)
	release := make(chan struct{})
	r.query = func(p *mdns.QueryParam) error {
		<-release
		return nil
	}
	defer close(release)

	r.Prepare(context.Background())

	start := time.Now()
	assert.Empty(t, r.LookupName(context.Background(), "10.0.0.1"))
	assert.Less(t, time.Since(start), time.Second)
}

func TestMDNSResolver_PrepareIsIdempotentWhileRunning(t *testing.T) {
	r := NewMDNSResolver(time.Second, nil)
	release := make(chan struct{})
	var queries atomic.Int32
	r.query = func(p *mdns.QueryParam) error {
		queries.Add(1)
		<-release
		return nil
	}

	r.Prepare(context.Background())
	r.Prepare(context.Background())
	close(release)
	r.LookupName(context.Background(), "10.0.0.1")

	assert.Equal(t, int32(len(mdnsServices)), queries.Load())
}

func TestMDNSResolver_NoSweepReturnsImmediately(t *testing.T) {
	r := NewMDNSResolver(time.Hour, nil)
	start := time.Now()
	assert.Empty(t, r.LookupName(context.Background(), "10.0.0.1"))
	assert.Less(t, time.Since(start), time.Second)
}
