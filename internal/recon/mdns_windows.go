//go:build windows

package recon

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// MDNSResolver is a no-op on Windows where multicast DNS is not reliably
// supported.
type MDNSResolver struct{}

// NewMDNSResolver returns a resolver that never finds a name.
func NewMDNSResolver(_ time.Duration, _ *zap.Logger) *MDNSResolver {
	return &MDNSResolver{}
}

// Prepare is a no-op on Windows.
func (r *MDNSResolver) Prepare(context.Context) {}

// LookupName always returns "" on Windows.
func (r *MDNSResolver) LookupName(context.Context, string) string { return "" }
