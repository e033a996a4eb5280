package discovery

import (
	"context"
	"errors"
	"time"
)

// Browser provides mDNS service browsing capabilities.
type Browser interface {
	// BrowseCommissionable searches for devices in commissioning mode.
	// The channel is closed when the context is cancelled.
	BrowseCommissionable(ctx context.Context) (<-chan *CommissionableService, error)

	// Stop stops all active browsing operations.
	Stop()
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// BrowseTimeout is the default timeout for browse operations.
	// Default: 10 seconds.
	BrowseTimeout time.Duration

	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		BrowseTimeout: BrowseTimeout,
		Interface:     "",
	}
}

// FilterFunc is a function that filters browse results.
type FilterFunc func(*CommissionableService) bool

// FilterAll accepts every service.
func FilterAll() FilterFunc {
	return func(*CommissionableService) bool { return true }
}

// FilterByLongDiscriminator returns a filter that matches the 12-bit discriminator.
func FilterByLongDiscriminator(discriminator uint16) FilterFunc {
	return func(svc *CommissionableService) bool {
		return svc.LongDiscriminator == discriminator
	}
}

// FilterByShortDiscriminator returns a filter that matches the 4-bit discriminator.
func FilterByShortDiscriminator(discriminator uint16) FilterFunc {
	return func(svc *CommissionableService) bool {
		return svc.ShortDiscriminator() == discriminator
	}
}

// FilterBrowseResults forwards the services accepted by filter.
func FilterBrowseResults(in <-chan *CommissionableService, filter FilterFunc) <-chan *CommissionableService {
	out := make(chan *CommissionableService)
	go func() {
		defer close(out)
		for svc := range in {
			if filter(svc) {
				out <- svc
			}
		}
	}()
	return out
}

// Find browses until a service accepted by filter appears. It returns
// ErrNotFound when timeout expires first. A zero timeout selects
// BrowseTimeout.
func Find(ctx context.Context, b Browser, filter FilterFunc, timeout time.Duration) (*CommissionableService, error) {
	if timeout <= 0 {
		timeout = BrowseTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results, err := b.BrowseCommissionable(ctx)
	if err != nil {
		return nil, err
	}

	for {
		select {
		case svc, ok := <-results:
			if !ok {
				return nil, notFound(ctx)
			}
			if filter(svc) {
				return svc, nil
			}
		case <-ctx.Done():
			return nil, notFound(ctx)
		}
	}
}

// notFound maps an expired browse to ErrNotFound and keeps cancellation.
func notFound(ctx context.Context) error {
	if err := ctx.Err(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return ErrNotFound
}
