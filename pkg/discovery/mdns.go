package discovery

import (
	"context"
	"net"
	"slices"
	"sync"

	"github.com/enbility/zeroconf/v3"
)

// MDNSBrowser implements the Browser interface using zeroconf.
type MDNSBrowser struct {
	config BrowserConfig

	mu      sync.Mutex
	stopped bool
	cancels []context.CancelFunc
}

// NewMDNSBrowser creates a new mDNS browser.
func NewMDNSBrowser(config BrowserConfig) *MDNSBrowser {
	return &MDNSBrowser{
		config: config,
	}
}

// BrowseCommissionable searches for devices in commissioning mode.
// Services are aggregated by instance name - addresses from multiple interfaces
// are combined into a single entry. Removals are handled when interfaces disappear.
func (b *MDNSBrowser) BrowseCommissionable(ctx context.Context) (<-chan *CommissionableService, error) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil, context.Canceled
	}
	ctx, cancel := context.WithCancel(ctx)
	b.cancels = append(b.cancels, cancel)
	b.mu.Unlock()

	out := make(chan *CommissionableService)
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	// Process entries with aggregation
	go func() {
		defer close(out)

		services := make(serviceSet)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				svc := entryToCommissionable(entry)
				if svc == nil {
					continue
				}
				first, isNew := services.add(svc)
				if !isNew {
					continue
				}
				select {
				case out <- first:
				case <-ctx.Done():
					return
				}

			case entry, ok := <-removed:
				if !ok {
					removed = nil
					continue
				}
				services.remove(entry.Instance, addressesOf(entry))

			case <-ctx.Done():
				return
			}
		}
	}()

	// Start browsing in background
	go func() {
		_ = zeroconf.Browse(ctx, ServiceTypeCommissionable, Domain, entries, removed, b.browserOptions()...)
	}()

	return out, nil
}

// Stop stops all active browsing operations.
func (b *MDNSBrowser) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopped = true
	for _, cancel := range b.cancels {
		cancel()
	}
	b.cancels = nil
}

// browserOptions returns zeroconf client options based on config.
func (b *MDNSBrowser) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption

	// Select specific interface if configured
	if b.config.Interface != "" {
		iface, err := net.InterfaceByName(b.config.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}

	return opts
}

// entryToCommissionable converts a zeroconf entry to CommissionableService.
func entryToCommissionable(entry *zeroconf.ServiceEntry) *CommissionableService {
	return newCommissionable(entry.Instance, entry.HostName, entry.Port, addressesOf(entry), entry.Text)
}

// newCommissionable builds a service from its resolved record. Records
// with invalid TXT data are dropped.
func newCommissionable(instance, host string, port int, addrs []string, text []string) *CommissionableService {
	svc := &CommissionableService{
		InstanceName: instance,
		Host:         host,
		Port:         uint16(port),
		Addresses:    addrs,
	}
	if err := DecodeCommissionableTXT(StringsToTXTRecords(text), svc); err != nil {
		return nil
	}
	return svc
}

func addressesOf(entry *zeroconf.ServiceEntry) []string {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return addrs
}

// serviceSet aggregates browse results by instance name.
type serviceSet map[string]*CommissionableService

// add records svc. For a new instance it returns a copy that the set never
// touches again; a known instance only gains the new addresses.
func (s serviceSet) add(svc *CommissionableService) (*CommissionableService, bool) {
	if existing, found := s[svc.InstanceName]; found {
		existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
		return nil, false
	}
	s[svc.InstanceName] = svc
	sent := *svc
	sent.Addresses = slices.Clone(svc.Addresses)
	return &sent, true
}

// remove drops addresses of an instance and forgets it once none is left.
func (s serviceSet) remove(instance string, addrs []string) {
	existing, found := s[instance]
	if !found {
		return
	}
	existing.Addresses = removeAddresses(existing.Addresses, addrs)
	if len(existing.Addresses) == 0 {
		delete(s, instance)
	}
}

// mergeAddresses adds new addresses to existing list, avoiding duplicates.
func mergeAddresses(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}

	for _, addr := range added {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

// removeAddresses returns addresses without the ones in gone.
func removeAddresses(addresses, gone []string) []string {
	toRemove := make(map[string]bool, len(gone))
	for _, addr := range gone {
		toRemove[addr] = true
	}

	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !toRemove[addr] {
			result = append(result, addr)
		}
	}
	return result
}

// Ensure MDNSBrowser implements Browser interface.
var _ Browser = (*MDNSBrowser)(nil)
