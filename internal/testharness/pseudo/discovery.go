package pseudo

import (
	"context"
	"errors"
	"time"

	"github.com/matter-conformance/yamltests/internal/testharness/loader"
	"github.com/matter-conformance/yamltests/pkg/discovery"
	"github.com/matter-conformance/yamltests/pkg/value"
	"github.com/matter-conformance/yamltests/pkg/wire"
)

// DiscoveryCommandsName is the name of the commissionable discovery cluster.
const DiscoveryCommandsName = "DiscoveryCommands"

type discriminatorArgs struct {
	Value uint16 `mapstructure:"value"`
}

// NewDiscoveryCommands creates the discovery cluster. Each command browses
// for a commissionable device within timeout (discovery.BrowseTimeout
// when zero). A device that is not found yields a FAILURE response.
func NewDiscoveryCommands(browser discovery.Browser, timeout time.Duration) *Cluster {
	c := NewCluster(DiscoveryCommandsName)

	find := func(filter func(*loader.Step) (discovery.FilterFunc, error)) Handler {
		return func(ctx context.Context, step *loader.Step) ([]wire.Response, []wire.LogRecord, error) {
			f, err := filter(step)
			if err != nil {
				return nil, nil, err
			}
			svc, err := discovery.Find(ctx, browser, f, timeout)
			if errors.Is(err, discovery.ErrNotFound) {
				r := success(step)
				r[0].Error = wire.StatusFailure.String()
				rec := wire.LogRecord{Module: DiscoveryCommandsName, Level: "error", Message: "no commissionable device found"}
				return r, []wire.LogRecord{rec}, nil
			}
			if err != nil {
				return nil, nil, err
			}
			r := success(step)
			r[0].SetValue(serviceValue(svc))
			return r, nil, nil
		}
	}

	c.RegisterHandler("FindCommissionable", find(func(step *loader.Step) (discovery.FilterFunc, error) {
		return discovery.FilterAll(), decodeArguments(step, &struct{}{})
	}))
	c.RegisterHandler("FindCommissionableByShortDiscriminator", find(func(step *loader.Step) (discovery.FilterFunc, error) {
		var args discriminatorArgs
		if err := decodeArguments(step, &args); err != nil {
			return nil, err
		}
		return discovery.FilterByShortDiscriminator(args.Value), nil
	}))
	c.RegisterHandler("FindCommissionableByLongDiscriminator", find(func(step *loader.Step) (discovery.FilterFunc, error) {
		var args discriminatorArgs
		if err := decodeArguments(step, &args); err != nil {
			return nil, err
		}
		return discovery.FilterByLongDiscriminator(args.Value), nil
	}))
	return c
}

// serviceValue renders a found device with the field names of a
// discovery command response.
func serviceValue(svc *discovery.CommissionableService) value.Value {
	return value.FromMap(value.MapOf(
		"instanceName", svc.InstanceName,
		"hostName", svc.Host,
		"port", uint64(svc.Port),
		"longDiscriminator", uint64(svc.LongDiscriminator),
		"vendorId", uint64(svc.VendorID),
		"productId", uint64(svc.ProductID),
		"commissioningMode", uint64(svc.CommissioningMode),
		"deviceType", uint64(svc.DeviceType),
		"deviceName", svc.DeviceName,
		"pairingInstruction", svc.PairingInstruction,
		"pairingHint", uint64(svc.PairingHint),
		"numIPs", uint64(len(svc.Addresses)),
	))
}
