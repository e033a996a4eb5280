package discovery

import (
	"errors"
	"time"
)

// Service type constants for mDNS.
const (
	// ServiceTypeCommissionable is the service type for devices in commissioning mode.
	ServiceTypeCommissionable = "_matterc._udp"

	// Domain is the mDNS domain.
	Domain = "local."
)

// TXT record key constants.
const (
	TXTKeyDiscriminator      = "D"  // Long discriminator (0-4095)
	TXTKeyVendorProduct      = "VP" // Vendor id, optionally "+product id"
	TXTKeyCommissioningMode  = "CM" // 0 closed, 1 basic, 2 enhanced
	TXTKeyDeviceType         = "DT" // Primary device type (optional)
	TXTKeyDeviceName         = "DN" // Device name (optional)
	TXTKeyPairingHint        = "PH" // Pairing hint bitmap (optional)
	TXTKeyPairingInstruction = "PI" // Pairing instruction (optional)
)

// Timing constants.
const (
	// BrowseTimeout is the default timeout for mDNS browsing.
	BrowseTimeout = 10 * time.Second
)

// Limits.
const (
	// MaxDiscriminator is the maximum long discriminator value (12 bits).
	MaxDiscriminator = 4095

	// MaxShortDiscriminator is the maximum short discriminator value (4 bits).
	MaxShortDiscriminator = 15
)

// Discovery errors.
var (
	ErrInvalidDiscriminator = errors.New("discriminator out of range")
	ErrInvalidTXTRecord     = errors.New("invalid TXT record format")
	ErrMissingRequired      = errors.New("missing required field")
	ErrNotFound             = errors.New("service not found")
)

// CommissioningMode is the value of the CM TXT key.
type CommissioningMode uint8

const (
	CommissioningModeClosed   CommissioningMode = 0
	CommissioningModeBasic    CommissioningMode = 1
	CommissioningModeEnhanced CommissioningMode = 2
)

// CommissionableService is a device found in commissioning mode.
type CommissionableService struct {
	// InstanceName is the mDNS instance name.
	InstanceName string

	// Host is the target host name.
	Host string

	// Port is the commissioning port.
	Port uint16

	// Addresses are the resolved IPv4 and IPv6 addresses.
	Addresses []string

	// LongDiscriminator is the 12-bit discriminator.
	LongDiscriminator uint16

	// VendorID and ProductID come from the VP key. ProductID is zero when
	// the device only advertises its vendor.
	VendorID  uint16
	ProductID uint16

	// CommissioningMode is the advertised mode.
	CommissioningMode CommissioningMode

	// Optional fields.
	DeviceType         uint32
	DeviceName         string
	PairingHint        uint16
	PairingInstruction string
}

// ShortDiscriminator returns the upper four bits of the long discriminator.
func (s *CommissionableService) ShortDiscriminator() uint16 {
	return s.LongDiscriminator >> 8
}
