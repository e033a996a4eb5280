package discovery

import (
	"fmt"
	"strconv"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// DecodeCommissionableTXT parses the TXT records of a commissionable
// service into svc. Service location fields are left untouched.
func DecodeCommissionableTXT(txt TXTRecordMap, svc *CommissionableService) error {
	// Parse discriminator (required)
	dStr, ok := txt[TXTKeyDiscriminator]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyDiscriminator)
	}
	d, err := strconv.ParseUint(dStr, 10, 16)
	if err != nil || d > MaxDiscriminator {
		return ErrInvalidDiscriminator
	}
	svc.LongDiscriminator = uint16(d)

	if vp, ok := txt[TXTKeyVendorProduct]; ok {
		vendor, product, _ := strings.Cut(vp, "+")
		v, err := strconv.ParseUint(vendor, 10, 16)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, TXTKeyVendorProduct, vp)
		}
		svc.VendorID = uint16(v)
		if product != "" {
			p, err := strconv.ParseUint(product, 10, 16)
			if err != nil {
				return fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, TXTKeyVendorProduct, vp)
			}
			svc.ProductID = uint16(p)
		}
	}

	if cm, ok := txt[TXTKeyCommissioningMode]; ok {
		m, err := strconv.ParseUint(cm, 10, 8)
		if err != nil || m > uint64(CommissioningModeEnhanced) {
			return fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, TXTKeyCommissioningMode, cm)
		}
		svc.CommissioningMode = CommissioningMode(m)
	}

	// Optional fields
	if dt, ok := txt[TXTKeyDeviceType]; ok {
		v, err := strconv.ParseUint(dt, 10, 32)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, TXTKeyDeviceType, dt)
		}
		svc.DeviceType = uint32(v)
	}
	if ph, ok := txt[TXTKeyPairingHint]; ok {
		v, err := strconv.ParseUint(ph, 10, 16)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, TXTKeyPairingHint, ph)
		}
		svc.PairingHint = uint16(v)
	}
	svc.DeviceName = txt[TXTKeyDeviceName]
	svc.PairingInstruction = txt[TXTKeyPairingInstruction]

	return nil
}

// StringsToTXTRecords converts the "key=value" strings of a TXT record.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else if len(parts) == 1 && parts[0] != "" {
			// Key without value (boolean flag)
			txt[parts[0]] = ""
		}
	}
	return txt
}
