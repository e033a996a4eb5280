// Package discovery browses for Matter devices in commissioning mode.
//
// # Commissionable Discovery (_matterc._udp)
//
// Devices advertise this service while their commissioning window is open.
// The instance name is a random 64-bit hex string. TXT records include:
// D (12-bit long discriminator), VP (vendor+product id), CM (commissioning
// mode), and optionally DT (device type), DN (device name), PH and PI
// (pairing hint and instruction).
//
// The short discriminator used by manual pairing codes is the upper four
// bits of the long discriminator.
package discovery
