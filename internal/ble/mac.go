package ble

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedAddress is returned for strings that are not six
// colon-separated hex octets.
var ErrMalformedAddress = errors.New("ble: malformed MAC address")

// MAC is a Bluetooth device address.
type MAC [6]byte

// ParseMAC parses a MAC address in the form "ED:12:89:6C:08:37". Hex digits
// are case-insensitive. Exactly six octets are required.
func ParseMAC(s string) (MAC, error) {
	var mac MAC

	parts := strings.Split(s, ":")
	if len(parts) != len(mac) {
		return MAC{}, fmt.Errorf("%w: %q has %d segments, want %d", ErrMalformedAddress, s, len(parts), len(mac))
	}

	for i, part := range parts {
		if len(part) != 2 {
			return MAC{}, fmt.Errorf("%w: segment %q in %q", ErrMalformedAddress, part, s)
		}
		octet, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			return MAC{}, fmt.Errorf("%w: segment %q in %q", ErrMalformedAddress, part, s)
		}
		mac[i] = byte(octet)
	}

	return mac, nil
}

// String returns the canonical upper-case colon-hex form.
func (m MAC) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", m[0], m[1], m[2], m[3], m[4], m[5])
}
