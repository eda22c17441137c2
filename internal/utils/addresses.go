package utils

import (
	"regexp"
	"strings"
)

var evmAddressPattern = regexp.MustCompile("^0x[0-9a-fA-F]{40}$")

// IsEvmAddress checks whether the string is a 20-byte hex address.
func IsEvmAddress(address string) bool {
	return evmAddressPattern.MatchString(address)
}

// IsZeroAddress checks for the all-zero address.
func IsZeroAddress(address string) bool {
	return strings.EqualFold(address, "0x0000000000000000000000000000000000000000")
}

// SameAddress compares two hex addresses case-insensitively.
func SameAddress(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}

// NormalizeAddress lower-cases a hex address for use as a map/db key.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
