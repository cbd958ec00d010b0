// Package privacy provides helpers for reducing PII in logs and audit trails.
package privacy

import (
	"encoding/hex"
	"net"
	"strings"

	"golang.org/x/crypto/sha3"
)

// AnonymizeIP masks the host portion of an address so logs retain network
// locality without identifying a device. IPv4 keeps a /24, IPv6 a /48.
func AnonymizeIP(addr string) string {
	ip := net.ParseIP(addr)
	if ip == nil {
		return ""
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.Mask(net.CIDRMask(24, 32)).String() + "/24"
	}
	return ip.Mask(net.CIDRMask(48, 128)).String() + "/48"
}

// HashFingerprint returns a short hex digest of a device fingerprint. Audit
// records store the digest so trails stay correlatable without carrying the
// raw fingerprint material.
func HashFingerprint(fingerprint string) string {
	fingerprint = strings.TrimSpace(fingerprint)
	if fingerprint == "" {
		return ""
	}
	sum := sha3.Sum256([]byte(fingerprint))
	return hex.EncodeToString(sum[:8])
}
