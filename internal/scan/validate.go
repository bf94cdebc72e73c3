package scan

import (
	"net/netip"
	"strconv"
	"strings"

	"github.com/anstrom/gvmbridge/internal/errors"
)

const (
	maxScanNameLength = 255
	maxHostnameLength = 253
	maxLabelLength    = 63
)

// ParseTargets splits a comma-separated target specification and validates
// every entry before anything is sent to the engine. Accepted forms are
// hostnames, IPv4/IPv6 addresses, CIDR networks and short dash ranges
// such as 192.168.1.1-10.
func ParseTargets(spec string) ([]string, error) {
	var targets []string
	for _, raw := range strings.Split(spec, ",") {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if !validTarget(entry) {
			return nil, errors.ErrInvalidTarget(entry)
		}
		targets = append(targets, entry)
	}
	if len(targets) == 0 {
		return nil, errors.NewScanError(errors.CodeValidation, "Target list must not be empty")
	}
	return targets, nil
}

// ValidateScanName checks the caller-supplied scan name.
func ValidateScanName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.NewScanError(errors.CodeValidation, "Scan name is required")
	}
	if len(name) > maxScanNameLength {
		return errors.NewScanError(errors.CodeValidation, "Scan name exceeds maximum length")
	}
	return nil
}

func validTarget(entry string) bool {
	if _, err := netip.ParseAddr(entry); err == nil {
		return true
	}
	if _, err := netip.ParsePrefix(entry); err == nil {
		return true
	}
	// An entry shaped like "<address>-..." is a range and must validate as
	// one; it never falls back to the hostname rules.
	if idx := strings.LastIndex(entry, "-"); idx > 0 {
		if _, err := netip.ParseAddr(entry[:idx]); err == nil {
			return validRangeEnd(entry[idx+1:])
		}
	}
	return isHostname(entry)
}

// validRangeEnd accepts the tail of an nmap-style short range: either a
// second full address or a final octet.
func validRangeEnd(rest string) bool {
	if rest == "" {
		return false
	}
	if _, err := netip.ParseAddr(rest); err == nil {
		return true
	}
	octet, err := strconv.Atoi(rest)
	return err == nil && octet >= 0 && octet <= 255
}

func isHostname(entry string) bool {
	if len(entry) > maxHostnameLength {
		return false
	}
	labels := strings.Split(entry, ".")
	for _, label := range labels {
		if label == "" || len(label) > maxLabelLength {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			switch {
			case r >= 'a' && r <= 'z':
			case r >= 'A' && r <= 'Z':
			case r >= '0' && r <= '9':
			case r == '-':
			default:
				return false
			}
		}
	}
	return true
}
