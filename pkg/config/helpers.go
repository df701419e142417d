package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// String implements fmt.Stringer.
func (m ListingMode) String() string {
	switch m {
	case ListingAutoIndex:
		return "auto-index"
	case ListingFull:
		return "full-listing"
	default:
		return "disabled"
	}
}

// Enabled reports whether both halves of the credential pair are set.
func (b BasicAuth) Enabled() bool {
	return b.Username != "" && b.Password != ""
}

// Addr is the listen address for the configured port.
func (c *ServerConfig) Addr() string {
	return ":" + c.Port
}

// Scheme is "https" when TLS is enabled, "http" otherwise.
func (c *ServerConfig) Scheme() string {
	if c.TLS.Enabled {
		return "https"
	}
	return "http"
}

// listingModeFor maps the two CLI booleans onto a ListingMode. showDir wins.
func listingModeFor(showDir, autoIndex bool) ListingMode {
	switch {
	case showDir:
		return ListingFull
	case autoIndex:
		return ListingAutoIndex
	default:
		return ListingDisabled
	}
}

// normalizeHost lowercases a configured host and drops any port.
func normalizeHost(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(host)
}

// --- Duration Parsing Helper (handles 'd' and 'w') ---

// StrToDuration converts a string defining time period and return a time.Duration
func StrToDuration(durationStr string) (time.Duration, error) {
	durationStr = strings.TrimSpace(durationStr)
	if durationStr == "" {
		return 0, fmt.Errorf("empty duration string")
	}
	if durationStr == "0" { // "0" disables the timeout
		return 0, nil
	}

	splitIndex := -1
	for i, r := range durationStr {
		if !unicode.IsDigit(r) && r != '.' {
			splitIndex = i
			break
		}
	}
	if splitIndex == -1 {
		return 0, fmt.Errorf("duration '%s' is missing a unit", durationStr)
	}
	numStr, unitStr := durationStr[:splitIndex], strings.ToLower(durationStr[splitIndex:])

	var hoursPerUnit float64
	switch unitStr {
	case "d":
		hoursPerUnit = 24
	case "w":
		hoursPerUnit = 7 * 24
	default:
		d, err := time.ParseDuration(durationStr)
		if err != nil {
			return 0, fmt.Errorf("failed to parse duration '%s' using standard units: %w", durationStr, err)
		}
		return d, nil
	}

	n, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number '%s' for unit '%s': %w", numStr, unitStr, err)
	}
	return time.Duration(n * hoursPerUnit * float64(time.Hour)), nil
}
