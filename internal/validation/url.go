// Package validation checks user-supplied paths and service endpoints
// before they reach the filesystem or the network.
package validation

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateServiceURL validates the endpoint of a remote compilation service.
// Only absolute http and https URLs with a host are accepted.
func ValidateServiceURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s (only http/https allowed)", parsed.Scheme)
	}

	if strings.ContainsAny(rawURL, " \n\r\t") {
		return fmt.Errorf("URL contains whitespace")
	}

	if parsed.Host == "" {
		return fmt.Errorf("URL must have a valid hostname")
	}

	if parsed.User != nil {
		return fmt.Errorf("URL must not embed credentials")
	}

	return nil
}
