package validation

import (
	"fmt"
	"net"
	"regexp"
	"strings"
)

var hostnameRe = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

// ValidateListenHost validates the host the preview server binds to: an IP
// address or an RFC 1123 hostname.
func ValidateListenHost(host string) error {
	if i := strings.IndexAny(host, ";&|$`()<>\"'\\ "); i >= 0 {
		return fmt.Errorf("contains dangerous character: %q", host[i])
	}
	if net.ParseIP(host) != nil {
		return nil
	}
	if len(host) > 253 || !hostnameRe.MatchString(host) {
		return fmt.Errorf("invalid hostname format")
	}
	return nil
}
