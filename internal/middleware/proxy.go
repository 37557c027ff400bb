package middleware

import (
	"net"

	"github.com/labstack/echo/v4"
)

// TrustedProxies configures echo to resolve the client IP from
// X-Forwarded-For only when the request arrives from a trusted range.
// Client IPs feed the device fingerprint and the audit trail, so a
// spoofed header must not be honored from arbitrary peers.
func TrustedProxies(e *echo.Echo, cidrs []string) error {
	ranges := make([]echo.TrustOption, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			return err
		}
		ranges = append(ranges, echo.TrustIPRange(ipNet))
	}
	e.IPExtractor = echo.ExtractIPFromXFFHeader(ranges...)
	return nil
}
