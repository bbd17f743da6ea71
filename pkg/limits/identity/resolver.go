package identity

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Unknown is returned when no valid client address can be determined.
const Unknown = "unknown"

// MaxAddressLength is the longest textual IPv6 address (IPv4-mapped form).
const MaxAddressLength = 45

var forwardedForRegExp = regexp.MustCompile(`(?i)for=("[^"]*"|[^,; ]+)`)

// Resolver extracts the client IP from HTTP requests.
// It is safe for concurrent use; the trust-proxy flag can be changed while
// requests are being served.
type Resolver struct {
	trustProxy atomic.Bool
	logger     *slog.Logger
	warn       *rate.Sometimes
}

// NewResolver creates a resolver. trustProxy enables forwarding headers and
// must only be set when a reverse proxy in front of the service overwrites
// them. A nil logger uses slog.Default().
func NewResolver(trustProxy bool, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		logger: logger.With("component", "identity"),
		warn:   &rate.Sometimes{First: 1, Interval: time.Minute},
	}
	r.trustProxy.Store(trustProxy)
	return r
}

// SetTrustProxy switches forwarding-header support on or off.
func (r *Resolver) SetTrustProxy(trust bool) {
	r.trustProxy.Store(trust)
}

// TrustProxy reports whether forwarding headers are honored.
func (r *Resolver) TrustProxy() bool {
	return r.trustProxy.Load()
}

// ClientIP returns the sanitized client address for req, or Unknown.
func (r *Resolver) ClientIP(req *http.Request) string {
	if r.trustProxy.Load() {
		if ip, ok := fromHeaders(req.Header); ok {
			return ip
		}
	}

	if ip, ok := parseAddress(req.RemoteAddr); ok {
		return ip
	}

	r.warn.Do(func() {
		r.logger.Warn("could not determine client address, using shared bucket",
			"remote_addr_len", len(req.RemoteAddr),
			"trust_proxy", r.trustProxy.Load(),
		)
	})
	return Unknown
}

// fromHeaders checks Forwarded, X-Forwarded-For and X-Real-Ip in order and
// returns the first valid address.
func fromHeaders(h http.Header) (string, bool) {
	if header := h.Get("Forwarded"); header != "" {
		// The first for= parameter names the client.
		if m := forwardedForRegExp.FindStringSubmatch(header); len(m) > 1 {
			if ip, ok := parseAddress(strings.Trim(m[1], `"`)); ok {
				return ip, true
			}
		}
	}

	if header := h.Get("X-Forwarded-For"); header != "" {
		// X-Forwarded-For: <client>, <proxy1>, <proxy2>
		first, _, _ := strings.Cut(header, ",")
		if ip, ok := parseAddress(first); ok {
			return ip, true
		}
	}

	if header := h.Get("X-Real-Ip"); header != "" {
		if ip, ok := parseAddress(header); ok {
			return ip, true
		}
	}

	return "", false
}

// parseAddress accepts a bare IP, an IP with port or a bracketed IPv6 literal
// and returns the sanitized canonical form.
func parseAddress(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	addr, err := netip.ParseAddr(raw)
	if err != nil {
		host, _, splitErr := net.SplitHostPort(raw)
		if splitErr != nil {
			host = strings.TrimSuffix(strings.TrimPrefix(raw, "["), "]")
		}
		addr, err = netip.ParseAddr(host)
		if err != nil {
			return "", false
		}
	}

	ip := Sanitize(addr.WithZone("").Unmap().String())
	if ip == "" {
		return "", false
	}
	return ip, true
}

// Sanitize keeps only hex digits, dots and colons and truncates the result to
// MaxAddressLength.
func Sanitize(s string) string {
	var b strings.Builder
	for i := 0; i < len(s) && b.Len() < MaxAddressLength; i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F', c == '.', c == ':':
			b.WriteByte(c)
		}
	}
	return b.String()
}
