package fetcher

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"syscall"

	"github.com/voyagen/guidevault/internal/apperr"
)

// Resolver looks up the addresses of a host. *net.Resolver satisfies it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

var errBlockedDial = errors.New("dial to a non-public address")

// cgnat is 100.64.0.0/10, shared address space that net.IP does not flag as private.
var cgnat = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// ValidateURL checks that raw is a well-formed absolute http or https URL.
func ValidateURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return nil, apperr.Validation("invalid url")
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "" && scheme != "http" && scheme != "https" {
		return nil, apperr.Validation("scheme not allowed: %s", u.Scheme)
	}
	if scheme == "" || u.Hostname() == "" || u.Opaque != "" {
		return nil, apperr.Validation("invalid url")
	}
	u.Scheme = scheme
	return u, nil
}

// IsBlockedIP reports whether ip is loopback, private, link-local,
// unspecified or otherwise not publicly routable.
func IsBlockedIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsUnspecified() ||
		ip.IsMulticast() ||
		cgnat.Contains(ip) ||
		(ip.To4() != nil && ip.To4()[0] == 0)
}

type guard struct {
	resolver     Resolver
	allowPrivate bool
}

// checkHost resolves host and rejects it when any address is blocked.
// It runs before a request is issued.
func (g *guard) checkHost(ctx context.Context, host string) error {
	if g.allowPrivate {
		return nil
	}
	host = strings.TrimSuffix(host, ".")
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return apperr.SsrfBlocked("host %s is not allowed", host)
	}
	if ip := net.ParseIP(host); ip != nil {
		if IsBlockedIP(ip) {
			return apperr.SsrfBlocked("address %s is not allowed", ip)
		}
		return nil
	}
	addrs, err := g.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return apperr.Network("resolve "+host, err)
	}
	if len(addrs) == 0 {
		return apperr.Network("resolve "+host, errors.New("no addresses"))
	}
	for _, a := range addrs {
		if IsBlockedIP(a.IP) {
			return apperr.SsrfBlocked("host %s resolves to %s which is not allowed", host, a.IP)
		}
	}
	return nil
}

// control re-checks the address actually dialed, so a DNS answer that
// changes between checkHost and connect cannot reach a private address.
func (g *guard) control(_, address string, _ syscall.RawConn) error {
	if g.allowPrivate {
		return nil
	}
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	if IsBlockedIP(net.ParseIP(host)) {
		return errBlockedDial
	}
	return nil
}
