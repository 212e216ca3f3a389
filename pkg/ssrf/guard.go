// Package ssrf checks follow-up destinations before the server posts to
// them. A response_url arrives inside the request it answers, so it is only
// trusted once it names an allowed host that resolves to a public address.
package ssrf

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"
)

type Config struct {
	Enabled bool
	// RequireHTTPS rejects plain http destinations.
	RequireHTTPS bool
	// AllowedHosts restricts destinations to these hosts and their
	// subdomains. Empty allows any public host.
	AllowedHosts []string
	DNSCacheTTL  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		RequireHTTPS: true,
		AllowedHosts: []string{"slack.com"},
		DNSCacheTTL:  time.Minute,
	}
}

// Error describes a rejected destination.
type Error struct {
	Reason string
	URL    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("follow-up destination rejected: %s (URL: %s)", e.Reason, e.URL)
}

type Guard struct {
	config   Config
	resolver *net.Resolver
	cache    sync.Map // host -> cacheEntry
}

type cacheEntry struct {
	ips       []net.IP
	expiresAt time.Time
}

func NewGuard(config Config) *Guard {
	return &Guard{config: config, resolver: net.DefaultResolver}
}

// CheckURL returns an *Error when rawURL may not be posted to.
func (g *Guard) CheckURL(ctx context.Context, rawURL string) error {
	if g == nil || !g.config.Enabled {
		return nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return &Error{Reason: "invalid URL", URL: rawURL}
	}
	switch u.Scheme {
	case "https":
	case "http":
		if g.config.RequireHTTPS {
			return &Error{Reason: "https required", URL: rawURL}
		}
	default:
		return &Error{Reason: "only http/https schemes allowed", URL: rawURL}
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return &Error{Reason: "missing host", URL: rawURL}
	}
	if !g.hostAllowed(host) {
		return &Error{Reason: "host not in allow list", URL: rawURL}
	}

	ips, err := g.resolve(ctx, host)
	if err != nil {
		return &Error{Reason: fmt.Sprintf("failed to resolve host: %v", err), URL: rawURL}
	}
	for _, ip := range ips {
		if reason := blockedReason(ip); reason != "" {
			return &Error{Reason: reason, URL: rawURL}
		}
	}
	return nil
}

func (g *Guard) hostAllowed(host string) bool {
	if len(g.config.AllowedHosts) == 0 {
		return true
	}
	for _, allowed := range g.config.AllowedHosts {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

func (g *Guard) resolve(ctx context.Context, host string) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}

	if cached, ok := g.cache.Load(host); ok {
		entry := cached.(cacheEntry)
		if time.Now().Before(entry.expiresAt) {
			return entry.ips, nil
		}
	}

	addrs, err := g.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no addresses for %s", host)
	}

	ips := make([]net.IP, len(addrs))
	for i, addr := range addrs {
		ips[i] = addr.IP
	}
	if g.config.DNSCacheTTL > 0 {
		g.cache.Store(host, cacheEntry{ips: ips, expiresAt: time.Now().Add(g.config.DNSCacheTTL)})
	}
	return ips, nil
}

var metadataIP = net.ParseIP("169.254.169.254")

func blockedReason(ip net.IP) string {
	switch {
	case ip.IsLoopback():
		return "loopback address blocked"
	case ip.Equal(metadataIP):
		return "cloud metadata endpoint blocked"
	case ip.IsPrivate(), ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return "private address blocked"
	case ip.IsUnspecified(), ip.IsMulticast():
		return "non-unicast address blocked"
	}
	return ""
}
