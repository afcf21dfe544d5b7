package smartapi

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// FallbackLocalIP is sent when the local address cannot be determined.
	FallbackLocalIP = "192.168.1.1"
	// PlaceholderMAC is sent as X-MACAddress; the broker does not verify it.
	PlaceholderMAC = "00:00:00:00:00:00"

	localRouteAddr       = "8.8.8.8:80"
	defaultLookupTimeout = 5 * time.Second
	// fallbackTTL bounds how long a local-address stand-in is served before
	// the echo services are tried again.
	fallbackTTL = 5 * time.Minute
)

// DefaultPublicIPServices are the IP-echo services queried in order.
var DefaultPublicIPServices = []string{
	"https://api.ipify.org",
	"https://ifconfig.me/ip",
	"https://icanhazip.com",
}

// NetworkIdentity discovers the addresses sent in the broker's
// X-ClientLocalIP and X-ClientPublicIP headers. Successful lookups are
// cached for the life of the value, which is shared across clients.
// Concurrent callers share one round of lookups and no lock is held while
// they run.
type NetworkIdentity struct {
	services      []string
	lookupClient  *http.Client
	lookupTimeout time.Duration
	dial          func(network, address string) (net.Conn, error)
	now           func() time.Time
	lookups       singleflight.Group

	mu       sync.Mutex
	localIP  string
	publicIP string
	// publicIPExpiry is zero for a discovered address and set for a
	// fallback.
	publicIPExpiry time.Time
}

// NewNetworkIdentity creates a NetworkIdentity that queries services in
// order. A nil services slice selects DefaultPublicIPServices.
func NewNetworkIdentity(lookupTimeout time.Duration, services []string) *NetworkIdentity {
	if lookupTimeout <= 0 {
		lookupTimeout = defaultLookupTimeout
	}
	if services == nil {
		services = DefaultPublicIPServices
	}
	return &NetworkIdentity{
		services:      services,
		lookupClient:  &http.Client{Timeout: lookupTimeout},
		lookupTimeout: lookupTimeout,
		dial:          net.Dial,
		now:           time.Now,
	}
}

// StaticNetworkIdentity returns an identity that never performs lookups.
func StaticNetworkIdentity(localIP, publicIP string) *NetworkIdentity {
	return &NetworkIdentity{localIP: localIP, publicIP: publicIP, dial: net.Dial, now: time.Now}
}

// LocalIP returns the address of the interface that routes to the public
// internet. A UDP "connect" sends no packets; it only selects a route.
func (n *NetworkIdentity) LocalIP() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.localIPLocked()
}

func (n *NetworkIdentity) localIPLocked() string {
	if n.localIP != "" {
		return n.localIP
	}

	conn, err := n.dial("udp", localRouteAddr)
	if err != nil {
		slog.Debug("local ip lookup failed", "error", err)
		return FallbackLocalIP
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP == nil {
		return FallbackLocalIP
	}
	n.localIP = addr.IP.String()
	return n.localIP
}

// PublicIP returns the first address reported by the echo services. When
// every service fails it falls back to LocalIP and serves that for
// fallbackTTL before trying the services again. A caller whose ctx ends first gets
// LocalIP while the shared lookup carries on.
func (n *NetworkIdentity) PublicIP(ctx context.Context) string {
	if ip, ok := n.cachedPublicIP(); ok {
		return ip
	}

	detached := context.WithoutCancel(ctx)
	ch := n.lookups.DoChan("public", func() (any, error) {
		return n.discoverPublicIP(detached), nil
	})

	select {
	case res := <-ch:
		return res.Val.(string)
	case <-ctx.Done():
		return n.LocalIP()
	}
}

func (n *NetworkIdentity) cachedPublicIP() (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.publicIP == "" {
		return "", false
	}
	if !n.publicIPExpiry.IsZero() && !n.now().Before(n.publicIPExpiry) {
		return "", false
	}
	return n.publicIP, true
}

func (n *NetworkIdentity) discoverPublicIP(ctx context.Context) string {
	if ip, ok := n.cachedPublicIP(); ok {
		return ip
	}

	for _, service := range n.services {
		ip, err := n.lookup(ctx, service)
		if err != nil {
			slog.Debug("public ip lookup failed", "service", service, "error", err)
			continue
		}
		n.mu.Lock()
		n.publicIP = ip
		n.publicIPExpiry = time.Time{}
		n.mu.Unlock()
		return ip
	}

	fallback := n.LocalIP()
	n.mu.Lock()
	n.publicIP = fallback
	n.publicIPExpiry = n.now().Add(fallbackTTL)
	n.mu.Unlock()
	slog.Warn("public ip discovery failed, using local address", "ip", fallback, "retry_after", fallbackTTL)
	return fallback
}

func (n *NetworkIdentity) lookup(ctx context.Context, service string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, n.lookupTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, service, nil)
	if err != nil {
		return "", err
	}

	resp, err := n.lookupClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", &lookupError{service: service, status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", err
	}

	ip := strings.TrimSpace(string(body))
	if net.ParseIP(ip) == nil {
		return "", &lookupError{service: service, status: resp.StatusCode}
	}
	return ip, nil
}

type lookupError struct {
	service string
	status  int
}

func (e *lookupError) Error() string {
	return "ip echo " + e.service + " returned " + http.StatusText(e.status) + " or an invalid address"
}
