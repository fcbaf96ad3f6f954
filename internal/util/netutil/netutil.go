// Package netutil provides small networking helpers used during
// provisioning: waiting for services to open their ports and discovering the
// address the host is reachable on.
package netutil

import (
	"context"
	"fmt"
	"net"
	"time"
)

// WaitForPort waits for a TCP port to accept connections.
func WaitForPort(ctx context.Context, host string, port int, timeout time.Duration) error {
	address := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		conn, err := net.DialTimeout("tcp", address, 2*time.Second)
		if err == nil {
			_ = conn.Close()
			return nil
		}

		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("timeout waiting for %s", address)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// PrimaryAddress returns the host's first global unicast IPv4 address on an
// interface that is up and not a loopback. It returns an empty string when
// no such address exists; callers are expected to fall back to a loopback
// default rather than emit an empty value.
func PrimaryAddress() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		if ip := firstGlobalUnicast(addrs); ip != "" {
			return ip
		}
	}
	return ""
}

// firstGlobalUnicast picks the first global unicast IPv4 address from a list
// of interface addresses.
func firstGlobalUnicast(addrs []net.Addr) string {
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP.To4()
		if ip == nil {
			continue
		}
		if ip.IsGlobalUnicast() && !ip.IsLinkLocalUnicast() {
			return ip.String()
		}
	}
	return ""
}
