package actor

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// checkOutboundRef guards the two places a workflow document can name an
// arbitrary URL for the engine to call out to: ApplicationStrategy's
// mcp_tool program Ref and RobotStrategy's machine_ref. Both are workflow
// document data, not code the host wrote, so both get the same SSRF check
// before a request is built: http/https only, no loopback/private/
// link-local/multicast/unspecified target, no path-traversal or local-file
// tricks smuggled into the path or query string. kind labels the caller in
// the returned error ("mcp_tool ref", "robot machine_ref").
func checkOutboundRef(kind, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s %q is not a valid URL: %w", kind, raw, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("%s %q uses scheme %q, only http/https are allowed", kind, raw, u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%s %q has no host", kind, raw)
	}
	if err := checkEgressHost(host); err != nil {
		return fmt.Errorf("%s %q: %w", kind, raw, err)
	}
	if err := checkEgressPath(u.Path); err != nil {
		return fmt.Errorf("%s %q: %w", kind, raw, err)
	}
	for param, values := range u.Query() {
		for _, v := range values {
			if err := checkEgressPath(v); err != nil {
				return fmt.Errorf("%s %q: query parameter %q: %w", kind, raw, param, err)
			}
		}
	}
	return nil
}

func checkEgressHost(host string) error {
	if ip := net.ParseIP(strings.Trim(host, "[]")); ip != nil {
		return checkEgressIP(ip)
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		// DNS failure isn't an SSRF signal; the request itself will fail later.
		return nil
	}
	for _, ip := range ips {
		if err := checkEgressIP(ip); err != nil {
			return err
		}
	}
	return nil
}

func checkEgressIP(ip net.IP) error {
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("resolves to loopback address %s", ip)
	case ip.IsPrivate():
		return fmt.Errorf("resolves to private address %s", ip)
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return fmt.Errorf("resolves to link-local address %s", ip)
	case ip.IsMulticast():
		return fmt.Errorf("resolves to multicast address %s", ip)
	case ip.IsUnspecified():
		return fmt.Errorf("resolves to unspecified address %s", ip)
	}
	return nil
}

var blockedPathPatterns = []string{"file://", "../", "..\\", "/etc/", "/proc/", "/sys/", "%2e%2e"}

func checkEgressPath(path string) error {
	lower := strings.ToLower(path)
	for _, pattern := range blockedPathPatterns {
		if strings.Contains(lower, pattern) {
			return fmt.Errorf("contains blocked pattern %q", pattern)
		}
	}
	return nil
}
