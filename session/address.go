package session

import (
	"net"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
)

// DefaultPath is appended to a provider address without path.
const DefaultPath = "/mcp"

// NormalizeAddress validates the provider address,
// and appends DefaultPath if the path is empty.
func NormalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	u, err := url.Parse(address)
	if err != nil {
		return "", errors.Wrapf(err, "invalid provider address %q", address)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errors.Newf("invalid provider address %q: unsupported scheme", address)
	}
	if u.Host == "" {
		return "", errors.Newf("invalid provider address %q: missing host", address)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = DefaultPath
	}
	return u.String(), nil
}

// HostPort returns host:port of the provider address,
// with the default port of the scheme.
func HostPort(address string) (string, error) {
	u, err := url.Parse(address)
	if err != nil {
		return "", errors.Wrapf(err, "invalid provider address %q", address)
	}
	if u.Hostname() == "" {
		return "", errors.Newf("invalid provider address %q: missing host", address)
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}
