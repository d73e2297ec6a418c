package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
)

const (
	DefaultServerType = "_bdx._tcp"
	DefaultDomain     = "local"
	// DefaultPath is where the BDX WebSocket endpoint is served
	DefaultPath = "/bdx"
)

// TXT record keys announced with a service.
const (
	TxtVersion      = "vers"
	TxtMaxBlockSize = "mbs"
	TxtPath         = "path"
	TxtModes        = "modes"
)

type ServiceInfo struct {
	Name   string // hostname or instance name
	Type   string // service name, e.g., "_bdx._tcp"
	Domain string // domain, e.g., "local"
	Addr   net.IP
	Port   int
	Text   map[string]string
}

// URL returns the WebSocket URL of the service's BDX endpoint.
func (s ServiceInfo) URL() string {
	path := s.Text[TxtPath]
	if path == "" {
		path = DefaultPath
	}
	host := "localhost"
	if s.Addr != nil {
		host = s.Addr.String()
	}
	return fmt.Sprintf("ws://%s%s", net.JoinHostPort(host, strconv.Itoa(s.Port)), path)
}

// Version returns the announced BDX version, or -1 when missing.
func (s ServiceInfo) Version() int {
	v, err := strconv.Atoi(s.Text[TxtVersion])
	if err != nil {
		return -1
	}
	return v
}

// DiscoveryResult carries either a snapshot of the services currently seen
// or a browse error.
type DiscoveryResult struct {
	Services []ServiceInfo
	Error    error
}

type Adapter interface {
	Announce(ctx context.Context, service ServiceInfo) error
	Discover(ctx context.Context, service string) <-chan DiscoveryResult
}
