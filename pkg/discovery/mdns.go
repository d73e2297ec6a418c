package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/brutella/dnssd"
)

// ErrServiceNotFound is returned by Lookup when browsing ends without a match
var ErrServiceNotFound = errors.New("service not found")

type MDNSAdapter struct{}

func (m *MDNSAdapter) Announce(ctx context.Context, serviceInfo ServiceInfo) error {
	text := map[string]string{TxtPath: DefaultPath}
	for k, v := range serviceInfo.Text {
		text[k] = v
	}

	cfg := dnssd.Config{
		Name:   serviceInfo.Name,
		Type:   serviceInfo.Type,
		Domain: serviceInfo.Domain,
		// mdns will multicast to ip address, so we can leave it nil
		IPs:  nil,
		Text: text,
		Port: serviceInfo.Port,
	}

	service, err := dnssd.NewService(cfg)
	if err != nil {
		return fmt.Errorf("failed to create mDNS service: %w", err)
	}

	rp, err := dnssd.NewResponder()
	if err != nil {
		return fmt.Errorf("failed to create mDNS responder: %w", err)
	}

	if _, err = rp.Add(service); err != nil {
		return fmt.Errorf("failed to add mDNS service: %w", err)
	}

	slog.Info("Announcing BDX service", "name", serviceInfo.Name, "type", serviceInfo.Type, "port", serviceInfo.Port)
	if err = rp.Respond(ctx); err != nil {
		// Context cancellation is not an error in normal operation
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("failed to respond to mDNS service: %w", err)
	}

	slog.Info("Shutting down mDNS server")
	return nil
}

// Discover browses for service and sends a snapshot of every instance seen
// whenever one appears or goes away. The channel closes when ctx is done.
func (m *MDNSAdapter) Discover(ctx context.Context, service string) <-chan DiscoveryResult {
	var (
		mu      sync.Mutex
		entries = make(map[string]ServiceInfo)
		outCh   = make(chan DiscoveryResult, 10)
	)

	sendSnapshot := func() {
		mu.Lock()
		defer mu.Unlock()
		snapshot := make([]ServiceInfo, 0, len(entries))
		for _, entry := range entries {
			snapshot = append(snapshot, entry)
		}
		sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].Name < snapshot[j].Name })
		select {
		case outCh <- DiscoveryResult{Services: snapshot}:
		default:
		}
	}

	sendError := func(err error) {
		select {
		case outCh <- DiscoveryResult{Error: err}:
		default:
		}
	}

	addFn := func(e dnssd.BrowseEntry) {
		info := ServiceInfo{
			Name:   e.Name,
			Type:   e.Type,
			Domain: e.Domain,
			Port:   e.Port,
			Text:   e.Text,
		}
		if len(e.IPs) > 0 {
			info.Addr = e.IPs[0]
		}
		mu.Lock()
		entries[fmt.Sprintf("%s:%s:%s", e.Name, e.Type, e.Domain)] = info
		mu.Unlock()
		sendSnapshot()
	}

	rmvFn := func(e dnssd.BrowseEntry) {
		mu.Lock()
		delete(entries, fmt.Sprintf("%s:%s:%s", e.Name, e.Type, e.Domain))
		mu.Unlock()
		sendSnapshot()
	}

	go func() {
		defer close(outCh)
		if err := dnssd.LookupType(ctx, service, addFn, rmvFn); err != nil && !errors.Is(err, context.Canceled) &&
			!errors.Is(err, context.DeadlineExceeded) {
			sendError(fmt.Errorf("mDNS lookup failed: %w", err))
		}
	}()

	return outCh
}

// ServiceName returns the browse name for a service type in a domain, such
// as "_bdx._tcp.local.".
func ServiceName(serviceType, domain string) string {
	return fmt.Sprintf("%s.%s.", serviceType, domain)
}

// Lookup browses with adapter until an instance called name shows up.
func Lookup(ctx context.Context, adapter Adapter, name string) (ServiceInfo, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for result := range adapter.Discover(ctx, ServiceName(DefaultServerType, DefaultDomain)) {
		if result.Error != nil {
			return ServiceInfo{}, result.Error
		}
		for _, svc := range result.Services {
			if svc.Name == name {
				return svc, nil
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return ServiceInfo{}, fmt.Errorf("%w: %s: %w", ErrServiceNotFound, name, err)
	}
	return ServiceInfo{}, fmt.Errorf("%w: %s", ErrServiceNotFound, name)
}
