package netmon

import (
	"context"
	"net"
	"strings"
	"time"
)

const (
	defaultProbeInterval = 10 * time.Second
	defaultProbeTimeout  = 5 * time.Second
)

// Prober is the default path source: it periodically dials a well-known
// address and classifies the transport from the active network interface.
// A failed dial means unreachable; nothing more is inferred.
type Prober struct {
	address  string
	interval time.Duration
	timeout  time.Duration
	dial     func(ctx context.Context, network, address string) (net.Conn, error)
}

func NewProber(address string) *Prober {
	dialer := &net.Dialer{}
	return &Prober{
		address:  address,
		interval: defaultProbeInterval,
		timeout:  defaultProbeTimeout,
		dial:     dialer.DialContext,
	}
}

func (p *Prober) Watch(ctx context.Context) (<-chan PathUpdate, error) {
	if _, _, err := net.SplitHostPort(p.address); err != nil {
		return nil, err
	}

	updates := make(chan PathUpdate, 1)

	// First observation before the ticker so the monitor does not sit on a
	// stale default for a full interval.
	updates <- p.probe(ctx)

	go func() {
		defer close(updates)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case updates <- p.probe(ctx):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return updates, nil
}

func (p *Prober) probe(ctx context.Context) PathUpdate {
	dialCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.dial(dialCtx, "tcp", p.address)
	if err != nil {
		return PathUpdate{Reachable: false, Transport: TransportNone}
	}
	conn.Close()
	return PathUpdate{Reachable: true, Transport: classifyTransport()}
}

// classifyTransport guesses the transport class from interface names. The
// mapping is heuristic; an unknown active interface counts as unmetered.
func classifyTransport() Transport {
	ifaces, err := net.Interfaces()
	if err != nil {
		return TransportUnmetered
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		name := strings.ToLower(iface.Name)
		switch {
		case strings.HasPrefix(name, "wwan"), strings.HasPrefix(name, "rmnet"),
			strings.HasPrefix(name, "pdp"):
			return TransportMetered
		case strings.HasPrefix(name, "wl"), strings.HasPrefix(name, "wi"):
			return TransportUnmetered
		case strings.HasPrefix(name, "eth"), strings.HasPrefix(name, "en"):
			return TransportWired
		}
	}
	return TransportUnmetered
}
