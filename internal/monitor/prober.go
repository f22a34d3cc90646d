package monitor

import (
	"context"
	"net"
	"time"
)

// Prober answers "does this device have a network path right now". A nil
// error means reachable.
type Prober interface {
	Probe(ctx context.Context) error
}

// DialProber checks reachability with a TCP dial against a well-known
// address; the default configuration points it at a public resolver.
type DialProber struct {
	Addr    string
	Timeout time.Duration
}

func (p DialProber) Probe(ctx context.Context) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", p.Addr)
	if err != nil {
		return err
	}
	return conn.Close()
}
