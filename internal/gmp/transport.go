package gmp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
)

// Transport dials the engine's management socket. Implementations must
// honor the context for connect timeouts and cancellation.
type Transport interface {
	Dial(ctx context.Context) (net.Conn, error)
	Address() string
}

// UnixTransport connects to gvmd over its unix domain socket.
type UnixTransport struct {
	Path string
}

// Dial connects to the unix socket.
func (t *UnixTransport) Dial(ctx context.Context) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", t.Path)
}

// Address returns the socket path.
func (t *UnixTransport) Address() string {
	return t.Path
}

// TLSTransport connects to gvmd over TLS TCP (default port 9390).
type TLSTransport struct {
	Host string
	Port int

	// InsecureSkipVerify disables certificate verification. Managers in
	// the field commonly run with self-signed certificates.
	InsecureSkipVerify bool
}

// Dial connects and completes the TLS handshake.
func (t *TLSTransport) Dial(ctx context.Context) (net.Conn, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config: &tls.Config{
			InsecureSkipVerify: t.InsecureSkipVerify, //nolint:gosec // operator opt-in
			MinVersion:         tls.VersionTLS12,
		},
	}
	return dialer.DialContext(ctx, "tcp", t.Address())
}

// Address returns the host:port endpoint.
func (t *TLSTransport) Address() string {
	return net.JoinHostPort(t.Host, fmt.Sprintf("%d", t.Port))
}
