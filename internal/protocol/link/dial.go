package link

import (
	"context"
	"crypto/tls"
	"io"
	"net"
)

// Dialer opens the underlying stream for a link.
type Dialer func(ctx context.Context) (io.ReadWriteCloser, error)

// TCPDialer dials cfg.Address, wrapping the connection in TLS when enabled.
func TCPDialer(cfg Config) Dialer {
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		return dialTCP(ctx, cfg)
	}
}

// ConnDialer hands out an already established connection. Used for links
// accepted from a listener and in tests.
func ConnDialer(conn net.Conn) Dialer {
	return func(context.Context) (io.ReadWriteCloser, error) {
		return conn, nil
	}
}

func dialTCP(ctx context.Context, cfg Config) (net.Conn, error) {
	if err := cfg.ValidateTransport(); err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", cfg.Address)
	if err != nil {
		return nil, err
	}
	if !cfg.TLS.Enabled {
		return rawConn, nil
	}

	tlsCfg, err := clientTLSConfig(cfg)
	if err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	conn := tls.Client(rawConn, tlsCfg)
	handshakeCtx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	defer cancel()
	if err := conn.HandshakeContext(handshakeCtx); err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	return conn, nil
}
