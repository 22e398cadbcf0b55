package link

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

var ErrInvalidTunnel = errors.New("link: invalid ssh tunnel")

// SSHTunnel reaches the message center through an SSH bastion. The link
// stream is a direct-tcpip channel to Config.Address opened on the bastion.
type SSHTunnel struct {
	Host                        string
	Port                        string
	User                        string
	KeyPath                     string
	Passphrase                  []byte
	KnownHostsPath              string
	InsecureSkipHostKeyChecking bool
	Timeout                     time.Duration
}

func (t SSHTunnel) Enabled() bool {
	return strings.TrimSpace(t.Host) != ""
}

// DialerFor picks the tunnel dialer when cfg.Tunnel is set and the direct
// TCP dialer otherwise.
func DialerFor(cfg Config) Dialer {
	cfg = cfg.WithDefaults()
	if cfg.Tunnel.Enabled() {
		return SSHDialer(cfg, cfg.Tunnel)
	}
	return TCPDialer(cfg)
}

// SSHDialer opens a fresh SSH client per connect. Channel streams carry no
// read deadlines, so links over a tunnel report ErrTimeoutUnsupported.
func SSHDialer(cfg Config, t SSHTunnel) Dialer {
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		if err := cfg.ValidateTransport(); err != nil {
			return nil, err
		}
		client, err := t.dial(ctx)
		if err != nil {
			return nil, err
		}
		ch, err := client.Dial("tcp", cfg.Address)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("link: tunnel to %s: %w", cfg.Address, err)
		}
		var stream net.Conn = ch
		if cfg.TLS.Enabled {
			tlsCfg, err := clientTLSConfig(cfg)
			if err != nil {
				_ = ch.Close()
				_ = client.Close()
				return nil, err
			}
			conn := tls.Client(ch, tlsCfg)
			handshakeCtx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
			err = conn.HandshakeContext(handshakeCtx)
			cancel()
			if err != nil {
				_ = ch.Close()
				_ = client.Close()
				return nil, err
			}
			stream = conn
		}
		return &tunnelConn{stream: stream, client: client}, nil
	}
}

type tunnelConn struct {
	stream net.Conn
	client *ssh.Client
}

func (c *tunnelConn) Read(p []byte) (int, error)  { return c.stream.Read(p) }
func (c *tunnelConn) Write(p []byte) (int, error) { return c.stream.Write(p) }

func (c *tunnelConn) Close() error {
	err := c.stream.Close()
	if cerr := c.client.Close(); err == nil {
		err = cerr
	}
	return err
}

func (t SSHTunnel) dial(ctx context.Context) (*ssh.Client, error) {
	address, err := t.address()
	if err != nil {
		return nil, err
	}
	config, err := t.clientConfig()
	if err != nil {
		return nil, err
	}
	d := net.Dialer{Timeout: t.Timeout}
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	if t.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(t.Timeout))
	}
	clientConn, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("link: ssh handshake with %s: %w", address, err)
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(clientConn, chans, reqs), nil
}

func (t SSHTunnel) address() (string, error) {
	host := strings.TrimSpace(t.Host)
	if host == "" {
		return "", fmt.Errorf("%w: host is required", ErrInvalidTunnel)
	}
	if t.Port != "" {
		return net.JoinHostPort(host, t.Port), nil
	}
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host, nil
	}
	return net.JoinHostPort(host, "22"), nil
}

func (t SSHTunnel) clientConfig() (*ssh.ClientConfig, error) {
	if t.User == "" {
		return nil, fmt.Errorf("%w: user is required", ErrInvalidTunnel)
	}
	signer, err := t.signer()
	if err != nil {
		return nil, err
	}
	var hostKeyCallback ssh.HostKeyCallback
	if t.InsecureSkipHostKeyChecking {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	} else {
		callback, err := t.knownHostsCallback()
		if err != nil {
			return nil, err
		}
		hostKeyCallback = callback
	}
	return &ssh.ClientConfig{
		User:            t.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         t.Timeout,
	}, nil
}

func (t SSHTunnel) signer() (ssh.Signer, error) {
	if t.KeyPath == "" {
		return nil, fmt.Errorf("%w: key path is required", ErrInvalidTunnel)
	}
	privateKey, err := os.ReadFile(t.KeyPath)
	if err != nil {
		return nil, err
	}
	if len(t.Passphrase) > 0 {
		return ssh.ParsePrivateKeyWithPassphrase(privateKey, t.Passphrase)
	}
	return ssh.ParsePrivateKey(privateKey)
}

func (t SSHTunnel) knownHostsCallback() (ssh.HostKeyCallback, error) {
	path := strings.TrimSpace(t.KnownHostsPath)
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("%w: known hosts path not set and home dir unavailable", ErrInvalidTunnel)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	return knownhosts.New(path)
}
