package link

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/danmuck/smppctl/internal/protocol/frame"
	"github.com/danmuck/smppctl/internal/protocol/pdu"
	"github.com/danmuck/smppctl/internal/testutil/testlog"
)

type bastion struct {
	addr       string
	keyPath    string
	knownHosts string
}

// startBastion runs an SSH server on loopback that only accepts the
// generated client key and forwards direct-tcpip channels.
func startBastion(t *testing.T) bastion {
	t.Helper()
	dir := t.TempDir()

	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("host key: %v", err)
	}
	hostSigner, err := ssh.NewSignerFromKey(hostPriv)
	if err != nil {
		t.Fatalf("host signer: %v", err)
	}
	clientPub, clientPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("client key: %v", err)
	}
	authorized, err := ssh.NewPublicKey(clientPub)
	if err != nil {
		t.Fatalf("client public key: %v", err)
	}
	block, err := ssh.MarshalPrivateKey(clientPriv, "")
	if err != nil {
		t.Fatalf("marshal client key: %v", err)
	}
	keyPath := filepath.Join(dir, "id_ed25519")
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatalf("write client key: %v", err)
	}

	server := &ssh.ServerConfig{
		PublicKeyCallback: func(_ ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if bytes.Equal(key.Marshal(), authorized.Marshal()) {
				return nil, nil
			}
			return nil, errors.New("unknown key")
		},
	}
	server.AddHostKey(hostSigner)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveSSH(conn, server)
		}
	}()

	addr := ln.Addr().String()
	knownHosts := filepath.Join(dir, "known_hosts")
	line := knownhosts.Line([]string{knownhosts.Normalize(addr)}, hostSigner.PublicKey())
	if err := os.WriteFile(knownHosts, []byte(line+"\n"), 0o600); err != nil {
		t.Fatalf("write known_hosts: %v", err)
	}
	return bastion{addr: addr, keyPath: keyPath, knownHosts: knownHosts}
}

func serveSSH(conn net.Conn, cfg *ssh.ServerConfig) {
	sconn, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		_ = conn.Close()
		return
	}
	defer sconn.Close()
	go ssh.DiscardRequests(reqs)
	for newCh := range chans {
		if newCh.ChannelType() != "direct-tcpip" {
			_ = newCh.Reject(ssh.UnknownChannelType, "only direct-tcpip")
			continue
		}
		var target struct {
			Host     string
			Port     uint32
			OrigHost string
			OrigPort uint32
		}
		if err := ssh.Unmarshal(newCh.ExtraData(), &target); err != nil {
			_ = newCh.Reject(ssh.ConnectionFailed, err.Error())
			continue
		}
		upstream, err := net.Dial("tcp", net.JoinHostPort(target.Host, strconv.Itoa(int(target.Port))))
		if err != nil {
			_ = newCh.Reject(ssh.ConnectionFailed, err.Error())
			continue
		}
		ch, chReqs, err := newCh.Accept()
		if err != nil {
			_ = upstream.Close()
			continue
		}
		go ssh.DiscardRequests(chReqs)
		go func() {
			_, _ = io.Copy(ch, upstream)
			_ = ch.Close()
		}()
		go func() {
			_, _ = io.Copy(upstream, ch)
			_ = upstream.Close()
		}()
	}
}

// startEchoSMSC answers every enquire_link with enquire_link_resp.
func startEchoSMSC(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				f := pdu.NewFactory(nil)
				for {
					buf, err := frame.ReadFrame(conn, nil, frame.DefaultLimits())
					if err != nil {
						return
					}
					req, err := f.Decode(buf)
					if err != nil {
						return
					}
					resp, err := f.ResponseTo(req)
					if err != nil {
						return
					}
					b, err := resp.Encode(true)
					if err != nil {
						return
					}
					if _, err := conn.Write(b); err != nil {
						return
					}
				}
			}()
		}
	}()
	return ln.Addr().String()
}

func tunnelFor(b bastion) SSHTunnel {
	host, port, _ := net.SplitHostPort(b.addr)
	return SSHTunnel{
		Host:           host,
		Port:           port,
		User:           "smpp",
		KeyPath:        b.keyPath,
		KnownHostsPath: b.knownHosts,
		Timeout:        5 * time.Second,
	}
}

func TestSSHTunnelCarriesPackets(t *testing.T) {
	testlog.Start(t)
	b := startBastion(t)

	cfg := DefaultConfig()
	cfg.Address = startEchoSMSC(t)
	cfg.MaxConnectAttempts = 1
	cfg.Tunnel = tunnelFor(b)

	l := NewStreamLink(DialerFor(cfg), nil, cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := l.Connect(ctx); err != nil {
		t.Fatalf("connect through tunnel: %v", err)
	}
	defer l.Disconnect()

	req := pdu.NewFactory(nil).Make(pdu.EnquireLink, nil)
	req.Sequence = 42
	if err := l.Write(ctx, req, true); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := l.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.CommandID != pdu.EnquireLinkResp || got.Sequence != 42 {
		t.Fatalf("unexpected response %s", got)
	}
	if err := l.SetTimeout(time.Second); !errors.Is(err, ErrTimeoutUnsupported) {
		t.Fatalf("expected ErrTimeoutUnsupported, got %v", err)
	}
}

func TestSSHTunnelRejectsUnknownHostKey(t *testing.T) {
	testlog.Start(t)
	b := startBastion(t)
	other := startBastion(t)

	cfg := DefaultConfig()
	cfg.Address = startEchoSMSC(t)
	cfg.MaxConnectAttempts = 1
	tunnel := tunnelFor(b)
	tunnel.KnownHostsPath = other.knownHosts
	cfg.Tunnel = tunnel

	l := NewStreamLink(DialerFor(cfg), nil, cfg)
	if err := l.Connect(context.Background()); err == nil {
		_ = l.Disconnect()
		t.Fatalf("expected host key mismatch")
	}
}

func TestSSHTunnelRequiresUserAndKey(t *testing.T) {
	testlog.Start(t)
	cases := map[string]SSHTunnel{
		"user": {Host: "127.0.0.1", KeyPath: "/nonexistent"},
		"key":  {Host: "127.0.0.1", User: "smpp"},
	}
	for name, tunnel := range cases {
		cfg := DefaultConfig()
		cfg.Address = "127.0.0.1:1"
		cfg.MaxConnectAttempts = 1
		cfg.Tunnel = tunnel
		_, err := SSHDialer(cfg, tunnel)(context.Background())
		if !errors.Is(err, ErrInvalidTunnel) {
			t.Fatalf("%s: expected ErrInvalidTunnel, got %v", name, err)
		}
	}
}

func TestProductionRejectsUncheckedHostKey(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.SecurityMode = SecurityModeProduction
	cfg.TLS = TLSConfig{Enabled: true, Mutual: true, CAFile: "ca", CertFile: "crt", KeyFile: "key"}
	cfg.Tunnel = SSHTunnel{Host: "bastion", User: "smpp", KeyPath: "k", InsecureSkipHostKeyChecking: true}
	if err := cfg.ValidateTransport(); !errors.Is(err, ErrHostKeyCheckRequired) {
		t.Fatalf("expected ErrHostKeyCheckRequired, got %v", err)
	}
}

func TestDialerForWithoutTunnelDialsDirect(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.Address = startEchoSMSC(t)
	conn, err := DialerFor(cfg)(context.Background())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, ok := conn.(readDeadliner); !ok {
		t.Fatalf("direct connection should support read deadlines")
	}
}
