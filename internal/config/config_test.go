package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/smppctl/internal/event"
	"github.com/danmuck/smppctl/internal/protocol/link"
	"github.com/danmuck/smppctl/internal/protocol/pdu"
	"github.com/danmuck/smppctl/internal/protocol/session"
	"github.com/danmuck/smppctl/internal/testutil/testlog"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const tomlProfile = `
name = "esme-a"

[link]
address = "smsc.local:2775"
write_timeout = "3s"

[bind]
type = "tx"
system_id = "esme"
password = "secret"

[session]
version = "3.3"
link_timeout = "30s"
validate = false

[dispatcher]
kind = "threaded"
pool_size = 4
queue_size = 16

[relay]
nats_url = "nats://127.0.0.1:4222"
state_ttl = "1m"

[admin]
addr = "127.0.0.1:8088"
cors_origins = ["http://ops.local"]
`

func TestLoadTOMLOverridesDefaults(t *testing.T) {
	testlog.Start(t)
	cfg, err := Load(writeFile(t, "client.toml", tomlProfile))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	lc, err := cfg.LinkSettings()
	if err != nil {
		t.Fatalf("link settings: %v", err)
	}
	if lc.Address != "smsc.local:2775" || lc.WriteTimeout != 3*time.Second {
		t.Fatalf("unexpected link settings %+v", lc)
	}
	if lc.ConnectTimeout != 5*time.Second || lc.MaxConnectAttempts != 3 {
		t.Fatalf("defaults lost: connect=%v attempts=%d", lc.ConnectTimeout, lc.MaxConnectAttempts)
	}

	sc, err := cfg.SessionSettings()
	if err != nil {
		t.Fatalf("session settings: %v", err)
	}
	if sc.ID != "esme-a" || sc.Version != pdu.V33 || sc.LinkTimeout != 30*time.Second {
		t.Fatalf("unexpected session settings %+v", sc)
	}
	if sc.BindTimeout != 10*time.Second || sc.IOFailureLimit != 5 || sc.Validating {
		t.Fatalf("unexpected session defaults %+v", sc)
	}
	if sc.Dispatcher != (event.Config{Kind: event.KindThreaded, PoolSize: 4, QueueSize: 16}) {
		t.Fatalf("unexpected dispatcher %+v", sc.Dispatcher)
	}

	typ, err := cfg.BindType()
	if err != nil || typ != session.Transmitter {
		t.Fatalf("bind type = %v, %v", typ, err)
	}
	if creds := cfg.Credentials(); creds.SystemID != "esme" || creds.Password != "secret" {
		t.Fatalf("unexpected credentials %+v", creds)
	}

	rc, err := cfg.RelaySettings()
	if err != nil {
		t.Fatalf("relay settings: %v", err)
	}
	if !rc.Enabled() || rc.StateTTL != time.Minute || rc.Subject != "smpp" {
		t.Fatalf("unexpected relay settings %+v", rc)
	}

	ac, err := cfg.AdminSettings()
	if err != nil {
		t.Fatalf("admin settings: %v", err)
	}
	if ac.Addr != "127.0.0.1:8088" || len(ac.CORSOrigins) != 1 || ac.SubmitTimeout != 10*time.Second {
		t.Fatalf("unexpected admin settings %+v", ac)
	}
}

func TestLoadYAML(t *testing.T) {
	testlog.Start(t)
	body := `
name: esme-y
link:
  address: 10.0.0.5:2775
  tls:
    enabled: true
    ca_file: /etc/smpp/ca.pem
bind:
  type: rx
session:
  version: "5.0"
`
	cfg, err := Load(writeFile(t, "client.yaml", body))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	lc, _ := cfg.LinkSettings()
	if !lc.TLS.Enabled || lc.TLS.CAFile != "/etc/smpp/ca.pem" {
		t.Fatalf("unexpected tls %+v", lc.TLS)
	}
	sc, _ := cfg.SessionSettings()
	if sc.Version != pdu.V50 || !sc.Validating {
		t.Fatalf("unexpected session %+v", sc)
	}
	if typ, _ := cfg.BindType(); typ != session.Receiver {
		t.Fatalf("unexpected bind type %v", typ)
	}
}

func TestLoadSSHTunnel(t *testing.T) {
	testlog.Start(t)
	body := `
[link]
address = "10.1.0.9:2775"
connect_timeout = "4s"

[link.ssh]
host = "bastion.example"
user = "ops"
key_path = "/home/ops/.ssh/id_ed25519"
known_hosts = "/home/ops/.ssh/known_hosts"
`
	cfg, err := Load(writeFile(t, "tunnel.toml", body))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	lc, err := cfg.LinkSettings()
	if err != nil {
		t.Fatalf("link settings: %v", err)
	}
	want := link.SSHTunnel{
		Host:           "bastion.example",
		User:           "ops",
		KeyPath:        "/home/ops/.ssh/id_ed25519",
		KnownHostsPath: "/home/ops/.ssh/known_hosts",
		Timeout:        4 * time.Second,
	}
	if lc.Tunnel.Host != want.Host || lc.Tunnel.User != want.User || lc.Tunnel.KeyPath != want.KeyPath ||
		lc.Tunnel.KnownHostsPath != want.KnownHostsPath || lc.Tunnel.Timeout != want.Timeout {
		t.Fatalf("unexpected tunnel %+v", lc.Tunnel)
	}
	if !lc.Tunnel.Enabled() {
		t.Fatalf("tunnel should be enabled")
	}

	plain, _ := Default().LinkSettings()
	if plain.Tunnel.Enabled() {
		t.Fatalf("default profile should dial directly")
	}
}

func TestLoadRejects(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name, file, body string
		want             error
	}{
		{"unknown extension", "client.ini", "x=1", ErrUnsupportedFormat},
		{"bad bind type", "a.toml", "[bind]\ntype = \"both\"\n", ErrInvalid},
		{"bad duration", "b.toml", "[session]\nbind_timeout = \"soon\"\n", ErrInvalid},
		{"bad version", "c.toml", "[session]\nversion = \"4.0\"\n", ErrInvalid},
		{"bad dispatcher", "d.yaml", "dispatcher:\n  kind: fanout\n", ErrInvalid},
		{"mutual without tls", "e.toml", "[link.tls]\nmutual = true\n", ErrInvalid},
		{"empty address", "f.toml", "[link]\naddress = \" \"\n", ErrInvalid},
		{"ssh without key", "h.toml", "[link.ssh]\nhost = \"bastion\"\nuser = \"ops\"\n", ErrInvalid},
		{"ssh without host", "i.yaml", "link:\n  ssh:\n    user: ops\n    key_path: /k\n", ErrInvalid},
	}
	for _, tc := range cases {
		_, err := Load(writeFile(t, tc.file, tc.body))
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	if _, err := Load(writeFile(t, "g.toml", "[link]\nadress = \"typo\"\n")); err == nil {
		t.Fatalf("unknown key should fail")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist, got %v", err)
	}
}

func TestTemplatesLoadBack(t *testing.T) {
	testlog.Start(t)
	for _, name := range []string{"client.toml", "client.yaml"} {
		path := filepath.Join(t.TempDir(), name)
		if err := WriteTemplate(path, false); err != nil {
			t.Fatalf("%s: write template: %v", name, err)
		}
		if err := WriteTemplate(path, false); err == nil {
			t.Fatalf("%s: second write without overwrite should fail", name)
		}
		if err := WriteTemplate(path, true); err != nil {
			t.Fatalf("%s: overwrite: %v", name, err)
		}
		data, _ := os.ReadFile(path)
		if !strings.HasPrefix(string(data), "# smppctl client profile") {
			t.Fatalf("%s: missing header", name)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("%s: load template: %v", name, err)
		}
		def := Default()
		if cfg.Name != def.Name || cfg.Link.Address != def.Link.Address || cfg.Bind.Type != def.Bind.Type ||
			cfg.Session != def.Session || cfg.Dispatcher != def.Dispatcher || cfg.Relay != def.Relay {
			t.Fatalf("%s: template does not round-trip: %+v", name, cfg)
		}
		lc, _ := cfg.LinkSettings()
		if lc.SecurityMode != link.SecurityModeDevelopment {
			t.Fatalf("%s: unexpected security mode %q", name, lc.SecurityMode)
		}
	}
	if _, err := Template("json"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}
