package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/danmuck/smppctl/internal/admin"
	"github.com/danmuck/smppctl/internal/event"
	"github.com/danmuck/smppctl/internal/protocol/frame"
	"github.com/danmuck/smppctl/internal/protocol/link"
	"github.com/danmuck/smppctl/internal/protocol/pdu"
	"github.com/danmuck/smppctl/internal/protocol/session"
	"github.com/danmuck/smppctl/internal/relay"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalid           = errors.New("config: invalid")
	ErrUnsupportedFormat = errors.New("config: unsupported format")
)

// ClientConfig is the on-disk shape of a client profile. Durations are
// strings in time.ParseDuration syntax.
type ClientConfig struct {
	Name       string           `toml:"name" yaml:"name"`
	Link       LinkConfig       `toml:"link" yaml:"link"`
	Bind       BindConfig       `toml:"bind" yaml:"bind"`
	Session    SessionConfig    `toml:"session" yaml:"session"`
	Dispatcher DispatcherConfig `toml:"dispatcher" yaml:"dispatcher"`
	Relay      RelayConfig      `toml:"relay" yaml:"relay"`
	Admin      AdminConfig      `toml:"admin" yaml:"admin"`
}

type LinkConfig struct {
	Address            string    `toml:"address" yaml:"address"`
	ConnectTimeout     string    `toml:"connect_timeout" yaml:"connect_timeout"`
	WriteTimeout       string    `toml:"write_timeout" yaml:"write_timeout"`
	MaxConnectAttempts int       `toml:"max_connect_attempts" yaml:"max_connect_attempts"`
	MaxPacketBytes     uint32    `toml:"max_packet_bytes" yaml:"max_packet_bytes"`
	SecurityMode       string    `toml:"security_mode" yaml:"security_mode"`
	TLS                TLSConfig `toml:"tls" yaml:"tls"`
	// SSH routes the link through a bastion when present.
	SSH *SSHConfig `toml:"ssh,omitempty" yaml:"ssh,omitempty"`
}

type SSHConfig struct {
	Host                string `toml:"host" yaml:"host"`
	Port                string `toml:"port" yaml:"port"`
	User                string `toml:"user" yaml:"user"`
	KeyPath             string `toml:"key_path" yaml:"key_path"`
	KnownHosts          string `toml:"known_hosts" yaml:"known_hosts"`
	InsecureSkipHostKey bool   `toml:"insecure_skip_host_key" yaml:"insecure_skip_host_key"`
	Timeout             string `toml:"timeout" yaml:"timeout"`
}

type TLSConfig struct {
	Enabled    bool   `toml:"enabled" yaml:"enabled"`
	Mutual     bool   `toml:"mutual" yaml:"mutual"`
	CAFile     string `toml:"ca_file" yaml:"ca_file"`
	CertFile   string `toml:"cert_file" yaml:"cert_file"`
	KeyFile    string `toml:"key_file" yaml:"key_file"`
	ServerName string `toml:"server_name" yaml:"server_name"`
}

type BindConfig struct {
	Type         string `toml:"type" yaml:"type"`
	SystemID     string `toml:"system_id" yaml:"system_id"`
	Password     string `toml:"password" yaml:"password"`
	SystemType   string `toml:"system_type" yaml:"system_type"`
	AddrTON      uint8  `toml:"addr_ton" yaml:"addr_ton"`
	AddrNPI      uint8  `toml:"addr_npi" yaml:"addr_npi"`
	AddressRange string `toml:"address_range" yaml:"address_range"`
}

type SessionConfig struct {
	Version        string `toml:"version" yaml:"version"`
	BindTimeout    string `toml:"bind_timeout" yaml:"bind_timeout"`
	LinkTimeout    string `toml:"link_timeout" yaml:"link_timeout"`
	IOFailureLimit int    `toml:"io_failure_limit" yaml:"io_failure_limit"`
	// Validate is a pointer so an absent key keeps validation on.
	Validate *bool `toml:"validate,omitempty" yaml:"validate,omitempty"`
	// AutoRespond answers enquire_link, unbind, deliver_sm and data_sm.
	AutoRespond bool `toml:"auto_respond" yaml:"auto_respond"`
}

type DispatcherConfig struct {
	Kind      string `toml:"kind" yaml:"kind"`
	PoolSize  int    `toml:"pool_size" yaml:"pool_size"`
	QueueSize int    `toml:"queue_size" yaml:"queue_size"`
}

type RelayConfig struct {
	NATSURL   string `toml:"nats_url" yaml:"nats_url"`
	Subject   string `toml:"subject" yaml:"subject"`
	RedisAddr string `toml:"redis_addr" yaml:"redis_addr"`
	RedisDB   int    `toml:"redis_db" yaml:"redis_db"`
	KeyPrefix string `toml:"key_prefix" yaml:"key_prefix"`
	StateTTL  string `toml:"state_ttl" yaml:"state_ttl"`
}

type AdminConfig struct {
	Addr          string   `toml:"addr" yaml:"addr"`
	CORSOrigins   []string `toml:"cors_origins,omitempty" yaml:"cors_origins,omitempty"`
	SubmitTimeout string   `toml:"submit_timeout" yaml:"submit_timeout"`
	Token         string   `toml:"token" yaml:"token"`
}

// Default returns the profile written by Template("toml").
func Default() ClientConfig {
	return ClientConfig{
		Name: "smppctl",
		Link: LinkConfig{
			Address:            "127.0.0.1:2775",
			ConnectTimeout:     "5s",
			WriteTimeout:       "15s",
			MaxConnectAttempts: 3,
			MaxPacketBytes:     frame.DefaultLimits().MaxPacketBytes,
			SecurityMode:       string(link.SecurityModeDevelopment),
		},
		Bind: BindConfig{Type: "trx"},
		Session: SessionConfig{
			Version:        "3.4",
			BindTimeout:    "10s",
			IOFailureLimit: 5,
		},
		Dispatcher: DispatcherConfig{Kind: event.KindSimple, PoolSize: 3, QueueSize: 100},
		Relay:      RelayConfig{Subject: relay.DefaultSubject, KeyPrefix: relay.DefaultKeyPrefix, StateTTL: "10m"},
		Admin:      AdminConfig{SubmitTimeout: "10s"},
	}
}

// Load reads a profile, choosing the decoder by extension. Keys absent
// from the file keep their Default values.
func Load(path string) (ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ClientConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(&cfg)
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&cfg)
	default:
		return ClientConfig{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return ClientConfig{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return ClientConfig{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the profile converts cleanly into runtime settings.
func (c ClientConfig) Validate() error {
	if strings.TrimSpace(c.Link.Address) == "" {
		return fmt.Errorf("%w: link.address is required", ErrInvalid)
	}
	if _, err := session.ParseType(c.Bind.Type); err != nil {
		return fmt.Errorf("%w: bind.type: %v", ErrInvalid, err)
	}
	lc, err := c.LinkSettings()
	if err != nil {
		return err
	}
	if err := lc.ValidateTransport(); err != nil {
		return fmt.Errorf("%w: link: %v", ErrInvalid, err)
	}
	sc, err := c.SessionSettings()
	if err != nil {
		return err
	}
	if err := sc.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	rc, err := c.RelaySettings()
	if err != nil {
		return err
	}
	if err := rc.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := c.AdminSettings(); err != nil {
		return err
	}
	return nil
}

func (c ClientConfig) LinkSettings() (link.Config, error) {
	lc := link.DefaultConfig()
	lc.Address = strings.TrimSpace(c.Link.Address)
	if err := parseDuration("link.connect_timeout", c.Link.ConnectTimeout, &lc.ConnectTimeout); err != nil {
		return link.Config{}, err
	}
	if err := parseDuration("link.write_timeout", c.Link.WriteTimeout, &lc.WriteTimeout); err != nil {
		return link.Config{}, err
	}
	if c.Link.MaxConnectAttempts != 0 {
		lc.MaxConnectAttempts = c.Link.MaxConnectAttempts
	}
	if c.Link.MaxPacketBytes != 0 {
		lc.Limits.MaxPacketBytes = c.Link.MaxPacketBytes
	}
	if c.Link.SecurityMode != "" {
		lc.SecurityMode = link.SecurityMode(strings.ToLower(strings.TrimSpace(c.Link.SecurityMode)))
	}
	lc.TLS = link.TLSConfig{
		Enabled:    c.Link.TLS.Enabled,
		Mutual:     c.Link.TLS.Mutual,
		CAFile:     c.Link.TLS.CAFile,
		CertFile:   c.Link.TLS.CertFile,
		KeyFile:    c.Link.TLS.KeyFile,
		ServerName: c.Link.TLS.ServerName,
	}
	if ssh := c.Link.SSH; ssh != nil {
		if strings.TrimSpace(ssh.Host) == "" {
			return link.Config{}, fmt.Errorf("%w: link.ssh.host is required", ErrInvalid)
		}
		lc.Tunnel = link.SSHTunnel{
			Host:                        strings.TrimSpace(ssh.Host),
			Port:                        strings.TrimSpace(ssh.Port),
			User:                        ssh.User,
			KeyPath:                     ssh.KeyPath,
			KnownHostsPath:              ssh.KnownHosts,
			InsecureSkipHostKeyChecking: ssh.InsecureSkipHostKey,
			Timeout:                     lc.ConnectTimeout,
		}
		if err := parseDuration("link.ssh.timeout", ssh.Timeout, &lc.Tunnel.Timeout); err != nil {
			return link.Config{}, err
		}
		if lc.Tunnel.User == "" || lc.Tunnel.KeyPath == "" {
			return link.Config{}, fmt.Errorf("%w: link.ssh needs user and key_path", ErrInvalid)
		}
	}
	return lc, nil
}

func (c ClientConfig) SessionSettings() (session.Config, error) {
	sc := session.DefaultConfig()
	sc.ID = c.Name
	if c.Session.Version != "" {
		v, err := pdu.ParseVersion(c.Session.Version)
		if err != nil {
			return session.Config{}, fmt.Errorf("%w: session.version: %v", ErrInvalid, err)
		}
		sc.Version = v
	}
	if err := parseDuration("session.bind_timeout", c.Session.BindTimeout, &sc.BindTimeout); err != nil {
		return session.Config{}, err
	}
	if err := parseDuration("session.link_timeout", c.Session.LinkTimeout, &sc.LinkTimeout); err != nil {
		return session.Config{}, err
	}
	if c.Session.IOFailureLimit != 0 {
		sc.IOFailureLimit = c.Session.IOFailureLimit
	}
	if c.Session.Validate != nil {
		sc.Validating = *c.Session.Validate
	}
	sc.Dispatcher = event.Config{
		Kind:      c.Dispatcher.Kind,
		PoolSize:  c.Dispatcher.PoolSize,
		QueueSize: c.Dispatcher.QueueSize,
	}
	return sc, nil
}

func (c ClientConfig) BindType() (session.Type, error) {
	return session.ParseType(c.Bind.Type)
}

func (c ClientConfig) Credentials() session.Credentials {
	return session.Credentials{
		SystemID:     c.Bind.SystemID,
		Password:     c.Bind.Password,
		SystemType:   c.Bind.SystemType,
		AddrTON:      c.Bind.AddrTON,
		AddrNPI:      c.Bind.AddrNPI,
		AddressRange: c.Bind.AddressRange,
	}
}

func (c ClientConfig) RelaySettings() (relay.Config, error) {
	rc := relay.Config{
		NATSURL:   strings.TrimSpace(c.Relay.NATSURL),
		Subject:   c.Relay.Subject,
		RedisAddr: strings.TrimSpace(c.Relay.RedisAddr),
		RedisDB:   c.Relay.RedisDB,
		KeyPrefix: c.Relay.KeyPrefix,
	}
	if err := parseDuration("relay.state_ttl", c.Relay.StateTTL, &rc.StateTTL); err != nil {
		return relay.Config{}, err
	}
	return rc.WithDefaults(), nil
}

func (c ClientConfig) AdminSettings() (admin.Config, error) {
	ac := admin.DefaultConfig()
	ac.Addr = strings.TrimSpace(c.Admin.Addr)
	ac.CORSOrigins = c.Admin.CORSOrigins
	ac.Token = c.Admin.Token
	if err := parseDuration("admin.submit_timeout", c.Admin.SubmitTimeout, &ac.SubmitTimeout); err != nil {
		return admin.Config{}, err
	}
	return ac, nil
}

func parseDuration(key, raw string, out *time.Duration) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	if d < 0 {
		return fmt.Errorf("%w: %s must be >= 0", ErrInvalid, key)
	}
	*out = d
	return nil
}
