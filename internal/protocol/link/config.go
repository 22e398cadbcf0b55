package link

import (
	"time"

	"github.com/danmuck/smppctl/internal/protocol/frame"
)

type SecurityMode string

const (
	SecurityModeDevelopment SecurityMode = "development"
	SecurityModeProduction  SecurityMode = "production"
)

// TLSConfig describes the client side of a TLS link.
type TLSConfig struct {
	Enabled            bool
	Mutual             bool
	CAFile             string
	CertFile           string
	KeyFile            string
	ServerName         string
	InsecureSkipVerify bool
}

// Config holds transport settings shared by every stream link.
type Config struct {
	Address            string
	ConnectTimeout     time.Duration
	HandshakeTimeout   time.Duration
	WriteTimeout       time.Duration
	MaxConnectAttempts int
	Backoff            BackoffConfig

	// AutoFlush flushes the write buffer after every packet. With it off the
	// caller must call Flush.
	AutoFlush bool
	// ReadBufferSize is the initial receive buffer; it grows to fit larger
	// packets and is never shrunk.
	ReadBufferSize  int
	WriteBufferSize int
	Limits          frame.Limits

	SecurityMode SecurityMode
	TLS          TLSConfig
	// Tunnel, when its Host is set, carries the stream over SSH.
	Tunnel SSHTunnel
}

const (
	DefaultReadBufferSize  = 512
	DefaultWriteBufferSize = 4096
)

func DefaultConfig() Config {
	return Config{
		ConnectTimeout:     5 * time.Second,
		HandshakeTimeout:   5 * time.Second,
		WriteTimeout:       15 * time.Second,
		MaxConnectAttempts: 3,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
		AutoFlush:       true,
		ReadBufferSize:  DefaultReadBufferSize,
		WriteBufferSize: DefaultWriteBufferSize,
		Limits:          frame.DefaultLimits(),
		SecurityMode:    SecurityModeDevelopment,
	}
}

// WithDefaults fills zero values from DefaultConfig. AutoFlush is left as
// given.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.WriteTimeout < 0 {
		c.WriteTimeout = 0
	}
	if c.Backoff.InitialDelay <= 0 && c.Backoff.Multiplier == 0 && c.Backoff.MaxDelay == 0 {
		c.Backoff = d.Backoff
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = d.WriteBufferSize
	}
	if c.Limits.MaxPacketBytes == 0 {
		c.Limits = d.Limits
	}
	c.SecurityMode = NormalizeSecurityMode(c.SecurityMode)
	return c
}
