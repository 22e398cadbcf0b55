package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/smppctl/internal/event"
	"github.com/danmuck/smppctl/internal/protocol/pdu"
)

var ErrInvalidConfig = errors.New("session: invalid config")

// Config defines session protocol defaults.
type Config struct {
	ID      string
	Version pdu.Version
	// BindTimeout bounds the wait for a bind response. LinkTimeout replaces
	// it once bound; zero means reads block.
	BindTimeout    time.Duration
	LinkTimeout    time.Duration
	IOFailureLimit int
	Validating     bool
	Dispatcher     event.Config
}

func DefaultConfig() Config {
	return Config{
		Version:        pdu.DefaultVersion,
		BindTimeout:    10 * time.Second,
		LinkTimeout:    0,
		IOFailureLimit: 5,
		Validating:     true,
		Dispatcher:     event.DefaultConfig(),
	}
}

func (c Config) Validate() error {
	if _, err := pdu.LookupVersion(uint64(c.Version)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.BindTimeout < 0 || c.LinkTimeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalidConfig)
	}
	if c.IOFailureLimit < 1 {
		return fmt.Errorf("%w: io_failure_limit=%d", ErrInvalidConfig, c.IOFailureLimit)
	}
	if err := c.Dispatcher.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
