// Package relay forwards inbound short messages to a NATS subject and
// mirrors session state into Redis. A Relay is an event.Observer; add it
// to a session like any other observer.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/smppctl/internal/event"
	logs "github.com/danmuck/smppctl/internal/logging"
	"github.com/danmuck/smppctl/internal/observability"
	"github.com/danmuck/smppctl/internal/protocol/pdu"
)

const (
	DefaultSubject   = "smpp"
	DefaultKeyPrefix = "smppctl"
	DefaultStateTTL  = 10 * time.Minute
	DefaultTimeout   = 2 * time.Second
)

var ErrInvalidConfig = errors.New("relay: invalid config")

// Publisher is the subset of *nats.Conn the relay publishes through.
type Publisher interface {
	Publish(subject string, data []byte) error
}

type Config struct {
	NATSURL   string
	Subject   string
	RedisAddr string
	RedisDB   int
	KeyPrefix string
	StateTTL  time.Duration
	Timeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		Subject:   DefaultSubject,
		KeyPrefix: DefaultKeyPrefix,
		StateTTL:  DefaultStateTTL,
		Timeout:   DefaultTimeout,
	}
}

func (c Config) Enabled() bool {
	return c.NATSURL != "" || c.RedisAddr != ""
}

func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.Subject == "" {
		c.Subject = d.Subject
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = d.KeyPrefix
	}
	if c.StateTTL == 0 {
		c.StateTTL = d.StateTTL
	}
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	return c
}

func (c Config) Validate() error {
	if strings.ContainsAny(c.Subject, " *>") || strings.HasSuffix(c.Subject, ".") {
		return fmt.Errorf("%w: subject %q is not a literal subject prefix", ErrInvalidConfig, c.Subject)
	}
	if c.RedisDB < 0 {
		return fmt.Errorf("%w: redis_db must be >= 0", ErrInvalidConfig)
	}
	if c.StateTTL < 0 || c.Timeout < 0 {
		return fmt.Errorf("%w: durations must be >= 0", ErrInvalidConfig)
	}
	return nil
}

// Subject returns "<prefix>.<session>.<command>".
func Subject(prefix, session string, id pdu.CommandID) string {
	return prefix + "." + session + "." + id.String()
}

// Relay publishes deliver_sm and data_sm payloads and records receiver
// events. Either side may be nil.
type Relay struct {
	pub     Publisher
	store   StateStore
	subject string
	timeout time.Duration
	now     func() time.Time
}

func New(pub Publisher, store StateStore, cfg Config) (*Relay, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Relay{
		pub:     pub,
		store:   store,
		subject: cfg.Subject,
		timeout: cfg.Timeout,
		now:     time.Now,
	}, nil
}

func (r *Relay) PacketReceived(src event.Source, p *pdu.Packet) error {
	switch {
	case relayable(p.CommandID):
		return r.publish(src.ID(), p)
	case p.CommandID.IsBindResponse() && p.Status == pdu.StatusOK:
		return r.save(StateRecord{
			Session:   src.ID(),
			State:     "bound",
			Event:     p.CommandID.String(),
			UpdatedAt: r.now().UnixMilli(),
		})
	case p.CommandID == pdu.UnbindResp:
		return r.save(StateRecord{
			Session:   src.ID(),
			State:     "unbound",
			Event:     p.CommandID.String(),
			UpdatedAt: r.now().UnixMilli(),
		})
	}
	return nil
}

func (r *Relay) Update(src event.Source, ev event.Event) error {
	if ev.Time.IsZero() {
		ev.Time = r.now()
	}
	return r.save(stateFrom(src.ID(), ev))
}

func (r *Relay) publish(session string, p *pdu.Packet) error {
	if r.pub == nil {
		return nil
	}
	data, err := marshal(messageFrom(session, p, r.now()))
	if err != nil {
		return fmt.Errorf("relay: encode %s: %w", p, err)
	}
	subject := Subject(r.subject, session, p.CommandID)
	err = r.pub.Publish(subject, data)
	observability.RecordRelayPublished(p.CommandID.String(), err == nil)
	if err != nil {
		return fmt.Errorf("relay: publish %s: %w", subject, err)
	}
	logs.Debugf("relay.publish subject=%s packet=%s bytes=%d", subject, p, len(data))
	return nil
}

func (r *Relay) save(rec StateRecord) error {
	if r.store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("relay: save state for %s: %w", rec.Session, err)
	}
	return nil
}
