package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/danmuck/smppctl/internal/config"
	"github.com/danmuck/smppctl/internal/event"
	logs "github.com/danmuck/smppctl/internal/logging"
	"github.com/danmuck/smppctl/internal/protocol/link"
	"github.com/danmuck/smppctl/internal/protocol/pdu"
	"github.com/danmuck/smppctl/internal/protocol/session"
	"github.com/danmuck/smppctl/internal/protocol/tlv"
	"github.com/danmuck/smppctl/internal/relay"
)

var (
	errBindRejected   = errors.New("bind rejected")
	errReceiverExited = errors.New("receiver exited before bind completed")
)

// client owns one session and the relay connections hung off it.
type client struct {
	cfg     config.ClientConfig
	sess    *session.Session
	watch   *bindWatch
	closers []func()
}

func openClient(ctx context.Context, cfg config.ClientConfig) (*client, error) {
	lc, err := cfg.LinkSettings()
	if err != nil {
		return nil, err
	}
	sc, err := cfg.SessionSettings()
	if err != nil {
		return nil, err
	}
	factory := pdu.NewFactory(nil)
	sess, err := session.New(link.NewStreamLink(link.DialerFor(lc), factory, lc), factory, sc)
	if err != nil {
		return nil, err
	}
	c := &client{cfg: cfg, sess: sess, watch: newBindWatch()}
	sess.AddObserver(c.watch)
	if cfg.Session.AutoRespond {
		sess.AddObserver(session.NewAutoResponder(factory))
	}
	if err := c.wireRelay(ctx); err != nil {
		c.release()
		return nil, err
	}
	return c, nil
}

func (c *client) wireRelay(ctx context.Context) error {
	rc, err := c.cfg.RelaySettings()
	if err != nil || !rc.Enabled() {
		return err
	}
	var (
		pub   relay.Publisher
		store relay.StateStore
	)
	if rc.NATSURL != "" {
		nc, err := relay.ConnectNATS(rc.NATSURL, c.cfg.Name)
		if err != nil {
			return err
		}
		c.closers = append(c.closers, func() { _ = nc.Drain() })
		pub = nc
	}
	if rc.RedisAddr != "" {
		rdb, err := relay.ConnectRedis(ctx, rc.RedisAddr, rc.RedisDB)
		if err != nil {
			return err
		}
		c.closers = append(c.closers, func() { _ = rdb.Close() })
		rs, err := relay.NewRedisStore(rdb, rc.KeyPrefix, rc.StateTTL)
		if err != nil {
			return err
		}
		store = rs
	}
	r, err := relay.New(pub, store, rc)
	if err != nil {
		return err
	}
	c.sess.AddObserver(r)
	logs.Infof("relay enabled nats=%q redis=%q subject=%s", rc.NATSURL, rc.RedisAddr, rc.Subject)
	return nil
}

// bind sends the bind request and waits for the peer's answer.
func (c *client) bind(ctx context.Context) error {
	typ, err := c.cfg.BindType()
	if err != nil {
		return err
	}
	start := time.Now()
	if err := c.sess.Bind(ctx, typ, c.cfg.Credentials()); err != nil {
		return err
	}
	if err := c.watch.wait(ctx); err != nil {
		return err
	}
	logs.Infof("bound %s to %s as %s (%s, optional params %t) in %s",
		c.sess.ID(), c.cfg.Link.Address, typ, c.sess.Version(), c.sess.OptionalParams(),
		time.Since(start).Truncate(time.Millisecond))
	return nil
}

// close unbinds when bound, then tears down the link and relay clients.
func (c *client) close(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if st := c.sess.State(); st == session.Bound {
		if err := c.sess.Unbind(ctx); err != nil {
			logs.Warnf("unbind failed: %v", err)
		} else {
			select {
			case <-c.sess.Done():
			case <-ctx.Done():
				logs.Warnf("no unbind_resp within %s", timeout)
			}
		}
	}
	if err := c.sess.Close(); err != nil {
		logs.Debugf("close: %v; dropping link", err)
		_ = c.sess.Link().Disconnect()
	}
	c.release()
}

func (c *client) release() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// bindWatch reports the outcome of the pending bind.
type bindWatch struct {
	result chan error
}

func newBindWatch() *bindWatch {
	return &bindWatch{result: make(chan error, 1)}
}

func (w *bindWatch) PacketReceived(_ event.Source, p *pdu.Packet) error {
	if !p.CommandID.IsBindResponse() && p.CommandID != pdu.GenericNack {
		return nil
	}
	var err error
	if p.Status != pdu.StatusOK {
		err = fmt.Errorf("%w: %s", errBindRejected, p.Status)
	}
	w.offer(err)
	return nil
}

func (w *bindWatch) Update(_ event.Source, ev event.Event) error {
	if ev.Kind == event.ReceiverExit {
		w.offer(fmt.Errorf("%w: %s", errReceiverExited, ev.Reason))
	}
	return nil
}

func (w *bindWatch) offer(err error) {
	select {
	case w.result <- err:
	default:
	}
}

func (w *bindWatch) wait(ctx context.Context) error {
	select {
	case err := <-w.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// printer writes inbound short messages to out.
type printer struct {
	out io.Writer
}

func (p *printer) PacketReceived(src event.Source, pk *pdu.Packet) error {
	var (
		from, to string
		coding   uint8
		payload  []byte
	)
	switch b := pk.Body.(type) {
	case *pdu.ShortMessage:
		from, to, coding, payload = b.Source.Addr, b.Dest.Addr, b.DataCoding, b.Message
	case *pdu.DataSMBody:
		from, to, coding = b.Source.Addr, b.Dest.Addr, b.DataCoding
		payload, _ = pk.Params.Bytes(tlv.MessagePayload)
	default:
		logs.Debugf("%s: %s", src.ID(), pk)
		return nil
	}
	_, err := fmt.Fprintf(p.out, "%s seq=%d %s -> %s: %s\n", pk.CommandID, pk.Sequence, from, to, decodeText(coding, payload))
	return err
}

func (p *printer) Update(src event.Source, ev event.Event) error {
	logs.Infof("%s: %s", src.ID(), ev)
	return nil
}

func decodeText(coding uint8, b []byte) string {
	if alpha, err := pdu.AlphabetFor(coding); err == nil {
		if text, err := alpha.Decode(b); err == nil {
			return text
		}
	}
	return fmt.Sprintf("%x", b)
}
