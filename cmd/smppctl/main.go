// smppctl is a command-line SMPP client: it binds to a message center,
// submits messages, listens for deliveries and can expose an HTTP admin
// surface and a NATS/Redis relay while bound.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/smppctl/internal/admin"
	"github.com/danmuck/smppctl/internal/config"
	"github.com/danmuck/smppctl/internal/event"
	logs "github.com/danmuck/smppctl/internal/logging"
	"github.com/danmuck/smppctl/internal/protocol/pdu"
	"github.com/danmuck/smppctl/internal/protocol/session"
	"github.com/spf13/pflag"
)

const closeTimeout = 5 * time.Second

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "smppctl: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		printUsage(out)
		return errUsage
	}
	switch args[0] {
	case "template":
		return runTemplate(args[1:], out)
	case "validate":
		return runValidate(args[1:], out)
	case "ping":
		return runPing(ctx, args[1:], out)
	case "submit":
		return runSubmit(ctx, args[1:], out)
	case "listen":
		return runListen(ctx, args[1:], out)
	case "help", "-h", "--help":
		printUsage(out)
		return nil
	default:
		printUsage(out)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printUsage(out io.Writer) {
	fmt.Fprint(out, `usage: smppctl <command> [flags]

commands:
  template   write a client profile template (--format toml|yaml, --output)
  validate   load and check a client profile
  ping       bind, send enquire_link, unbind
  submit     bind, send one submit_sm, unbind
  listen     bind, print deliveries until interrupted
`)
}

// commonFlags are shared by every command that opens a session.
type commonFlags struct {
	configPath  string
	profilePath string
	logLevel    string
	address     string
	bindType    string
	systemID    string
	password    string
	version     string
	dispatcher  string
}

func (c *commonFlags) add(fs *pflag.FlagSet) {
	fs.StringVarP(&c.configPath, "config", "c", "", "client profile (.toml, .yaml)")
	fs.StringVar(&c.profilePath, "profile", "", "flat TOML account overlay applied after --config")
	fs.StringVar(&c.logLevel, "log-level", "", "trace|debug|info|warn|error")
	fs.StringVarP(&c.address, "address", "a", "", "message center host:port")
	fs.StringVarP(&c.bindType, "bind-type", "b", "", "tx|rx|trx")
	fs.StringVarP(&c.systemID, "system-id", "u", "", "bind system_id")
	fs.StringVarP(&c.password, "password", "p", "", "bind password")
	fs.StringVar(&c.version, "smpp-version", "", "interface version to offer (3.3, 3.4, 5.0)")
	fs.StringVar(&c.dispatcher, "dispatcher", "", "simple|threaded|executor")
}

// resolve layers defaults, --config, --profile and explicit flags.
func (c *commonFlags) resolve(fs *pflag.FlagSet) (config.ClientConfig, error) {
	if c.logLevel != "" {
		_ = os.Setenv(logs.EnvLogLevel, c.logLevel)
	}
	logs.ConfigureRuntime()

	cfg := config.Default()
	if c.configPath != "" {
		loaded, err := config.Load(c.configPath)
		if err != nil {
			return config.ClientConfig{}, err
		}
		cfg = loaded
	}
	if c.profilePath != "" {
		if err := applyProfile(c.profilePath, &cfg); err != nil {
			return config.ClientConfig{}, err
		}
	}
	if fs.Changed("address") {
		cfg.Link.Address = c.address
	}
	if fs.Changed("bind-type") {
		cfg.Bind.Type = strings.ToLower(c.bindType)
	}
	if fs.Changed("system-id") {
		cfg.Bind.SystemID = c.systemID
	}
	if fs.Changed("password") {
		cfg.Bind.Password = c.password
	}
	if fs.Changed("smpp-version") {
		cfg.Session.Version = c.version
	}
	if fs.Changed("dispatcher") {
		cfg.Dispatcher.Kind = strings.ToLower(c.dispatcher)
	}
	if err := cfg.Validate(); err != nil {
		return config.ClientConfig{}, err
	}
	return cfg, nil
}

func parse(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return errUsage
		}
		return err
	}
	if extra := fs.Args(); len(extra) > 0 {
		return fmt.Errorf("unexpected argument: %s", extra[0])
	}
	return nil
}

func runTemplate(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("template", pflag.ContinueOnError)
	format := fs.String("format", "toml", "toml|yaml")
	output := fs.StringP("output", "o", "", "write to this path (format from its extension)")
	force := fs.Bool("force", false, "overwrite an existing file")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *output != "" {
		if err := config.WriteTemplate(*output, *force); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %s\n", *output)
		return nil
	}
	text, err := config.Template(*format)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(out, text)
	return err
}

func runValidate(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("validate", pflag.ContinueOnError)
	var common commonFlags
	common.add(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	cfg, err := common.resolve(fs)
	if err != nil {
		return err
	}
	sc, _ := cfg.SessionSettings()
	fmt.Fprintf(out, "ok: %s -> %s bind=%s version=%s dispatcher=%s\n",
		cfg.Name, cfg.Link.Address, cfg.Bind.Type, sc.Version, cfg.Dispatcher.Kind)
	return nil
}

func runPing(ctx context.Context, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("ping", pflag.ContinueOnError)
	var common commonFlags
	common.add(fs)
	count := fs.IntP("count", "n", 1, "enquire_link round trips")
	if err := parse(fs, args); err != nil {
		return err
	}
	cfg, err := common.resolve(fs)
	if err != nil {
		return err
	}
	c, err := openClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.close(closeTimeout)
	if err := c.bind(ctx); err != nil {
		return err
	}
	for i := 0; i < *count; i++ {
		start := time.Now()
		resp, err := c.sess.Request(ctx, c.sess.Factory().Make(pdu.EnquireLink, nil))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "enquire_link seq=%d status=%s rtt=%s\n", resp.Sequence, resp.Status, time.Since(start).Truncate(time.Microsecond))
	}
	return nil
}

func runSubmit(ctx context.Context, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("submit", pflag.ContinueOnError)
	var common commonFlags
	common.add(fs)
	var req admin.SubmitRequest
	fs.StringVar(&req.Source, "source", "", "source address")
	fs.StringVar(&req.Dest, "dest", "", "destination address")
	fs.StringVarP(&req.Text, "text", "t", "", "message text")
	fs.Uint8Var(&req.DataCoding, "coding", 0, "data_coding (0 default, 1 IA5, 3 Latin-1, 8 UCS-2)")
	fs.Uint8Var(&req.RegisteredDelivery, "registered-delivery", 0, "registered_delivery flags")
	fs.StringVar(&req.ServiceType, "service-type", "", "service_type")
	if err := parse(fs, args); err != nil {
		return err
	}
	if req.Dest == "" {
		return errors.New("submit: --dest is required")
	}
	cfg, err := common.resolve(fs)
	if err != nil {
		return err
	}
	if typ, _ := cfg.BindType(); typ == session.Receiver {
		return fmt.Errorf("submit: %w", session.ErrReceiverRole)
	}
	c, err := openClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.close(closeTimeout)
	if err := c.bind(ctx); err != nil {
		return err
	}

	p, err := admin.NewSubmit(c.sess.Factory(), req)
	if err != nil {
		return err
	}
	resp, err := c.sess.Request(ctx, p)
	if err != nil {
		return err
	}
	res := admin.SubmitResult(resp)
	fmt.Fprintf(out, "submit_sm seq=%d status=%s message_id=%s\n", res.Sequence, res.Status, res.MessageID)
	if resp.Status != pdu.StatusOK {
		return fmt.Errorf("submit rejected: %s", resp.Status)
	}
	return nil
}

func runListen(ctx context.Context, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("listen", pflag.ContinueOnError)
	var common commonFlags
	common.add(fs)
	adminAddr := fs.String("admin", "", "serve the admin HTTP surface on this address")
	if err := parse(fs, args); err != nil {
		return err
	}
	cfg, err := common.resolve(fs)
	if err != nil {
		return err
	}
	if fs.Changed("admin") {
		cfg.Admin.Addr = *adminAddr
	}
	cfg.Session.AutoRespond = true

	c, err := openClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.close(closeTimeout)
	c.sess.AddObserver(&printer{out: out})
	if err := c.bind(ctx); err != nil {
		return err
	}

	ac, err := cfg.AdminSettings()
	if err != nil {
		return err
	}
	adminErr := make(chan error, 1)
	if ac.Enabled() {
		srv := admin.New(cfg.Name, c.sess, ac)
		go func() { adminErr <- srv.Serve(ctx) }()
		logs.Infof("admin listening on %s", ac.Addr)
	}

	select {
	case <-ctx.Done():
		logs.Infof("interrupted; unbinding")
		return nil
	case <-c.sess.Done():
		ev, _ := c.sess.ExitEvent()
		if ev.Reason == event.ReasonNormal || ev.Err == nil {
			logs.Infof("receiver finished: %s", ev)
			return nil
		}
		return fmt.Errorf("receiver exited: %s: %w", ev.Reason, ev.Err)
	case err := <-adminErr:
		return fmt.Errorf("admin: %w", err)
	}
}
