// Package admin serves the HTTP control surface of a running client:
// health and readiness probes, prometheus metrics, session status and a
// submit endpoint.
package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/smppctl/internal/auth"
	"github.com/danmuck/smppctl/internal/event"
	"github.com/danmuck/smppctl/internal/observability"
	"github.com/danmuck/smppctl/internal/protocol/pdu"
	"github.com/danmuck/smppctl/internal/protocol/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ErrNotBound    = errors.New("admin: session not bound")
	ErrBadEncoding = errors.New("admin: text not representable in data coding")
)

// Session is the part of *session.Session the admin surface reads and
// drives.
type Session interface {
	ID() string
	State() session.State
	Type() session.Type
	Version() pdu.Version
	OptionalParams() bool
	Pending() []session.PendingRequest
	ExitEvent() (event.Event, bool)
	Factory() *pdu.Factory
	Request(ctx context.Context, req *pdu.Packet) (*pdu.Packet, error)
}

type Config struct {
	Addr          string
	CORSOrigins   []string
	SubmitTimeout time.Duration
	// Token guards POST /submit when set.
	Token string
}

func DefaultConfig() Config {
	return Config{
		SubmitTimeout: 10 * time.Second,
	}
}

func (c Config) Enabled() bool { return c.Addr != "" }

type Server struct {
	Name     string
	Addr     string
	Appeared time.Time

	sess    Session
	timeout time.Duration
	guard   auth.Validator
	router  *gin.Engine
}

func New(name string, sess Session, cfg Config) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.AdminMiddleware(name, observability.InitLogger(name)))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CORSOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	timeout := cfg.SubmitTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().SubmitTimeout
	}
	s := &Server{
		Name:     name,
		Addr:     cfg.Addr,
		Appeared: time.Now(),
		sess:     sess,
		timeout:  timeout,
		router:   r,
	}
	if cfg.Token != "" {
		s.guard = auth.StaticToken{Token: cfg.Token}
	}
	s.RegisterRoutes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) RegisterRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.Name,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/ready", func(c *gin.Context) {
		state := s.sess.State()
		status := http.StatusOK
		if state != session.Bound {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":   state == session.Bound,
			"state":   state.String(),
			"service": s.Name,
		})
	})

	s.router.GET("/session", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.Status())
	})

	s.router.POST("/submit", s.requireToken, s.handleSubmit)
}

// Serve blocks until ctx ends or the listener fails.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requireToken(c *gin.Context) {
	if s.guard == nil {
		return
	}
	if err := auth.CheckHeader(s.guard, c.GetHeader("Authorization")); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
