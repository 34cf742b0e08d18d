// Package httpapi exposes the publish entry point, the per-session event
// stream and a few read-only views over the target store.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"promocast/internal/channel"
	"promocast/internal/eventbus"
	"promocast/internal/publish"
	"promocast/internal/storage"
	logx "promocast/pkg/logx"
)

// Config controls the HTTP listener.
//
// Security: a non-loopback Addr requires Token unless AllowInsecure is set.
type Config struct {
	Addr          string
	Token         string
	AllowInsecure bool
	// Pprof mounts net/http/pprof under /debug/pprof/.
	Pprof bool

	ReadTimeout time.Duration
	IdleTimeout time.Duration
}

// Publisher is the orchestration entry point.
type Publisher interface {
	Publish(ctx context.Context, req publish.Request) (publish.Result, error)
}

// Sessions resolves the telemetry bus of a run.
type Sessions interface {
	Session(id string) *eventbus.Bus
}

type Deps struct {
	Publisher Publisher
	Sessions  Sessions
	// Store is optional; target routes answer 503 without it.
	Store    storage.Store
	Channels *channel.Registry
	Gatherer prometheus.Gatherer
	Metrics  prometheus.Registerer
	// Runtime, when set, adds goroutine stats to /healthz.
	Runtime func() any
	Log     logx.Logger
}

// Service owns the HTTP server lifecycle. Reconfigure is safe during hot reload.
type Service struct {
	d   Deps
	log logx.Logger

	subscribers prometheus.Gauge

	mu       sync.Mutex
	cfg      Config
	ln       net.Listener
	srv      *http.Server
	cancel   context.CancelFunc
	stopDone chan struct{}
}

func init() { gin.SetMode(gin.ReleaseMode) }

func New(cfg Config, d Deps) *Service {
	s := &Service{d: d, cfg: cfg, log: d.Log.With(logx.String("comp", "http"))}
	s.subscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "promocast_stream_subscribers",
		Help: "Open event stream connections",
	})
	if d.Metrics != nil {
		d.Metrics.MustRegister(s.subscribers)
	}
	return s
}

// Addr returns the bound address, or "" when not running.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Reconfigure applies cfg and restarts the listener when needed.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) error {
	s.mu.Lock()
	prev := s.cfg
	running := s.srv != nil
	s.cfg = cfg
	s.mu.Unlock()

	if running && needsRestart(prev, cfg) {
		s.Stop(ctx)
		return s.Start(ctx)
	}
	return nil
}

func needsRestart(a, b Config) bool {
	return a.Addr != b.Addr ||
		a.Token != b.Token ||
		a.AllowInsecure != b.AllowInsecure ||
		a.Pprof != b.Pprof ||
		a.ReadTimeout != b.ReadTimeout ||
		a.IdleTimeout != b.IdleTimeout
}

// Start binds the listener and serves in the background.
func (s *Service) Start(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.srv != nil {
			s.mu.Unlock()
			return nil
		}
		if s.stopDone != nil {
			done := s.stopDone
			s.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		cur := s.cfg
		s.mu.Unlock()

		addr := strings.TrimSpace(cur.Addr)
		if addr == "" {
			addr = "127.0.0.1:8080"
		}
		if !cur.AllowInsecure && cur.Token == "" && !isLoopbackAddr(addr) {
			return errors.New("http: non-loopback addr requires token or allow_insecure")
		}
		if cur.AllowInsecure && cur.Token == "" && !isLoopbackAddr(addr) {
			s.log.Warn("http running without token on non-loopback addr (insecure)", logx.String("addr", addr))
		}

		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		// No WriteTimeout: event streams stay open until the client leaves.
		// Request contexts derive from base so Stop can end open streams.
		base, cancel := context.WithCancel(context.Background())
		srv := &http.Server{
			Handler:     s.Handler(cur),
			ReadTimeout: cur.ReadTimeout,
			IdleTimeout: cur.IdleTimeout,
			BaseContext: func(net.Listener) context.Context { return base },
		}

		s.mu.Lock()
		s.ln, s.srv, s.cancel = ln, srv, cancel
		s.mu.Unlock()

		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("http server stopped with error", logx.Err(err))
			}
		}()
		s.log.Info("http started", logx.String("addr", ln.Addr().String()), logx.Bool("token_set", cur.Token != ""), logx.Bool("pprof", cur.Pprof))
		return nil
	}
}

// Stop shuts the server down; open streams are cut when ctx expires.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.srv == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	srv, cancel := s.srv, s.cancel
	s.srv, s.ln, s.cancel = nil, nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	go func() {
		defer close(done)
		if err := srv.Shutdown(ctx); err != nil {
			_ = srv.Close()
		}
		s.mu.Lock()
		s.stopDone = nil
		s.mu.Unlock()
		s.log.Info("http stopped")
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Run starts the server and blocks until ctx ends. It fits a supervisor goroutine.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	s.Stop(stopCtx)
	return nil
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
