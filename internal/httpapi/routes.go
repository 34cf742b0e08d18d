package httpapi

import (
	"errors"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"promocast/internal/publish"
	"promocast/internal/target"
	logx "promocast/pkg/logx"
)

// Handler builds the router for cfg. Exposed for tests.
func (s *Service) Handler(cfg Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())

	r.GET("/healthz", s.healthz)

	api := r.Group("/", bearer(cfg.Token))
	api.POST("/publish", s.publish)
	api.GET("/publish/stream/:sessionId", s.stream)
	api.GET("/targets", s.targets)
	api.GET("/groups", s.groups)
	api.POST("/targets/resolve", s.resolve)

	g := s.d.Gatherer
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	api.GET("/metrics", gin.WrapH(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))

	if cfg.Pprof {
		pp := api.Group("/debug/pprof")
		pp.GET("/", gin.WrapF(hpprof.Index))
		pp.GET("/cmdline", gin.WrapF(hpprof.Cmdline))
		pp.GET("/profile", gin.WrapF(hpprof.Profile))
		pp.GET("/symbol", gin.WrapF(hpprof.Symbol))
		pp.GET("/trace", gin.WrapF(hpprof.Trace))
		for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
			pp.GET("/"+name, gin.WrapH(hpprof.Handler(name)))
		}
	}
	return r
}

// bearer accepts "Authorization: Bearer <token>" or ?token=<token>.
func bearer(token string) gin.HandlerFunc {
	tok := strings.TrimSpace(token)
	return func(c *gin.Context) {
		if tok == "" {
			c.Next()
			return
		}
		got := c.Query("token")
		if got == "" {
			got = strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		}
		if got != tok {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func (s *Service) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			logx.String("method", c.Request.Method),
			logx.String("path", c.FullPath()),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("took", time.Since(start)),
		)
	}
}

func (s *Service) healthz(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if s.d.Channels != nil {
		body["channels"] = s.d.Channels.Routes()
	}
	if s.d.Runtime != nil {
		body["runtime"] = s.d.Runtime()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Service) publish(c *gin.Context) {
	var req publish.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Trigger = "http"
	res, err := s.d.Publisher.Publish(c.Request.Context(), req)
	switch {
	case errors.Is(err, publish.ErrInvalidBatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		s.log.Error("publish failed", logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		// Partial failure is a normal batch state.
		c.JSON(http.StatusOK, res)
	}
}

func (s *Service) targets(c *gin.Context) {
	if s.d.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage disabled"})
		return
	}
	ts, err := s.d.Store.GetTargets(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if ts == nil {
		ts = []target.Target{}
	}
	c.JSON(http.StatusOK, ts)
}

func (s *Service) groups(c *gin.Context) {
	if s.d.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage disabled"})
		return
	}
	gs, err := s.d.Store.GetGroups(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if gs == nil {
		gs = []target.Group{}
	}
	c.JSON(http.StatusOK, gs)
}

type resolveRequest struct {
	Targets target.Spec `json:"targets"`
	// Field selects a custom field; empty projects the base field.
	Field string `json:"field,omitempty"`
}

// resolve previews who a spec reaches without publishing.
func (s *Service) resolve(c *gin.Context) {
	if s.d.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage disabled"})
		return
	}
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	project := target.Projector[string](target.BaseField)
	if req.Field != "" {
		project = target.CustomField(req.Field)
	}
	out, err := target.ResolveFrom(c.Request.Context(), s.log, req.Targets, s.d.Store, project)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if out == nil {
		out = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"recipients": out, "count": len(out)})
}
