package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/nexus/internal/auth"
	"github.com/loykin/nexus/internal/metrics"
	"github.com/loykin/nexus/internal/supervisor"
	tlsconf "github.com/loykin/nexus/internal/tls"
)

// SnapshotSource is satisfied by *supervisor.Supervisor.
type SnapshotSource interface {
	Snapshot() supervisor.Snapshot
}

// Router exposes the fleet state read-only.
// Endpoints:
//
//	GET {basePath}/status    query: name=<instance> or worker=<worker> (both optional)
//	GET {basePath}/healthz   200 while at least one instance runs, 503 otherwise
//	GET {basePath}/metrics   Prometheus exposition
//
// basePath may be empty or start with '/'; no trailing slash. When a token
// middleware is set, /status and /metrics require it; /healthz stays open
// for load balancer probes.
type Router struct {
	src      SnapshotSource
	basePath string
	metrics  http.Handler
	auth     *auth.Middleware
}

// NewRouter constructs a Router. A nil metricsHandler serves the default
// Prometheus registry.
func NewRouter(src SnapshotSource, basePath string, metricsHandler http.Handler) *Router {
	if metricsHandler == nil {
		metricsHandler = metrics.Handler()
	}
	return &Router{src: src, basePath: sanitizeBase(basePath), metrics: metricsHandler}
}

// WithAuth protects the status and metrics endpoints.
func (r *Router) WithAuth(m *auth.Middleware) *Router {
	r.auth = m
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/healthz", r.handleHealth)
	guarded := group.Group("")
	if r.auth != nil {
		guarded.Use(r.auth.GinAuth())
	}
	guarded.GET("/status", r.handleStatus)
	guarded.GET("/metrics", gin.WrapH(r.metrics))
	return g
}

// Config configures the standalone status server.
type Config struct {
	Listen   string         `mapstructure:"listen"`
	BasePath string         `mapstructure:"base_path"`
	Auth     auth.Config    `mapstructure:"auth"`
	TLS      tlsconf.Config `mapstructure:"tls"`
}

// Server runs the router on its own listener.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger *slog.Logger
	secure bool
}

// NewServer listens on c.Listen and serves the router in the background,
// over HTTPS when c.TLS is enabled.
func NewServer(c Config, src SnapshotSource, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tlsCfg, err := tlsconf.Setup(c.TLS)
	if err != nil {
		return nil, err
	}
	mw, err := auth.NewMiddleware(c.Auth)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", c.Listen)
	if err != nil {
		return nil, err
	}
	s := &Server{
		srv: &http.Server{
			Handler:           NewRouter(src, c.BasePath, nil).WithAuth(mw).Handler(),
			TLSConfig:         tlsCfg,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		ln:     ln,
		logger: logger,
		secure: tlsCfg != nil,
	}
	go func() {
		var err error
		if s.secure {
			// certificates come from TLSConfig.GetCertificate
			err = s.srv.ServeTLS(ln, "", "")
		} else {
			err = s.srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server stopped", "addr", ln.Addr().String(), "error", err)
		}
	}()
	logger.Info("status server listening", "addr", ln.Addr().String(), "tls", s.secure, "auth", c.Auth.Enabled())
	return s, nil
}

// URL is the base URL clients should use.
func (s *Server) URL() string {
	scheme := "http"
	if s.secure {
		scheme = "https"
	}
	return scheme + "://" + s.Addr()
}

// Addr is the bound address, useful with ":0".
func (s *Server) Addr() string { return s.ln.Addr().String() }

func (s *Server) Shutdown(ctx context.Context) error { return s.srv.Shutdown(ctx) }

type errorResp struct {
	Error string `json:"error"`
}

type healthResp struct {
	Status  string `json:"status"`
	Running int    `json:"running"`
	Total   int    `json:"total"`
}

func (r *Router) handleStatus(c *gin.Context) {
	name := c.Query("name")
	wk := c.Query("worker")
	if name != "" && wk != "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "only one of name, worker must be provided"})
		return
	}
	for _, v := range []string{name, wk} {
		if v != "" && !isSafeName(v) {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid name: allowed [A-Za-z0-9._-] and no '..'"})
			return
		}
	}

	snap := r.src.Snapshot()
	if name != "" {
		for _, st := range snap.Instances {
			if st.Name == name {
				writeJSON(c, http.StatusOK, st)
				return
			}
		}
		writeJSON(c, http.StatusNotFound, errorResp{Error: "instance not found: " + name})
		return
	}
	if wk != "" {
		filtered := snap.Instances[:0:0]
		for _, st := range snap.Instances {
			if st.Worker == wk {
				filtered = append(filtered, st)
			}
		}
		if len(filtered) == 0 {
			writeJSON(c, http.StatusNotFound, errorResp{Error: "worker not found: " + wk})
			return
		}
		snap.Instances = filtered
	}
	writeJSON(c, http.StatusOK, snap)
}

func (r *Router) handleHealth(c *gin.Context) {
	snap := r.src.Snapshot()
	resp := healthResp{Status: "ok", Total: len(snap.Instances)}
	for _, st := range snap.Instances {
		if st.Running {
			resp.Running++
		}
	}
	code := http.StatusOK
	if resp.Running == 0 {
		resp.Status = "down"
		code = http.StatusServiceUnavailable
	} else if resp.Running < resp.Total {
		resp.Status = "degraded"
	}
	writeJSON(c, code, resp)
}
