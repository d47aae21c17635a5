// Package server exposes the execution runtime over HTTP: action
// dispatch, session lifecycle, plugin management, file preview and
// health endpoints.
package server

import (
	"context"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/codebox-sh/codebox/internal/bash"
	"github.com/codebox-sh/codebox/internal/infrastructure/config"
	"github.com/codebox-sh/codebox/internal/infrastructure/logging"
	"github.com/codebox-sh/codebox/internal/infrastructure/monitoring"
	"github.com/codebox-sh/codebox/internal/providers/files"
	"github.com/codebox-sh/codebox/internal/providers/jupyter"
	"github.com/codebox-sh/codebox/internal/providers/system"
)

// Version is the runtime version reported by the root endpoint.
const Version = "1.0.0"

// Server wires the execution core, the providers and the HTTP surface.
type Server struct {
	cfg     *config.Config
	log     *logging.Logger
	metrics *monitoring.Metrics

	sessions *bash.Manager
	jupyter  *jupyter.Plugin
	files    *files.Provider
	system   *system.Provider

	engine    *gin.Engine
	http      *http.Server
	startTime time.Time
	touchedAt atomic.Int64 // unix nanos of the last request
}

// New builds a fully wired server. Nothing listens until Run.
func New(cfg *config.Config, log *logging.Logger) *Server {
	if log == nil {
		log = logging.NewNop()
	}

	metrics := monitoring.NewMetrics()
	sessions := bash.NewManager(bash.Options{
		WorkDir:        cfg.Workspace.WorkDir,
		SoftTimeout:    cfg.Bash.SoftTimeout(),
		PollInterval:   cfg.Bash.PollInterval(),
		MaxOutputBytes: cfg.Bash.MaxOutputBytes,
		HistorySize:    cfg.Bash.HistorySize,
		InitTimeout:    cfg.Bash.InitTimeout(),
	}, log).WithMetrics(metrics)

	s := &Server{
		cfg:       cfg,
		log:       log,
		metrics:   metrics,
		sessions:  sessions,
		jupyter:   jupyter.NewPlugin(cfg.Jupyter, cfg.Workspace.WorkDir, log),
		system:    system.NewProvider(),
		startTime: time.Now(),
	}
	s.touchedAt.Store(time.Now().UnixNano())

	// File actions resolve relative paths against the default session's
	// live working directory so file ops and shell commands agree on
	// where "here" is.
	s.files = files.NewProvider(func() string {
		if sess, ok := sessions.Get(bash.DefaultSessionID); ok {
			return sess.Cwd()
		}
		return cfg.Workspace.WorkDir
	}, log)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestID())
	engine.Use(monitoring.Middleware(metrics))
	engine.Use(corsMiddleware())
	if cfg.RateLimit.Enabled {
		engine.Use(newRateLimiter(cfg.RateLimit).middleware())
	}
	engine.Use(s.touch())

	s.engine = engine
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/", s.handleRoot)
	s.engine.GET("/alive", s.handleAlive)
	s.engine.GET("/server_info", s.handleServerInfo)
	s.engine.GET("/system/stats", s.handleSystemStats)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.engine.POST("/execute_action", s.handleExecuteAction)
	s.engine.POST("/reset", s.handleReset)

	s.engine.GET("/view-file", s.handleViewFile)

	s.engine.GET("/plugins", s.handlePlugins)
	s.engine.POST("/plugins/:name/initialize", s.handleInitializePlugin)
}

// touch records request arrival time for the idle_time report.
func (s *Server) touch() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.touchedAt.Store(time.Now().UnixNano())
		c.Next()
	}
}

func (s *Server) lastActivity() time.Time {
	return time.Unix(0, s.touchedAt.Load())
}

// Run starts background plugin initialization and serves HTTP until
// the listener fails or Shutdown is called.
func (s *Server) Run() error {
	if s.cfg.Jupyter.Enabled {
		go func() {
			if err := s.jupyter.Initialize(context.Background()); err != nil {
				s.log.Error("jupyter auto-initialization failed", zap.Error(err))
			}
		}()
	}

	addr := net.JoinHostPort(s.cfg.Server.Host, s.cfg.Server.Port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info("runtime listening",
		zap.String("addr", addr),
		zap.String("work_dir", s.cfg.Workspace.WorkDir),
		zap.Bool("jupyter", s.cfg.Jupyter.Enabled),
	)
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests and then releases everything the
// runtime owns: terminal processes, the Jupyter server, the logger.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.http != nil {
		err = s.http.Shutdown(ctx)
	}
	s.Close()
	return err
}

// Close releases owned resources without waiting for the listener.
func (s *Server) Close() {
	s.jupyter.Close()
	s.sessions.ShutdownAll()
	_ = s.log.Sync()
}
