// Package api serves the AlphaSeeker JSON API and the bundled web client.
package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"alphaseeker/internal/analysis"
	"alphaseeker/internal/logger"
	"alphaseeker/internal/metrics"
	"alphaseeker/internal/store/ledger"
	"alphaseeker/internal/store/tracelog"

	"github.com/gin-gonic/gin"
)

const Version = "3.4"

// Analyzer runs the model-backed workflows.
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.AnalyzeRequest) (map[string]any, error)
	Challenge(ctx context.Context, req analysis.ChallengeRequest) (map[string]any, error)
	React(ctx context.Context, req analysis.ReactRequest) (map[string]any, error)
}

// History is the ledger as seen by the API.
type History interface {
	analysis.Ledger
	Load(ctx context.Context, ticker string) ([]ledger.Record, error)
	Latest(ctx context.Context, ticker string) (ledger.Record, bool, error)
	Tickers(ctx context.Context) ([]string, error)
}

type TraceReader interface {
	Recent(ctx context.Context, limit int) ([]tracelog.TraceModel, error)
}

type ServerConfig struct {
	Addr        string
	StaticDir   string
	CORSOrigins []string
	MetricsPath string

	Engine  Analyzer
	History History
	Traces  TraceReader
	Metrics *metrics.Registry
}

type Server struct {
	addr   string
	router *gin.Engine
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Engine == nil || cfg.History == nil {
		return nil, errors.New("api server requires engine and history")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":12123"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestID(), requestLogger(cfg.Metrics), corsMiddleware(cfg.CORSOrigins))

	h := &handlers{engine: cfg.Engine, history: cfg.History, traces: cfg.Traces}
	h.register(router.Group("/api"))

	if cfg.Metrics != nil && strings.TrimSpace(cfg.MetricsPath) != "" {
		router.GET(cfg.MetricsPath, gin.WrapH(cfg.Metrics.Handler()))
	}
	serveStatic(router, cfg.StaticDir)
	return &Server{addr: cfg.Addr, router: router}, nil
}

// serveStatic mounts dir at / for every path the API does not claim.
func serveStatic(router *gin.Engine, dir string) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return
	}
	stat, err := os.Stat(dir)
	if err != nil || !stat.IsDir() {
		logger.Infof("[http] static dir %q not found, web client disabled", dir)
		return
	}
	files := http.FileServer(http.Dir(dir))
	router.NoRoute(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Not Found"})
			return
		}
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Not Found"})
			return
		}
		files.ServeHTTP(c.Writer, c.Request)
	})
}

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("[http] listening on %s", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
