// Package server wires every collaborator — config, store, stats, mirror
// registry, blacklist, cache engine, router, tunnel, background loop, admin
// API, health, and version — into one process, in the shape of the
// teacher's cli/daemon.go Server/NewServer/Start/shutdown.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	logger "github.com/soulteary/logger-kit"
	metricskit "github.com/soulteary/metrics-kit"
	middlewarekit "github.com/soulteary/middleware-kit"

	"github.com/distrocache/distrocache/internal/api"
	"github.com/distrocache/distrocache/internal/background"
	"github.com/distrocache/distrocache/internal/blacklist"
	"github.com/distrocache/distrocache/internal/cacheengine"
	"github.com/distrocache/distrocache/internal/config"
	"github.com/distrocache/distrocache/internal/health"
	"github.com/distrocache/distrocache/internal/metrics"
	"github.com/distrocache/distrocache/internal/mirrors"
	"github.com/distrocache/distrocache/internal/router"
	"github.com/distrocache/distrocache/internal/stats"
	"github.com/distrocache/distrocache/internal/store"
	"github.com/distrocache/distrocache/internal/tunnel"
	"github.com/distrocache/distrocache/internal/version"
	"github.com/distrocache/distrocache/pkg/httplog"
)

// Server is the running process: every collaborator plus the net/http
// server accepting connections.
type Server struct {
	config *config.Config
	log    *logger.Logger

	store      *store.Store
	configSt   *config.Store
	stats      *stats.Stats
	mirrors    *mirrors.Registry
	blacklist  *blacklist.List
	cache      *cacheengine.Engine
	router     *router.Router
	tunnel     *tunnel.Tunnel
	background *background.Loop
	metrics    *metrics.Recorder
	registry   *metricskit.Registry
	health     *health.Checker

	httpServer *http.Server
}

// New constructs a Server from a loaded configuration, wiring every
// collaborator in dependency order.
func New(cfg *config.Config) (*Server, error) {
	log := logger.Default()

	st, err := store.Open(cfg.DatabasePath, log)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	configStore := config.NewStore(cfg.ConfigFilePath, cfg)

	registry := metricskit.NewRegistry("distrocache")
	rec := metrics.New(registry)

	stt := stats.New(st, log)

	reg, err := mirrors.New(st, cfg.Host, log)
	if err != nil {
		return nil, fmt.Errorf("initializing mirror registry: %w", err)
	}

	bl := blacklist.New(st)

	cache := cacheengine.New(cfg.StoragePathResolved, cfg.Cache.Days, cfg.Cache.RetentionEnabled, bl, stt, log, rec)

	tun := tunnel.New(stt, log, rec)

	rt := router.New(reg, cache, stt, tun, cfg.PassthroughMode, log, rec)

	bg := background.New(stt, cache, cfg.StoragePathResolved, log, rec)

	hc := health.New(cfg.StoragePathResolved)

	s := &Server{
		config:     cfg,
		log:        log,
		store:      st,
		configSt:   configStore,
		stats:      stt,
		mirrors:    reg,
		blacklist:  bl,
		cache:      cache,
		router:     rt,
		tunnel:     tun,
		background: bg,
		metrics:    rec,
		registry:   registry,
		health:     hc,
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.buildHandler(),
		ReadHeaderTimeout: 50 * time.Second,
		ReadTimeout:       50 * time.Second,
		WriteTimeout:      100 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s, nil
}

// buildHandler assembles the top-level dispatcher: exact path-prefix
// routes for health/stats/version/cache operations, admin routes behind
// the auth/rate-limit/logging chain, everything else falling through to
// the request router.
func (s *Server) buildHandler() http.Handler {
	mux := http.NewServeMux()

	cacheHandler := api.NewCacheHandler(s.cache, s.stats)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		api.WriteJSON(w, http.StatusOK, s.health.Check())
	})
	mux.HandleFunc("/stats", cacheHandler.StatsResponse)
	mux.HandleFunc("/api/stats", cacheHandler.StatsResponse)
	mux.HandleFunc("/api/version", func(w http.ResponseWriter, r *http.Request) {
		api.WriteJSON(w, http.StatusOK, version.Current())
	})
	mux.HandleFunc("/api/cache/search", cacheHandler.Search)
	mux.HandleFunc("/api/cache/download", cacheHandler.Download)
	mux.HandleFunc("/cleanup", cacheHandler.Cleanup)
	mux.HandleFunc("/reload", s.handleReload)
	mux.HandleFunc("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/acng-report.html", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	adminChain := s.adminChain()

	mux.Handle("/api/admin/config", adminChain.Then(api.NewConfigHandler(s.configSt)))
	mux.Handle("/api/admin/mirrors", adminChain.Then(api.NewMirrorsHandler(s.mirrors)))
	mux.Handle("/api/admin/mirrors/", adminChain.Then(api.NewMirrorsHandler(s.mirrors)))
	mux.Handle("/api/admin/blacklist", adminChain.Then(api.NewBlacklistHandler(s.blacklist)))
	mux.Handle("/api/admin/cache", adminChain.Then(http.HandlerFunc(cacheHandler.Delete)))
	mux.Handle("/api/admin/metrics", adminChain.Then(s.registry.Handler()))

	mux.Handle("/", s.router)

	return httplog.NewResponseLogger(mux, s.log)
}

// adminChain builds the auth → rate-limit declarative middleware chain,
// replacing hand-rolled .Wrap()/.WrapFunc() nesting with middleware-kit.
func (s *Server) adminChain() *middlewarekit.Chain {
	auth := api.NewAuthMiddleware(api.AuthConfig{
		APIKey:  s.config.AdminToken,
		Logger:  s.log,
		Metrics: s.metrics,
	})
	rateLimit := api.NewRateLimitMiddleware(s.config.Security.RateLimitPerMinute, s.log)

	return middlewarekit.New(auth.Wrap, rateLimit.Wrap)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	s.mirrors.LoadFromStore()
	s.blacklist.LoadFromStore()
	if err := s.configSt.Reload(); err != nil {
		api.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]bool{"reloaded": true})
}

// Start runs the HTTP server and background maintenance loop until a
// shutdown signal arrives, then drains both gracefully.
func (s *Server) Start() error {
	s.log.Info().Str("version", version.Current().Version).Msg("starting distrocache")
	s.log.Info().Str("listen", s.config.Listen).Msg("listening")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	go s.background.Run(bgCtx)

	serverErr := make(chan error, 1)
	go func() {
		var err error
		if s.config.TLS.Enabled {
			err = s.httpServer.ListenAndServeTLS(s.config.TLS.CertFile, s.config.TLS.KeyFile)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.shutdown(bgCancel)
	}
}

func (s *Server) shutdown(bgCancel context.CancelFunc) error {
	s.log.Info().Msg("shutting down")
	bgCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}
	if err := s.stats.Flush(); err != nil {
		s.log.Warn().Err(err).Msg("final stats flush failed")
	}

	s.log.Info().Msg("shutdown complete")
	return nil
}
