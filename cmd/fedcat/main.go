package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/fedcat/internal/config"
	"github.com/kailas-cloud/fedcat/internal/domain/result"
	"github.com/kailas-cloud/fedcat/internal/executor"
	logpkg "github.com/kailas-cloud/fedcat/internal/logger"
	"github.com/kailas-cloud/fedcat/internal/metrics"
	"github.com/kailas-cloud/fedcat/internal/plugin/access"
	"github.com/kailas-cloud/fedcat/internal/plugin/audit"
	"github.com/kailas-cloud/fedcat/internal/plugin/redact"
	"github.com/kailas-cloud/fedcat/internal/plugin/timeout"
	chiTransport "github.com/kailas-cloud/fedcat/internal/transport/chi"
	cataloguc "github.com/kailas-cloud/fedcat/internal/usecase/catalog"
	"github.com/kailas-cloud/fedcat/internal/usecase/federation"
	healthuc "github.com/kailas-cloud/fedcat/internal/usecase/health"
	"github.com/kailas-cloud/fedcat/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting fedcat server",
		zap.String("build", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Int("sources", len(cfg.Sources)),
		zap.Int("pool_size", cfg.Federation.PoolSize),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterFederationMetrics()
	metrics.RegisterHTTPMetrics()

	// The host owns the worker pool; the federation service only submits to it.
	pool, err := executor.NewPool(cfg.Federation.PoolSize, logger)
	if err != nil {
		logger.Fatal("Failed to create worker pool", zap.Error(err))
	}
	defer func() {
		if err := pool.Release(time.Duration(cfg.HTTP.ShutdownSec) * time.Second); err != nil {
			logger.Warn("Worker pool did not drain", zap.Error(err))
		}
	}()
	metrics.RegisterPoolMetrics(pool)

	fedSvc := federation.New(pool, logger).
		WithDefaultTimeout(cfg.Federation.DefaultTimeout()).
		WithMergePolicy(mergePolicy(cfg.Federation.MergePolicy))
	if err := fedSvc.SetMaxStartIndex(cfg.Federation.MaxStartIndex); err != nil {
		logger.Fatal("Invalid federation config", zap.Error(err))
	}
	wirePlugins(fedSvc, cfg.Plugins, logger)

	// Build sources
	ctx := context.Background()
	catalog := cataloguc.New(fedSvc, logger)
	pingers := make(map[string]healthuc.SourcePinger, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		b, err := buildSource(ctx, sc, logger)
		if err != nil {
			logger.Fatal("Failed to create source", zap.String("source_id", sc.ID), zap.Error(err))
		}
		if b.closer != nil {
			defer func() { _ = b.closer.Close() }()
		}
		if b.pinger != nil {
			pingers[sc.ID] = b.pinger
		}
		if err := catalog.Register(cataloguc.Entry{
			Source: b.source,
			Kind:   sc.Kind,
			Remote: b.remote,
			Groups: cfg.Plugins.Access.Required[sc.ID],
		}); err != nil {
			logger.Fatal("Failed to register source", zap.String("source_id", sc.ID), zap.Error(err))
		}
		logger.Info("Source registered",
			zap.String("source_id", sc.ID),
			zap.String("kind", sc.Kind),
			zap.Bool("remote", b.remote),
		)
	}

	healthSvc := healthuc.New(pool, pingers)

	// Create chi server
	server := chiTransport.NewServer(catalog, healthSvc, chiTransport.Paging{
		DefaultPageSize: cfg.Federation.DefaultPageSize,
		MaxPageSize:     cfg.Federation.MaxPageSize,
	}, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(apiCallers(cfg.Auth)))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      gzhttp.GzipHandler(r),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// mergePolicy maps the configured name to a policy for unsorted queries.
func mergePolicy(name string) federation.MergePolicy {
	switch name {
	case config.MergeRelevance:
		return federation.OrderedBy(result.ByRelevance)
	case config.MergeFusion:
		return federation.RankFusion{K: federation.DefaultFusionK}
	default:
		return federation.ArrivalOrder{}
	}
}

// wirePlugins installs the configured plugins. Pre-query order: access before
// timeout so denied queries never touch timeouts. Post-query: redact, then audit.
func wirePlugins(svc *federation.Service, cfg config.PluginsConfig, logger *zap.Logger) {
	if len(cfg.Access.Required) > 0 {
		svc.WithPreQuery(access.New(cfg.Access.Required, logger))
	}
	if cfg.Timeout.Enabled() {
		svc.WithPreQuery(timeout.New(cfg.Timeout.Max(), cfg.Timeout.PerSource()))
	}
	if len(cfg.Redact.Attributes) > 0 {
		svc.WithPostQuery(redact.New(cfg.Redact.Attributes, cfg.Redact.ExemptGroups))
	}
	if cfg.Audit.Enabled {
		svc.WithPostQuery(audit.New(logger))
	}
}

// apiCallers maps every configured API key to the identity it stands for.
func apiCallers(auth config.AuthConfig) map[string]chiTransport.Caller {
	out := make(map[string]chiTransport.Caller, len(auth.APIKeys)+len(auth.Callers))
	for _, k := range auth.APIKeys {
		out[k] = chiTransport.Caller{}
	}
	for _, c := range auth.Callers {
		out[c.APIKey] = chiTransport.Caller{Subject: c.Subject, Groups: c.Groups}
	}
	return out
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
