package serverapp

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"salesql/internal/config"
	"salesql/internal/logging"
	"salesql/internal/middleware"
	"salesql/internal/observability"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	askPath             = "/v1/ask"
	healthPath          = "/health"
	metricsPath         = "/metrics"
	cacheInvalidatePath = "/admin/cache/invalidate"
)

func oidcAuthConfig(cfg *config.Config) middleware.OIDCAuthConfig {
	auth := cfg.Server.Auth
	return middleware.OIDCAuthConfig{
		Enabled:   auth.OIDCEnabled,
		IssuerURL: auth.OIDCIssuerURL,
		Audience:  auth.OIDCAudience,
		ClockSkew: auth.OIDCClockSkew,
		CAFile:    auth.OIDCCAFile,
	}
}

func buildRouter(cfg *config.Config, logger *logging.Logger, db *sql.DB, pipeline *Pipeline, metrics *observability.AssistantMetrics, security *observability.SecurityMetrics, meterProvider *observability.MeterProvider) (*http.ServeMux, error) {
	oidcAuth, err := middleware.OIDCAuthMiddleware(oidcAuthConfig(cfg), logger, security)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	ask := askHandler(pipeline.Assistant, askHandlerConfig{
		maxBytes: cfg.Server.MaxRequestBytes,
		timeout:  cfg.Server.AskTimeout,
		claims: middleware.ClaimNames{
			Tables: cfg.Server.Auth.TablesClaim,
			Route:  cfg.Server.Auth.RouteClaim,
		},
		metrics:  metrics,
		security: security,
	})
	mux.Handle(askPath, oidcAuth(ask))
	mux.HandleFunc(healthPath, healthHandler(db, cfg.Server.HealthCheckTimeout))

	if cfg.Observability.MetricsEnabled && meterProvider != nil {
		mux.Handle(metricsPath, promhttp.Handler())
		logger.Info("metrics endpoint enabled", slog.String("path", metricsPath))
	}

	if cfg.Server.Admin.CacheInvalidateEnabled {
		if pipeline.Distinct == nil {
			return nil, errors.New("cache invalidation requires a database connection")
		}
		var admin http.Handler = cacheInvalidateHandler(pipeline.Distinct, metrics, security)
		if token := cfg.Server.Admin.AuthToken; token != "" {
			tokenAuth, err := middleware.AdminTokenAuthMiddleware(middleware.AdminTokenAuthConfig{
				Token:   token,
				Metrics: security,
			})
			if err != nil {
				return nil, fmt.Errorf("admin auth: %w", err)
			}
			admin = tokenAuth(admin)
		} else {
			admin = oidcAuth(admin)
		}
		mux.Handle(cacheInvalidatePath, admin)
		logger.Info("admin endpoint enabled", slog.String("path", cacheInvalidatePath))
	}

	return mux, nil
}

// wrapHTTPHandler applies the outer chain. The resulting order is
// rate limit -> CORS -> otelhttp -> logging -> route.
func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, handler http.Handler) http.Handler {
	handler = middleware.LoggingMiddleware(logger)(handler)
	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		handler = otelhttp.NewHandler(handler, "http.server",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return httpRootSpanName(r)
			}),
		)
	}
	handler = middleware.CORSMiddleware(middleware.CORSConfig{
		Enabled:          cfg.Server.CORSEnabled,
		AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
		AllowedMethods:   cfg.Server.CORSAllowedMethods,
		AllowedHeaders:   cfg.Server.CORSAllowedHeaders,
		ExposeHeaders:    cfg.Server.CORSExposeHeaders,
		AllowCredentials: cfg.Server.CORSAllowCredentials,
		MaxAge:           cfg.Server.CORSMaxAge,
	})(handler)
	handler = middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Enabled: cfg.Server.RateLimitEnabled,
		RPS:     cfg.Server.RateLimitRPS,
		Burst:   cfg.Server.RateLimitBurst,
	})(handler)
	return handler
}

// httpRootSpanName keeps span names low-cardinality: known routes by path,
// everything else collapsed.
func httpRootSpanName(r *http.Request) string {
	if r == nil {
		return "HTTP /*"
	}
	method := strings.TrimSpace(r.Method)
	if method == "" {
		method = "HTTP"
	}
	route := "/*"
	switch r.URL.Path {
	case askPath, healthPath, metricsPath, cacheInvalidatePath:
		route = r.URL.Path
	}
	return method + " " + route
}

func buildServer(cfg *config.Config, logger *logging.Logger, handler http.Handler, addr string) (*http.Server, error) {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	if cfg.Server.TLSEnabled() {
		tlsConfig, err := loadServerTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		if err != nil {
			return nil, err
		}
		srv.TLSConfig = tlsConfig
		logger.Info("TLS enabled", slog.String("cert_file", cfg.Server.TLSCertFile))
	}
	return srv, nil
}

func startServer(cfg *config.Config, logger *logging.Logger, srv *http.Server) chan error {
	serverErrors := make(chan error, 1)
	tlsEnabled := srv.TLSConfig != nil

	go func() {
		protocol := "http"
		if tlsEnabled {
			protocol = "https"
		}
		attrs := []any{
			slog.String("protocol", protocol),
			slog.String("address", srv.Addr),
			slog.String("ask_endpoint", askPath),
			slog.String("health_endpoint", healthPath),
			slog.Bool("oidc_enabled", cfg.Server.Auth.OIDCEnabled),
			slog.String("log_level", cfg.Observability.Logging.Level),
		}
		if cfg.Observability.MetricsEnabled {
			attrs = append(attrs, slog.String("metrics_endpoint", metricsPath))
		}
		if cfg.Server.RateLimitEnabled {
			attrs = append(attrs,
				slog.Float64("rate_limit_rps", cfg.Server.RateLimitRPS),
				slog.Int("rate_limit_burst", cfg.Server.RateLimitBurst),
			)
		}
		logger.Info("server starting", attrs...)

		var err error
		if tlsEnabled {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("server failed: %w", err)
		}
	}()
	return serverErrors
}
