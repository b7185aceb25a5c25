package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/arashthr/memex/internal/auth"
	"github.com/arashthr/memex/internal/auth/context/loggercontext"
	"github.com/arashthr/memex/internal/cache"
	"github.com/arashthr/memex/internal/config"
	"github.com/arashthr/memex/internal/db"
	"github.com/arashthr/memex/internal/logging"
	"github.com/arashthr/memex/internal/metrics"
	"github.com/arashthr/memex/internal/models"
	"github.com/arashthr/memex/internal/ratelimit"
	"github.com/arashthr/memex/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	cfg, err := config.LoadEnvConfig()
	if err != nil {
		panic(err)
	}

	logging.Init(cfg.Logging)
	defer logging.Sync()

	err = run(cfg)
	if err != nil {
		logging.Logger.Fatalw("server stopped", "error", err)
	}
}

func run(cfg *config.AppConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	store, err := db.OpenStore(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer store.Close()

	// Cache
	lastModified, closeCache := cache.OpenLastModified(ctx, cfg.Redis, cache.DefaultConnectOptions)
	defer closeCache()

	// Services
	loginModel := &models.LoginModel{
		DB:      store.DB,
		Dialect: store.Dialect,
	}
	bookmarkModel := &models.BookmarkModel{
		DB:      store.DB,
		Dialect: store.Dialect,
		Changes: lastModified,
	}

	// Middlewares
	limiter := ratelimit.NewFailureLimiter(cfg.Auth.MaxFailures, cfg.Auth.FailureWindow)
	defer limiter.Stop()
	bmw := auth.BasicMiddleware{
		Auth: auth.BasicAuth{
			Realm:    cfg.Auth.Realm,
			Resolver: loginModel,
		},
		Profiles:       loginModel,
		Limiter:        limiter,
		TrustedProxies: cfg.Auth.TrustedProxies,
	}

	// Controllers
	delAPI := &service.DelAPI{
		BookmarkModel: bookmarkModel,
		LastModified:  lastModified,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/ping", healthCheck)
	if cfg.Metrics.Enabled {
		r.Handle("/metrics", metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(LoggerMiddleware)
		r.Route("/v1", delAPI.Routes(bmw))
		r.Route("/api/v1", delAPI.Routes(bmw))
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not found", http.StatusNotFound)
	})

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logging.Logger.Infow("starting server", "address", cfg.Server.Address, "store", store.Dialect.String())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logging.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("pong"))
}

// LoggerMiddleware puts a request scoped logger into the context and logs
// every request once it completes.
func LoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t1 := time.Now()
		ctx := r.Context()
		reqLogger := logging.Logger.With(
			"req_path", r.URL.Path,
			"req_method", r.Method,
			"request_id", middleware.GetReqID(ctx),
		)
		ctx = loggercontext.WithLogger(ctx, reqLogger)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			reqLogger.Debugw("http request", "from", r.RemoteAddr, "status", ww.Status(), "size", ww.BytesWritten(), "duration", time.Since(t1))
		}()

		next.ServeHTTP(ww, r.WithContext(ctx))
	})
}
