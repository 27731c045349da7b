package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	internalApp "github.com/felixgeelhaar/schedcache/internal/app"
	"github.com/felixgeelhaar/schedcache/pkg/observability"
)

const (
	outboxCleanupSpec = "@every 1h"
	requestIDHeader   = "X-Request-ID"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the cache with its outbox relay, lookup consumer and health endpoint",
	Long: `Run until interrupted:

  - relays committed lookup changes from the outbox to the event bus
  - consumes lookup changes from RabbitMQ when configured
  - clears the cache on CACHE_CLEAR_CRON when set
  - serves /healthz, /readyz and /metrics on HEALTH_ADDR`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil {
			return fmt.Errorf("app not initialized")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		addr := serveAddr
		if addr == "" {
			addr = app.Container.Config.HealthAddr
		}
		return serve(ctx, app.Container, addr)
	},
}

func serve(ctx context.Context, c *internalApp.Container, addr string) error {
	log := Logger()

	c.OutboxProcessor.Start(ctx)
	defer c.OutboxProcessor.Stop()

	if c.EventConsumer != nil {
		go func() {
			if err := c.EventConsumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("lookup consumer stopped", "error", err)
			}
		}()
	}

	scheduler, err := newScheduler(ctx, c)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	srv := &http.Server{
		Addr:              addr,
		Handler:           withRequestID(healthMux(c)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("health server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("health server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("health server shutdown error", "error", err)
	}
	return nil
}

func newScheduler(ctx context.Context, c *internalApp.Container) (*cron.Cron, error) {
	log := Logger()
	loc, err := c.Config.Location()
	if err != nil {
		return nil, err
	}
	scheduler := cron.New(cron.WithLocation(loc))

	if spec := c.Config.CacheClearCron; spec != "" {
		if _, err := scheduler.AddFunc(spec, func() {
			before := c.Cache.Stats()
			c.Cache.Clear()
			log.Info("scheduled cache clear", "buckets", before.Buckets)
		}); err != nil {
			return nil, fmt.Errorf("invalid CACHE_CLEAR_CRON %q: %w", spec, err)
		}
	}

	if _, err := scheduler.AddFunc(outboxCleanupSpec, func() {
		deleted, err := c.OutboxProcessor.Cleanup(ctx)
		if err != nil {
			log.Error("outbox cleanup failed", "error", err)
			return
		}
		if deleted > 0 {
			log.Info("outbox cleanup completed", "deleted", deleted)
		}
	}); err != nil {
		return nil, err
	}
	return scheduler, nil
}

func healthMux(c *internalApp.Container) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		health := c.Health.GetOverallHealth(checkCtx)
		body, err := health.ToJSON()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if health.Status == observability.HealthStatusUnhealthy {
			Logger().WarnContext(r.Context(), "health check failing", "checks", health.Failing())
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_, _ = w.Write(body)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := c.DBConn.Ping(checkCtx); err != nil {
			http.Error(w, "not ready: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ready"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{}))
	return mux
}

// withRequestID tags each request context with X-Request-ID, or a fresh
// ID, and echoes it back.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := observability.WithRequestID(r.Context(), r.Header.Get(requestIDHeader))
		w.Header().Set(requestIDHeader, observability.RequestIDFromContext(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "health and metrics listen address (default HEALTH_ADDR)")
	rootCmd.AddCommand(serveCmd)
}
