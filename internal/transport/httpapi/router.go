package httpapi

import (
	"context"
	"net/http"
	"time"

	"trialist-agent/internal/common/config"
	"trialist-agent/internal/common/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

type RouterOptions struct {
	RateLimit float64
	RateBurst int
	// Metrics defaults to the prometheus default gatherer.
	Metrics http.Handler
}

func NewRouter(h *Handler, opts RouterOptions, log logger.Logger) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestLogger(log))

	metricsHandler := opts.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	engine.GET("/healthz", h.Health)
	engine.GET("/readyz", h.Ready)
	engine.GET("/metrics", gin.WrapH(metricsHandler))

	v1 := engine.Group("/v1")
	if opts.RateLimit > 0 {
		v1.Use(NewIPRateLimiter(rate.Limit(opts.RateLimit), opts.RateBurst, log).RateLimit())
	}
	h.RegisterRoutes(v1)
	return engine
}

// Serve runs the HTTP server until ctx is cancelled, then drains in-flight
// requests.
func Serve(ctx context.Context, cfg config.ServerConfig, handler http.Handler, log logger.Logger) error {
	srv := &http.Server{
		Addr:         cfg.Address,
		Handler:      handler,
		ReadTimeout:  config.GetDuration(cfg.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.WriteTimeout),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", map[string]interface{}{"address": cfg.Address})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("http server shutting down", nil)
	return srv.Shutdown(shutdownCtx)
}
