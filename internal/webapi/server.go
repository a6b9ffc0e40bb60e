// Package webapi exposes a session controller over HTTP: JSON intents, a
// state snapshot and a server-sent event stream of state changes.
package webapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/docchat/internal/health"
	"github.com/zulandar/docchat/internal/session"
	"go.uber.org/zap"
)

// DefaultMaxUploadBytes bounds multipart bodies accepted by POST /api/documents.
const DefaultMaxUploadBytes = 32 << 20

// Controller is the part of session.Controller the API drives.
type Controller interface {
	State() session.State
	SendAsync(ctx context.Context, query string) bool
	SubmitAsync(ctx context.Context, doc session.Document) bool
	RequestReset() bool
	ConfirmReset() bool
	CancelReset() bool
	DismissError() bool
	CancelTurn() bool
	CancelUpload() bool
	Subscribe() (<-chan session.State, func())
}

// HealthSource reports the latest backend probe.
type HealthSource interface {
	Last() (health.Status, bool)
}

// RouterOpts holds parameters for NewRouter.
type RouterOpts struct {
	Controller Controller
	Health     HealthSource // optional
	Logger     *zap.Logger

	// Context outlives individual requests and bounds the operations they
	// start. Defaults to context.Background.
	Context           context.Context
	MaxUploadBytes    int64
	HeartbeatInterval time.Duration
}

// StartOpts holds configuration for the API server.
type StartOpts struct {
	Controller     Controller
	Health         HealthSource
	Logger         *zap.Logger
	Port           int
	MaxUploadBytes int64
	Out            io.Writer
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Controller == nil {
		return fmt.Errorf("webapi: controller is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	router, err := NewRouter(RouterOpts{
		Controller:     opts.Controller,
		Health:         opts.Health,
		Logger:         opts.Logger,
		Context:        ctx,
		MaxUploadBytes: opts.MaxUploadBytes,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "docchat API listening on http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("webapi: %w", err)
	}
	return nil
}

// NewRouter builds the gin engine serving the API.
func NewRouter(opts RouterOpts) (*gin.Engine, error) {
	if opts.Controller == nil {
		return nil, fmt.Errorf("webapi: controller is required")
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 15 * time.Second
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(opts.Logger.Named("webapi")))

	h := &handlers{
		ctrl:      opts.Controller,
		health:    opts.Health,
		ctx:       opts.Context,
		maxUpload: opts.MaxUploadBytes,
		heartbeat: opts.HeartbeatInterval,
	}
	registerRoutes(router, h)
	return router, nil
}

// requestLogger logs one line per request at debug, or warn for 5xx.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("request failed", fields...)
			return
		}
		logger.Debug("request", fields...)
	}
}
