// Package admin serves the relay's HTTP health, roster and metrics endpoints.
package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/omochice/relay-chat/internal/observability"
)

const shutdownTimeout = 5 * time.Second

// PeerLister reports the names currently signed in.
type PeerLister interface {
	Names() []string
}

// NewRouter builds the admin routes over peers.
func NewRouter(peers PeerLister, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/peers", func(c *gin.Context) {
		names := peers.Names()
		c.JSON(http.StatusOK, gin.H{
			"count": len(names),
			"names": names,
		})
	})

	r.GET("/metrics", gin.WrapH(observability.Handler()))
	return r
}

// Serve listens on addr until ctx is done, then shuts the server down.
func Serve(ctx context.Context, addr string, handler http.Handler, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("admin listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		event := logger.Debug()
		if status >= 500 {
			event = logger.Error()
		} else if status >= 400 {
			event = logger.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("http_request")
	}
}
