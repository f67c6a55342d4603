// Command artemis-relay is the public half of remote access. Assistants
// dial in on /agent; clients reach one by sending X-Server-ID.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"artemis/internal/remote"
	"artemis/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
)

func main() {
	addr := pflag.String("addr", ":5069", "listen address")
	timeout := pflag.Duration("timeout", 10*time.Second, "how long to wait for an agent to answer")
	logLevel := pflag.String("log-level", "info", "log level (debug, info, warn, error)")
	pflag.Parse()

	logger := utils.NewLogger(*logLevel)
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	remote.NewRelay(*timeout, logger).Register(router)

	srv := &http.Server{Addr: *addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	logger.Info("Relay listening", "addr", *addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Relay stopped", "error", err)
		os.Exit(1)
	}
}
