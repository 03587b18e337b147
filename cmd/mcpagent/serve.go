package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/callbacks"
	"github.com/effective-security/xlog"
)

// ServeCmd starts the HTTP server
type ServeCmd struct {
	Host            string        `long:"host" description:"listen host, overrides the configuration"`
	Port            int           `short:"p" long:"port" description:"listen port, overrides the configuration"`
	ShutdownTimeout time.Duration `long:"shutdown-timeout" description:"time to complete the requests in flight" default:"10s"`

	root *Options
}

// Execute implements flags.Commander
func (c *ServeCmd) Execute(_ []string) error {
	cfg, err := c.root.loadConfig()
	if err != nil {
		return err
	}
	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port > 0 {
		cfg.Server.Port = c.Port
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, release, err := c.root.newAgent(cfg, callbacks.NewPackageLogger(logger))
	if err != nil {
		return err
	}
	defer release()

	if err = a.Initialize(ctx); err != nil {
		return err
	}

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           newServer(a),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.KV(xlog.INFO, "status", "listening", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err = <-errCh:
		return errors.Wrap(err, "server failed")
	case <-ctx.Done():
	}

	logger.KV(xlog.INFO, "status", "stopping", "address", addr)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
