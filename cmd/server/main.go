// Command server runs the codebox execution runtime: persistent bash
// terminal sessions, Python cell execution and file operations behind
// an HTTP action API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/codebox-sh/codebox/internal/infrastructure/config"
	"github.com/codebox-sh/codebox/internal/infrastructure/logging"
	"github.com/codebox-sh/codebox/internal/server"
)

func main() {
	var (
		port    = flag.String("port", "", "listen port (overrides PORT)")
		workDir = flag.String("work-dir", "", "workspace directory (overrides WORK_DIR)")
		dev     = flag.Bool("dev", false, "development logging")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *workDir != "" {
		cfg.Workspace.WorkDir = *workDir
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	log, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}

	srv := server.New(cfg, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutting down", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error("shutdown error", zap.Error(err))
			os.Exit(1)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", zap.Error(err))
			srv.Close()
			os.Exit(1)
		}
	}
}
