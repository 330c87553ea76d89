// Command api runs the HTTP REST server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"forgetful-backend/internal/app"
	"forgetful-backend/internal/config"
	httpapi "forgetful-backend/internal/interfaces/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	c, err := app.NewContainer(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	router := httpapi.NewRouter(httpapi.Deps{
		Config:     cfg,
		Logger:     c.Logger,
		Resolver:   c.Resolver,
		Store:      c.Repository,
		Memories:   c.Memories,
		Graph:      c.Graph,
		Entities:   c.Entities,
		Dispatcher: c.Dispatcher,
		Reembed:    c.Reembed,
		Backup:     c.Backup,
		Bus:        c.Bus,
		Metrics:    c.Metrics,
	})

	watcher, err := config.NewWatcher(cfg, c.Logger)
	if err != nil {
		return err
	}
	defer watcher.Stop()

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		c.Logger.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("backend", cfg.Storage.Backend),
			zap.Int("tools", c.Registry.Len()),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		c.Logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
