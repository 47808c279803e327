package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	chiTransport "github.com/kailas-cloud/docqa/internal/transport/chi"
	"github.com/kailas-cloud/docqa/internal/version"
	"github.com/kailas-cloud/docqa/internal/watch"
)

func (c *cli) runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger := c.cfg, c.logger
	logger.Info("Starting docqa API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", c.env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("corpus", cfg.Corpus.Dir),
		zap.String("index", cfg.Index.Dir),
	)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	rebuildTimeout := time.Duration(cfg.Index.RebuildTimeout) * time.Second
	server := chiTransport.NewServer(a.query, a.indexer, a.retriever, a.health, cfg.Corpus.Dir, rebuildTimeout, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      chiTransport.NewRouter(server, cfg.Auth.AdminKeys, logger),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error during shutdown", zap.Error(err))
		}
		return nil
	})

	// startup build runs beside the server; /api/status reports "indexing" meanwhile
	g.Go(func() error {
		ctx, cancel := context.WithTimeout(gctx, rebuildTimeout)
		defer cancel()
		if _, built, err := a.indexer.Bootstrap(ctx, cfg.Corpus.Dir, cfg.Index.RebuildOnStart); err != nil {
			logger.Error("Startup rebuild failed", zap.Error(err))
		} else if built {
			logger.Info("Startup rebuild finished")
		}
		return nil
	})

	if cfg.Watch.Enabled {
		w := watch.New(cfg.Corpus.Dir, a.indexer, time.Duration(cfg.Watch.DebounceMs)*time.Millisecond,
			cfg.Corpus.Extensions, logger)
		g.Go(func() error {
			if err := w.Run(gctx); err != nil {
				// the API keeps serving without live reindexing
				logger.Warn("Corpus watcher stopped", zap.Error(err))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}
