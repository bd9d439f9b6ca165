package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hkinc45/dev-kitchen-onboarding/auth"
	"github.com/hkinc45/dev-kitchen-onboarding/server"
	"github.com/hkinc45/dev-kitchen-onboarding/store"
	"github.com/hkinc45/dev-kitchen-onboarding/worker"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		idleTimeout   time.Duration
		opTimeout     time.Duration
		shutdownGrace time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve onboarding intents over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, root, idleTimeout, opTimeout, shutdownGrace)
		},
	}
	cmd.Flags().DurationVar(&idleTimeout, "idle-timeout", 30*time.Minute, "Drop visitor sessions idle for longer than this")
	cmd.Flags().DurationVar(&opTimeout, "op-timeout", time.Minute, "Upper bound for a single intent")
	cmd.Flags().DurationVar(&shutdownGrace, "shutdown-grace", 15*time.Second, "Time allowed for in-flight requests on shutdown")
	return cmd
}

func serve(ctx context.Context, root *rootOptions, idleTimeout, opTimeout, shutdownGrace time.Duration) error {
	cfg, logger := root.cfg, root.logger

	eng, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}
	if err := eng.connectNATS(); err != nil {
		return err
	}
	defer eng.close()

	if cfg.Store.DatabaseURL != "" {
		pool, err := store.Connect(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		st := store.New(pool)
		if err := st.EnsureSchema(ctx); err != nil {
			return err
		}
		eng.recorder = st
		logger.Info("Recording onboarding decisions")
	}

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithCookieName(cfg.Server.SessionCookie),
		server.WithPool(worker.NewPool(worker.Config{
			MaxConcurrent: int64(cfg.Server.MaxConcurrent),
			Timeout:       opTimeout,
			Logger:        logger,
		})),
	}
	if cfg.Auth.Issuer != "" {
		m, err := auth.NewMiddleware(ctx, cfg.Auth.Issuer, cfg.Auth.ClientID, logger)
		if err != nil {
			return err
		}
		opts = append(opts, server.WithAuth(m))
	}

	gin.SetMode(gin.ReleaseMode)
	srv := server.New(eng.newVisitor, opts...)
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go sweepIdle(ctx, srv.Registry(), idleTimeout, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Serving onboarding", zap.String("addr", cfg.Server.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func sweepIdle(ctx context.Context, reg *server.Registry, idle time.Duration, logger *zap.Logger) {
	if idle <= 0 {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := reg.Sweep(idle); n > 0 {
				logger.Debug("Dropped idle sessions", zap.Int("count", n))
			}
		}
	}
}
