package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Poneaswaran/College-Management-System-Backend/app"
	"github.com/Poneaswaran/College-Management-System-Backend/config"
	"github.com/Poneaswaran/College-Management-System-Backend/internal/observability"
	"github.com/Poneaswaran/College-Management-System-Backend/routes"
)

const (
	commandServe = "serve"
	commandPurge = "purge-revocations"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "cms-api: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	command, err := parseCommand(args)
	if err != nil {
		return err
	}

	cfg, err := config.New(ctx)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize dependencies", zap.Error(err))
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := deps.Close(closeCtx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}()

	switch command {
	case commandPurge:
		result, err := deps.Revocations.PurgeExpired(ctx)
		if err != nil {
			return fmt.Errorf("purge revocations: %w", err)
		}
		logger.Info("purge complete",
			zap.Int64("revocations", result.Revocations),
			zap.Int64("sessions", result.Sessions),
			zap.Int64("guardian_otps", result.GuardianOTPs))
		return nil
	default:
		return serve(ctx, cfg, deps)
	}
}

// parseCommand picks the sub-command; no arguments means serve
func parseCommand(args []string) (string, error) {
	if len(args) == 0 {
		return commandServe, nil
	}
	switch args[0] {
	case commandServe, commandPurge:
		if len(args) > 1 {
			return "", fmt.Errorf("%s takes no arguments", args[0])
		}
		return args[0], nil
	default:
		return "", fmt.Errorf("unknown command %q (want %s or %s)", args[0], commandServe, commandPurge)
	}
}

// serve runs the HTTP server and the revocation purge loop until ctx ends
func serve(ctx context.Context, cfg *config.Config, deps *app.Dependencies) error {
	srv := newServer(cfg.Server, routes.SetupRoutes(deps))

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runServer(ctx, srv, ln, cfg.Server.ShutdownTimeout, deps.Logger)
	})
	g.Go(func() error {
		return deps.Revocations.RunPurgeLoop(ctx, cfg.Auth.RevocationPurgeInterval)
	})
	return g.Wait()
}

func newServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Address(),
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       2 * time.Minute,
	}
}

// runServer serves on ln until ctx is cancelled, then drains in-flight
// requests for up to shutdownTimeout.
func runServer(ctx context.Context, srv *http.Server, ln net.Listener, shutdownTimeout time.Duration, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
