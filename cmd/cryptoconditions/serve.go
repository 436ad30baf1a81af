package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Mindburn-Labs/cryptoconditions/pkg/api"
	"github.com/Mindburn-Labs/cryptoconditions/pkg/conditions"
	"github.com/Mindburn-Labs/cryptoconditions/pkg/config"
	"github.com/Mindburn-Labs/cryptoconditions/pkg/observability"
	"github.com/Mindburn-Labs/cryptoconditions/pkg/rpc"
	"github.com/Mindburn-Labs/cryptoconditions/pkg/store"
)

const shutdownTimeout = 10 * time.Second

// runServeCmd implements `cryptoconditions serve`. Flags override the
// environment and the CC_CONFIG file.
func runServeCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("serve", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		port      string
		storePath string
		logFormat string
	)
	cmd.StringVar(&port, "port", "", "Listen port (default $PORT or 8080)")
	cmd.StringVar(&storePath, "store", "", "SQLite path or postgres:// DSN for the condition store")
	cmd.StringVar(&logFormat, "log-format", "", "Log format: text or json")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if port != "" {
		cfg.Port = port
	}
	if storePath != "" {
		cfg.StorePath = storePath
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}

	return startServer(cfg, stdout, stderr)
}

// newLogger builds the process logger from the configured level and format.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// app is everything the server owns.
type app struct {
	handler   http.Handler
	store     *store.SQLStore
	limiter   api.LimiterStore
	telemetry *observability.Provider
}

// newApp wires the configured store, limiter and telemetry into an HTTP
// handler.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{}

	otelCfg := observability.DefaultConfig()
	otelCfg.Enabled = cfg.OTelEnabled
	otelCfg.OTLPEndpoint = cfg.OTelEndpoint
	otelCfg.ServiceVersion = strings.TrimPrefix(version, "v")
	tel, err := observability.New(ctx, otelCfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	a.telemetry = tel

	verify := conditions.VerifyOptions{MaxCost: cfg.MaxCost}
	if len(cfg.AllowedTypes) > 0 {
		mask, err := conditions.MaskOf(cfg.AllowedTypes...)
		if err != nil {
			a.close(ctx)
			return nil, fmt.Errorf("allowed types: %w", err)
		}
		verify.AllowedTypes = mask
	}

	opts := []rpc.Option{
		rpc.WithVerifyOptions(verify),
		rpc.WithTelemetry(tel),
		rpc.WithLogger(logger),
	}
	if cfg.StorePath != "" {
		s, err := store.Open(ctx, cfg.StorePath)
		if err != nil {
			a.close(ctx)
			return nil, err
		}
		a.store = s
		opts = append(opts, rpc.WithStore(s))
	}

	srv, err := rpc.NewServer(opts...)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	if cfg.RateRPS > 0 {
		a.limiter = newLimiter(ctx, cfg, logger)
	}

	a.handler = api.NewHandler(srv, api.Options{
		Limiter:      a.limiter,
		MaxBodyBytes: cfg.MaxRequestBytes,
		Logger:       logger,
	})
	return a, nil
}

// newLimiter prefers Redis when configured and reachable so that replicas
// share one budget per client.
func newLimiter(ctx context.Context, cfg *config.Config, logger *slog.Logger) api.LimiterStore {
	policy := api.LimitPolicy{RPS: cfg.RateRPS, Burst: cfg.RateBurst}
	if cfg.RedisAddr != "" {
		rl := api.NewRedisLimiterStore(cfg.RedisAddr, policy)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		err := rl.Ping(pingCtx)
		if err == nil {
			return rl
		}
		logger.WarnContext(ctx, "redis unavailable, using in-memory rate limiter",
			"addr", cfg.RedisAddr,
			"error", err,
		)
		_ = rl.Close()
	}
	return api.NewMemoryLimiterStore(policy)
}

func (a *app) close(ctx context.Context) {
	if closer, ok := a.limiter.(io.Closer); ok {
		_ = closer.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.telemetry != nil {
		_ = a.telemetry.Shutdown(ctx)
	}
}

func runServer(cfg *config.Config, stdout, stderr io.Writer) int {
	logger := newLogger(cfg, stderr)
	slog.SetDefault(logger)
	ctx := context.Background()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	addr := ":" + cfg.Port
	_, _ = fmt.Fprintf(stdout, "%sCrypto-conditions server%s\n", ColorBold+ColorBlue, ColorReset)
	_, _ = fmt.Fprintf(stdout, "  Listen:      http://localhost%s\n", addr)
	_, _ = fmt.Fprintf(stdout, "  RPC:         POST http://localhost%s/rpc\n", addr)
	if cfg.StorePath != "" {
		_, _ = fmt.Fprintf(stdout, "  Store:       %s\n", redactDSN(cfg.StorePath))
	} else {
		_, _ = fmt.Fprintf(stdout, "  Store:       %sdisabled%s\n", ColorYellow, ColorReset)
	}
	_, _ = fmt.Fprintln(stdout, "  Ctrl+C to stop.")

	server := &http.Server{
		Addr:              addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	code := 0
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorContext(ctx, "server failed", "error", err)
			code = 1
		}
	case sig := <-sigChan:
		logger.InfoContext(ctx, "shutting down", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.ErrorContext(ctx, "graceful shutdown failed", "error", err)
			code = 1
		}
		cancel()
	}

	a.close(ctx)
	return code
}

// redactDSN hides the password of a postgres DSN.
func redactDSN(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	userinfo, host, ok := strings.Cut(rest, "@")
	if !ok {
		return dsn
	}
	if user, _, hasPass := strings.Cut(userinfo, ":"); hasPass {
		return scheme + "://" + user + ":xxxxx@" + host
	}
	return dsn
}
