package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brunobiangulo/nasgraph"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (YAML or JSON)")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	noBuild := flag.Bool("no-build", false, "Skip the build from stored records at startup")
	flag.Parse()

	cfg, err := nasgraph.LoadConfig(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	// Structured JSON logging.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	})))

	ctx := context.Background()
	engine, err := nasgraph.New(ctx, cfg)
	if err != nil {
		slog.Error("creating engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	if !*noBuild {
		if _, err := engine.Build(ctx); err != nil && !errors.Is(err, nasgraph.ErrNoCorpus) {
			slog.Warn("startup build failed, serving without a graph", "error", err)
		}
	}

	h := newHandler(engine)
	mux := http.NewServeMux()
	h.routes(mux)

	// Middleware chain: recovery -> cors -> auth -> metrics -> logging -> mux
	var handler http.Handler = mux
	handler = logMiddleware(handler)
	handler = metricsMiddleware(engine.Metrics(), handler)
	handler = authMiddleware(cfg.Server.APIKey, handler)
	handler = corsMiddleware(cfg.Server.CORSOrigins, handler)
	handler = recoveryMiddleware(handler)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // document ingest can be long
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}

func logLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
