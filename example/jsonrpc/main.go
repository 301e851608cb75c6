package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/mnehpets/jsonrpc2/endpoint"
	"github.com/mnehpets/jsonrpc2/jsonrpc"
	"github.com/mnehpets/jsonrpc2/mangosrpc"
	"github.com/mnehpets/jsonrpc2/middleware"
	"github.com/mnehpets/jsonrpc2/wsrpc"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	stderrLog := zerolog.New(os.Stderr)
	cfg, err := loadConfig(*configPath)
	if err != nil {
		stderrLog.Fatal().Err(err).Msg("failed to load config")
	}
	log, err := cfg.logger()
	if err != nil {
		stderrLog.Fatal().Err(err).Msg("invalid log level")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reg := jsonrpc.NewRegistry()
	registerMethods(reg)
	d := jsonrpc.NewDispatcher(reg,
		jsonrpc.WithLogger(log),
		jsonrpc.WithBatchConcurrency(cfg.Dispatch.BatchConcurrency),
		jsonrpc.WithMaxBodyBytes(cfg.Dispatch.MaxBodyBytes),
	)

	if cfg.Mangos.URL != "" {
		srv, err := mangosrpc.NewServer(d, mangosrpc.WithLogger(log))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create mangos server")
		}
		defer srv.Close()
		if err := srv.Listen(cfg.Mangos.URL); err != nil {
			log.Fatal().Err(err).Str("url", cfg.Mangos.URL).Msg("failed to listen")
		}
		srv.ServeAsync(ctx, cfg.Mangos.Workers)
		log.Info().Str("url", cfg.Mangos.URL).Msg("serving JSON-RPC over mangos")
	}

	mux := http.NewServeMux()
	var headerOpts []middleware.HeadersOption
	if len(cfg.HTTP.CORSOrigins) > 0 {
		headerOpts = append(headerOpts, middleware.WithCORS(&middleware.CORSConfig{
			AllowedOrigins: cfg.HTTP.CORSOrigins,
			MaxAge:         3600,
		}))
	}
	mux.Handle(cfg.HTTP.Path, d.HTTPHandler(
		endpoint.AccessLog(log),
		middleware.NewAPIHeaders(headerOpts...),
	))
	mux.Handle(cfg.HTTP.WebSocketPath, wsrpc.NewServer(d, wsrpc.WithLogger(log)))

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.HTTP.Addr).Msg("starting server")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}
}
