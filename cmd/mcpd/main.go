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

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gaspardpetit/mcpd/internal/bridge"
	"github.com/gaspardpetit/mcpd/internal/config"
	"github.com/gaspardpetit/mcpd/internal/gateway"
	"github.com/gaspardpetit/mcpd/internal/logx"
	"github.com/gaspardpetit/mcpd/internal/metrics"
	"github.com/gaspardpetit/mcpd/internal/proc"
	"github.com/gaspardpetit/mcpd/internal/server"
	"github.com/gaspardpetit/mcpd/internal/session"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	var cfg config.Config
	cfg.BindFlags()
	flag.Usage = func() {
		_, _ = fmt.Fprintf(flag.CommandLine.Output(), "mcpd version=%s sha=%s date=%s\n\n", version, buildSHA, buildDate)
		_, _ = fmt.Fprintf(flag.CommandLine.Output(), "usage: mcpd [flags] -- <mcp server command> [args...]\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	cfg.SetCommandArgs(flag.Args())
	if *showVersion {
		fmt.Printf("mcpd version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}

	if cfg.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.ConfigFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			logx.Log.Fatal().Err(err).Str("path", cfg.ConfigFile).Msg("load config")
		}
	}
	logx.Configure(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		flag.Usage()
		logx.Log.Fatal().Err(err).Msg("invalid configuration")
	}

	metrics.Register(prometheus.DefaultRegisterer)
	metrics.SetBuildInfo(version, buildSHA, buildDate)

	opts := bridge.Options{
		Proc: proc.Options{
			Command:      cfg.Command,
			Dir:          cfg.WorkDir,
			Env:          cfg.Env,
			StartupProbe: cfg.StartupProbe,
			StopGrace:    cfg.StopGrace,
		},
		Timeout: cfg.RequestTimeout,
		Version: version,
	}
	var provider bridge.Provider
	switch cfg.Policy {
	case config.PolicyPerRequest:
		provider = bridge.NewPerRequest(opts)
	default:
		provider = bridge.NewPersistent(opts)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Policy == config.PolicyPersistent {
		// Start the subprocess up front so a broken command fails the
		// daemon instead of the first caller.
		_, release, err := provider.Acquire(ctx)
		if err != nil {
			logx.Log.Fatal().Err(err).Strs("command", cfg.Command).Msg("start MCP server")
		}
		release()
		h := provider.Health()
		logx.Log.Info().Int("pid", h.PID).Int("tools", h.Tools).Msg("MCP server ready")
	}

	gw := gateway.New(provider, version)
	sessions := session.NewRegistry(cfg.SessionTTL, cfg.QueueSize)
	if cfg.SessionTTL > 0 {
		go sessions.Janitor(ctx, cfg.SessionTTL/2)
	}

	handler := server.New(cfg, version, provider, gw, sessions)
	srv := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), Handler: handler}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logx.Log.Warn().Msg("termination requested")
		cancel()
	}()
	go func() {
		<-ctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), cfg.StopGrace)
		defer scancel()
		if err := srv.Shutdown(sctx); err != nil {
			logx.Log.Error().Err(err).Msg("server shutdown")
		}
	}()

	if cfg.Host == "0.0.0.0" {
		logx.Log.Warn().Msg("binding to all interfaces; the MCP endpoints are reachable from the network")
	}
	logx.Log.Info().Str("host", cfg.Host).Int("port", cfg.Port).
		Str("policy", cfg.Policy).Strs("command", cfg.Command).Msg("bridge starting")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		provider.Shutdown()
		logx.Log.Fatal().Err(err).Msg("server error")
	}
	provider.Shutdown()
	logx.Log.Info().Msg("bridge stopped")
}
