// Command martin serves the multi-exchange spot gateway over gRPC.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"google.golang.org/grpc"

	"github.com/exwrap/martin/config"
	"github.com/exwrap/martin/internal/observability"
	"github.com/exwrap/martin/internal/server"
	"github.com/exwrap/martin/internal/session"
	"github.com/exwrap/martin/internal/telemetry"
	"github.com/exwrap/martin/rpcapi"
)

const (
	defaultConfigPath = "config/martin.yaml"
	defaultListenAddr = "localhost:50051"
	shutdownTimeout   = 30 * time.Second
)

// version is stamped by the release build.
var version = "2.0.0-dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := flag.String("config", defaultConfigPath, "path to the accounts and endpoints file")
	addr := flag.String("listen", defaultListenAddr, "gRPC listen address")
	level := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	logLevel, err := zerolog.ParseLevel(*level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	logger := observability.NewZerolog(os.Stderr, logLevel)
	observability.SetLogger(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*cfgPath)
	if errors.Is(err, config.ErrMissingFile) {
		logger.Error("configuration file missing, template written; fill it in and restart",
			observability.String("path", *cfgPath))
		return 1
	}
	if err != nil {
		logger.Error("load configuration", observability.Err(err))
		return 1
	}

	telCfg := telemetry.DefaultConfig()
	provider, err := telemetry.NewProvider(ctx, telCfg)
	if err != nil {
		logger.Error("initialize telemetry", observability.Err(err))
		return 1
	}
	instruments, err := telemetry.NewInstruments(provider.Meter("martin"))
	if err != nil {
		logger.Error("register instruments", observability.Err(err))
		return 1
	}

	registry := session.NewRegistry(ctx, cfg, logger)
	registry.SetInstruments(instruments)

	listener, err := net.Listen("tcp", *addr)
	if err != nil {
		logger.Error("listen", observability.String("addr", *addr), observability.Err(err))
		return 1
	}

	grpcServer := grpc.NewServer()
	rpcapi.RegisterMartinServer(grpcServer, server.New(registry, version, logger))

	var lifecycle conc.WaitGroup
	lifecycle.Go(func() {
		if serveErr := grpcServer.Serve(listener); serveErr != nil {
			logger.Error("grpc server", observability.Err(serveErr))
		}
	})
	logger.Info("gateway listening",
		observability.String("addr", *addr),
		observability.String("version", version),
		observability.Int64("accounts", int64(len(cfg.Accounts))))

	<-ctx.Done()
	logger.Info("shutdown signal received")

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop timed out, forcing close")
		grpcServer.Stop()
	}
	lifecycle.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), telCfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := provider.Shutdown(shutdownCtx); err != nil {
		logger.Warn("telemetry shutdown", observability.Err(err))
	}
	logger.Info("shutdown complete")
	return 0
}
