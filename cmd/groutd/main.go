// Command groutd is the control-plane kernel daemon entrypoint: flag
// parsing, process tuning, module lifecycle, and the UNIX-socket API
// server loop. Grounded on original_source/main/main.c's full startup/
// shutdown sequence (setlocale, parse_args, modules_init, listen_api_socket,
// register_signals, sd_notify, event_base_dispatch, reverse teardown), with
// process-tuning wiring (GOMAXPROCS/GOMEMLIMIT, zap) lifted from
// caddyserver-caddy/cmd/main.go.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/klauspost/cpuid/v2"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"

	"github.com/grout-project/groutd/internal/grapi"
	"github.com/grout-project/groutd/internal/grconfig"
	"github.com/grout-project/groutd/internal/grevent"
	"github.com/grout-project/groutd/internal/grhandlers"
	"github.com/grout-project/groutd/internal/grinfra"
	"github.com/grout-project/groutd/internal/grlog"
	"github.com/grout-project/groutd/internal/grmetrics"
	"github.com/grout-project/groutd/internal/grmodule"
	"github.com/grout-project/groutd/internal/grtrace"
	"github.com/grout-project/groutd/internal/notify"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, fs, err := grconfig.Parse(os.Args[1:])
	if err != nil {
		switch err {
		case grconfig.ErrHelpRequested:
			fmt.Printf("Usage: %s [-h] [-p] [-s PATH] [-t] [-v] [-v] [-x]\n\n", os.Args[0])
			fs.PrintDefaults()
			return 0
		case grconfig.ErrVersionRequested:
			fmt.Printf("groutd %s\n", grconfig.Version)
			return 0
		default:
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
	}

	if err := grlog.Init(grlog.Options{Verbosity: cfg.Verbosity}); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer grlog.Sync()
	logger := grlog.Named("main")

	logger.Info("starting groutd", zap.String("version", grconfig.Version))

	undo, err := maxprocs.Set(maxprocs.Logger(logger.Sugar().Infof))
	defer undo()
	if err != nil {
		logger.Warn("failed to set GOMAXPROCS", zap.Error(err))
	}

	_, err = memlimit.SetGoMemLimitWithOpts(
		memlimit.WithLogger(slog.New(zapslog.NewHandler(logger.Core()))),
		memlimit.WithProvider(memlimit.ApplyFallback(memlimit.FromCgroup, memlimit.FromSystem)),
	)
	if err != nil {
		logger.Warn("failed to set GOMEMLIMIT", zap.Error(err))
	}

	logger.Info("cpu features",
		zap.String("brand", cpuid.CPU.BrandName),
		zap.Int("physical_cores", cpuid.CPU.PhysicalCores),
		zap.Bool("avx2", cpuid.CPU.Supports(cpuid.AVX2)),
	)

	table := grinfra.NewTable()
	bus := grevent.NewBus()
	traceRing := grtrace.NewRing(grtrace.PoolSize, grtrace.BurstSize)
	registry := grapi.NewRegistry()

	grinfra.RegisterBuiltinTypes(table)
	grinfra.SubscribeBondEvents(bus, table)
	grhandlers.Register(registry, table, bus)
	bus.Subscribe(grinfra.TopicIfaceStatusUp, func(ctx context.Context, ev grevent.Event) {
		grmetrics.TraceRingLen.Set(float64(traceRing.Len()))
	})

	if err := grmodule.InitAll(); err != nil {
		logger.Error("module init failed", zap.Error(err))
		notify.Errno(int(syscall.EIO))
		return 1
	}

	server := grapi.NewServer(cfg.APISockPath, cfg.MaxPayloadBytes, registry)
	if err := server.Listen(); err != nil {
		logger.Error("listen_api_socket", zap.Error(err))
		grmodule.FiniAll()
		notify.Errno(int(syscall.EADDRINUSE))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	notify.Ready(fmt.Sprintf("groutd version %s started", grconfig.Version))

	errCh := make(chan error, 1)
	go func() { errCh <- server.Run(ctx) }()

	var runErr error
	select {
	case <-ctx.Done():
		notify.Stopping("shutting down...")
	case runErr = <-errCh:
	}

	server.Close()
	grmodule.FiniAll()

	if runErr != nil {
		logger.Error("server loop exited with error", zap.Error(runErr))
		notify.Errno(int(syscall.EIO))
		return 1
	}

	logger.Info("groutd stopped")
	return 0
}
