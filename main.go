package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/aeytom/hw2influx/collector"
	"github.com/aeytom/hw2influx/config"
	"github.com/aeytom/hw2influx/http"
	"github.com/aeytom/hw2influx/logging"
	"github.com/aeytom/hw2influx/metrics"
	"github.com/aeytom/hw2influx/parameters"
	"github.com/aeytom/hw2influx/sink"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	flag.Usage = parameters.Usage
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	logger, err := logging.NewLogger(*parameters.DryRun)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load(flag.Arg(0))
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	for _, name := range cfg.DuplicateMeterNames() {
		logger.Warn("meter name used more than once, points will share a tag", zap.String("meter", name))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	writer, err := sink.New(ctx, cfg, *parameters.DryRun, logger)
	if err != nil {
		logger.Fatal("failed to init sink", zap.String("sink", cfg.Sink), zap.Error(err))
	}
	defer writer.Close()
	logger.Info("sink ready", zap.String("sink", writer.Name()), zap.Bool("dry_run", *parameters.DryRun))

	m := metrics.New(prometheus.DefaultRegisterer)
	board := http.NewBoard()
	loops := collector.LoopsFromConfig(cfg.Meters, writer, logger,
		collector.WithMetrics(m),
		collector.WithReporter(board),
	)
	for _, l := range loops {
		board.Add(l.Name(), l.URL(), l.Interval())
	}

	if cfg.HTTP.Addr != "" {
		srv := http.NewServer(cfg.HTTP.Addr, board, prometheus.DefaultGatherer, logger)
		go func() {
			if err := srv.Run(ctx); err != nil {
				logger.Error("http server stopped", zap.Error(err))
			}
		}()
	}

	if err := collector.NewSupervisor(loops, logger).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("collector stopped with error", zap.Error(err))
	}
	logger.Info("collector stopped")
}
