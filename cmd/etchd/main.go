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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/kyleoneill/etch/internal/config"
	"github.com/kyleoneill/etch/internal/dispatch"
	"github.com/kyleoneill/etch/internal/logger"
	"github.com/kyleoneill/etch/internal/server"
	"github.com/kyleoneill/etch/internal/table"
)

const Version = "0.1.0"

const metricsShutdownTimeout = 5 * time.Second

func main() {
	app := &cli.App{
		Name:  "etchd",
		Usage: "JSON document store over a framed TCP protocol",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "open the storage root and serve requests",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "config file path"},
					&cli.StringFlag{Name: "listen", Usage: "override server.listen-addr"},
					&cli.StringFlag{Name: "data-dir", Usage: "override storage.data-dir"},
					&cli.StringFlag{Name: "log-level", Usage: "override log.level"},
				},
				Action: serve,
			},
			{
				Name:  "version",
				Usage: "print the version",
				Action: func(c *cli.Context) error {
					fmt.Fprintln(c.App.Writer, Version)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "etchd: %s\n", err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	if c.IsSet("listen") {
		cfg.Server.ListenAddr = c.String("listen")
	}
	if c.IsSet("data-dir") {
		cfg.Storage.DataDir = c.String("data-dir")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}

	if err := cfg.Adjust(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	log := logger.NewDefaultLogger(level)

	tableManager, err := table.InitTableManager(
		cfg.Storage.DataDir,
		&table.RecordsPerShardOpt{RecordsPerShard: cfg.Storage.RecordsPerShard},
		&table.IndexCacheOpt{Size: cfg.Storage.IndexCacheSize},
		&table.LoggerOpt{Logger: log},
	)
	if err != nil {
		return fmt.Errorf("table.InitTableManager: %w", err)
	}

	srv := server.NewServer(
		log,
		dispatch.NewDispatcher(tableManager, log),
		&server.ReadTimeoutOpt{Timeout: cfg.Server.ReadTimeout.Duration},
		&server.WriteTimeoutOpt{Timeout: cfg.Server.WriteTimeout.Duration},
		&server.RequestTimeoutOpt{Timeout: cfg.Server.RequestTimeout.Duration},
	)

	if _, err := srv.Listen(cfg.Server.ListenAddr); err != nil {
		return fmt.Errorf("server.Listen: %w", err)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		<-ctx.Done()
		log.Info("etchd: shutting down")
		return srv.Close()
	})

	if cfg.Metrics.ListenAddr != "" {
		metricsServer := newMetricsServer(cfg.Metrics.ListenAddr)

		group.Go(func() error {
			log.Info("etchd: metrics listening", "addr", cfg.Metrics.ListenAddr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http.Server.ListenAndServe: %w", err)
			}
			return nil
		})

		group.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	return group.Wait()
}

func newMetricsServer(addr string) *http.Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(table.Collectors()...)
	registry.MustRegister(dispatch.Collectors()...)
	registry.MustRegister(server.Collectors()...)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
