package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samsamfire/goxrce/pkg/agent"
	"github.com/samsamfire/goxrce/pkg/config"

	// Register the builtin transports and middlewares
	_ "github.com/samsamfire/goxrce/pkg/middleware/inproc"
	_ "github.com/samsamfire/goxrce/pkg/transport/pipe"
	_ "github.com/samsamfire/goxrce/pkg/transport/tcp"
	_ "github.com/samsamfire/goxrce/pkg/transport/udp"
)

func main() {
	configPath := flag.String("c", "", "agent configuration file (yaml)")
	listen := flag.String("l", "", "listen address, overrides configuration")
	transportKind := flag.String("t", "", "transport kind : udp, tcp")
	profiles := flag.String("p", "", "reference profile file (ini)")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Printf("could not load configuration : %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *transportKind != "" {
		cfg.Transport = *transportKind
	}
	if *profiles != "" {
		cfg.Profiles = *profiles
	}

	a, err := agent.New(logger, cfg)
	if err != nil {
		fmt.Printf("could not create agent : %v\n", err)
		os.Exit(1)
	}

	if cfg.MetricsListen != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Info("serving metrics", "listen", cfg.MetricsListen)
			if err := http.ListenAndServe(cfg.MetricsListen, mux); err != nil {
				logger.Error("metrics server stopped", "err", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := a.Start(ctx); err != nil {
		fmt.Printf("could not start agent : %v\n", err)
		os.Exit(1)
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	<-signals
	logger.Info("shutting down")
	cancel()
	a.Stop()
	a.Wait()
}
