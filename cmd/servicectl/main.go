// Package main is the entry point for servicectl. Without a command it
// runs the process as the configured service; the other commands manage
// services through the service control manager.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"servicectl/internal/config"
	"servicectl/internal/heartbeat"
	"servicectl/internal/logger"
	"servicectl/internal/network"
	"servicectl/internal/service"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

const startupErrorLogDir = "log/servicectl"

func main() {
	var (
		configPath  = flag.String("config", "conf/servicectl/ServiceCtl.json", "Path to main configuration file")
		loggingPath = flag.String("logging", "conf/servicectl/Logging.json", "Path to logging configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("servicectl %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	// Under the service control manager the working directory is
	// C:\Windows\System32; an absolute config path locates the install
	// directory two levels above the config file.
	if filepath.IsAbs(*configPath) {
		basePath := filepath.Dir(filepath.Dir(filepath.Dir(*configPath)))
		if err := os.Chdir(basePath); err != nil {
			service.ReportStartupError("servicectl", fmt.Errorf("failed to chdir to %s: %w", basePath, err))
			fmt.Fprintf(os.Stderr, "Failed to change directory to %s: %v\n", basePath, err)
			os.Exit(1)
		}
	}

	if service.IsService() {
		logger.SetServiceMode(true)
	}

	cfg, lc, err := config.LoadSplit(*configPath, *loggingPath)
	if err != nil {
		service.ReportStartupError("servicectl", err)
		service.WriteStartupErrorFile(startupErrorLogDir, "servicectl", err)
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	cmd := "run"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	if cmd != "run" {
		// stdout carries the command's JSON output
		lc.Console = false
	}
	if err := logger.Init(*lc); err != nil {
		service.ReportStartupError("servicectl", err)
		service.WriteStartupErrorFile(startupErrorLogDir, "servicectl", err)
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	var code int
	if cmd == "run" {
		code = runService(cfg, lc, *loggingPath, args)
	} else {
		code = runCommand(cfg, cmd, args)
	}
	logger.Close()
	os.Exit(code)
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: servicectl [flags] [command] [args]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(out, "  %-10s %s\n", c.name, c.help)
	}
	fmt.Fprintf(out, "  %-10s %s\n\nFlags:\n", "run", "run this process as the configured service (default)")
	flag.PrintDefaults()
}

// runService registers the process as cfg.ServiceName and blocks until the
// service is told to stop.
func runService(cfg *config.Config, lc *logger.Config, loggingPath string, args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	name := fs.String("name", cfg.ServiceName, "Service name to register as")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	log := logger.WithComponent("main")
	log.Info().
		Str("version", version).
		Str("service", *name).
		Str("logging", loggingPath).
		Msg("Starting servicectl")

	if *name == "" {
		err := fmt.Errorf("no service name configured")
		log.Error().Err(err).Msg("Cannot run as service")
		return 1
	}

	opts := service.Options{
		IgnoreUnsupportedPlatform: cfg.IgnoreUnsupportedPlatform,
		HeartbeatInterval:         cfg.HeartbeatInterval,
		StopGracePeriod:           cfg.StopGracePeriod,
		OnStart: func(args []string) {
			log.Info().Strs("args", args).Msg("Service start arguments received")
		},
	}

	if cfg.Heartbeat.Redis.Enabled() {
		socks := cfg.Heartbeat.SOCKSProxy
		dial := network.DialerFunc(socks.Host, socks.Port)
		if dial != nil {
			log.Info().Str("socks_host", socks.Host).Int("socks_port", socks.Port).Msg("SOCKS proxy configured")
		}
		pub := heartbeat.New(*name, cfg.Heartbeat.Redis, dial)
		log.Info().Str("redis_address", cfg.Heartbeat.Redis.Address).Str("key", pub.Key()).Msg("Publishing heartbeats to Redis")
		opts.Beater = pub
	}

	stopWatcher := setupLoggingWatcher(loggingPath)
	defer stopWatcher()

	rt := service.New()
	if _, err := rt.Run(*name, opts); err != nil {
		service.ReportStartupError(*name, err)
		logDir := startupErrorLogDir
		if lc.FilePath != "" {
			logDir = filepath.Dir(lc.FilePath)
		}
		service.WriteStartupErrorFile(logDir, *name, err)
		log.Error().Err(err).Msg("Service registration failed")
		return 1
	}

	if rt.State() != service.StateRunning {
		// registration was skipped; run in the foreground until interrupted
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if opts.Beater != nil {
			defer opts.Beater.Close()
		}
		log.Info().Msg("Running in the foreground")
		<-ctx.Done()
		log.Info().Msg("Received shutdown signal")
		return 0
	}

	interrupts := make(chan os.Signal, 1)
	rt.Notify(interrupts)

	select {
	case <-interrupts:
	case <-rt.Context().Done():
	}
	log.Info().Int64("beats", rt.Beats()).Msg("Shutting down")
	rt.Finish(0)

	log.Info().Msg("servicectl stopped")
	return 0
}

// setupLoggingWatcher reloads Logging.json on change. The returned
// function stops the watcher.
func setupLoggingWatcher(loggingPath string) func() {
	log := logger.WithComponent("main")

	watcher, err := config.NewLoggingWatcher(loggingPath, func(newLC *logger.Config) {
		log.Info().Msg("Applying logging configuration changes")
		if err := logger.Init(*newLC); err != nil {
			log.Error().Err(err).Msg("Failed to update logging configuration")
			return
		}
		log.Info().Msg("Logging configuration updated")
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create logging watcher, hot reload disabled")
		return func() {}
	}
	if err := watcher.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start logging watcher")
		return func() {}
	}

	return func() {
		log.Info().Msg("Stopping logging watcher")
		if err := watcher.Stop(); err != nil {
			log.Error().Err(err).Msg("Error stopping logging watcher")
		}
	}
}
