package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/nomis52/komandorr/buildinfo"
	"github.com/nomis52/komandorr/server"
	serverconfig "github.com/nomis52/komandorr/server/config"
)

type Args struct {
	ConfigPath  string
	ShowVersion bool
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	args := parseArgs()

	if args.ShowVersion {
		fmt.Printf("komandorr-server %s\n", buildinfo.Get())
		return nil
	}

	if args.ConfigPath == "" {
		return fmt.Errorf("config flag (-c or --config) is required")
	}

	// Load server configuration
	srvCfg, err := serverconfig.LoadConfig(args.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load server config: %w", err)
	}

	opts := []server.Option{
		server.WithListenAddr(srvCfg.Listener.Addr),
		server.WithPollSchedule(srvCfg.PollSchedule),
		server.WithWatchConfig(srvCfg.WatchConfig),
		server.WithLogLevel(srvCfg.LogLevel),
		server.WithPeakAPIKey(srvCfg.PeakAPIKey),
	}
	if srvCfg.PeakResetSchedule != "" {
		opts = append(opts, server.WithPeakResetSchedule(srvCfg.PeakResetSchedule))
	}
	if srvCfg.Listener.TLSEnabled() {
		opts = append(opts, server.WithTLS(srvCfg.Listener.TLSCert, srvCfg.Listener.TLSKey))
	}

	srv, err := server.New(monitorConfigPath(args.ConfigPath, srvCfg.MonitorConfig), opts...)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer srv.Close()

	// Set up signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		srv.Logger().Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	return srv.Run(ctx)
}

// monitorConfigPath resolves a relative monitor config path against the
// directory of the server config.
func monitorConfigPath(serverConfigPath, monitorConfig string) string {
	if filepath.IsAbs(monitorConfig) {
		return monitorConfig
	}
	return filepath.Join(filepath.Dir(serverConfigPath), monitorConfig)
}

func parseArgs() Args {
	configPath := flag.String("config", "", "Path to server config file")
	configPathShort := flag.String("c", "", "Path to server config file (shorthand)")
	showVersion := flag.Bool("version", false, "Show version information and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nKomandorr Server - activity lifecycle and peak concurrency tracker\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --config /etc/komandorr/server_config.yaml\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -c server_config.yaml\n", os.Args[0])
	}

	flag.Parse()

	path := *configPath
	if path == "" && *configPathShort != "" {
		path = *configPathShort
	}

	return Args{
		ConfigPath:  path,
		ShowVersion: *showVersion,
	}
}
