package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/autotrader/config"
	"github.com/alejandrodnm/autotrader/internal/adapters/notify"
	"github.com/alejandrodnm/autotrader/internal/adapters/storage"
)

func main() {
	os.Exit(execute())
}

// execute corre el trader y devuelve el código de salida; los defers corren antes de os.Exit.
func execute() int {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	report := flag.Bool("report", false, "print the closed-position archive and exit")
	limit := flag.Int("limit", 50, "rows printed by -report (0 = all)")
	simOnly := flag.Bool("sim-only", false, "ignore the private key and run only the simulator")
	stopFile := flag.String("stop-file", defaultStopFile, "the run ends when this file appears")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		return 1
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		return 1
	}
	defer store.Close()

	console := notify.NewConsole()

	if *report {
		if err := printArchive(context.Background(), store, console, *limit); err != nil {
			slog.Error("report failed", "err", err)
			return 1
		}
		return 0
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := build(ctx, cfg, store, *simOnly)
	if err != nil {
		slog.Error("failed to build trader", "err", err)
		return 1
	}
	defer a.close()

	slog.Info("autotrader starting",
		"config", *configPath,
		"feed", cfg.Feed.URL,
		"live", a.live != nil,
		"metrics", cfg.Metrics.Addr,
		"control", cfg.Control.Addr,
		"stop_file", *stopFile,
	)

	runErr := a.run(ctx, *stopFile)
	a.printExitReport(console)
	if runErr != nil {
		slog.Error("autotrader exited with error", "err", runErr)
		return 1
	}

	slog.Info("autotrader stopped cleanly")
	return 0
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
