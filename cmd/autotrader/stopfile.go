package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"
)

const (
	defaultStopFile  = "STOP_TRADER"
	stopPollInterval = 2 * time.Second
)

var errStopRequested = errors.New("stop file found")

// watchStopFile revisa path cada every. Cuando aparece lo borra y devuelve
// errStopRequested para que el errgroup cancele el run. Con ctx terminado devuelve nil.
func watchStopFile(ctx context.Context, path string, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		if _, err := os.Stat(path); err == nil {
			slog.Info("stop file found, shutting down", "path", path)
			if err := os.Remove(path); err != nil {
				slog.Warn("could not remove stop file", "path", path, "err", err)
			}
			return errStopRequested
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
