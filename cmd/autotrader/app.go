package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"

	"github.com/alejandrodnm/autotrader/config"
	"github.com/alejandrodnm/autotrader/internal/adapters/control"
	"github.com/alejandrodnm/autotrader/internal/adapters/feed"
	"github.com/alejandrodnm/autotrader/internal/adapters/metrics"
	"github.com/alejandrodnm/autotrader/internal/adapters/notify"
	"github.com/alejandrodnm/autotrader/internal/adapters/onchain"
	"github.com/alejandrodnm/autotrader/internal/adapters/storage"
	"github.com/alejandrodnm/autotrader/internal/application/allowance"
	"github.com/alejandrodnm/autotrader/internal/application/dispatch"
	"github.com/alejandrodnm/autotrader/internal/application/engine"
	"github.com/alejandrodnm/autotrader/internal/application/engine/live"
	"github.com/alejandrodnm/autotrader/internal/application/engine/paper"
	"github.com/alejandrodnm/autotrader/internal/application/journal"
	"github.com/alejandrodnm/autotrader/internal/application/pairs"
	"github.com/alejandrodnm/autotrader/internal/application/positions"
	"github.com/alejandrodnm/autotrader/internal/domain"
	"github.com/alejandrodnm/autotrader/internal/ports"
	"golang.org/x/sync/errgroup"
)

// app agrupa los componentes ya conectados de un run.
type app struct {
	cfg        *config.Config
	settings   *config.Settings
	metrics    *metrics.Metrics
	feed       ports.PriceFeed
	sim        *paper.Engine
	dispatcher *dispatch.Dispatcher
	control    *control.Server

	// nil cuando corre solo el simulador
	chain  *onchain.Client
	worker *allowance.Worker
	live   *live.Engine

	closers   []io.Closer
	closeOnce sync.Once
}

// build conecta storage, audit, simulador, trader real (si hay wallet) y servidores.
func build(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage, simOnly bool) (*app, error) {
	settings, skipped := config.NewSettings(cfg.Trading)
	for _, k := range skipped {
		slog.Warn("config: trading key ignored", "key", k)
	}
	saved, err := store.LoadSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	for _, k := range settings.Merge(saved) {
		slog.Warn("config: stored setting ignored", "key", k)
	}
	settings.SetPersister(store)

	a := &app{cfg: cfg, settings: settings, metrics: metrics.New()}

	sinks := []ports.AuditSink{store}
	if cfg.Audit.File != "" {
		fileSink, err := notify.NewFileSink(cfg.Audit.File)
		if err != nil {
			return nil, fmt.Errorf("build: %w", err)
		}
		sinks = append(sinks, fileSink)
		a.closers = append(a.closers, fileSink)
	}
	if cfg.Audit.RedisAddr != "" {
		pub, err := notify.NewRedisPublisher(ctx, cfg.Audit.RedisAddr, cfg.Audit.RedisChannel)
		if err != nil {
			slog.Warn("audit: redis unavailable, continuing without it", "addr", cfg.Audit.RedisAddr, "err", err)
		} else {
			sinks = append(sinks, pub)
			a.closers = append(a.closers, pub)
		}
	}
	j := journal.New(sinks...)

	names, err := engine.LoadBlocklist(cfg.Names.File)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("build: %w", err)
	}
	admission := engine.NewAdmission(names)

	snap := settings.Snapshot()
	a.sim = paper.New(paper.Config{MaxPositions: snap.MaxPositions}, store, j, a.metrics)
	simTrader := paper.NewTrader(a.sim, admission, j, a.metrics)

	// Quedan nil (sin tipo) cuando no hay trader real, nunca un *live.Engine nil.
	var realTrader dispatch.RealTrader
	var liveOps control.LiveOps
	switch {
	case simOnly:
		slog.Info("live: disabled by -sim-only")
	case cfg.Chain.PrivateKey == "":
		slog.Warn("live: no private key configured, running simulation only")
	default:
		chain, err := onchain.NewClient(ctx, onchain.Config{
			RPCURL:         cfg.Chain.RPCURL,
			PrivateKey:     cfg.Chain.PrivateKey,
			ChainID:        cfg.Chain.ChainID,
			RatePerSec:     cfg.Chain.RPCRatePerSec,
			Burst:          cfg.Chain.RPCBurst,
			ReceiptTimeout: cfg.ReceiptTimeout(),
			GasPrice:       func() *big.Int { return settings.Snapshot().GasPriceWei },
		})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("build: %w", err)
		}
		a.chain = chain
		a.worker = allowance.NewWorker(chain, allowance.Config{}, j, a.metrics)
		a.live = live.New(live.Deps{
			Store:      positions.New(),
			Exec:       chain,
			Wrapper:    chain,
			Allowances: a.worker,
			Mirror:     a.sim,
			Admission:  admission,
			Archive:    store,
			Journal:    j,
			Recorder:   a.metrics,
		}, live.DefaultConfig())
		realTrader, liveOps = a.live, a.live
		slog.Info("live: trader enabled", "wallet", chain.Owner().Hex())
	}

	a.dispatcher = dispatch.New(settings, pairs.New(cfg.Feed.MaxPairs), a.sim, simTrader, realTrader)
	a.control = control.New(settings, liveOps, a.sim, store)

	minBackoff, maxBackoff := cfg.ReconnectBackoff()
	a.feed = feed.New(feed.Config{URL: cfg.Feed.URL, ReconnectMin: minBackoff, ReconnectMax: maxBackoff})
	return a, nil
}

// run lanza todos los componentes y espera a que ctx termine, aparezca el
// stop file o alguno falle. El primero que falla cancela al resto.
func (a *app) run(ctx context.Context, stopFile string) error {
	g, ctx := errgroup.WithContext(ctx)
	events := make(chan domain.PairEvent, a.cfg.Feed.BufferSize)

	g.Go(func() error { return a.feed.Run(ctx, events) })
	g.Go(func() error { return a.dispatcher.Run(ctx, events) })
	if a.worker != nil {
		g.Go(func() error { return a.worker.Run(ctx) })
	}
	if a.cfg.Metrics.Addr != "" {
		g.Go(func() error { return a.metrics.Serve(ctx, a.cfg.Metrics.Addr) })
	}
	if a.cfg.Control.Addr != "" {
		g.Go(func() error { return a.control.Serve(ctx, a.cfg.Control.Addr) })
	}
	if stopFile != "" {
		g.Go(func() error { return watchStopFile(ctx, stopFile, stopPollInterval) })
	}

	err := g.Wait()
	if errors.Is(err, errStopRequested) {
		return nil
	}
	return err
}

// printExitReport imprime las tablas de cierre: stats del sim y posiciones abiertas.
func (a *app) printExitReport(c *notify.Console) {
	c.PrintSimReport(a.sim.Stats(), a.sim.OpenPositions())
	if a.live != nil {
		c.PrintLivePositions(a.live.Positions())
	}
}

func (a *app) close() {
	a.closeOnce.Do(func() {
		for _, c := range a.closers {
			if err := c.Close(); err != nil {
				slog.Warn("close failed", "err", err)
			}
		}
		if a.chain != nil {
			a.chain.Close()
		}
	})
}

// printArchive imprime el histórico de posiciones cerradas (-report).
func printArchive(ctx context.Context, store ports.TradeStorage, c *notify.Console, limit int) error {
	closed, err := store.ClosedPositions(ctx, limit)
	if err != nil {
		return fmt.Errorf("printArchive: %w", err)
	}
	c.PrintClosed(closed)
	return nil
}
