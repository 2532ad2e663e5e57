// pooltest connects the channel pool to a live WebSocket endpoint, acquires
// one channel per configured category, sends a probe message on each, and
// prints pool snapshots until interrupted.
//
// Usage: go run ./cmd/pooltest --config configs/pool.example.yaml
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DeltaRhoSygnis/mcp-server-sub000/internal/codec"
	"github.com/DeltaRhoSygnis/mcp-server-sub000/internal/config"
	"github.com/DeltaRhoSygnis/mcp-server-sub000/internal/database"
	"github.com/DeltaRhoSygnis/mcp-server-sub000/internal/metrics"
	"github.com/DeltaRhoSygnis/mcp-server-sub000/internal/pool"
	"github.com/DeltaRhoSygnis/mcp-server-sub000/internal/store"
	"github.com/DeltaRhoSygnis/mcp-server-sub000/internal/transport"
	"github.com/DeltaRhoSygnis/mcp-server-sub000/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/pool.example.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	tenantID := flag.String("tenant", "pooltest", "tenant id for acquired channels")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting pooltest",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Event sink: always log; persist when the event store is enabled.
	sink := pool.MultiSink{pool.LogSink{Logger: logger}}

	var writer *store.EventWriter
	if cfg.Events.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)
		db, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		writer = store.NewEventWriter(store.WriterConfig{
			BatchSize:     cfg.Events.BatchSize,
			BufferSize:    cfg.Events.BufferSize,
			FlushInterval: cfg.Events.FlushInterval.Duration(),
		}, db, logger)
		if err := writer.Start(ctx); err != nil {
			logger.Error("failed to start event writer", "error", err)
			os.Exit(1)
		}
		sink = append(sink, writer)
	}

	factory := transport.NewWSFactory(config.BuildTransport(cfg), logger)

	p, err := pool.New(config.BuildPool(cfg), factory, nil, sink, logger)
	if err != nil {
		logger.Error("failed to create pool", "error", err)
		os.Exit(1)
	}
	if err := p.Start(ctx); err != nil {
		logger.Error("failed to start pool", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled {
		g.Go(func() error {
			return metrics.Serve(gctx, cfg.Metrics, p, logger)
		})
	}

	g.Go(func() error {
		runProbes(gctx, p, *tenantID, logger)
		return nil
	})

	g.Go(func() error {
		printSnapshots(gctx, p, logger)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("run group failed", "error", err)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()

	if err := p.Stop(stopCtx); err != nil {
		logger.Error("pool stop failed", "error", err)
	}
	if writer != nil {
		if err := writer.Stop(stopCtx); err != nil {
			logger.Error("event writer stop failed", "error", err)
		}
	}

	logger.Info("pooltest stopped")
}

// runProbes acquires one channel per configured category and sends a probe
// message on each.
func runProbes(ctx context.Context, p *pool.Pool, tenantID string, logger *slog.Logger) {
	for _, category := range pool.Categories() {
		if ctx.Err() != nil {
			return
		}

		info, err := p.Acquire(ctx, category, pool.AcquireContext{
			TenantID:      tenantID,
			RequesterRole: "probe",
		})
		if err != nil {
			logger.Warn("acquire failed", "category", category, "error", err)
			continue
		}

		payload, _ := json.Marshal(map[string]string{"probe": string(category)})
		msg := codec.Message{
			Category: string(category),
			TenantID: tenantID,
			Type:     "probe",
			Payload:  payload,
			SentAt:   time.Now().UTC(),
		}
		if err := p.Send(info.ID, msg); err != nil {
			logger.Warn("probe send failed",
				"category", category,
				"channel_id", info.ID,
				"error", err,
			)
		} else {
			logger.Info("probe sent", "category", category, "channel_id", info.ID)
		}

		p.Release(info.ID)
	}
}

// printSnapshots logs the pool snapshot every 10 seconds.
func printSnapshots(ctx context.Context, p *pool.Pool, logger *slog.Logger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := p.Snapshot()
			logger.Info("pool snapshot",
				"total", snap.TotalChannels,
				"active", snap.ActiveChannels,
				"idle", snap.IdleChannels,
				"error", snap.ErrorChannels,
				"waiting", snap.WaitingCallers,
				"messages", snap.TotalMessages,
				"mean_latency", snap.MeanLatency,
				"utilization", snap.Utilization,
			)
		}
	}
}
