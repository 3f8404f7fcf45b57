// Command bgpview-sender is the production view-sender (spec §6): it
// consumes BgpElem records from the "elems" Kafka topic group, drives the
// routing-table engine, and periodically publishes the resulting view as a
// full sync over Kafka, the way the teacher's cmd/rib-ingester drives its
// state/history pipelines from consumed Kafka records into a shared writer.
package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bgpview/bgpview/internal/archiver"
	"github.com/bgpview/bgpview/internal/bgpelem"
	"github.com/bgpview/bgpview/internal/bgpview/codec"
	"github.com/bgpview/bgpview/internal/bgpview/engine"
	"github.com/bgpview/bgpview/internal/bgpview/pathstore"
	"github.com/bgpview/bgpview/internal/bgpview/sigstore"
	"github.com/bgpview/bgpview/internal/bgpview/view"
	"github.com/bgpview/bgpview/internal/config"
	"github.com/bgpview/bgpview/internal/httpapi"
	"github.com/bgpview/bgpview/internal/metrics"
	"github.com/bgpview/bgpview/internal/transport/kafka"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			printUsage()
			return
		}
	}
	runServe()
}

func printUsage() {
	fmt.Println("Usage: bgpview-sender [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config <path>   Path to configuration YAML file")
	fmt.Println("  --log-level <lvl> Override log level (debug, info, warn, error)")
}

func parseFlags(args []string) (configPath string, logLevel string) {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			if i+1 < len(args) {
				configPath = args[i+1]
				i++
			}
		case "--log-level":
			if i+1 < len(args) {
				logLevel = args[i+1]
				i++
			}
		}
	}
	return
}

func loadConfig(args []string) (*config.Config, *zap.Logger) {
	configPath, logLevelOverride := parseFlags(args)

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if logLevelOverride != "" {
		cfg.Service.LogLevel = logLevelOverride
	}

	return cfg, initLogger(cfg.Service.LogLevel)
}

func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zap.DebugLevel
	case "warn":
		zapLevel = zap.WarnLevel
	case "error":
		zapLevel = zap.ErrorLevel
	default:
		zapLevel = zap.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func runServe() {
	cfg, logger := loadConfig(os.Args[1:])
	defer logger.Sync()

	metrics.Register()

	logger.Info("starting bgpview-sender",
		zap.String("instance", cfg.ViewSender.Instance),
		zap.String("http_listen", cfg.Service.HTTPListen),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	v := view.New(sigstore.New(), pathstore.New())
	eng := engine.New(v)

	tlsCfg, err := cfg.Kafka.BuildTLSConfig()
	if err != nil {
		logger.Fatal("failed to build TLS config", zap.Error(err))
	}
	saslMech := cfg.Kafka.BuildSASLMechanism()

	// --- Elems consumer: Kafka BgpElem records drive the engine. ---
	elemConsumer, err := kafka.NewElemConsumer(
		cfg.Kafka.Brokers, cfg.Kafka.Elems.GroupID, cfg.Kafka.Elems.Topics,
		cfg.Kafka.ClientID+"-elems", cfg.Kafka.FetchMaxBytes, tlsCfg, saslMech, logger.Named("kafka.elems"),
	)
	if err != nil {
		logger.Fatal("failed to create elems consumer", zap.Error(err))
	}
	defer elemConsumer.Close()

	var engMu sync.Mutex
	applyRecord := func(r *kgo.Record) error {
		el, err := bgpelem.Decode(r.Value)
		if err != nil {
			return fmt.Errorf("decoding bgpelem: %w", err)
		}
		engMu.Lock()
		defer engMu.Unlock()
		return eng.ProcessElem(el)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() { defer wg.Done(); elemConsumer.Run(ctx, applyRecord) }()

	logger.Info("elems consumer started",
		zap.Strings("topics", cfg.Kafka.Elems.Topics),
		zap.String("group_id", cfg.Kafka.Elems.GroupID),
	)

	// --- Publish worker: view snapshots go out over Kafka. ---
	pubWorker, err := kafka.NewWorker("bgpview-sender", cfg.Kafka.Brokers, cfg.Kafka.ClientID+"-pub", tlsCfg, saslMech, logger.Named("kafka.pub"))
	if err != nil {
		logger.Fatal("failed to create publish worker", zap.Error(err))
	}
	defer pubWorker.Close()

	wg.Add(1)
	go func() { defer wg.Done(); pubWorker.Run(ctx) }()

	filter := viewSenderFilter(cfg, v)

	// --- Archiver (optional). ---
	var arch *archiver.Archiver
	if cfg.Archiver.Enabled && cfg.Archiver.OutfilePattern != "" {
		format, err := archiver.ParseOutputFormat(cfg.Archiver.OutputFormat)
		if err != nil {
			logger.Fatal("invalid archiver output_format", zap.Error(err))
		}
		arch = archiver.New(archiver.Config{
			OutfilePattern:   cfg.Archiver.OutfilePattern,
			RotationInterval: time.Duration(cfg.Archiver.RotationInterval) * time.Second,
			RotationAlign:    cfg.Archiver.RotationAlign,
			CompressionLevel: cfg.Archiver.CompressionLevel,
			OutputFormat:     format,
			LatestFilename:   cfg.Archiver.LatestFilename,
		}, logger.Named("archiver"))
		defer arch.Close()
	}

	// --- HTTP server (healthz/readyz/metrics). ---
	httpServer := httpapi.NewServer(cfg.Service.HTTPListen, pubWorker, v, logger.Named("http"))
	if err := httpServer.Start(); err != nil {
		logger.Fatal("failed to start HTTP server", zap.Error(err))
	}

	// --- Sync/diff publish loop. ---
	syncDone := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(syncDone)
		runSyncLoop(ctx, eng, v, &engMu, pubWorker, arch, cfg, filter, logger.Named("sync"))
	}()

	logger.Info("bgpview-sender started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownTimeout := time.Duration(cfg.Service.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	pubWorker.Shutdown()
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("all pipelines stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout reached, some goroutines may not have finished")
	}

	logger.Info("bgpview-sender stopped")
}

// viewSenderFilter builds the publish filter from filter_ff_v4_min/v6_min
// (spec §6): a peer is considered a full-feed peer if it carries at least
// one address family's worth of a full table, so it is kept if EITHER
// family's active prefix count clears that family's threshold. A threshold
// of 0 disables filtering for that family (every peer clears it). Peers the
// view no longer knows about (looked up after they've been fully withdrawn)
// are dropped rather than published stale.
func viewSenderFilter(cfg *config.Config, v *view.View) codec.Filter {
	v4min := int(cfg.ViewSender.FilterFFV4Min)
	v6min := int(cfg.ViewSender.FilterFFV6Min)

	return codec.Filter{
		Peer: func(id sigstore.PeerID, sig sigstore.Signature) bool {
			info, err := v.Peer(id)
			if err != nil {
				return false
			}
			return info.PfxCountV4 >= v4min || info.PfxCountV6 >= v6min
		},
	}
}

// runSyncLoop wakes once a second and, on every tick that codec.ShouldSync
// does not mark as skip (an aligned sync boundary, or any tick once a first
// frame has been published), publishes a full snapshot to the pfxs topic and writes the archiver snapshot if
// configured. codec.ComputeDiff's Diff is consumed in-process (for P8
// round-trip testing and future wire framing); no Diff wire encoding
// exists yet, so every published cadence here is a full binary frame
// rather than an incremental one — see DESIGN.md.
func runSyncLoop(ctx context.Context, eng *engine.Engine, v *view.View, engMu *sync.Mutex,
	pub *kafka.Worker, arch *archiver.Archiver, cfg *config.Config, filter codec.Filter, logger *zap.Logger) {

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	var havePublished bool
	topic := kafka.PfxsTopic(cfg.Kafka.Namespace, cfg.ViewSender.Instance)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			engMu.Lock()
			t := v.GetTime()
			_, skip := codec.ShouldSync(t, cfg.ViewSender.SyncInterval, havePublished)
			if skip {
				engMu.Unlock()
				continue
			}

			payload, err := encodeFull(v, filter)
			writeErr := error(nil)
			if err == nil && arch != nil {
				writeErr = arch.Write(v, filter)
			}
			engMu.Unlock()

			if err != nil {
				logger.Error("failed to encode publish frame", zap.Error(err))
				continue
			}
			if writeErr != nil {
				logger.Error("archiver write failed", zap.Error(writeErr))
			}

			pub.Submit(&kafka.Job{Topic: topic, Key: []byte(cfg.ViewSender.Instance), Value: payload})
			havePublished = true
		}
	}
}

func encodeFull(v *view.View, filter codec.Filter) ([]byte, error) {
	var buf bytes.Buffer
	if err := codec.Encode(&buf, v, filter); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
