// Command bgpview-replay reconstructs a view from a saved OpenBMP capture
// file, the offline counterpart to bgpview-sender's live Kafka ingest path.
// It feeds the capture through the same engine/view/codec stack production
// uses, then writes the resulting view out as an ASCII table.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bgpview/bgpview/internal/bgpview/codec"
	"github.com/bgpview/bgpview/internal/bgpview/engine"
	"github.com/bgpview/bgpview/internal/bgpview/ingest"
	"github.com/bgpview/bgpview/internal/bgpview/pathstore"
	"github.com/bgpview/bgpview/internal/bgpview/sigstore"
	"github.com/bgpview/bgpview/internal/bgpview/view"
)

func main() {
	capturePath := flag.String("capture", "", "path to an OpenBMP-framed capture file")
	collector := flag.String("collector", "replay", "collector name to tag every replayed record with")
	outPath := flag.String("out", "-", "path to write the ASCII view dump to (- for stdout)")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	logger := initLogger(*logLevel)
	defer logger.Sync()

	if *capturePath == "" {
		fmt.Fprintln(os.Stderr, "bgpview-replay: -capture is required")
		flag.Usage()
		os.Exit(1)
	}

	data, err := os.ReadFile(*capturePath)
	if err != nil {
		logger.Fatal("failed to read capture file", zap.Error(err), zap.String("path", *capturePath))
	}

	v := view.New(sigstore.New(), pathstore.New())
	eng := engine.New(v)

	r := ingest.NewReplayer(eng, *collector, logger.Named("ingest.replay"))
	if err := r.Feed(data); err != nil {
		logger.Fatal("replay failed", zap.Error(err))
	}

	frames, messages, skipped := r.Stats()
	logger.Info("replay complete",
		zap.Uint64("frames", frames),
		zap.Uint64("elems_applied", messages),
		zap.Uint64("skipped", skipped),
	)

	out := os.Stdout
	if *outPath != "-" {
		f, err := os.Create(*outPath)
		if err != nil {
			logger.Fatal("failed to create output file", zap.Error(err), zap.String("path", *outPath))
		}
		defer f.Close()
		out = f
	}

	if err := codec.WriteASCII(out, v, codec.Filter{}); err != nil {
		logger.Fatal("failed to write view", zap.Error(err))
	}
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
		fmt.Fprintf(os.Stderr, "bgpview-replay: error initializing logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}
