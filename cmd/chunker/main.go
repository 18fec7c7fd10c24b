// Command chunker splits a full match recording into the chunk files the
// replay server reads.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/DoyleJ11/match-replay/internal/config"
	"github.com/DoyleJ11/match-replay/internal/engine"
	"github.com/DoyleJ11/match-replay/internal/logging"
	"github.com/DoyleJ11/match-replay/internal/matchstore"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var ref engine.MatchRef
	var input string
	flag.StringVar(&ref.League, "league", "", "league the match belongs to")
	flag.StringVar(&ref.Match, "match", "", "match id")
	flag.StringVar(&input, "in", "", "recording to split (.json or .json.gz)")
	flag.StringVar(&cfg.MatchDir, "out", cfg.MatchDir, "match directory to write into")
	flag.Int64Var(&cfg.ChunkDurationMs, "chunk-ms", cfg.ChunkDurationMs, "chunk duration in milliseconds")
	flag.Parse()

	if ref.League == "" || ref.Match == "" || input == "" {
		flag.Usage()
		os.Exit(2)
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	full, err := matchstore.ReadRecording(input)
	if err != nil {
		log.Fatal("read recording", zap.String("path", input), zap.Error(err))
	}
	meta, err := matchstore.New(cfg.MatchDir, log).WriteMatch(ref, full, cfg.ChunkDurationMs)
	if err != nil {
		log.Fatal("write chunks", zap.Stringer("match", ref), zap.Error(err))
	}
	log.Info("match chunked",
		zap.Stringer("match", ref),
		zap.Int64("duration_ms", meta.TotalDurationMs),
		zap.Int("chunks", meta.ChunkCount))
}
