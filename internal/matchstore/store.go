package matchstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/DoyleJ11/match-replay/internal/engine"
	"github.com/DoyleJ11/match-replay/internal/logging"
	"go.uber.org/zap"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrInvalidRef = errors.New("invalid match reference")
)

// Used when a metadata file leaves a field out.
const (
	DefaultChunkDurationMs int64 = 300_000
	defaultChunkCount            = 1
)

// Store reads and writes pre-chunked matches under one directory:
//
//	<dir>/<league>/<match>_metadata.json
//	<dir>/<league>/<match>_chunk_<n>.json.gz
type Store struct {
	dir string
	log *zap.Logger
}

func New(dir string, log *zap.Logger) *Store {
	return &Store{dir: dir, log: logging.OrNop(log)}
}

func validRef(ref engine.MatchRef) error {
	for _, part := range []string{ref.League, ref.Match} {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return fmt.Errorf("%w: %q", ErrInvalidRef, ref.String())
		}
	}
	return nil
}

func (s *Store) metadataPath(ref engine.MatchRef) string {
	return filepath.Join(s.dir, ref.League, ref.Match+"_metadata.json")
}

func (s *Store) chunkPath(ref engine.MatchRef, id engine.ChunkID) string {
	return filepath.Join(s.dir, ref.League, fmt.Sprintf("%s_chunk_%d.json.gz", ref.Match, id))
}

func (s *Store) Metadata(ref engine.MatchRef) (engine.Metadata, error) {
	if err := validRef(ref); err != nil {
		return engine.Metadata{}, err
	}
	data, err := os.ReadFile(s.metadataPath(ref))
	if errors.Is(err, os.ErrNotExist) {
		s.log.Debug("metadata file not found", zap.Stringer("match", ref))
		return engine.Metadata{}, fmt.Errorf("metadata for %s: %w", ref, ErrNotFound)
	}
	if err != nil {
		return engine.Metadata{}, err
	}

	var meta engine.Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return engine.Metadata{}, fmt.Errorf("parse metadata for %s: %w", ref, err)
	}
	if meta.ChunkCount <= 0 {
		meta.ChunkCount = defaultChunkCount
	}
	if meta.ChunkDurationMs <= 0 {
		meta.ChunkDurationMs = DefaultChunkDurationMs
	}
	return meta, nil
}

// RawChunk returns the compressed bytes exactly as stored.
func (s *Store) RawChunk(ref engine.MatchRef, id engine.ChunkID) ([]byte, error) {
	if err := validRef(ref); err != nil {
		return nil, err
	}
	if id < 0 {
		return nil, fmt.Errorf("chunk %d of %s: %w", id, ref, ErrNotFound)
	}
	data, err := os.ReadFile(s.chunkPath(ref, id))
	if errors.Is(err, os.ErrNotExist) {
		s.log.Debug("chunk file not found", zap.Stringer("match", ref), zap.Int64("chunk", int64(id)))
		return nil, fmt.Errorf("chunk %d of %s: %w", id, ref, ErrNotFound)
	}
	return data, err
}

func (s *Store) FetchMetadata(_ context.Context, ref engine.MatchRef) (engine.Metadata, error) {
	return s.Metadata(ref)
}

func (s *Store) FetchChunk(_ context.Context, ref engine.MatchRef, id engine.ChunkID) (*engine.ChunkPayload, error) {
	raw, err := s.RawChunk(ref, id)
	if err != nil {
		return nil, err
	}
	return DecodeChunk(bytes.NewReader(raw))
}

// WriteMatch splits a full match record into chunks and writes them along
// with the metadata file. Total duration is the last ball timestamp.
func (s *Store) WriteMatch(ref engine.MatchRef, full *engine.ChunkPayload, chunkDurationMs int64) (engine.Metadata, error) {
	if err := validRef(ref); err != nil {
		return engine.Metadata{}, err
	}
	if full == nil {
		return engine.Metadata{}, errors.New("no position data")
	}
	if chunkDurationMs <= 0 {
		chunkDurationMs = DefaultChunkDurationMs
	}
	if err := os.MkdirAll(filepath.Join(s.dir, ref.League), 0o755); err != nil {
		return engine.Metadata{}, err
	}

	chunks := engine.SplitIntoChunks(full, chunkDurationMs)
	s.log.Info("storing chunks", zap.Stringer("match", ref), zap.Int("chunks", len(chunks)))

	for i, c := range chunks {
		var buf bytes.Buffer
		if err := EncodeChunk(&buf, c); err != nil {
			return engine.Metadata{}, fmt.Errorf("chunk %d: %w", i, err)
		}
		if err := os.WriteFile(s.chunkPath(ref, engine.ChunkID(i)), buf.Bytes(), 0o644); err != nil {
			return engine.Metadata{}, err
		}
		s.log.Debug("chunk written", zap.Int("chunk", i), zap.Int("bytes", buf.Len()))
	}

	var total int64
	if n := len(full.Ball); n > 0 {
		total = full.Ball[n-1].Timestamp
	}
	meta := engine.Metadata{
		TotalDurationMs: total,
		ChunkDurationMs: chunkDurationMs,
		ChunkCount:      len(chunks),
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return engine.Metadata{}, err
	}
	if err := os.WriteFile(s.metadataPath(ref), data, 0o644); err != nil {
		return engine.Metadata{}, err
	}
	return meta, nil
}
