package matchstore

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/DoyleJ11/match-replay/internal/engine"
	"github.com/klauspost/compress/gzip"
)

// EncodeChunk writes payload as gzip compressed JSON.
func EncodeChunk(w io.Writer, payload *engine.ChunkPayload) error {
	zw, err := gzip.NewWriterLevel(w, gzip.BestCompression)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(zw).Encode(payload); err != nil {
		zw.Close()
		return fmt.Errorf("encode chunk: %w", err)
	}
	return zw.Close()
}

// DecodeChunk reads a gzip compressed JSON payload.
func DecodeChunk(r io.Reader) (*engine.ChunkPayload, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer zr.Close()

	var payload engine.ChunkPayload
	if err := json.NewDecoder(zr).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode chunk: %w", err)
	}
	return &payload, nil
}

// ReadRecording loads a full match recording from path. The file may be
// plain JSON or gzip compressed; the gzip magic bytes decide.
func ReadRecording(path string) (*engine.ChunkPayload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		return DecodeChunk(br)
	}
	var payload engine.ChunkPayload
	if err := json.NewDecoder(br).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode recording %s: %w", path, err)
	}
	return &payload, nil
}
