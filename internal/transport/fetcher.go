package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/DoyleJ11/match-replay/internal/engine"
	"github.com/DoyleJ11/match-replay/internal/logging"
	"github.com/DoyleJ11/match-replay/internal/matchstore"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var ErrUnexpectedStatus = errors.New("unexpected status")

// HTTPFetcher loads metadata and chunks from a replay server. Identical
// chunk requests made at the same time by different sessions share one
// round trip.
type HTTPFetcher struct {
	base   *url.URL
	client *http.Client
	group  singleflight.Group
	log    *zap.Logger
}

func NewHTTPFetcher(baseURL string, timeout time.Duration, log *zap.Logger) (*HTTPFetcher, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("upstream url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("upstream url %q: scheme must be http or https", baseURL)
	}
	return &HTTPFetcher{
		base:   u,
		client: &http.Client{Timeout: timeout},
		log:    logging.OrNop(log),
	}, nil
}

func (f *HTTPFetcher) endpoint(parts ...string) string {
	return f.base.JoinPath(parts...).String()
}

func (f *HTTPFetcher) FetchMetadata(ctx context.Context, match engine.MatchRef) (engine.Metadata, error) {
	resp, err := f.get(ctx, f.endpoint("matches", match.League, match.Match, "metadata"), "")
	if err != nil {
		return engine.Metadata{}, err
	}
	defer resp.Body.Close()

	var meta engine.Metadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return engine.Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	return meta, nil
}

func (f *HTTPFetcher) FetchChunk(ctx context.Context, match engine.MatchRef, id engine.ChunkID) (*engine.ChunkPayload, error) {
	key := match.String() + "#" + strconv.FormatInt(int64(id), 10)
	ch := f.group.DoChan(key, func() (any, error) {
		// Detached so one caller giving up does not fail the others.
		return f.fetchChunk(context.WithoutCancel(ctx), match, id)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			f.log.Debug("shared chunk fetch", zap.String("key", key))
		}
		// Merging copies samples out, so sessions can share the payload.
		return res.Val.(*engine.ChunkPayload), nil
	}
}

func (f *HTTPFetcher) fetchChunk(ctx context.Context, match engine.MatchRef, id engine.ChunkID) (*engine.ChunkPayload, error) {
	u := f.endpoint("matches", match.League, match.Match, "chunks", strconv.FormatInt(int64(id), 10))
	// Asking for gzip ourselves keeps net/http from decompressing the body.
	resp, err := f.get(ctx, u, "gzip")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return matchstore.DecodeChunk(resp.Body)
}

func (f *HTTPFetcher) get(ctx context.Context, u, acceptEncoding string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if acceptEncoding != "" {
		req.Header.Set("Accept-Encoding", acceptEncoding)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", u, err)
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("get %s: %w: %d", u, ErrUnexpectedStatus, resp.StatusCode)
	}
	return resp, nil
}
