package steps

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/crosslister/postflow/internal/dom"
)

// maxImageBytes bounds a single download; marketplace photos are small.
const maxImageBytes = 20 << 20

// Fetcher downloads listing images with bounded concurrency and a shared
// rate limit, converting each into a file payload for the upload input.
type Fetcher struct {
	log         *zap.Logger
	client      *http.Client
	limiter     *rate.Limiter
	concurrency int
}

// NewFetcher creates a fetcher. ratePerSec caps aggregate request rate
// across the whole batch; concurrency caps in-flight downloads.
func NewFetcher(log *zap.Logger, client *http.Client, ratePerSec float64, concurrency int) *Fetcher {
	if log == nil {
		log = zap.NewNop()
	}
	if client == nil {
		client = http.DefaultClient
	}
	if ratePerSec <= 0 {
		ratePerSec = 2
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Fetcher{
		log:         log.Named("images"),
		client:      client,
		limiter:     rate.NewLimiter(rate.Limit(ratePerSec), 1),
		concurrency: concurrency,
	}
}

// Fetch downloads the deduplicated URL set and returns the successfully
// retrieved payloads in input order. Individual failures are logged and
// skipped; err is non-nil only when the context is cancelled.
func (f *Fetcher) Fetch(ctx context.Context, urls []string) ([]dom.FilePayload, error) {
	deduped := dedupe(urls)
	results := make([]*dom.FilePayload, len(deduped))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i, u := range deduped {
		g.Go(func() error {
			if err := f.limiter.Wait(gctx); err != nil {
				return err
			}
			payload, err := f.fetchOne(gctx, u)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				f.log.Warn("Skipping image that could not be fetched.",
					zap.String("url", u), zap.Error(err))
				return nil
			}
			mu.Lock()
			results[i] = payload
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []dom.FilePayload
	for _, p := range results {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, url string) (*dom.FilePayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageFetch, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageFetch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d for %s", ErrImageFetch, resp.StatusCode, url)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageFetch, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty body for %s", ErrImageFetch, url)
	}
	return &dom.FilePayload{
		Name: fileName(url, resp.Header.Get("Content-Type")),
		MIME: mimeType(url, resp.Header.Get("Content-Type")),
		Data: data,
	}, nil
}

func dedupe(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	var out []string
	for _, u := range urls {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

func mimeType(url, contentType string) string {
	if contentType != "" {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil && strings.HasPrefix(mt, "image/") {
			return mt
		}
	}
	if mt := mime.TypeByExtension(path.Ext(stripQuery(url))); strings.HasPrefix(mt, "image/") {
		return mt
	}
	return "image/jpeg"
}

func fileName(url, contentType string) string {
	base := path.Base(stripQuery(url))
	if base == "" || base == "." || base == "/" {
		base = "photo"
	}
	if path.Ext(base) == "" {
		if exts, err := mime.ExtensionsByType(mimeType(url, contentType)); err == nil && len(exts) > 0 {
			base += exts[0]
		} else {
			base += ".jpg"
		}
	}
	return base
}

func stripQuery(url string) string {
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		return url[:i]
	}
	return url
}
