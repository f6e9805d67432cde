// File: cmd/engine.go
package cmd

import (
	"context"
	"fmt"
	"net/http"

	"github.com/chromedp/chromedp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/crosslister/postflow/internal/browser"
	"github.com/crosslister/postflow/internal/config"
	"github.com/crosslister/postflow/internal/dom"
	"github.com/crosslister/postflow/internal/humanoid"
	"github.com/crosslister/postflow/internal/report"
	"github.com/crosslister/postflow/internal/steps"
	"github.com/crosslister/postflow/internal/store"
	"github.com/crosslister/postflow/internal/workflow"
)

// buildEngine assembles a browser tab, the page-bound collaborators, and the
// orchestrator for one listing page. The returned cleanup tears the whole
// stack down in reverse order.
func buildEngine(ctx context.Context, cfg *config.Config, url, pageKey string, rep report.Reporter, log *zap.Logger) (*workflow.Orchestrator, func(), error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Browser.Headless),
	)
	if cfg.Browser.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.Browser.UserAgent))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	var page *browser.Page
	var redisClient *redis.Client
	cleanup := func() {
		if page != nil {
			page.Close()
		}
		cancelTab()
		cancelAlloc()
		if redisClient != nil {
			_ = redisClient.Close()
		}
	}

	page, err := browser.New(tabCtx, log)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	navCtx, cancelNav := context.WithTimeout(tabCtx, cfg.Browser.NavigationTimeout)
	defer cancelNav()
	if err := page.Navigate(navCtx, url); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("navigate to %s: %w", url, err)
	}

	var st store.StateStore
	switch cfg.Store.Backend {
	case "redis":
		redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.Store.RedisAddr,
			DB:   cfg.Store.RedisDB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		st = store.NewRedisStore(redisClient, cfg.Store.TTL)
	default:
		st = store.NewMemoryStore()
	}

	loc := dom.NewLocator(log)
	env := workflow.Env{
		Page:   page,
		Loc:    loc,
		Wait:   dom.NewWaiter(log, loc),
		Typist: humanoid.NewTypist(log, humanoid.Config{
			KeyPauseMeanMs:   cfg.Browser.KeyPauseMeanMs,
			KeyPauseStdDevMs: cfg.Browser.KeyPauseStdDevMs,
			KeyPauseMinMs:    cfg.Browser.KeyPauseMinMs,
			DigraphFactor:    0.7,
		}),
		Fetcher: steps.NewFetcher(log, http.DefaultClient, cfg.Engine.ImageRatePerSec, cfg.Engine.ImageConcurrency),
	}
	notifier := report.NewPageNotifier(page, log)

	orch := workflow.New(log, env, st, rep, notifier, steps.Marketplace(), cfg.Engine, pageKey)
	return orch, cleanup, nil
}
