package tiles

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/NERVsystems/poimap/pkg/core"
	"github.com/NERVsystems/poimap/pkg/geo"
	"github.com/NERVsystems/poimap/pkg/monitoring"
	"github.com/NERVsystems/poimap/pkg/tracing"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	// DefaultURLTemplate is the OpenStreetMap standard tile layer.
	DefaultURLTemplate = "https://tile.openstreetmap.org/{z}/{x}/{y}{r}.png"

	// RetinaSuffix replaces {r} when retina tiles are requested.
	RetinaSuffix = "@2x"

	DefaultRPS       = 10.0
	DefaultBurst     = 20
	DefaultCacheSize = 512
	DefaultCacheTTL  = 24 * time.Hour

	// DefaultFetchTimeout bounds one shared tile download.
	DefaultFetchTimeout = 15 * time.Second

	// fetchConcurrency bounds parallel downloads in FetchVisible.
	fetchConcurrency = 4

	maxTileSize = 2 << 20
)

// Source describes a tile endpoint. URLTemplate may contain {z}, {x}, {y}
// and {r}; {r} becomes RetinaSuffix when Retina is set and is removed
// otherwise.
type Source struct {
	URLTemplate string
	Retina      bool
}

// URL expands the template for t.
func (s Source) URL(t Tile) string {
	tmpl := s.URLTemplate
	if tmpl == "" {
		tmpl = DefaultURLTemplate
	}
	r := ""
	if s.Retina {
		r = RetinaSuffix
	}
	return strings.NewReplacer(
		"{z}", strconv.Itoa(t.Z),
		"{x}", strconv.Itoa(t.X),
		"{y}", strconv.Itoa(t.Y),
		"{r}", r,
	).Replace(tmpl)
}

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	Source    Source
	Client    *http.Client
	RPS       float64
	Burst     int
	CacheSize int
	CacheTTL  time.Duration
	Timeout   time.Duration
	Retry     core.RetryOptions
	Logger    *slog.Logger
}

// Fetcher downloads tiles through a rate limiter and an expiring cache.
// Every failed download is reported to the HealthMonitor; the error
// message is the only detail passed on.
type Fetcher struct {
	source  Source
	client  *http.Client
	limiter *rate.Limiter
	cache   *expirable.LRU[string, []byte]
	timeout time.Duration
	retry   core.RetryOptions
	monitor *HealthMonitor
	logger  *slog.Logger

	group singleflight.Group

	fetched atomic.Uint64
	failed  atomic.Uint64
}

// NewFetcher creates a fetcher reporting to monitor.
func NewFetcher(cfg FetcherConfig, monitor *HealthMonitor) *Fetcher {
	if cfg.Client == nil {
		cfg.Client = core.DefaultClient
	}
	if cfg.RPS <= 0 {
		cfg.RPS = DefaultRPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultFetchTimeout
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = core.DefaultRetryOptions
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Fetcher{
		source:  cfg.Source,
		client:  cfg.Client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		cache:   expirable.NewLRU[string, []byte](cfg.CacheSize, nil, cfg.CacheTTL),
		timeout: cfg.Timeout,
		retry:   cfg.Retry,
		monitor: monitor,
		logger:  cfg.Logger.With("component", "tiles"),
	}
}

// Source returns the configured tile source.
func (f *Fetcher) Source() Source { return f.source }

// Fetch returns the image bytes for t. Concurrent requests for the same
// tile share one download, which runs apart from any single caller's ctx
// and is bounded by the fetch timeout. A caller that gives up gets its
// ctx error; the download carries on for the others and is not counted as
// a failure on that caller's account.
func (f *Fetcher) Fetch(ctx context.Context, t Tile) ([]byte, error) {
	url := f.source.URL(t)

	if data, ok := f.cache.Get(url); ok {
		monitoring.RecordCacheHit(tracing.CacheTypeTile)
		return data, nil
	}
	monitoring.RecordCacheMiss(tracing.CacheTypeTile)

	ch := f.group.DoChan(url, func() (any, error) {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
		defer cancel()
		return f.download(dctx, t, url)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		f.logger.Debug("tile fetch abandoned", "tile", t.String())
		return nil, ctx.Err()
	}
}

func (f *Fetcher) download(ctx context.Context, t Tile, url string) ([]byte, error) {
	ctx, span := tracing.StartSpan(ctx, "tiles.fetch", trace.WithAttributes(tracing.TileAttributes(t.Z, t.X, t.Y)...))
	defer span.End()
	span.SetAttributes(tracing.CacheAttributes(tracing.CacheTypeTile, false, t.String())...)

	waitStart := time.Now()
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	monitoring.RecordRateLimitWait("tiles", time.Since(waitStart))

	start := time.Now()
	data, err := f.get(ctx, url)
	monitoring.RecordTileFetch(time.Since(start), err == nil)

	if err != nil {
		f.failed.Add(1)
		span.RecordError(err)
		span.SetAttributes(tracing.ErrorAttributes(err)...)
		span.SetStatus(codes.Error, "tile fetch failed")
		f.logger.Warn("tile fetch failed", "tile", t.String(), "error", err)
		if f.monitor != nil {
			f.monitor.RecordFailure(err)
		}
		return nil, core.NewError(core.ErrTileFailure, fmt.Sprintf("tile %s unavailable", t)).
			WithGuidance("Some map tiles failed to load. Retry to reload them.").
			WithCause(err)
	}

	f.fetched.Add(1)
	f.cache.Add(url, data)
	span.SetStatus(codes.Ok, "")
	return data, nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	resp, err := core.WithRetryFactory(ctx, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, url, nil)
	}, f.client, f.retry)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTileSize))
	if err != nil {
		return nil, fmt.Errorf("reading tile body: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("empty tile body")
	}
	return data, nil
}

// Purge empties the tile cache so the next fetch goes to the network.
func (f *Fetcher) Purge() {
	f.cache.Purge()
}

// Stats is a summary of fetcher activity.
type Stats struct {
	Fetched   uint64 `json:"fetched"`
	Failed    uint64 `json:"failed"`
	CacheSize int    `json:"cacheSize"`
}

// Stats returns counters since the fetcher was created.
func (f *Fetcher) Stats() Stats {
	return Stats{
		Fetched:   f.fetched.Load(),
		Failed:    f.failed.Load(),
		CacheSize: f.cache.Len(),
	}
}

// Report summarises a FetchVisible call.
type Report struct {
	Zoom      int `json:"zoom"`
	Requested int `json:"requested"`
	Loaded    int `json:"loaded"`
	Failed    int `json:"failed"`
}

// FetchVisible loads every tile covering the viewport. Individual tile
// failures are absorbed into the report and the health monitor; only a
// cancelled ctx is returned as an error.
func (f *Fetcher) FetchVisible(ctx context.Context, center geo.Location, zoom float64, width, height int) (Report, error) {
	tiles := VisibleTiles(center, zoom, width, height)
	report := Report{Requested: len(tiles)}
	if len(tiles) > 0 {
		report.Zoom = tiles[0].Z
	}

	var loaded, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for _, t := range tiles {
		g.Go(func() error {
			if _, err := f.Fetch(gctx, t); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				return nil
			}
			loaded.Add(1)
			return nil
		})
	}
	err := g.Wait()

	report.Loaded = int(loaded.Load())
	report.Failed = int(failed.Load())
	return report, err
}
