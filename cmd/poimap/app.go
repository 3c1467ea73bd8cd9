package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/NERVsystems/poimap/pkg/catalog"
	"github.com/NERVsystems/poimap/pkg/config"
	"github.com/NERVsystems/poimap/pkg/coords"
	"github.com/NERVsystems/poimap/pkg/core"
	"github.com/NERVsystems/poimap/pkg/geo"
	"github.com/NERVsystems/poimap/pkg/monitoring"
	"github.com/NERVsystems/poimap/pkg/positioning"
	"github.com/NERVsystems/poimap/pkg/session"
	"github.com/NERVsystems/poimap/pkg/tiles"
	"github.com/NERVsystems/poimap/pkg/viewport"
)

const tileSourceCheckInterval = 5 * time.Minute

// app holds the headless map session and its background monitors.
type app struct {
	session  *session.Session
	fetcher  *tiles.Fetcher
	health   *monitoring.HealthChecker
	monitors []*monitoring.ComponentMonitor
	logger   *slog.Logger
}

// logSurface stands in for a rendering surface and logs every camera move.
type logSurface struct {
	logger *slog.Logger
}

func (s logSurface) MoveCamera(m viewport.Move) {
	s.logger.Debug("camera move",
		"kind", m.Kind.String(),
		"origin", m.Origin.String(),
		"lat", m.Center.Latitude,
		"lng", m.Center.Longitude,
		"zoom", m.Zoom)
}

// newApp wires the session from configuration. hc may be nil.
func newApp(cfg *config.Config, hc *monitoring.HealthChecker, logger *slog.Logger) (*app, error) {
	var fix *geo.Location
	if cfg.Positioning.StaticFix != "" {
		res, err := coords.Parse(cfg.Positioning.StaticFix)
		if err != nil {
			return nil, fmt.Errorf("positioning.static_fix: %w", err)
		}
		fix = &res.Location
	}

	store := catalog.NewStore()
	loader := catalog.NewLoader(catalog.LoaderConfig{
		URL:     cfg.Dataset.URL,
		Timeout: cfg.Dataset.Timeout,
		Logger:  logger,
	}, store)

	pos := positioning.NewService(positioning.NewStaticPlatform(fix), positioning.Config{
		Timeout: cfg.Positioning.Timeout,
		Logger:  logger,
	})

	view := viewport.NewController(viewport.Options{
		MinZoom:  cfg.Viewport.MinZoom,
		MaxZoom:  cfg.Viewport.MaxZoom,
		Staged:   viewport.StagedMovePolicy{Delay: cfg.Viewport.StageDelay},
		Reassert: viewport.ReassertPolicy{Delay: cfg.Viewport.ReassertDelay},
		Logger:   logger,
		OnMove: func(m viewport.Move) {
			monitoring.RecordCameraMove(m.Kind.String())
		},
	})
	view.Attach(logSurface{logger: logger})
	view.OnViewReady()

	tileMon := tiles.NewHealthMonitor(tiles.MonitorOptions{
		Debounce: cfg.Tiles.Debounce,
		Logger:   logger,
	})
	fetcher := tiles.NewFetcher(tiles.FetcherConfig{
		Source:    tiles.Source{URLTemplate: cfg.Tiles.URLTemplate, Retina: cfg.Tiles.Retina},
		RPS:       cfg.Tiles.RPS,
		Burst:     cfg.Tiles.Burst,
		CacheSize: cfg.Tiles.CacheSize,
		CacheTTL:  cfg.Tiles.CacheTTL,
		Logger:    logger,
	}, tileMon)

	sess := session.New(session.Options{
		Store:       store,
		Loader:      loader,
		Positioning: pos,
		Viewport:    view,
		TileHealth:  tileMon,
		Fetcher:     fetcher,
		Health:      hc,
		Logger:      logger,
		OnNotice: func(n session.Notice) {
			logger.Warn("user notice", "code", n.Code, "message", n.Message, "guidance", n.Guidance)
		},
		OnTileHealth: func(hs tiles.HealthState) {
			if !hs.Healthy() {
				logger.Warn("map tiles are failing to load", "failures", hs.FailureCount)
			}
		},
	})

	return &app{session: sess, fetcher: fetcher, health: hc, logger: logger}, nil
}

// Start loads the catalog, centers on the device once and starts the tile
// source monitor. A failed first load is not fatal; the catalog stays
// empty until refresh_catalog succeeds.
func (a *app) Start(ctx context.Context) {
	if res, err := a.session.Refresh(ctx); err != nil {
		a.logger.Warn("initial catalog load failed", "error", err)
	} else {
		a.logger.Info("catalog loaded", "accepted", len(res.Accepted), "rejected", res.Rejected)
	}

	if st, ran := a.session.AutoCenter(ctx); ran {
		a.logger.Info("auto-center", "state", st.String())
	}

	if a.health != nil {
		m := monitoring.NewComponentMonitor("tile_source", a.health, a.checkTileSource, tileSourceCheckInterval)
		m.Start()
		a.monitors = append(a.monitors, m)
	}
}

// checkTileSource probes the world tile at zoom 0.
func (a *app) checkTileSource() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	url := a.fetcher.Source().URL(tiles.Tile{})
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", core.UserAgent)

	resp, err := core.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return &core.StatusError{StatusCode: resp.StatusCode, URL: url}
	}
	return nil
}

// Close stops the monitors and the session.
func (a *app) Close() {
	for _, m := range a.monitors {
		m.Stop()
	}
	a.session.Close()
}
