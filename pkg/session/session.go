// Package session ties the catalog, positioning, viewport, tile health and
// content components together for one map screen.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/NERVsystems/poimap/pkg/catalog"
	"github.com/NERVsystems/poimap/pkg/content"
	"github.com/NERVsystems/poimap/pkg/core"
	"github.com/NERVsystems/poimap/pkg/geo"
	"github.com/NERVsystems/poimap/pkg/monitoring"
	"github.com/NERVsystems/poimap/pkg/positioning"
	"github.com/NERVsystems/poimap/pkg/tiles"
	"github.com/NERVsystems/poimap/pkg/viewport"
	"github.com/google/uuid"
)

// LocateZoom is the zoom the camera moves to when centering on a fix.
const LocateZoom = 16.0

// Health component names reported by a session.
const (
	ComponentDataset     = "dataset"
	ComponentTiles       = "tiles"
	ComponentPositioning = "positioning"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = core.NewError(core.ErrSessionClosed, "session is closed")

// Notice is a transient message for the user.
type Notice struct {
	Code     core.ErrorCode
	Message  string
	Guidance string
}

// NoticeFor builds the notice shown for err.
func NoticeFor(err error) Notice {
	var e *core.Error
	if errors.As(err, &e) {
		return Notice{Code: e.Code, Message: e.Message, Guidance: e.Guidance}
	}
	return Notice{Code: core.ErrInternalError, Message: err.Error()}
}

// Options wires a session to its components. Store, Loader, Positioning,
// Viewport and TileHealth are required.
type Options struct {
	Store       *catalog.Store
	Loader      *catalog.Loader
	Positioning *positioning.Service
	Viewport    *viewport.Controller
	TileHealth  *tiles.HealthMonitor
	// Fetcher is optional; its cache is purged on RetryTiles.
	Fetcher   *tiles.Fetcher
	Navigator *content.Navigator
	// Health is optional; component status is reported to it.
	Health *monitoring.HealthChecker
	Logger *slog.Logger

	OnNotice     func(Notice)
	OnTileHealth func(tiles.HealthState)
}

// Session is the lifetime of one map screen. Results that arrive after
// Close are dropped.
type Session struct {
	store     *catalog.Store
	loader    *catalog.Loader
	pos       *positioning.Service
	view      *viewport.Controller
	tileMon   *tiles.HealthMonitor
	fetcher   *tiles.Fetcher
	navigator *content.Navigator
	health    *monitoring.HealthChecker
	logger    *slog.Logger

	onNotice     func(Notice)
	onTileHealth func(tiles.HealthState)

	mu     sync.Mutex
	closed bool
}

// New creates a session and subscribes it to tile health notifications.
func New(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Navigator == nil {
		opts.Navigator = content.NewNavigator(content.LogLauncher{Logger: opts.Logger}, nil, opts.Logger)
	}
	s := &Session{
		store:        opts.Store,
		loader:       opts.Loader,
		pos:          opts.Positioning,
		view:         opts.Viewport,
		tileMon:      opts.TileHealth,
		fetcher:      opts.Fetcher,
		navigator:    opts.Navigator,
		health:       opts.Health,
		logger:       opts.Logger.With("component", "session"),
		onNotice:     opts.OnNotice,
		onTileHealth: opts.OnTileHealth,
	}
	s.tileMon.SetOnChange(s.tileHealthChanged)
	return s
}

func (s *Session) alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Catalog returns the current catalog snapshot.
func (s *Session) Catalog() *catalog.Catalog {
	return s.store.Current()
}

// Viewport returns the session's camera controller.
func (s *Session) Viewport() *viewport.Controller {
	return s.view
}

// Positioning returns the current positioning state.
func (s *Session) Positioning() positioning.State {
	return s.pos.State()
}

// TileHealth returns the current tile failure snapshot.
func (s *Session) TileHealth() tiles.HealthState {
	return s.tileMon.Snapshot()
}

// Refresh downloads and installs the dataset. On failure the previous
// catalog stays in place and a notice is raised. A result overtaken by a
// newer refresh returns catalog.ErrSuperseded without a notice.
func (s *Session) Refresh(ctx context.Context) (catalog.Result, error) {
	if !s.alive() {
		return catalog.Result{}, ErrClosed
	}

	start := time.Now()
	res, err := s.loader.Refresh(ctx)
	latency := time.Since(start).Milliseconds()

	if !s.alive() {
		return res, ErrClosed
	}
	if errors.Is(err, catalog.ErrSuperseded) {
		s.reportHealth(ComponentDataset, monitoring.StatusConnected, latency, nil)
		return res, err
	}
	if err != nil {
		status := monitoring.StatusError
		if s.store.Current().Len() > 0 {
			status = monitoring.StatusDegraded
		}
		s.reportHealth(ComponentDataset, status, latency, err)
		if ctx.Err() == nil {
			s.notice(NoticeFor(err))
		}
		return res, err
	}

	s.reportHealth(ComponentDataset, monitoring.StatusConnected, latency, nil)
	return res, nil
}

// LocateResult is the outcome of Locate.
type LocateResult struct {
	State positioning.State
	// Nearest is nil when there is no fix or the catalog is empty.
	Nearest *catalog.Ranked
}

// Locate obtains a fix, centers the camera on it and finds the nearest
// location. A non-authorized state is returned together with its error.
func (s *Session) Locate(ctx context.Context, promptIfNeeded bool) (LocateResult, error) {
	if !s.alive() {
		return LocateResult{}, ErrClosed
	}

	st := s.pos.RequestFix(ctx, promptIfNeeded)
	if !s.alive() {
		return LocateResult{State: st}, ErrClosed
	}
	s.reportPositioning(st)

	res := LocateResult{State: st}
	if st.Kind != positioning.KindAuthorized {
		return res, st.Err()
	}

	s.centerOn(st.Fix.Location, viewport.OriginUser)

	rec, dist, err := catalog.Nearest(st.Fix.Location, s.store.Current().Records)
	if err == nil {
		res.Nearest = &catalog.Ranked{Record: rec, Distance: dist}
	}
	return res, nil
}

// AutoCenter centers on the device position once per session without
// prompting. Failures stay silent. ran is false on every call after the
// first.
func (s *Session) AutoCenter(ctx context.Context) (st positioning.State, ran bool) {
	if !s.alive() {
		return s.pos.State(), false
	}

	st, ran = s.pos.AutoCenterOnLaunch(ctx)
	if !ran || !s.alive() {
		return st, ran
	}
	s.reportPositioning(st)

	if st.Kind == positioning.KindAuthorized {
		s.centerOn(st.Fix.Location, viewport.OriginAuto)
	} else {
		s.logger.Debug("auto-center skipped", "state", st.String())
	}
	return st, true
}

// OpenSettings opens the settings screen that fixes the current
// positioning state. It returns the remedy applied, RemedyNone when no
// settings screen helps.
func (s *Session) OpenSettings(ctx context.Context) (positioning.Remedy, error) {
	if !s.alive() {
		return positioning.RemedyNone, ErrClosed
	}
	remedy := s.pos.State().Remedy()
	switch remedy {
	case positioning.RemedyOpenLocationSettings:
		return remedy, s.pos.OpenLocationSettings(ctx)
	case positioning.RemedyOpenAppSettings:
		return remedy, s.pos.OpenAppSettings(ctx)
	default:
		return positioning.RemedyNone, nil
	}
}

func (s *Session) centerOn(loc geo.Location, origin viewport.Origin) {
	s.view.SetLastFix(loc)
	s.view.RequestMove(loc, LocateZoom, origin)
}

// FitAll moves the camera over the whole catalog. It reports false when
// the catalog is empty.
func (s *Session) FitAll() bool {
	if !s.alive() {
		return false
	}
	bbox := s.store.Current().Bounds()
	if bbox.IsEmpty() {
		return false
	}
	lo, hi := s.view.ZoomRange()
	return s.view.RequestMove(bbox.Center(), bbox.FitZoom(lo, hi), viewport.OriginUser)
}

// Resume resets the camera after the screen comes back and returns the
// new view identity.
func (s *Session) Resume() uuid.UUID {
	if !s.alive() {
		return uuid.Nil
	}
	return s.view.Resume()
}

// Navigate hands the maps link for the location with the given id to the
// launcher.
func (s *Session) Navigate(ctx context.Context, id string) (string, error) {
	if !s.alive() {
		return "", ErrClosed
	}
	rec, ok := s.store.Current().Find(id)
	if !ok {
		return "", core.NewError(core.ErrLocationNotFound, "no location with id "+id).
			WithGuidance("Refresh the catalog or pick a location from the list.")
	}
	return s.navigator.Navigate(ctx, rec.Location)
}

// OpenPage shows a content page in place or hands it to the platform.
func (s *Session) OpenPage(ctx context.Context, page content.Page) (content.Destination, error) {
	if !s.alive() {
		return content.Blocked, ErrClosed
	}
	return s.navigator.Open(ctx, page)
}

// LoadTiles fetches the tiles covering a width x height pixel view around
// the current camera. Tile failures feed the health banner.
func (s *Session) LoadTiles(ctx context.Context, width, height int) (tiles.Report, error) {
	if !s.alive() {
		return tiles.Report{}, ErrClosed
	}
	if s.fetcher == nil {
		return tiles.Report{}, core.NewError(core.ErrTileFailure, "no tile source configured")
	}
	return s.fetcher.FetchVisible(ctx, s.view.CurrentCenter(), s.view.CurrentZoom(), width, height)
}

// TileStats returns the fetcher counters. ok is false when no tile source
// is configured.
func (s *Session) TileStats() (stats tiles.Stats, ok bool) {
	if s.fetcher == nil {
		return tiles.Stats{}, false
	}
	return s.fetcher.Stats(), true
}

// RetryTiles dismisses the tile failure banner and drops cached tiles so
// the next render fetches again.
func (s *Session) RetryTiles() {
	if !s.alive() {
		return
	}
	s.tileMon.Reset()
	if s.fetcher != nil {
		s.fetcher.Purge()
	}
	s.reportHealth(ComponentTiles, monitoring.StatusConnected, 0, nil)
}

// Close stops timers and discards every later result.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.pos.Close()
	s.view.Close()
	s.tileMon.Close()
	s.logger.Debug("session closed")
}

func (s *Session) tileHealthChanged(hs tiles.HealthState) {
	if !s.alive() {
		return
	}
	if hs.Healthy() {
		s.reportHealth(ComponentTiles, monitoring.StatusConnected, 0, nil)
	} else {
		var err error
		if hs.LastError != nil {
			err = errors.New(*hs.LastError)
		}
		s.reportHealth(ComponentTiles, monitoring.StatusDegraded, 0, err)
	}
	if s.onTileHealth != nil {
		s.onTileHealth(hs)
	}
}

func (s *Session) reportPositioning(st positioning.State) {
	switch st.Kind {
	case positioning.KindAuthorized:
		s.reportHealth(ComponentPositioning, monitoring.StatusConnected, 0, nil)
	case positioning.KindFailed:
		s.reportHealth(ComponentPositioning, monitoring.StatusDegraded, 0, st.Err())
	default:
		s.reportHealth(ComponentPositioning, monitoring.StatusDisconnected, 0, st.Err())
	}
}

func (s *Session) reportHealth(component, status string, latencyMs int64, err error) {
	if s.health == nil {
		return
	}
	s.health.UpdateComponent(component, status, latencyMs, err)
}

func (s *Session) notice(n Notice) {
	s.logger.Info("notice", "code", n.Code, "message", n.Message)
	if s.onNotice != nil {
		s.onNotice(n)
	}
}
