// Package viewport sequences camera moves for the map surface.
//
// Moves requested before the surface is ready collapse into a single
// pending request. Once ready, large zoom jumps are staged and direct
// moves are re-asserted once, following StagedMovePolicy and
// ReassertPolicy.
package viewport

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/NERVsystems/poimap/pkg/geo"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Origin records who asked for a move.
type Origin int

const (
	OriginAuto Origin = iota
	OriginUser
)

func (o Origin) String() string {
	if o == OriginUser {
		return "user"
	}
	return "auto"
}

// MoveKind distinguishes the camera commands the controller emits.
type MoveKind int

const (
	MoveDirect MoveKind = iota
	MoveIntermediate
	MoveFinal
	MoveReassert
)

func (k MoveKind) String() string {
	switch k {
	case MoveDirect:
		return "direct"
	case MoveIntermediate:
		return "intermediate"
	case MoveFinal:
		return "final"
	case MoveReassert:
		return "reassert"
	default:
		return fmt.Sprintf("move(%d)", int(k))
	}
}

// Request is a camera request as received from callers.
type Request struct {
	Center geo.Location `json:"center"`
	Zoom   float64      `json:"zoom"`
	Origin Origin       `json:"origin"`
}

// Move is a command sent to the surface.
type Move struct {
	Center geo.Location `json:"center"`
	Zoom   float64      `json:"zoom"`
	Kind   MoveKind     `json:"kind"`
	Origin Origin       `json:"origin"`
	ViewID uuid.UUID    `json:"viewId"`
}

// Surface is the rendering surface. MoveCamera must not call back into
// RequestMove or OnViewReady synchronously.
type Surface interface {
	MoveCamera(Move)
}

// Options configures a Controller. Zero values select the defaults.
type Options struct {
	MinZoom     float64
	MaxZoom     float64
	InitialZoom float64
	Staged      StagedMovePolicy
	Reassert    ReassertPolicy
	Clock       clockwork.Clock
	Logger      *slog.Logger
	// OnMove observes every emitted move, after the surface.
	OnMove func(Move)
}

type phase int

const (
	phaseDetached phase = iota
	phaseNotReady
	phaseReady
	phaseClosed
)

func (p phase) String() string {
	switch p {
	case phaseDetached:
		return "detached"
	case phaseNotReady:
		return "not_ready"
	case phaseReady:
		return "ready"
	default:
		return "closed"
	}
}

// Controller owns the camera state for one map view.
type Controller struct {
	minZoom  float64
	maxZoom  float64
	staged   StagedMovePolicy
	reassert ReassertPolicy
	clock    clockwork.Clock
	logger   *slog.Logger
	onMove   func(Move)

	// emitMu serialises surface calls so moves arrive in the order planned
	emitMu sync.Mutex

	mu      sync.Mutex
	phase   phase
	surface Surface
	viewID  uuid.UUID
	pending *Request
	lastFix *geo.Location
	center  geo.Location
	zoom    float64

	followUp clockwork.Timer
	// gen invalidates follow-up moves planned before the latest request
	gen uint64
}

// NewController returns a detached controller.
func NewController(opts Options) *Controller {
	if opts.MinZoom == 0 && opts.MaxZoom == 0 {
		opts.MinZoom, opts.MaxZoom = DefaultMinZoom, DefaultMaxZoom
	}
	if opts.InitialZoom == 0 {
		opts.InitialZoom = DefaultInitialZoom
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Controller{
		minZoom:  opts.MinZoom,
		maxZoom:  opts.MaxZoom,
		staged:   opts.Staged.withDefaults(),
		reassert: opts.Reassert.withDefaults(),
		clock:    opts.Clock,
		logger:   opts.Logger.With("component", "viewport"),
		onMove:   opts.OnMove,
		zoom:     clamp(opts.InitialZoom, opts.MinZoom, opts.MaxZoom),
	}
}

// Attach mounts a surface. The controller becomes not ready until
// OnViewReady and the returned identity tags every move for this view.
func (c *Controller) Attach(surface Surface) uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == phaseClosed {
		return uuid.Nil
	}
	c.stopFollowUpLocked()
	c.surface = surface
	c.phase = phaseNotReady
	c.pending = nil
	c.viewID = uuid.New()
	c.logger.Debug("surface attached", "view_id", c.viewID)
	return c.viewID
}

// Detach unmounts the surface. Requests are ignored until the next Attach.
func (c *Controller) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == phaseClosed {
		return
	}
	c.stopFollowUpLocked()
	c.surface = nil
	c.phase = phaseDetached
	c.pending = nil
	c.viewID = uuid.Nil
}

// Resume resets the view state after the app returns from the background.
// The surface stays attached but must report ready again; the pending
// request and any follow-up moves are dropped and the view gets a new
// identity. The last fix and zoom are kept.
func (c *Controller) Resume() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == phaseClosed || c.phase == phaseDetached {
		return uuid.Nil
	}
	c.stopFollowUpLocked()
	c.phase = phaseNotReady
	c.pending = nil
	c.viewID = uuid.New()
	c.logger.Debug("viewport reset on resume", "view_id", c.viewID)
	return c.viewID
}

// Close stops all timers. Later calls are no-ops.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopFollowUpLocked()
	c.phase = phaseClosed
	c.surface = nil
	c.pending = nil
	c.viewID = uuid.Nil
}

// SetLastFix records the latest device position, used to recenter when the
// view becomes ready with nothing pending.
func (c *Controller) SetLastFix(loc geo.Location) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastFix = &loc
}

// RequestMove asks for the camera to move. It returns false when the
// request was ignored because no surface is attached.
func (c *Controller) RequestMove(center geo.Location, zoom float64, origin Origin) bool {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	req := Request{Center: center, Zoom: zoom, Origin: origin}

	c.mu.Lock()
	switch c.phase {
	case phaseDetached, phaseClosed:
		p := c.phase
		c.mu.Unlock()
		c.logger.Debug("ignoring move request", "phase", p.String())
		return false
	case phaseNotReady:
		req.Zoom = clamp(req.Zoom, c.minZoom, c.maxZoom)
		if c.pending != nil {
			c.logger.Debug("replacing pending move request")
		}
		c.pending = &req
		c.mu.Unlock()
		return true
	}
	surface, moves := c.surface, c.planLocked(req)
	c.mu.Unlock()

	c.emit(surface, moves)
	return true
}

// OnViewReady is called by the surface once it can accept moves. A pending
// request is issued; otherwise the camera recenters on the last fix.
func (c *Controller) OnViewReady() {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	if c.phase != phaseNotReady {
		c.mu.Unlock()
		return
	}
	c.phase = phaseReady

	var moves []Move
	switch {
	case c.pending != nil:
		req := *c.pending
		c.pending = nil
		moves = c.planLocked(req)
	case c.lastFix != nil:
		moves = c.planLocked(Request{Center: *c.lastFix, Zoom: c.zoom, Origin: OriginAuto})
	}
	surface := c.surface
	c.mu.Unlock()

	c.emit(surface, moves)
}

// OnCameraMoved records a camera change made on the surface, such as a user
// gesture. No command is emitted.
func (c *Controller) OnCameraMoved(center geo.Location, zoom float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != phaseReady {
		return
	}
	c.center = center
	c.zoom = clamp(zoom, c.minZoom, c.maxZoom)
}

// ZoomRange returns the bounds every requested zoom is clamped to.
func (c *Controller) ZoomRange() (lo, hi float64) {
	return c.minZoom, c.maxZoom
}

// CurrentZoom returns the zoom of the last issued move.
func (c *Controller) CurrentZoom() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.zoom
}

// CurrentCenter returns the center of the last issued move.
func (c *Controller) CurrentCenter() geo.Location {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.center
}

// Ready reports whether the surface is ready for moves.
func (c *Controller) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase == phaseReady
}

// Pending returns the queued request, if any.
func (c *Controller) Pending() (Request, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return Request{}, false
	}
	return *c.pending, true
}

// ViewID returns the identity of the attached view, or uuid.Nil.
func (c *Controller) ViewID() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewID
}

// planLocked returns the moves to emit now and schedules any follow-up.
func (c *Controller) planLocked(req Request) []Move {
	c.stopFollowUpLocked()
	c.gen++
	gen, viewID := c.gen, c.viewID

	target := clamp(req.Zoom, c.minZoom, c.maxZoom)
	c.center = req.Center

	if stage, ok := c.staged.Stage(c.zoom, target); ok {
		c.zoom = stage
		final := Move{Center: req.Center, Zoom: target, Kind: MoveFinal, Origin: req.Origin, ViewID: viewID}
		c.followUp = c.clock.AfterFunc(c.staged.Delay, func() {
			c.fireFollowUp(gen, final)
		})
		return []Move{{Center: req.Center, Zoom: stage, Kind: MoveIntermediate, Origin: req.Origin, ViewID: viewID}}
	}

	c.zoom = target
	direct := Move{Center: req.Center, Zoom: target, Kind: MoveDirect, Origin: req.Origin, ViewID: viewID}
	if !c.reassert.Disabled {
		again := direct
		again.Kind = MoveReassert
		c.followUp = c.clock.AfterFunc(c.reassert.Delay, func() {
			c.fireFollowUp(gen, again)
		})
	}
	return []Move{direct}
}

func (c *Controller) fireFollowUp(gen uint64, m Move) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	if gen != c.gen || c.phase != phaseReady || m.ViewID != c.viewID {
		c.mu.Unlock()
		return
	}
	c.followUp = nil
	c.zoom = m.Zoom
	c.center = m.Center
	surface := c.surface
	c.mu.Unlock()

	c.emit(surface, []Move{m})
}

func (c *Controller) stopFollowUpLocked() {
	if c.followUp != nil {
		c.followUp.Stop()
		c.followUp = nil
	}
	// a callback that already fired but is waiting on the lock sees a new gen
	c.gen++
}

func (c *Controller) emit(surface Surface, moves []Move) {
	if surface == nil {
		return
	}
	for _, m := range moves {
		c.logger.Debug("camera move",
			"kind", m.Kind.String(),
			"zoom", m.Zoom,
			"center", m.Center.String(),
			"origin", m.Origin.String(),
		)
		surface.MoveCamera(m)
		if c.onMove != nil {
			c.onMove(m)
		}
	}
}
