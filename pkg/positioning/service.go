package positioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NERVsystems/poimap/pkg/monitoring"
	"github.com/NERVsystems/poimap/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// DefaultTimeout bounds a single position read.
const DefaultTimeout = 12 * time.Second

// fixKey is the single singleflight key; every caller shares one query.
const fixKey = "fix"

// Config configures a Service.
type Config struct {
	Timeout time.Duration
	Logger  *slog.Logger
	// OnChange is called outside any lock after the state changes.
	OnChange func(State)
}

// Service drives the positioning state machine. At most one platform query
// is in flight; concurrent RequestFix calls share its result.
type Service struct {
	platform Platform
	timeout  time.Duration
	accuracy Accuracy
	logger   *slog.Logger
	onChange func(State)

	group singleflight.Group

	// lifetime of the service; queries run on it so that one caller
	// going away does not cancel the result for the others
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	state  State
	closed bool

	autoCentered atomic.Bool
}

// NewService creates a service in the Unknown state.
func NewService(platform Platform, cfg Config) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		platform: platform,
		timeout:  cfg.Timeout,
		accuracy: AccuracyHigh,
		logger:   cfg.Logger.With("component", "positioning"),
		onChange: cfg.OnChange,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// State returns the current state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RequestFix resolves the current position.
//
// When the permission is not yet determined, the user is prompted only if
// promptIfNeeded is true. If a query is already running, the caller waits
// for and returns its result instead of starting another one. If ctx ends
// first, a Failed state is returned to this caller only; the shared query
// keeps running and still updates the service state.
func (s *Service) RequestFix(ctx context.Context, promptIfNeeded bool) State {
	if s.isClosed() {
		return s.State()
	}

	ch := s.group.DoChan(fixKey, func() (any, error) {
		st := s.query(s.ctx, promptIfNeeded)
		s.apply(st)
		return st, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			s.logger.Debug("joined in-flight fix request")
		}
		return res.Val.(State)
	case <-ctx.Done():
		return Failed(fmt.Sprintf("request abandoned: %v", ctx.Err()))
	}
}

// AutoCenterOnLaunch makes the silent launch attempt. It never prompts for
// permission and runs at most once per service; later calls return the
// current state and false.
func (s *Service) AutoCenterOnLaunch(ctx context.Context) (State, bool) {
	if !s.autoCentered.CompareAndSwap(false, true) {
		return s.State(), false
	}
	return s.RequestFix(ctx, false), true
}

// OpenLocationSettings forwards to the platform.
func (s *Service) OpenLocationSettings(ctx context.Context) error {
	return s.platform.OpenLocationSettings(ctx)
}

// OpenAppSettings forwards to the platform.
func (s *Service) OpenAppSettings(ctx context.Context) error {
	return s.platform.OpenAppSettings(ctx)
}

// Close cancels in-flight queries. Their results are discarded.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
}

func (s *Service) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Service) apply(st State) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Debug("discarding fix result after close", "state", st.Kind.String())
		return
	}
	s.state = st
	onChange := s.onChange
	s.mu.Unlock()

	monitoring.RecordFix(st.Kind.String())
	if onChange != nil {
		onChange(st)
	}
}

// query runs the platform sequence. Platform errors and panics end in
// Failed; nothing escapes.
func (s *Service) query(ctx context.Context, prompt bool) (st State) {
	ctx, span := tracing.StartSpan(ctx, "positioning.request_fix",
		trace.WithAttributes(attribute.Bool(tracing.AttrFixPrompt, prompt)),
	)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("positioning platform panicked", "panic", r)
			st = Failed(fmt.Sprintf("positioning platform error: %v", r))
		}
		span.SetAttributes(attribute.String(tracing.AttrFixState, st.Kind.String()))
		if st.Kind == KindFailed {
			span.SetStatus(codes.Error, st.Reason)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	enabled, err := s.platform.ServiceEnabled(ctx)
	if err != nil {
		return Failed(fmt.Sprintf("checking location services: %v", err))
	}
	if !enabled {
		return State{Kind: KindServiceDisabled}
	}

	perm, err := s.platform.Permission(ctx)
	if err != nil {
		return Failed(fmt.Sprintf("checking location permission: %v", err))
	}
	if perm == PermissionNotDetermined && prompt {
		s.logger.Debug("requesting location permission")
		perm, err = s.platform.RequestPermission(ctx)
		if err != nil {
			return Failed(fmt.Sprintf("requesting location permission: %v", err))
		}
	}

	switch perm {
	case PermissionDeniedForever:
		return State{Kind: KindPermissionDeniedPermanently}
	case PermissionWhileInUse, PermissionAlways:
	default:
		return State{Kind: KindPermissionDenied}
	}

	fix, err := s.readPosition(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Failed(fmt.Sprintf("no position within %s", s.timeout))
		}
		return Failed(err.Error())
	}
	if fix.Timestamp.IsZero() {
		fix.Timestamp = time.Now()
	}
	s.logger.Debug("position fix", "location", fix.Location.String(), "accuracy_m", fix.Accuracy)
	return Authorized(fix)
}

type positionResult struct {
	fix Fix
	err error
}

// readPosition enforces the timeout even when the platform ignores ctx.
func (s *Service) readPosition(ctx context.Context) (Fix, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan positionResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- positionResult{err: fmt.Errorf("positioning platform error: %v", r)}
			}
		}()
		fix, err := s.platform.CurrentPosition(ctx, s.accuracy, s.timeout)
		done <- positionResult{fix: fix, err: err}
	}()

	select {
	case r := <-done:
		return r.fix, r.err
	case <-ctx.Done():
		return Fix{}, ctx.Err()
	}
}
