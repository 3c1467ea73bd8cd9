// Package positioning wraps the device location capability behind an
// explicit permission and result state machine.
package positioning

import (
	"context"
	"fmt"
	"time"

	"github.com/NERVsystems/poimap/pkg/core"
	"github.com/NERVsystems/poimap/pkg/geo"
)

// Permission is the location permission grant reported by the platform.
type Permission int

const (
	PermissionNotDetermined Permission = iota
	PermissionDenied
	PermissionDeniedForever
	PermissionWhileInUse
	PermissionAlways
)

func (p Permission) String() string {
	switch p {
	case PermissionNotDetermined:
		return "not_determined"
	case PermissionDenied:
		return "denied"
	case PermissionDeniedForever:
		return "denied_forever"
	case PermissionWhileInUse:
		return "while_in_use"
	case PermissionAlways:
		return "always"
	default:
		return fmt.Sprintf("permission(%d)", int(p))
	}
}

// Granted reports whether the grant allows reading a position.
func (p Permission) Granted() bool {
	return p == PermissionWhileInUse || p == PermissionAlways
}

// Accuracy is the desired accuracy passed to the platform.
type Accuracy int

const (
	AccuracyLow Accuracy = iota
	AccuracyMedium
	AccuracyHigh
	AccuracyBest
)

// Fix is a single resolved device position.
type Fix struct {
	Location  geo.Location `json:"location"`
	Accuracy  float64      `json:"accuracyMeters,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// Platform is the device location capability. Implementations must be safe
// for concurrent use.
type Platform interface {
	ServiceEnabled(ctx context.Context) (bool, error)
	Permission(ctx context.Context) (Permission, error)
	// RequestPermission prompts the user and returns the resulting grant.
	RequestPermission(ctx context.Context) (Permission, error)
	CurrentPosition(ctx context.Context, accuracy Accuracy, timeout time.Duration) (Fix, error)
	OpenLocationSettings(ctx context.Context) error
	OpenAppSettings(ctx context.Context) error
}

// Kind tags the variant held by a State.
type Kind int

const (
	KindUnknown Kind = iota
	KindServiceDisabled
	KindPermissionDenied
	KindPermissionDeniedPermanently
	KindAuthorized
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindUnknown:
		return "unknown"
	case KindServiceDisabled:
		return "service_disabled"
	case KindPermissionDenied:
		return "permission_denied"
	case KindPermissionDeniedPermanently:
		return "permission_denied_permanently"
	case KindAuthorized:
		return "authorized"
	case KindFailed:
		return "failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// State is the positioning state. Fix is set only for KindAuthorized and
// Reason only for KindFailed.
type State struct {
	Kind   Kind   `json:"kind"`
	Fix    *Fix   `json:"fix,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Authorized returns the state holding fix.
func Authorized(fix Fix) State { return State{Kind: KindAuthorized, Fix: &fix} }

// Failed returns a failure state with reason.
func Failed(reason string) State { return State{Kind: KindFailed, Reason: reason} }

func (s State) String() string {
	switch s.Kind {
	case KindAuthorized:
		return fmt.Sprintf("authorized(%s)", s.Fix.Location)
	case KindFailed:
		return fmt.Sprintf("failed(%s)", s.Reason)
	default:
		return s.Kind.String()
	}
}

// Remedy is the action a caller can offer the user for a state.
type Remedy int

const (
	RemedyNone Remedy = iota
	RemedyRetry
	RemedyOpenLocationSettings
	RemedyOpenAppSettings
)

func (r Remedy) String() string {
	switch r {
	case RemedyRetry:
		return "retry"
	case RemedyOpenLocationSettings:
		return "open_location_settings"
	case RemedyOpenAppSettings:
		return "open_app_settings"
	default:
		return "none"
	}
}

// Remedy returns the affordance that fits the state.
func (s State) Remedy() Remedy {
	switch s.Kind {
	case KindServiceDisabled:
		return RemedyOpenLocationSettings
	case KindPermissionDeniedPermanently:
		return RemedyOpenAppSettings
	case KindPermissionDenied, KindFailed:
		return RemedyRetry
	default:
		return RemedyNone
	}
}

// Err converts a non-authorized state to a coded error with a short
// user-facing remedy. It returns nil for KindAuthorized.
func (s State) Err() error {
	switch s.Kind {
	case KindAuthorized:
		return nil
	case KindServiceDisabled:
		return core.NewError(core.ErrPositioningServiceDisabled, "location services are turned off").
			WithGuidance("Turn on location services in the system settings.")
	case KindPermissionDenied:
		return core.NewError(core.ErrPositioningPermissionDenied, "location permission was not granted").
			WithGuidance("Allow location access to find places near you.")
	case KindPermissionDeniedPermanently:
		return core.NewError(core.ErrPositioningPermissionPermanent, "location permission is permanently denied").
			WithGuidance("Enable location access for this app in the app settings.")
	case KindFailed:
		return core.NewError(core.ErrPositioningFailed, s.Reason).
			WithGuidance("Your position could not be determined. Try again in a moment.")
	default:
		return core.NewError(core.ErrPositioningUnavailable, "no position has been requested yet").
			WithGuidance("Request your position first.")
	}
}
