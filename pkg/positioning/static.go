package positioning

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/NERVsystems/poimap/pkg/geo"
)

// ErrNoPosition is returned by StaticPlatform when no position is set.
var ErrNoPosition = errors.New("no position available")

// StaticPlatform is a Platform backed by fixed values. The CLI uses it to
// run the engine headless and tests use it to script the device.
type StaticPlatform struct {
	mu sync.Mutex

	enabled    bool
	permission Permission
	onRequest  Permission
	location   *geo.Location
	accuracy   float64
	err        error

	permissionRequests int
	positionRequests   int
	settingsOpened     []string
}

// NewStaticPlatform returns an enabled, authorized platform reporting loc.
// A nil loc leaves location services disabled.
func NewStaticPlatform(loc *geo.Location) *StaticPlatform {
	p := &StaticPlatform{
		permission: PermissionWhileInUse,
		onRequest:  PermissionWhileInUse,
	}
	if loc != nil {
		l := *loc
		p.location = &l
		p.enabled = true
	}
	return p
}

func (p *StaticPlatform) SetEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = enabled
}

func (p *StaticPlatform) SetPermission(perm Permission) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.permission = perm
}

// SetPermissionOnRequest sets the grant the user "chooses" when prompted.
func (p *StaticPlatform) SetPermissionOnRequest(perm Permission) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onRequest = perm
}

func (p *StaticPlatform) SetLocation(loc geo.Location, accuracy float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.location = &loc
	p.accuracy = accuracy
}

// SetError makes CurrentPosition fail with err. A nil err clears it.
func (p *StaticPlatform) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// PermissionRequests returns how many times the user was prompted.
func (p *StaticPlatform) PermissionRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.permissionRequests
}

// PositionRequests returns how many positions were read.
func (p *StaticPlatform) PositionRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionRequests
}

// SettingsOpened returns the settings screens opened, in order.
func (p *StaticPlatform) SettingsOpened() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.settingsOpened...)
}

func (p *StaticPlatform) ServiceEnabled(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled, nil
}

func (p *StaticPlatform) Permission(ctx context.Context) (Permission, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.permission, nil
}

func (p *StaticPlatform) RequestPermission(ctx context.Context) (Permission, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.permissionRequests++
	if p.permission == PermissionNotDetermined {
		p.permission = p.onRequest
	}
	return p.permission, nil
}

func (p *StaticPlatform) CurrentPosition(ctx context.Context, accuracy Accuracy, timeout time.Duration) (Fix, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positionRequests++
	if p.err != nil {
		return Fix{}, p.err
	}
	if p.location == nil {
		return Fix{}, ErrNoPosition
	}
	return Fix{Location: *p.location, Accuracy: p.accuracy, Timestamp: time.Now()}, nil
}

func (p *StaticPlatform) OpenLocationSettings(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settingsOpened = append(p.settingsOpened, "location")
	return nil
}

func (p *StaticPlatform) OpenAppSettings(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settingsOpened = append(p.settingsOpened, "app")
	return nil
}
