package positioning

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NERVsystems/poimap/pkg/core"
	"github.com/NERVsystems/poimap/pkg/geo"
)

var bilbao = geo.Location{Latitude: 43.263, Longitude: -2.935}

// blockingPlatform holds CurrentPosition until release is closed.
type blockingPlatform struct {
	*StaticPlatform
	release chan struct{}
	entered chan struct{}
	calls   atomic.Int32
}

func newBlockingPlatform() *blockingPlatform {
	return &blockingPlatform{
		StaticPlatform: NewStaticPlatform(&bilbao),
		release:        make(chan struct{}),
		entered:        make(chan struct{}, 16),
	}
}

func (p *blockingPlatform) CurrentPosition(ctx context.Context, accuracy Accuracy, timeout time.Duration) (Fix, error) {
	p.calls.Add(1)
	p.entered <- struct{}{}
	select {
	case <-p.release:
	case <-ctx.Done():
		return Fix{}, ctx.Err()
	}
	return p.StaticPlatform.CurrentPosition(ctx, accuracy, timeout)
}

type panickingPlatform struct{ *StaticPlatform }

func (panickingPlatform) Permission(context.Context) (Permission, error) {
	panic("platform exploded")
}

func TestRequestFixStates(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(p *StaticPlatform)
		prompt    bool
		wantKind  Kind
		wantCode  core.ErrorCode
		wantAsked int
	}{
		{
			name:     "authorized",
			setup:    func(p *StaticPlatform) {},
			wantKind: KindAuthorized,
		},
		{
			name:     "service disabled",
			setup:    func(p *StaticPlatform) { p.SetEnabled(false) },
			prompt:   true,
			wantKind: KindServiceDisabled,
			wantCode: core.ErrPositioningServiceDisabled,
		},
		{
			name:     "denied",
			setup:    func(p *StaticPlatform) { p.SetPermission(PermissionDenied) },
			prompt:   true,
			wantKind: KindPermissionDenied,
			wantCode: core.ErrPositioningPermissionDenied,
		},
		{
			name:     "denied forever",
			setup:    func(p *StaticPlatform) { p.SetPermission(PermissionDeniedForever) },
			prompt:   true,
			wantKind: KindPermissionDeniedPermanently,
			wantCode: core.ErrPositioningPermissionPermanent,
		},
		{
			name: "prompt grants",
			setup: func(p *StaticPlatform) {
				p.SetPermission(PermissionNotDetermined)
				p.SetPermissionOnRequest(PermissionAlways)
			},
			prompt:    true,
			wantKind:  KindAuthorized,
			wantAsked: 1,
		},
		{
			name: "prompt refused",
			setup: func(p *StaticPlatform) {
				p.SetPermission(PermissionNotDetermined)
				p.SetPermissionOnRequest(PermissionDenied)
			},
			prompt:    true,
			wantKind:  KindPermissionDenied,
			wantCode:  core.ErrPositioningPermissionDenied,
			wantAsked: 1,
		},
		{
			name:     "no prompt leaves undetermined permission denied",
			setup:    func(p *StaticPlatform) { p.SetPermission(PermissionNotDetermined) },
			prompt:   false,
			wantKind: KindPermissionDenied,
			wantCode: core.ErrPositioningPermissionDenied,
		},
		{
			name:     "platform error",
			setup:    func(p *StaticPlatform) { p.SetError(errors.New("gps offline")) },
			wantKind: KindFailed,
			wantCode: core.ErrPositioningFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewStaticPlatform(&bilbao)
			tt.setup(p)
			svc := NewService(p, Config{})
			defer svc.Close()

			st := svc.RequestFix(context.Background(), tt.prompt)
			if st.Kind != tt.wantKind {
				t.Fatalf("RequestFix() = %s, want %s", st, tt.wantKind)
			}
			if svc.State().Kind != tt.wantKind {
				t.Errorf("State() = %s, want %s", svc.State(), tt.wantKind)
			}
			if got := p.PermissionRequests(); got != tt.wantAsked {
				t.Errorf("permission requested %d times, want %d", got, tt.wantAsked)
			}

			if tt.wantKind == KindAuthorized {
				if st.Fix == nil || st.Fix.Location != bilbao {
					t.Errorf("Fix = %+v, want %v", st.Fix, bilbao)
				}
				if st.Err() != nil {
					t.Errorf("Err() = %v, want nil", st.Err())
				}
				return
			}
			if code := core.CodeOf(st.Err()); code != tt.wantCode {
				t.Errorf("Err() code = %s, want %s", code, tt.wantCode)
			}
			if core.GuidanceOf(st.Err()) == "" {
				t.Error("Err() has no remedy guidance")
			}
		})
	}
}

func TestRequestFixWithoutPromptNeverAsks(t *testing.T) {
	p := NewStaticPlatform(&bilbao)
	p.SetPermission(PermissionNotDetermined)
	svc := NewService(p, Config{})
	defer svc.Close()

	for i := 0; i < 3; i++ {
		st := svc.RequestFix(context.Background(), false)
		if st.Kind == KindAuthorized {
			t.Fatalf("RequestFix(false) = %s, want a non-authorized state", st)
		}
	}
	if n := p.PermissionRequests(); n != 0 {
		t.Errorf("permission requested %d times, want 0", n)
	}
	if n := p.PositionRequests(); n != 0 {
		t.Errorf("position read %d times, want 0", n)
	}
}

func TestConcurrentRequestsShareOneQuery(t *testing.T) {
	p := newBlockingPlatform()
	svc := NewService(p, Config{})
	defer svc.Close()

	const callers = 5
	results := make(chan State, callers)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		results <- svc.RequestFix(context.Background(), true)
	}()
	<-p.entered

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- svc.RequestFix(context.Background(), true)
		}()
	}

	// let the joiners reach the in-flight call before it completes
	time.Sleep(50 * time.Millisecond)
	close(p.release)
	wg.Wait()
	close(results)

	for st := range results {
		if st.Kind != KindAuthorized {
			t.Errorf("caller got %s, want authorized", st)
		}
	}
	if n := p.calls.Load(); n != 1 {
		t.Errorf("platform queried %d times, want 1", n)
	}
}

func TestAutoCenterOnLaunchRunsOnce(t *testing.T) {
	p := NewStaticPlatform(&bilbao)
	p.SetPermission(PermissionNotDetermined)
	svc := NewService(p, Config{})
	defer svc.Close()

	st, attempted := svc.AutoCenterOnLaunch(context.Background())
	if !attempted {
		t.Fatal("first AutoCenterOnLaunch should attempt")
	}
	if st.Kind != KindPermissionDenied {
		t.Errorf("AutoCenterOnLaunch() = %s, want permission_denied", st)
	}

	p.SetPermission(PermissionWhileInUse)
	if _, attempted := svc.AutoCenterOnLaunch(context.Background()); attempted {
		t.Error("second AutoCenterOnLaunch should not attempt")
	}
	if p.PermissionRequests() != 0 {
		t.Error("auto-center prompted for permission")
	}
	if p.PositionRequests() != 0 {
		t.Error("second auto-center read a position")
	}
}

func TestTimeoutEndsInFailed(t *testing.T) {
	p := newBlockingPlatform()
	svc := NewService(p, Config{Timeout: 30 * time.Millisecond})
	defer svc.Close()

	st := svc.RequestFix(context.Background(), true)
	if st.Kind != KindFailed {
		t.Fatalf("RequestFix() = %s, want failed", st)
	}
	if st.Remedy() != RemedyRetry {
		t.Errorf("Remedy() = %d, want RemedyRetry", st.Remedy())
	}
}

func TestCloseDiscardsInFlightResult(t *testing.T) {
	p := newBlockingPlatform()
	var changes atomic.Int32
	svc := NewService(p, Config{OnChange: func(State) { changes.Add(1) }})

	done := make(chan State, 1)
	go func() { done <- svc.RequestFix(context.Background(), true) }()
	<-p.entered

	svc.Close()
	<-done

	if svc.State().Kind != KindUnknown {
		t.Errorf("State() = %s after close, want unknown", svc.State())
	}
	if changes.Load() != 0 {
		t.Errorf("OnChange called %d times after close", changes.Load())
	}
	if st := svc.RequestFix(context.Background(), true); st.Kind != KindUnknown {
		t.Errorf("RequestFix after close = %s, want unknown", st)
	}
}

func TestCallerCancellationDoesNotCancelSharedQuery(t *testing.T) {
	p := newBlockingPlatform()
	svc := NewService(p, Config{})
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan State, 1)
	go func() { done <- svc.RequestFix(ctx, true) }()
	<-p.entered

	cancel()
	if st := <-done; st.Kind != KindFailed {
		t.Errorf("abandoned caller got %s, want failed", st)
	}

	close(p.release)
	st := svc.RequestFix(context.Background(), true)
	if st.Kind != KindAuthorized {
		t.Errorf("RequestFix() = %s, want authorized", st)
	}
}

func TestPlatformPanicBecomesFailed(t *testing.T) {
	svc := NewService(panickingPlatform{NewStaticPlatform(&bilbao)}, Config{})
	defer svc.Close()

	st := svc.RequestFix(context.Background(), true)
	if st.Kind != KindFailed {
		t.Errorf("RequestFix() = %s, want failed", st)
	}
}

func TestOnChangeReceivesState(t *testing.T) {
	var got []Kind
	svc := NewService(NewStaticPlatform(nil), Config{OnChange: func(st State) { got = append(got, st.Kind) }})
	defer svc.Close()

	svc.RequestFix(context.Background(), true)
	if len(got) != 1 || got[0] != KindServiceDisabled {
		t.Errorf("OnChange got %v, want [service_disabled]", got)
	}
}

func TestRemedies(t *testing.T) {
	tests := []struct {
		state State
		want  Remedy
	}{
		{State{Kind: KindServiceDisabled}, RemedyOpenLocationSettings},
		{State{Kind: KindPermissionDeniedPermanently}, RemedyOpenAppSettings},
		{State{Kind: KindPermissionDenied}, RemedyRetry},
		{Failed("x"), RemedyRetry},
		{Authorized(Fix{}), RemedyNone},
		{State{}, RemedyNone},
	}
	for _, tt := range tests {
		t.Run(tt.state.Kind.String(), func(t *testing.T) {
			if got := tt.state.Remedy(); got != tt.want {
				t.Errorf("Remedy() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSettingsAffordances(t *testing.T) {
	p := NewStaticPlatform(&bilbao)
	svc := NewService(p, Config{})
	defer svc.Close()

	if err := svc.OpenLocationSettings(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := svc.OpenAppSettings(context.Background()); err != nil {
		t.Fatal(err)
	}
	got := p.SettingsOpened()
	if len(got) != 2 || got[0] != "location" || got[1] != "app" {
		t.Errorf("SettingsOpened() = %v", got)
	}
}
