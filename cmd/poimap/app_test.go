package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/NERVsystems/poimap/pkg/config"
	"github.com/NERVsystems/poimap/pkg/monitoring"
	"github.com/NERVsystems/poimap/pkg/positioning"
)

func testConfig(datasetURL, tileURL string) *config.Config {
	return &config.Config{
		Dataset: config.DatasetConfig{URL: datasetURL, Timeout: 2 * time.Second},
		Tiles: config.TilesConfig{
			URLTemplate: tileURL + "/{z}/{x}/{y}.png",
			RPS:         100,
			Burst:       100,
			CacheSize:   16,
			CacheTTL:    time.Minute,
			Debounce:    10 * time.Millisecond,
		},
		Viewport:    config.ViewportConfig{MinZoom: 3, MaxZoom: 19},
		Positioning: config.PositioningConfig{Timeout: time.Second, StaticFix: "43.263,-2.935"},
		Monitoring:  config.MonitoringConfig{Enabled: true, Addr: "127.0.0.1:0"},
		Log:         config.LogConfig{Level: "info", Format: "text"},
	}
}

func TestAppStart(t *testing.T) {
	data := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "id,name,lat,lng\nguggenheim,Guggenheim,43.2687,-2.9340\n")
	}))
	defer data.Close()
	tileSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer tileSrv.Close()

	hc := monitoring.NewHealthChecker(monitoring.ServiceName, "test")
	defer hc.Shutdown()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := newApp(testConfig(data.URL, tileSrv.URL), hc, logger)
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.Close()

	a.Start(context.Background())

	if n := a.session.Catalog().Len(); n != 1 {
		t.Errorf("catalog has %d locations, want 1", n)
	}
	if st := a.session.Positioning(); st.Kind != positioning.KindAuthorized {
		t.Errorf("positioning = %s, want authorized", st)
	}
	if err := a.checkTileSource(); err != nil {
		t.Errorf("checkTileSource() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c, ok := hc.GetHealth().Components["tile_source"]; ok {
			if c.Status != monitoring.StatusConnected {
				t.Errorf("tile_source status = %s", c.Status)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("tile_source was never reported")
}

func TestAppStartSurvivesDatasetFailure(t *testing.T) {
	data := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer data.Close()

	cfg := testConfig(data.URL, data.URL)
	cfg.Positioning.StaticFix = ""

	a, err := newApp(cfg, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.Close()

	a.Start(context.Background())

	if n := a.session.Catalog().Len(); n != 0 {
		t.Errorf("catalog has %d locations, want 0", n)
	}
	if st := a.session.Positioning(); st.Kind == positioning.KindAuthorized {
		t.Errorf("positioning = %s with location services off", st)
	}
	if err := a.checkTileSource(); err == nil {
		t.Error("checkTileSource() succeeded against a failing server")
	}
}

func TestNewAppRejectsBadStaticFix(t *testing.T) {
	cfg := testConfig("https://example.org/a.csv", "https://tiles.example.org")
	cfg.Positioning.StaticFix = "somewhere"
	if _, err := newApp(cfg, nil, nil); err == nil {
		t.Fatal("newApp() accepted an unparseable static fix")
	}
}
