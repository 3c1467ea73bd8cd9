package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/poimap/pkg/catalog"
	"github.com/NERVsystems/poimap/pkg/content"
	"github.com/NERVsystems/poimap/pkg/core"
	"github.com/NERVsystems/poimap/pkg/geo"
	"github.com/NERVsystems/poimap/pkg/positioning"
	"github.com/NERVsystems/poimap/pkg/session"
	"github.com/NERVsystems/poimap/pkg/tiles"
	"github.com/NERVsystems/poimap/pkg/viewport"
)

const testDataset = "id,name,lat,lng,description\n" +
	"guggenheim,Guggenheim,43.2687,-2.9340,Museum\n" +
	"arriaga,Teatro Arriaga,43.2594,-2.9254,Theatre\n" +
	"madrid,Puerta del Sol,40.4168,-3.7038,\n"

type nopSurface struct{}

func (nopSurface) MoveCamera(viewport.Move) {}

type nopLauncher struct{}

func (nopLauncher) Launch(context.Context, string) error { return nil }

// newTestRegistry wires a session to a dataset server and a tile server
// that fails every tile with an odd x.
func newTestRegistry(t *testing.T, platform *positioning.StaticPlatform) *Registry {
	t.Helper()

	data := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testDataset))
	}))
	t.Cleanup(data.Close)

	tileSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
		if len(parts) == 3 {
			if x, err := strconv.Atoi(parts[1]); err == nil && x%2 == 1 {
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.Write([]byte("png"))
	}))
	t.Cleanup(tileSrv.Close)

	store := catalog.NewStore()
	view := viewport.NewController(viewport.Options{})
	view.Attach(nopSurface{})
	view.OnViewReady()
	monitor := tiles.NewHealthMonitor(tiles.MonitorOptions{})

	sess := session.New(session.Options{
		Store:       store,
		Loader:      catalog.NewLoader(catalog.LoaderConfig{URL: data.URL, Timeout: 2 * time.Second}, store),
		Positioning: positioning.NewService(platform, positioning.Config{Timeout: time.Second}),
		Viewport:    view,
		TileHealth:  monitor,
		Fetcher: tiles.NewFetcher(tiles.FetcherConfig{
			Source: tiles.Source{URLTemplate: tileSrv.URL + "/{z}/{x}/{y}.png"},
			RPS:    1000,
			Burst:  1000,
			Retry:  core.SingleAttempt,
		}, monitor),
		Navigator: content.NewNavigator(nopLauncher{}, nil, nil),
	})
	t.Cleanup(sess.Close)

	return NewRegistry(nil, sess)
}

func newRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

var bilbao = geo.Location{Latitude: 43.263, Longitude: -2.935}

// IsErrorResult checks if a CallToolResult represents an error
func IsErrorResult(result *mcp.CallToolResult) bool {
	return result != nil && result.IsError
}

// AssertErrorResult checks that a result is an error result and fails the test if not
func AssertErrorResult(t *testing.T, result *mcp.CallToolResult, message string) {
	t.Helper()
	if !IsErrorResult(result) {
		t.Error(message)
	}
}

// AssertSuccessResult checks that a result is a success result and fails the test if not
func AssertSuccessResult(t *testing.T, result *mcp.CallToolResult, message string) {
	t.Helper()
	if IsErrorResult(result) {
		t.Errorf("%s. Got error: %s", message, resultText(result))
	}
}

func resultText(result *mcp.CallToolResult) string {
	for _, c := range result.Content {
		if text, ok := c.(mcp.TextContent); ok {
			return text.Text
		}
	}
	return ""
}

// ParseResultJSON parses the JSON content from a CallToolResult
func ParseResultJSON(result *mcp.CallToolResult, out any) error {
	return json.Unmarshal([]byte(resultText(result)), out)
}

// errorCode extracts the code of a *core.Error rendered into a result.
func errorCode(t *testing.T, result *mcp.CallToolResult) core.ErrorCode {
	t.Helper()
	var e core.Error
	if err := ParseResultJSON(result, &e); err != nil {
		t.Fatalf("error result is not a coded error: %q", resultText(result))
	}
	return e.Code
}
