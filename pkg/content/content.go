// Package content decides where a link opened from a content page goes:
// inside the page viewer or out to an external handler.
package content

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/NERVsystems/poimap/pkg/core"
	"github.com/NERVsystems/poimap/pkg/geo"
)

// Destination is where a navigation is sent.
type Destination int

const (
	// InPage loads the link in the page viewer.
	InPage Destination = iota
	// External hands the link to the platform (mail, dialer, browser).
	External
	// Blocked drops a link that cannot be parsed.
	Blocked
)

func (d Destination) String() string {
	switch d {
	case InPage:
		return "in_page"
	case External:
		return "external"
	default:
		return "blocked"
	}
}

// Page is a titled page shown in the viewer.
type Page struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Route classifies a navigation. Only http and https links, and links
// relative to the current page, stay in the viewer. mailto:, tel: and any
// other scheme go to an external handler.
func Route(raw string) Destination {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Blocked
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "":
		return InPage
	default:
		return External
	}
}

// Launcher opens links outside the app.
type Launcher interface {
	Launch(ctx context.Context, link string) error
}

// Viewer shows pages in-app.
type Viewer interface {
	Show(ctx context.Context, page Page) error
}

// Navigator applies Route to every navigation.
type Navigator struct {
	launcher Launcher
	viewer   Viewer
	logger   *slog.Logger
}

// NewNavigator creates a navigator. viewer may be nil, in which case every
// link is launched externally.
func NewNavigator(launcher Launcher, viewer Viewer, logger *slog.Logger) *Navigator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Navigator{launcher: launcher, viewer: viewer, logger: logger.With("component", "content")}
}

// Open shows page in the viewer, or hands it to the launcher when its URL
// must not load in-page.
func (n *Navigator) Open(ctx context.Context, page Page) (Destination, error) {
	dest := Route(page.URL)
	if dest == InPage && n.viewer == nil {
		dest = External
	}
	n.logger.Debug("opening page", "title", page.Title, "url", page.URL, "destination", dest.String())

	switch dest {
	case InPage:
		return dest, n.viewer.Show(ctx, page)
	case External:
		return dest, n.launch(ctx, page.URL)
	default:
		return dest, core.NewError(core.ErrInvalidInput, fmt.Sprintf("cannot open link %q", page.URL))
	}
}

// Navigate hands the maps search link for loc to the launcher and returns it.
func (n *Navigator) Navigate(ctx context.Context, loc geo.Location) (string, error) {
	link := geo.NavigationURL(loc)
	return link, n.launch(ctx, link)
}

func (n *Navigator) launch(ctx context.Context, link string) error {
	if n.launcher == nil {
		return core.NewError(core.ErrServiceUnavailable, "no external handler available")
	}
	if err := n.launcher.Launch(ctx, link); err != nil {
		return fmt.Errorf("launching %s: %w", link, err)
	}
	return nil
}

// LogLauncher records launches in the log. It stands in for the platform
// handler when running headless.
type LogLauncher struct {
	Logger *slog.Logger
}

func (l LogLauncher) Launch(ctx context.Context, link string) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "external link", "url", link)
	return nil
}
