package content

import (
	"context"
	"errors"
	"testing"

	"github.com/NERVsystems/poimap/pkg/geo"
)

type fakeLauncher struct {
	links []string
	err   error
}

func (f *fakeLauncher) Launch(_ context.Context, link string) error {
	f.links = append(f.links, link)
	return f.err
}

type fakeViewer struct {
	pages []Page
}

func (f *fakeViewer) Show(_ context.Context, p Page) error {
	f.pages = append(f.pages, p)
	return nil
}

func TestRoute(t *testing.T) {
	tests := []struct {
		url  string
		want Destination
	}{
		{"https://example.org/about", InPage},
		{"http://example.org", InPage},
		{"HTTPS://EXAMPLE.ORG", InPage},
		{"/privacy", InPage},
		{"mailto:info@example.org", External},
		{"tel:+34944000000", External},
		{"whatsapp://send?text=hi", External},
		{"intent://scan/#Intent;scheme=zxing;end", External},
		{"http://[::1", Blocked},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := Route(tt.url); got != tt.want {
				t.Errorf("Route(%q) = %s, want %s", tt.url, got, tt.want)
			}
		})
	}
}

func TestNavigatorOpen(t *testing.T) {
	launcher := &fakeLauncher{}
	viewer := &fakeViewer{}
	nav := NewNavigator(launcher, viewer, nil)

	if dest, err := nav.Open(context.Background(), Page{Title: "About", URL: "https://example.org/about"}); err != nil || dest != InPage {
		t.Errorf("Open(https) = %s, %v", dest, err)
	}
	if dest, err := nav.Open(context.Background(), Page{Title: "Contact", URL: "mailto:info@example.org"}); err != nil || dest != External {
		t.Errorf("Open(mailto) = %s, %v", dest, err)
	}
	if _, err := nav.Open(context.Background(), Page{URL: "http://[::1"}); err == nil {
		t.Error("Open(unparseable) expected error")
	}

	if len(viewer.pages) != 1 || viewer.pages[0].Title != "About" {
		t.Errorf("viewer got %v", viewer.pages)
	}
	if len(launcher.links) != 1 || launcher.links[0] != "mailto:info@example.org" {
		t.Errorf("launcher got %v", launcher.links)
	}
}

func TestNavigatorWithoutViewerLaunchesEverything(t *testing.T) {
	launcher := &fakeLauncher{}
	nav := NewNavigator(launcher, nil, nil)

	dest, err := nav.Open(context.Background(), Page{URL: "https://example.org"})
	if err != nil || dest != External {
		t.Errorf("Open() = %s, %v; want external", dest, err)
	}
}

func TestNavigate(t *testing.T) {
	launcher := &fakeLauncher{}
	nav := NewNavigator(launcher, nil, nil)

	link, err := nav.Navigate(context.Background(), geo.Location{Latitude: 43.263, Longitude: -2.935})
	if err != nil {
		t.Fatal(err)
	}
	want := "https://www.google.com/maps/search/?api=1&query=43.263,-2.935"
	if link != want || len(launcher.links) != 1 || launcher.links[0] != want {
		t.Errorf("Navigate() = %q, launched %v; want %q", link, launcher.links, want)
	}

	launcher.err = errors.New("no handler")
	if _, err := nav.Navigate(context.Background(), geo.Location{}); err == nil {
		t.Error("Navigate() expected launcher error")
	}
}
