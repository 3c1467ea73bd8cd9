package catalog

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NERVsystems/poimap/pkg/core"
)

const validDataset = "id,name,lat,lng,address\n" +
	"1,Louvre,48.8606,2.3376,Rue de Rivoli\n" +
	"2,Orsay,48.86,2.3266,\n" +
	"3,,48.0,2.0,no name\n"

func newTestLoader(t *testing.T, handler http.HandlerFunc) (*Loader, *Store) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store := NewStore()
	return NewLoader(LoaderConfig{URL: srv.URL, Timeout: 2 * time.Second}, store), store
}

func TestLoaderRefresh(t *testing.T) {
	loader, store := newTestLoader(t, func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != core.UserAgent {
			t.Errorf("User-Agent = %q, want %q", ua, core.UserAgent)
		}
		w.Write([]byte(validDataset))
	})

	res, err := loader.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if len(res.Accepted) != 2 || res.Rejected != 1 {
		t.Errorf("Refresh() accepted %d rejected %d, want 2 and 1", len(res.Accepted), res.Rejected)
	}

	cur := store.Current()
	if cur.Len() != 2 {
		t.Fatalf("store has %d records, want 2", cur.Len())
	}
	if cur.Records[0].ID != "1" || cur.Records[1].ID != "2" {
		t.Errorf("records out of source order: %s, %s", cur.Records[0].ID, cur.Records[1].ID)
	}
	if cur.Source != loader.URL() {
		t.Errorf("Source = %q, want %q", cur.Source, loader.URL())
	}
}

func TestLoaderFailuresKeepPreviousCatalog(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		wantCode core.ErrorCode
	}{
		{
			name: "http status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			wantCode: core.ErrIngestionHTTPStatus,
		},
		{
			name: "empty body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("  \n"))
			},
			wantCode: core.ErrIngestionEmpty,
		},
		{
			name: "header only",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("id,name,lat,lng\n"))
			},
			wantCode: core.ErrIngestionEmpty,
		},
		{
			name: "missing columns",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("id,name,lat\n1,a,2\n"))
			},
			wantCode: core.ErrMissingRequiredColumns,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader, store := newTestLoader(t, tt.handler)
			previous := &Catalog{Records: []LocationRecord{rec("old", 1, 1)}}
			store.Replace(previous)

			_, err := loader.Refresh(context.Background())
			if err == nil {
				t.Fatal("Refresh() expected error")
			}
			if code := core.CodeOf(err); code != tt.wantCode {
				t.Errorf("error code = %s, want %s", code, tt.wantCode)
			}
			if core.GuidanceOf(err) == "" {
				t.Error("error carries no user-facing guidance")
			}
			if store.Current() != previous {
				t.Error("failed refresh replaced the catalog")
			}
		})
	}
}

func TestLoaderMissingColumnsMatchesSentinel(t *testing.T) {
	loader, _ := newTestLoader(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("id,name,lat\n1,a,2\n"))
	})
	_, err := loader.Refresh(context.Background())
	if !errors.Is(err, ErrMissingRequiredColumns) {
		t.Errorf("error = %v, want ErrMissingRequiredColumns", err)
	}
}

func TestLoaderNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	store := NewStore()
	loader := NewLoader(LoaderConfig{URL: url, Timeout: time.Second}, store)

	_, err := loader.Refresh(context.Background())
	if code := core.CodeOf(err); code != core.ErrIngestionNetwork {
		t.Errorf("error code = %s, want %s", code, core.ErrIngestionNetwork)
	}
	if store.Current().Len() != 0 {
		t.Error("store should remain empty")
	}
}

func TestLoaderSingleAttempt(t *testing.T) {
	var hits atomic.Int32
	loader, _ := newTestLoader(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	if _, err := loader.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh() expected error")
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("server hit %d times, want 1", n)
	}
}

func TestLoaderDiscardsWhenCallerGone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	loader, store := newTestLoader(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(validDataset))
		cancel()
	})

	if _, err := loader.Refresh(ctx); err == nil {
		t.Fatal("Refresh() expected error for cancelled caller")
	}
	if store.Current().Len() != 0 {
		t.Error("result of an abandoned refresh was applied")
	}
}

// slowFirstServer holds the first request until release is closed and
// answers every later request with second.
func slowFirstServer(t *testing.T, second http.HandlerFunc) (*Loader, *Store, chan struct{}, chan struct{}) {
	t.Helper()
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	loader, store := newTestLoader(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
			w.Write([]byte(validDataset))
			return
		}
		second(w, r)
	})
	return loader, store, entered, release
}

type refreshResult struct {
	res Result
	err error
}

func TestLoaderOlderRefreshInstallsWhenNewerFails(t *testing.T) {
	loader, store, entered, release := slowFirstServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	})

	first := make(chan refreshResult, 1)
	go func() {
		res, err := loader.Refresh(context.Background())
		first <- refreshResult{res, err}
	}()
	<-entered

	if _, err := loader.Refresh(context.Background()); core.CodeOf(err) != core.ErrIngestionHTTPStatus {
		t.Fatalf("second Refresh() error = %v, want %s", err, core.ErrIngestionHTTPStatus)
	}
	close(release)

	got := <-first
	if got.err != nil {
		t.Fatalf("first Refresh() error = %v", got.err)
	}
	if store.Current().Len() != len(got.res.Accepted) || store.Current().Len() != 2 {
		t.Errorf("store has %d records, first refresh accepted %d", store.Current().Len(), len(got.res.Accepted))
	}
}

func TestLoaderOlderRefreshSupersededByNewer(t *testing.T) {
	const newer = "id,name,lat,lng\nnew,Newer,1,1\n"
	loader, store, entered, release := slowFirstServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(newer))
	})

	first := make(chan refreshResult, 1)
	go func() {
		res, err := loader.Refresh(context.Background())
		first <- refreshResult{res, err}
	}()
	<-entered

	if _, err := loader.Refresh(context.Background()); err != nil {
		t.Fatalf("second Refresh() error = %v", err)
	}
	close(release)

	got := <-first
	if !errors.Is(got.err, ErrSuperseded) {
		t.Fatalf("first Refresh() error = %v, want ErrSuperseded", got.err)
	}
	if cur := store.Current(); cur.Len() != 1 || cur.Records[0].ID != "new" {
		t.Errorf("store = %+v, want the newer catalog", cur.Records)
	}
}

func TestStoreCurrentNeverNil(t *testing.T) {
	var s Store
	if s.Current() == nil {
		t.Fatal("zero Store returned nil catalog")
	}
	s.Replace(nil)
	if s.Current() == nil || s.Current().Len() != 0 {
		t.Error("Replace(nil) should install an empty catalog")
	}
}

func TestCatalogBoundsAndFind(t *testing.T) {
	c := &Catalog{Records: []LocationRecord{rec("a", 10, 20), rec("b", 12, 24)}}

	bbox := c.Bounds()
	if math.Abs(bbox.MinLat-10) > 1e-9 || math.Abs(bbox.MaxLat-12) > 1e-9 ||
		math.Abs(bbox.MinLon-20) > 1e-9 || math.Abs(bbox.MaxLon-24) > 1e-9 {
		t.Errorf("Bounds() = %+v", bbox)
	}

	if r, ok := c.Find("b"); !ok || r.ID != "b" {
		t.Errorf("Find(b) = %v, %v", r, ok)
	}
	if _, ok := c.Find("zzz"); ok {
		t.Error("Find(zzz) should fail")
	}
}
