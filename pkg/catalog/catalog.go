// Package catalog turns the published dataset into typed location records
// and answers nearest-point queries against them.
package catalog

import (
	"sync/atomic"
	"time"

	"github.com/NERVsystems/poimap/pkg/geo"
)

// LocationRecord is one validated point of interest. Records are only
// built by Ingest, so ID, Name and Location are always set.
type LocationRecord struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Address     string       `json:"address,omitempty"`
	Location    geo.Location `json:"location"`
	ImageURL    *string      `json:"imageUrl,omitempty"`
}

// NavigationURL returns the external maps link for the record.
func (r LocationRecord) NavigationURL() string {
	return geo.NavigationURL(r.Location)
}

// Catalog is an immutable snapshot of the records from one ingestion,
// in source row order.
type Catalog struct {
	Records  []LocationRecord `json:"records"`
	Source   string           `json:"source,omitempty"`
	LoadedAt time.Time        `json:"loadedAt"`
}

// Len returns the number of records, treating a nil catalog as empty.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Records)
}

// Bounds returns the bounding box of every record.
func (c *Catalog) Bounds() *geo.BoundingBox {
	bbox := geo.NewBoundingBox()
	if c == nil {
		return bbox
	}
	for _, r := range c.Records {
		bbox.ExtendWithPoint(r.Location.Latitude, r.Location.Longitude)
	}
	return bbox
}

// Find returns the record with the given id.
func (c *Catalog) Find(id string) (LocationRecord, bool) {
	if c == nil {
		return LocationRecord{}, false
	}
	for _, r := range c.Records {
		if r.ID == id {
			return r, true
		}
	}
	return LocationRecord{}, false
}

var emptyCatalog = &Catalog{Records: []LocationRecord{}}

// Store holds the current catalog. Replace swaps the whole snapshot, so
// readers see either the previous set or the new one, never a mix.
type Store struct {
	current atomic.Pointer[Catalog]
}

// NewStore returns a store holding an empty catalog.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(emptyCatalog)
	return s
}

// Current returns the current snapshot. It is never nil.
func (s *Store) Current() *Catalog {
	if c := s.current.Load(); c != nil {
		return c
	}
	return emptyCatalog
}

// Replace installs a new snapshot.
func (s *Store) Replace(c *Catalog) {
	if c == nil {
		c = emptyCatalog
	}
	s.current.Store(c)
}
