package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/NERVsystems/poimap/pkg/coords"
	"github.com/NERVsystems/poimap/pkg/core"
	"github.com/NERVsystems/poimap/pkg/geo"
)

// Column names recognised in the dataset header. Matching is exact and
// case-sensitive after trimming the header cell.
const (
	ColumnID          = "id"
	ColumnName        = "name"
	ColumnLat         = "lat"
	ColumnLng         = "lng"
	ColumnDescription = "description"
	ColumnAddress     = "address"
	ColumnImageURL    = "imageUrl"
)

// RequiredColumns must all be present in the header.
var RequiredColumns = []string{ColumnID, ColumnName, ColumnLat, ColumnLng}

// ErrMissingRequiredColumns matches any error returned by Ingest for an
// incomplete header.
var ErrMissingRequiredColumns = core.NewError(core.ErrMissingRequiredColumns, "missing required columns")

// MissingRequiredColumnsError lists the required columns absent from a header.
type MissingRequiredColumnsError struct {
	Missing []string
}

func (e *MissingRequiredColumnsError) Error() string {
	return fmt.Sprintf("dataset header is missing required columns: %s", strings.Join(e.Missing, ", "))
}

// Is lets errors.Is match ErrMissingRequiredColumns.
func (e *MissingRequiredColumnsError) Is(target error) bool {
	return errors.Is(ErrMissingRequiredColumns, target)
}

// Result is the outcome of one ingestion.
type Result struct {
	Accepted []LocationRecord
	Rejected int
}

type columns map[string]int

func indexColumns(header []string) columns {
	idx := make(columns, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := idx[name]; !dup {
			idx[name] = i
		}
	}
	return idx
}

// get returns the trimmed cell for a column, or "" when the column is
// absent or the row is too short.
func (c columns) get(row []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Ingest validates data rows against the header. Rows with an empty id or
// name, or a latitude or longitude that does not parse, are dropped and
// counted in Result.Rejected. Coordinates are not range checked.
func Ingest(header []string, rows [][]string) (Result, error) {
	cols := indexColumns(header)

	var missing []string
	for _, name := range RequiredColumns {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return Result{}, &MissingRequiredColumnsError{Missing: missing}
	}

	res := Result{Accepted: make([]LocationRecord, 0, len(rows))}
	for _, row := range rows {
		rec, ok := parseRow(cols, row)
		if !ok {
			res.Rejected++
			continue
		}
		res.Accepted = append(res.Accepted, rec)
	}
	return res, nil
}

func parseRow(cols columns, row []string) (LocationRecord, bool) {
	id := cols.get(row, ColumnID)
	name := cols.get(row, ColumnName)
	if id == "" || name == "" {
		return LocationRecord{}, false
	}

	lat, err := coords.ParseDegrees(cols.get(row, ColumnLat))
	if err != nil {
		return LocationRecord{}, false
	}
	lng, err := coords.ParseDegrees(cols.get(row, ColumnLng))
	if err != nil {
		return LocationRecord{}, false
	}

	rec := LocationRecord{
		ID:          id,
		Name:        name,
		Description: cols.get(row, ColumnDescription),
		Address:     cols.get(row, ColumnAddress),
		Location:    geo.Location{Latitude: lat, Longitude: lng},
	}
	if img := cols.get(row, ColumnImageURL); img != "" {
		rec.ImageURL = &img
	}
	return rec, true
}
