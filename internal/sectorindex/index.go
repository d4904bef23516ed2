package sectorindex

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"path"
	"slices"
	"strconv"
	"strings"
	"ticguide/internal/components/telemetry"
	"ticguide/internal/mast"
	"ticguide/internal/observation"
)

const (
	report_scan       = "scan"
	report_scan_parse = "scan.parse-resource"
)

// ErrNoManifests means the catalog was reachable but listed nothing usable,
// which usually means the index page changed its layout.
var ErrNoManifests = errors.New("catalog lists no manifests")

// Lister is the part of the archive catalog needed to build an index.
type Lister interface {
	ListManifests(ctx context.Context) ([]mast.Resource, error)
}

// Index maps every sector-cadence column available in the archive to the
// manifest that lists its targets.
type Index struct {
	locators map[observation.ColumnKey]mast.Resource
}

// New creates an Index from explicit locators.
func New(locators map[observation.ColumnKey]mast.Resource) Index {
	return Index{locators: maps.Clone(locators)}
}

// ParseResourceName derives the column of a manifest from its link,
// ex. .../tesscurl_sector_14_lc.sh is S014 and .../tesscurl_sector_27_fast-lc.sh is F027.
func ParseResourceName(link string) (observation.ColumnKey, error) {
	name := link
	if parsed, err := url.Parse(link); err == nil && parsed.Path != "" {
		name = parsed.Path
	}
	name = path.Base(name)
	stem, _, _ := strings.Cut(name, ".")

	parts := strings.Split(stem, "_")
	if len(parts) < 3 {
		return observation.ColumnKey{}, fmt.Errorf("unexpected manifest name '%s'", name)
	}
	sector, err := strconv.Atoi(parts[2])
	if err != nil || sector < 0 {
		return observation.ColumnKey{}, fmt.Errorf("unexpected sector '%s' in manifest name '%s'", parts[2], name)
	}

	cadence := observation.Short
	if strings.Contains(stem, "fast") {
		cadence = observation.Fast
	}
	return observation.ColumnKey{Cadence: cadence, Sector: sector}, nil
}

// Scan builds the index from one listing of the catalog. A failure to reach
// the catalog is returned as is, it is fatal for the run and is not retried.
// If a column is listed twice, the last locator wins.
func Scan(ctx context.Context, catalog Lister, tel telemetry.API) (Index, error) {
	tel = telemetry.NewScopedAPI("sectorindex", tel)

	resources, err := catalog.ListManifests(ctx)
	if err != nil {
		tel.ReportBroken(report_scan, err)
		return Index{}, err
	}

	index := Index{locators: make(map[observation.ColumnKey]mast.Resource, len(resources))}
	for _, r := range resources {
		key, err := ParseResourceName(r.URL)
		if err != nil {
			tel.ReportWarning(report_scan_parse, err)
			continue
		}
		if previous, ok := index.locators[key]; ok && previous.URL != r.URL {
			tel.ReportWarning(report_scan_parse, fmt.Errorf("%s listed twice", key), previous.URL, r.URL)
		}
		index.locators[key] = r
	}
	if len(index.locators) == 0 {
		tel.ReportBroken(report_scan, ErrNoManifests)
		return Index{}, ErrNoManifests
	}
	tel.ReportCount(report_scan, int64(len(index.locators)))

	return index, nil
}

// Columns returns every column of the index in canonical order.
func (i Index) Columns() []observation.ColumnKey {
	out := slices.Collect(maps.Keys(i.locators))
	slices.SortFunc(out, observation.ColumnKey.Compare)
	return out
}

func (i Index) Locator(key observation.ColumnKey) (mast.Resource, bool) {
	r, ok := i.locators[key]
	return r, ok
}

func (i Index) Len() int {
	return len(i.locators)
}

// Filter returns the index restricted to the given cadences.
func (i Index) Filter(cadences ...observation.Cadence) Index {
	out := Index{locators: make(map[observation.ColumnKey]mast.Resource)}
	for key, r := range i.locators {
		if slices.Contains(cadences, key.Cadence) {
			out.locators[key] = r
		}
	}
	return out
}
