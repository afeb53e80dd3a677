package domain

import (
	"slices"

	geojson "github.com/paulmach/go.geojson"
)

// EncodingKind distinguishes the two upstream geometry encodings.
type EncodingKind int

const (
	Layered EncodingKind = iota
	NonLayered
)

func (k EncodingKind) String() string {
	if k == NonLayered {
		return "nonlayered"
	}
	return "layered"
}

// SourceRecord is one polygon row of an archive shapefile.
type SourceRecord struct {
	Category  string
	Threshold string
	Cycle     Cycle
	Issued    string // PRODISS, YYYYMMDDHHMM
	Valid     string
	Expire    string
	// Geometry is a Polygon or MultiPolygon; nil for null shapes.
	Geometry *geojson.Geometry
}

// ManifestEntry is one shapefile of the archive.
type ManifestEntry struct {
	Name     string
	Encoding EncodingKind
	Records  []SourceRecord
}

// Manifest is the decoded content of an archive.
type Manifest struct {
	Key     ArchiveKey
	Entries []ManifestEntry
}

// RecordCount returns the number of records across all entries.
func (m Manifest) RecordCount() int {
	n := 0
	for _, e := range m.Entries {
		n += len(e.Records)
	}
	return n
}

// Cycles returns the distinct cycles present in the manifest, earliest first.
func (m Manifest) Cycles() []Cycle {
	var out []Cycle
	for _, e := range m.Entries {
		for _, r := range e.Records {
			if !slices.Contains(out, r.Cycle) {
				out = append(out, r.Cycle)
			}
		}
	}
	slices.Sort(out)
	return out
}

// CycleLayer holds the records of a single cycle split by encoding.
type CycleLayer struct {
	Cycle      Cycle
	Layered    []SourceRecord
	NonLayered []SourceRecord
}

// Layer collects the records of one cycle.
func (m Manifest) Layer(c Cycle) CycleLayer {
	layer := CycleLayer{Cycle: c}
	for _, e := range m.Entries {
		for _, r := range e.Records {
			if r.Cycle != c {
				continue
			}
			if e.Encoding == NonLayered {
				layer.NonLayered = append(layer.NonLayered, r)
			} else {
				layer.Layered = append(layer.Layered, r)
			}
		}
	}
	return layer
}

// SelectedCycles is the outcome of matching a cycle filter to a manifest.
type SelectedCycles struct {
	Layers      []CycleLayer
	Diagnostics []Diagnostic
	// Unscheduled lists cycles present in the archive but absent from the
	// catalog. They are still selected.
	Unscheduled []Cycle
}

// SelectCycles maps the request's cycle filter onto the cycles the
// manifest actually contains. The catalog is a planning aid: cycles the
// archive carries outside the schedule are kept and reported.
func SelectCycles(m Manifest, req OutlookRequest) SelectedCycles {
	available := m.Cycles()
	scheduled := ValidCycles(req.Day, req.Type)

	var out SelectedCycles
	for _, c := range available {
		if !slices.Contains(scheduled, c) {
			out.Unscheduled = append(out.Unscheduled, c)
		}
	}

	cycles, diags := ResolveCycleFilter(req.Cycles, available, req.Day, req.Type)
	out.Diagnostics = diags
	for _, c := range cycles {
		out.Layers = append(out.Layers, m.Layer(c))
	}
	return out
}
