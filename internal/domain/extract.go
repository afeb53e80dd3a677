package domain

import (
	"fmt"
	"slices"

	"github.com/golang/geo/s2"
	geojson "github.com/paulmach/go.geojson"
)

// GeometryRecord is one threshold band of a hazard collection.
type GeometryRecord struct {
	Threshold string
	// Rank is the 1-based severity of Threshold within its family.
	Rank     int
	Geometry *geojson.Geometry // always a MultiPolygon
}

// HazardCollection is the extracted geometry for one (cycle, hazard) pair.
// Records are in strictly ascending Rank order.
type HazardCollection struct {
	Hazard   Hazard
	Title    string
	Cycle    Cycle
	Encoding EncodingKind
	Records  []GeometryRecord

	Issued string
	Valid  string
	Expire string

	// Bounds covers every polygon vertex; empty when there are no records.
	Bounds s2.Rect
	// Dropped counts source records discarded for empty geometry or an
	// unrecognized threshold.
	Dropped int
	// Reordered is set when layered source bands arrived out of severity order.
	Reordered bool
}

// Empty reports whether the collection carries no geometry.
func (c HazardCollection) Empty() bool { return len(c.Records) == 0 }

// BBox returns [minLon, minLat, maxLon, maxLat], or nil for an empty collection.
func (c HazardCollection) BBox() []float64 {
	if c.Bounds.IsEmpty() {
		return nil
	}
	lo, hi := c.Bounds.Lo(), c.Bounds.Hi()
	return []float64{lo.Lng.Degrees(), lo.Lat.Degrees(), hi.Lng.Degrees(), hi.Lat.Degrees()}
}

// Encoding is the set of source records of a single encoding kind.
type Encoding struct {
	Kind    EncodingKind
	Records []SourceRecord
}

// SelectEncoding is the single decision point between the two encodings.
// The preferred kind wins when both carry records; otherwise whichever is
// present is used. ok is false when neither has records.
func SelectEncoding(pref EncodingPreference, layered, nonLayered []SourceRecord) (Encoding, bool) {
	lyr := Encoding{Kind: Layered, Records: layered}
	nolyr := Encoding{Kind: NonLayered, Records: nonLayered}

	first, second := lyr, nolyr
	if pref == PreferNonLayered {
		first, second = nolyr, lyr
	}
	switch {
	case len(first.Records) > 0:
		return first, true
	case len(second.Records) > 0:
		return second, true
	default:
		return Encoding{}, false
	}
}

// Extract cuts one hazard out of a cycle. A hazard with no records in
// either encoding returns ErrHazardUnavailable; records that exist but
// carry no usable geometry produce an empty collection and no error.
func Extract(layer CycleLayer, spec HazardSpec, pref EncodingPreference) (HazardCollection, error) {
	enc, ok := SelectEncoding(pref,
		filterRecords(layer.Layered, spec),
		filterRecords(layer.NonLayered, spec),
	)
	if !ok {
		return HazardCollection{Hazard: spec.Hazard, Title: spec.Title, Cycle: layer.Cycle},
			fmt.Errorf("%s %s: %w", layer.Cycle, spec.Hazard, ErrHazardUnavailable)
	}
	return Normalize(enc, spec, layer.Cycle), nil
}

func filterRecords(records []SourceRecord, spec HazardSpec) []SourceRecord {
	var out []SourceRecord
	for _, r := range records {
		if spec.Accepts(r.Category, r.Threshold) {
			out = append(out, r)
		}
	}
	return out
}

// Normalize labels, merges and orders the records of one encoding.
//
// Non-layered contours are already the outer boundary of their threshold
// and pass through unchanged. Layered bands map 1:1 onto thresholds but
// upstream does not guarantee their order, so they are checked and sorted.
// Records sharing a threshold are merged into one MultiPolygon so each
// severity appears once.
func Normalize(enc Encoding, spec HazardSpec, cycle Cycle) HazardCollection {
	out := HazardCollection{
		Hazard:   spec.Hazard,
		Title:    spec.Title,
		Cycle:    cycle,
		Encoding: enc.Kind,
		Bounds:   s2.EmptyRect(),
	}

	byRank := make(map[int]*GeometryRecord)
	lastRank := 0
	for _, r := range enc.Records {
		label, rank, ok := spec.Family.Rank(r.Threshold)
		polygons := polygonsOf(r.Geometry)
		if !ok || len(polygons) == 0 {
			out.Dropped++
			continue
		}
		if rank < lastRank {
			out.Reordered = enc.Kind == Layered
		}
		lastRank = rank

		if out.Issued == "" {
			out.Issued, out.Valid, out.Expire = r.Issued, r.Valid, r.Expire
		}
		for _, poly := range polygons {
			out.Bounds = extendBounds(out.Bounds, poly)
		}

		if rec, ok := byRank[rank]; ok {
			rec.Geometry.MultiPolygon = append(rec.Geometry.MultiPolygon, polygons...)
			continue
		}
		byRank[rank] = &GeometryRecord{
			Threshold: label,
			Rank:      rank,
			Geometry:  geojson.NewMultiPolygonGeometry(polygons...),
		}
	}

	ranks := make([]int, 0, len(byRank))
	for rank := range byRank {
		ranks = append(ranks, rank)
	}
	slices.Sort(ranks)
	for _, rank := range ranks {
		out.Records = append(out.Records, *byRank[rank])
	}
	return out
}

// polygonsOf flattens a Polygon or MultiPolygon geometry, skipping polygons
// without an exterior ring.
func polygonsOf(g *geojson.Geometry) [][][][]float64 {
	if g == nil {
		return nil
	}
	var candidates [][][][]float64
	switch g.Type {
	case geojson.GeometryPolygon:
		candidates = [][][][]float64{g.Polygon}
	case geojson.GeometryMultiPolygon:
		candidates = g.MultiPolygon
	default:
		return nil
	}

	var out [][][][]float64
	for _, poly := range candidates {
		if len(poly) == 0 || len(poly[0]) < 3 {
			continue
		}
		out = append(out, poly)
	}
	return out
}

func extendBounds(rect s2.Rect, poly [][][]float64) s2.Rect {
	for _, pt := range poly[0] {
		if len(pt) < 2 {
			continue
		}
		rect = rect.AddPoint(s2.LatLngFromDegrees(pt[1], pt[0]))
	}
	return rect
}
