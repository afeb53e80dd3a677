// Package geojson renders extracted hazard collections as GeoJSON
// FeatureCollections, one feature per threshold band.
package geojson

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/couchcryptid/spc-outlook-etl/internal/domain"
	gj "github.com/paulmach/go.geojson"
)

// FeatureCollection converts a hazard collection. Features are in
// ascending severity so renderers paint the most severe band last.
func FeatureCollection(key domain.ArchiveKey, c domain.HazardCollection) *gj.FeatureCollection {
	fc := gj.NewFeatureCollection()
	fc.BoundingBox = c.BBox()

	for _, r := range c.Records {
		f := gj.NewFeature(r.Geometry)
		f.ID = fmt.Sprintf("%s-%s-%s-%s", key.DateString(), c.Cycle.Label(), c.Hazard, r.Threshold)
		f.SetProperty("date", key.DateString())
		f.SetProperty("day", int(key.Day))
		f.SetProperty("outlook_type", string(key.Type))
		f.SetProperty("cycle", c.Cycle.Label())
		f.SetProperty("hazard", string(c.Hazard))
		f.SetProperty("title", c.Title)
		f.SetProperty("threshold", r.Threshold)
		f.SetProperty("rank", r.Rank)
		f.SetProperty("encoding", c.Encoding.String())
		if c.Issued != "" {
			f.SetProperty("issued", c.Issued)
		}
		if c.Valid != "" {
			f.SetProperty("valid", c.Valid)
		}
		if c.Expire != "" {
			f.SetProperty("expire", c.Expire)
		}
		fc.AddFeature(f)
	}
	return fc
}

// Marshal renders a hazard collection as GeoJSON bytes.
func Marshal(key domain.ArchiveKey, c domain.HazardCollection) ([]byte, error) {
	data, err := FeatureCollection(key, c).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal %s %s: %w", c.Cycle, c.Hazard, err)
	}
	return data, nil
}

// CycleDir is the output subdirectory for a cycle, e.g. "cycle_1630z".
func CycleDir(c domain.Cycle) string {
	return "cycle_" + c.Label()
}

// FileName is "<hazard>_<date>_<cycle>.geojson".
func FileName(key domain.ArchiveKey, c domain.HazardCollection) string {
	return fmt.Sprintf("%s_%s_%s.geojson", c.Hazard, key.DateString(), c.Cycle.Label())
}

// WriteResultSet writes every entry of the set below dir as
// cycle_<label>/<hazard>_<date>_<label>.geojson and returns the paths written.
func WriteResultSet(dir string, set *domain.ResultSet) ([]string, error) {
	var paths []string
	for _, c := range set.Entries() {
		data, err := Marshal(set.Key, c)
		if err != nil {
			return paths, err
		}
		cycleDir := filepath.Join(dir, CycleDir(c.Cycle))
		if err := os.MkdirAll(cycleDir, 0o755); err != nil {
			return paths, fmt.Errorf("create %s: %w", cycleDir, err)
		}
		p := filepath.Join(cycleDir, FileName(set.Key, c))
		if err := os.WriteFile(p, data, 0o644); err != nil {
			return paths, fmt.Errorf("write %s: %w", p, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}
