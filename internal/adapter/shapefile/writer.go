package shapefile

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	shp "github.com/jonas-p/go-shp"
)

// Feature is one outlook polygon row to write.
type Feature struct {
	Category  string
	Threshold string
	// Cycle is the CYCLE attribute (hour, or HHMM). Negative omits it.
	Cycle  int
	Issued string
	Valid  string
	Expire string
	// Polygon rings in GeoJSON orientation: outer ring counter-clockwise,
	// followed by any holes.
	Polygon [][][]float64
}

// Layer is one shapefile inside an archive.
type Layer struct {
	Name     string // without extension, e.g. "day1otlk_lyr"
	Features []Feature
}

var fields = []shp.Field{
	shp.StringField(attrCategory, 48),
	shp.StringField(attrThreshold, 12),
	shp.NumberField(attrCycle, 4),
	shp.StringField(attrIssued, 12),
	shp.StringField(attrValid, 12),
	shp.StringField(attrExpire, 12),
}

// WriteArchive writes layers as shapefiles and zips them into w, in the
// shape upstream serves them.
func WriteArchive(w io.Writer, layers []Layer) error {
	dir, err := os.MkdirTemp("", "spc-outlook-write-*")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(dir)

	zw := zip.NewWriter(w)
	for _, l := range layers {
		if err := writeLayer(dir, l); err != nil {
			return err
		}
		for _, ext := range []string{".shp", ".shx", ".dbf"} {
			if err := addFile(zw, filepath.Join(dir, l.Name+ext), l.Name+ext); err != nil {
				return err
			}
		}
	}
	return zw.Close()
}

func writeLayer(dir string, l Layer) error {
	if l.Name == "" {
		return errors.New("shapefile layer needs a name")
	}
	w, err := shp.Create(filepath.Join(dir, l.Name+".shp"), shp.POLYGON)
	if err != nil {
		return fmt.Errorf("create %s: %w", l.Name, err)
	}
	defer w.Close()

	if err := w.SetFields(fields); err != nil {
		return fmt.Errorf("set fields on %s: %w", l.Name, err)
	}

	for _, f := range l.Features {
		poly, err := toShape(f.Polygon)
		if err != nil {
			return fmt.Errorf("%s %s %s: %w", l.Name, f.Category, f.Threshold, err)
		}
		row := int(w.Write(poly))

		values := []any{f.Category, f.Threshold, f.Cycle, f.Issued, f.Valid, f.Expire}
		for i, v := range values {
			if i == 2 && f.Cycle < 0 {
				continue
			}
			if err := w.WriteAttribute(row, i, v); err != nil {
				return fmt.Errorf("write %s attribute %d: %w", l.Name, i, err)
			}
		}
	}
	return nil
}

// toShape reverses GeoJSON rings into shapefile orientation.
func toShape(rings [][][]float64) (*shp.Polygon, error) {
	if len(rings) == 0 || len(rings[0]) < 3 {
		return nil, errors.New("polygon needs an outer ring of at least three points")
	}
	parts := make([][]shp.Point, 0, len(rings))
	for _, ring := range rings {
		pts := make([]shp.Point, 0, len(ring))
		for i := len(ring) - 1; i >= 0; i-- {
			if len(ring[i]) < 2 {
				return nil, errors.New("polygon coordinate needs lon and lat")
			}
			pts = append(pts, shp.Point{X: ring[i][0], Y: ring[i][1]})
		}
		parts = append(parts, pts)
	}
	pl := shp.NewPolyLine(parts)
	poly := shp.Polygon(*pl)
	return &poly, nil
}

func addFile(zw *zip.Writer, src, name string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	dst, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("zip %s: %w", name, err)
	}
	if _, err := io.Copy(dst, f); err != nil {
		return fmt.Errorf("zip %s: %w", name, err)
	}
	return nil
}
