// Package shapefile turns upstream outlook archives (zips of ESRI
// shapefiles) into domain manifests, and writes such archives for fixtures.
package shapefile

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/couchcryptid/spc-outlook-etl/internal/domain"
	shp "github.com/jonas-p/go-shp"
	geojson "github.com/paulmach/go.geojson"
)

// Attribute names in the upstream DBF tables.
const (
	attrCategory  = "CATEGORY"
	attrThreshold = "THRESHOLD"
	attrCycle     = "CYCLE"
	attrIssued    = "PRODISS"
	attrValid     = "VALID"
	attrExpire    = "EXPIRE"
	attrIssue     = "ISSUE"
)

// maxMemberSize caps a single extracted zip member.
const maxMemberSize = 256 << 20

// Decoder reads outlook archives. It implements pipeline.Decoder.
type Decoder struct {
	logger *slog.Logger
}

// NewDecoder creates a Decoder.
func NewDecoder(logger *slog.Logger) *Decoder {
	return &Decoder{logger: logger}
}

// Decode unpacks the archive and reads every shapefile it contains into a
// manifest entry. go-shp reads from disk, so members are staged in a
// temporary directory that is removed before returning.
func (d *Decoder) Decode(a domain.Archive) (domain.Manifest, error) {
	zr, err := zip.NewReader(bytes.NewReader(a.Data), int64(len(a.Data)))
	if err != nil {
		return domain.Manifest{}, fmt.Errorf("%w: open zip: %v", domain.ErrMalformedArchive, err)
	}

	dir, err := os.MkdirTemp("", "spc-outlook-*")
	if err != nil {
		return domain.Manifest{}, fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(dir)

	stems, err := extract(zr, dir)
	if err != nil {
		return domain.Manifest{}, err
	}
	if len(stems) == 0 {
		return domain.Manifest{}, fmt.Errorf("%w: archive contains no shapefiles", domain.ErrMalformedArchive)
	}

	m := domain.Manifest{Key: a.Key}
	for _, stem := range stems {
		entry, err := d.decodeFile(dir, stem, a)
		if err != nil {
			return domain.Manifest{}, err
		}
		d.logger.Debug("shapefile decoded",
			"name", entry.Name,
			"encoding", entry.Encoding.String(),
			"records", len(entry.Records),
		)
		m.Entries = append(m.Entries, entry)
	}

	if m.RecordCount() == 0 {
		return m, fmt.Errorf("%s: archive has no outlook records: %w", a.Key, domain.ErrNoDataAvailable)
	}
	return m, nil
}

// extract writes shapefile members into dir under their base names with
// lower-cased extensions and returns the sorted stems that have a .shp.
// Two members that flatten to the same staged name make the archive
// ambiguous and are rejected.
func extract(zr *zip.Reader, dir string) ([]string, error) {
	var stems []string
	staged := make(map[string]string)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		base := path.Base(strings.ReplaceAll(f.Name, `\`, "/"))
		ext := strings.ToLower(filepath.Ext(base))
		switch ext {
		case ".shp", ".shx", ".dbf", ".prj":
		default:
			continue
		}
		stem := strings.TrimSuffix(base, filepath.Ext(base))
		if stem == "" || strings.HasPrefix(stem, ".") {
			continue
		}

		name := stem + ext
		if prev, ok := staged[name]; ok {
			return nil, fmt.Errorf("%w: %s and %s both stage as %s", domain.ErrMalformedArchive, prev, f.Name, name)
		}
		staged[name] = f.Name

		if err := writeMember(f, filepath.Join(dir, name)); err != nil {
			return nil, err
		}
		if ext == ".shp" && !slices.Contains(stems, stem) {
			stems = append(stems, stem)
		}
	}
	slices.Sort(stems)
	return stems, nil
}

func writeMember(f *zip.File, dst string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", domain.ErrMalformedArchive, f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("stage %s: %w", f.Name, err)
	}
	n, err := io.Copy(out, io.LimitReader(rc, maxMemberSize+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", domain.ErrMalformedArchive, f.Name, err)
	}
	if n > maxMemberSize {
		return fmt.Errorf("%w: %s exceeds %d bytes", domain.ErrMalformedArchive, f.Name, maxMemberSize)
	}
	return nil
}

func (d *Decoder) decodeFile(dir, stem string, a domain.Archive) (entry domain.ManifestEntry, err error) {
	entry = domain.ManifestEntry{Name: stem + ".shp", Encoding: DetectEncoding(stem, a.Variant)}

	if _, statErr := os.Stat(filepath.Join(dir, stem+".dbf")); statErr != nil {
		return entry, fmt.Errorf("%w: %s has no attribute table", domain.ErrMalformedArchive, entry.Name)
	}

	// go-shp panics on some truncated inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", domain.ErrMalformedArchive, entry.Name, r)
		}
	}()

	reader, err := shp.Open(filepath.Join(dir, stem+".shp"))
	if err != nil {
		return entry, fmt.Errorf("%w: %s: %v", domain.ErrMalformedArchive, entry.Name, err)
	}
	defer reader.Close()

	columns := make(map[string]int)
	for i, f := range reader.Fields() {
		columns[strings.ToUpper(strings.TrimSpace(f.String()))] = i
	}
	if _, ok := columns[attrCategory]; !ok {
		return entry, fmt.Errorf("%w: %s has no %s attribute", domain.ErrMalformedArchive, entry.Name, attrCategory)
	}
	if _, ok := columns[attrThreshold]; !ok {
		return entry, fmt.Errorf("%w: %s has no %s attribute", domain.ErrMalformedArchive, entry.Name, attrThreshold)
	}

	attr := func(row int, name string) string {
		i, ok := columns[name]
		if !ok {
			return ""
		}
		return strings.TrimSpace(reader.ReadAttribute(row, i))
	}

	for reader.Next() {
		row, shape := reader.Shape()
		issued := attr(row, attrIssued)
		if issued == "" {
			issued = attr(row, attrIssue)
		}
		entry.Records = append(entry.Records, domain.SourceRecord{
			Category:  strings.ToUpper(attr(row, attrCategory)),
			Threshold: attr(row, attrThreshold),
			Cycle:     recordCycle(attr(row, attrCycle), issued, a.Key),
			Issued:    issued,
			Valid:     attr(row, attrValid),
			Expire:    attr(row, attrExpire),
			Geometry:  toGeometry(shape),
		})
	}
	if err := reader.Err(); err != nil {
		return entry, fmt.Errorf("%w: %s: %v", domain.ErrMalformedArchive, entry.Name, err)
	}
	return entry, nil
}

// DetectEncoding classifies a shapefile by a filename token, falling back
// to the geometry variant upstream accepted.
func DetectEncoding(name, variant string) domain.EncodingKind {
	tokens := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < '0' || r > '9')
	})
	for _, t := range tokens {
		switch t {
		case "nolyr", "nonlayer", "nonlayered":
			return domain.NonLayered
		case "lyr", "layer", "layered":
			return domain.Layered
		}
	}
	if variant == "nolyr" {
		return domain.NonLayered
	}
	return domain.Layered
}

// recordCycle prefers the CYCLE attribute and falls back to the HHMM of
// the issue time. Archives with neither are treated as a single 00z cycle.
func recordCycle(raw, issued string, key domain.ArchiveKey) domain.Cycle {
	if v, err := strconv.ParseFloat(raw, 64); err == nil && v >= 0 {
		return domain.CycleFromHour(int(v), key.Day, key.Type)
	}
	if c, ok := domain.CycleFromIssue(issued, key.Day, key.Type); ok {
		return c
	}
	return 0
}

// toGeometry converts a shapefile polygon into GeoJSON. Shapefile outer
// rings are clockwise and holes counter-clockwise, in any part order; each
// hole joins the smallest outer ring that contains it. Output rings are
// reversed to GeoJSON orientation.
func toGeometry(shape shp.Shape) *geojson.Geometry {
	var parts []int32
	var points []shp.Point
	switch s := shape.(type) {
	case *shp.Polygon:
		parts, points = s.Parts, s.Points
	case *shp.PolygonZ:
		parts, points = s.Parts, s.Points
	case *shp.PolygonM:
		parts, points = s.Parts, s.Points
	default:
		return nil
	}
	if len(points) == 0 {
		return nil
	}

	var polygons [][][][]float64
	var holes [][][]float64
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || end > int32(len(points)) || start >= end {
			continue
		}
		ring := make([][]float64, 0, end-start)
		for j := end - 1; j >= start; j-- {
			ring = append(ring, []float64{points[j].X, points[j].Y})
		}

		// After reversal outer rings are counter-clockwise (positive area).
		if signedArea(ring) >= 0 {
			polygons = append(polygons, [][][]float64{ring})
		} else {
			holes = append(holes, ring)
		}
	}
	if len(polygons) == 0 && len(holes) > 0 {
		polygons = append(polygons, [][][]float64{holes[0]})
		holes = holes[1:]
	}

	for _, hole := range holes {
		owner := 0
		best := -1.0
		for i, p := range polygons {
			area := signedArea(p[0])
			if (best < 0 || area < best) && ringContains(p[0], hole[0]) {
				owner, best = i, area
			}
		}
		polygons[owner] = append(polygons[owner], hole)
	}

	switch len(polygons) {
	case 0:
		return nil
	case 1:
		return geojson.NewPolygonGeometry(polygons[0])
	default:
		return geojson.NewMultiPolygonGeometry(polygons...)
	}
}

// ringContains reports whether pt lies inside ring (even-odd rule).
func ringContains(ring [][]float64, pt []float64) bool {
	x, y := pt[0], pt[1]
	inside := false
	for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// signedArea is the shoelace sum; positive for counter-clockwise rings.
func signedArea(ring [][]float64) float64 {
	var sum float64
	for i := range ring {
		j := (i + 1) % len(ring)
		sum += ring[i][0]*ring[j][1] - ring[j][0]*ring[i][1]
	}
	return sum / 2
}
