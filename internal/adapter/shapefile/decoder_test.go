package shapefile

import (
	"archive/zip"
	"bytes"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/spc-outlook-etl/internal/domain"
	geojson "github.com/paulmach/go.geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = domain.NewArchiveKey(time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), 1, domain.Convective)

func buildArchive(t *testing.T, layers []Layer) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, WriteArchive(&buf, layers))
	return buf.Bytes()
}

func decode(t *testing.T, data []byte, variant string) (domain.Manifest, error) {
	t.Helper()
	return NewDecoder(slog.Default()).Decode(domain.Archive{Key: testKey, Data: data, Variant: variant})
}

func TestDecode_SyntheticArchive(t *testing.T) {
	cycles := domain.ValidCycles(1, domain.Convective)
	data := buildArchive(t, SyntheticLayers(testKey, cycles))

	m, err := decode(t, data, "")
	require.NoError(t, err)

	require.Len(t, m.Entries, 2)
	assert.Equal(t, "day1otlk_lyr.shp", m.Entries[0].Name)
	assert.Equal(t, domain.Layered, m.Entries[0].Encoding)
	assert.Equal(t, "day1otlk_nolyr.shp", m.Entries[1].Name)
	assert.Equal(t, domain.NonLayered, m.Entries[1].Encoding)

	assert.Equal(t, cycles, m.Cycles())
	assert.Equal(t, 2*len(cycles)*len(convectiveBands), m.RecordCount())

	first := m.Entries[0].Records[0]
	assert.Equal(t, "CATEGORICAL", first.Category)
	assert.Equal(t, "TSTM", first.Threshold)
	assert.Equal(t, "202503140100", first.Issued)
	assert.Equal(t, "202503151200", first.Expire)
	require.NotNil(t, first.Geometry)
	assert.Equal(t, geojson.GeometryPolygon, first.Geometry.Type)
	assert.Equal(t, Square(-100, 37, 9)[0], first.Geometry.Polygon[0])
}

func TestDecode_CycleFallsBackToIssueTime(t *testing.T) {
	odd := domain.NewCycle(5, 57)
	data := buildArchive(t, SyntheticLayers(testKey, []domain.Cycle{odd}))

	m, err := decode(t, data, "")
	require.NoError(t, err)
	assert.Equal(t, []domain.Cycle{odd}, m.Cycles())
}

func TestDecode_1630CycleFromHourAttribute(t *testing.T) {
	data := buildArchive(t, SyntheticLayers(testKey, []domain.Cycle{domain.NewCycle(16, 30)}))

	m, err := decode(t, data, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"1630z"}, []string{m.Cycles()[0].Label()})
}

func TestDecode_PolygonWithHole(t *testing.T) {
	outer := Square(-97, 35, 5)[0]
	hole := [][]float64{{-98, 34}, {-98, 36}, {-96, 36}, {-96, 34}, {-98, 34}}
	data := buildArchive(t, []Layer{{Name: "outlook", Features: []Feature{{
		Category: "CATEGORICAL", Threshold: "MRGL", Cycle: 20, Issued: "202503142000",
		Polygon: [][][]float64{outer, hole},
	}}}})

	m, err := decode(t, data, "lyr")
	require.NoError(t, err)

	g := m.Entries[0].Records[0].Geometry
	require.Equal(t, geojson.GeometryPolygon, g.Type)
	require.Len(t, g.Polygon, 2)
	assert.Equal(t, outer, g.Polygon[0])
	assert.Equal(t, hole, g.Polygon[1])
}

func TestDecode_HoleJoinsContainingPolygon(t *testing.T) {
	west := Square(5, 5, 5)[0]
	east := Square(25, 5, 5)[0]
	hole := [][]float64{{4, 4}, {4, 6}, {6, 6}, {6, 4}, {4, 4}}
	data := buildArchive(t, []Layer{{Name: "outlook", Features: []Feature{{
		Category: "CATEGORICAL", Threshold: "SLGT", Cycle: 20, Issued: "202503142000",
		Polygon: [][][]float64{west, east, hole},
	}}}})

	m, err := decode(t, data, "lyr")
	require.NoError(t, err)

	g := m.Entries[0].Records[0].Geometry
	require.Equal(t, geojson.GeometryMultiPolygon, g.Type)
	require.Len(t, g.MultiPolygon, 2)
	assert.Equal(t, [][][]float64{west, hole}, g.MultiPolygon[0])
	assert.Equal(t, [][][]float64{east}, g.MultiPolygon[1])
}

func TestDecode_DuplicateStemsAcrossDirectories(t *testing.T) {
	single := buildArchive(t, SyntheticLayers(testKey, []domain.Cycle{domain.NewCycle(1, 0)}))
	zr, err := zip.NewReader(bytes.NewReader(single), int64(len(single)))
	require.NoError(t, err)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, prefix := range []string{"a/", "b/"} {
		for _, f := range zr.File {
			dst, err := zw.Create(prefix + f.Name)
			require.NoError(t, err)
			rc, err := f.Open()
			require.NoError(t, err)
			_, err = io.Copy(dst, rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
		}
	}
	require.NoError(t, zw.Close())

	_, err = decode(t, buf.Bytes(), "")
	require.ErrorIs(t, err, domain.ErrMalformedArchive)
	assert.Contains(t, err.Error(), "a/")
}

func TestDecode_VariantDecidesUnlabelledFiles(t *testing.T) {
	layers := []Layer{{Name: "outlooks_202503140000", Features: []Feature{{
		Category: "HAIL", Threshold: "0.05", Cycle: 1, Polygon: Square(-97, 35, 1),
	}}}}
	data := buildArchive(t, layers)

	m, err := decode(t, data, "nolyr")
	require.NoError(t, err)
	assert.Equal(t, domain.NonLayered, m.Entries[0].Encoding)

	m, err = decode(t, data, "")
	require.NoError(t, err)
	assert.Equal(t, domain.Layered, m.Entries[0].Encoding)
}

func TestDecode_NotAZip(t *testing.T) {
	_, err := decode(t, []byte("<html>rate limited</html>"), "")
	require.ErrorIs(t, err, domain.ErrMalformedArchive)
}

func TestDecode_ZipWithoutShapefiles(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("README.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("nothing here"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = decode(t, buf.Bytes(), "")
	require.ErrorIs(t, err, domain.ErrMalformedArchive)
}

func TestDecode_MissingAttributeTable(t *testing.T) {
	full := buildArchive(t, SyntheticLayers(testKey, []domain.Cycle{domain.NewCycle(1, 0)}))
	zr, err := zip.NewReader(bytes.NewReader(full), int64(len(full)))
	require.NoError(t, err)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range zr.File {
		if f.Name == "day1otlk_lyr.dbf" {
			continue
		}
		dst, err := zw.Create(f.Name)
		require.NoError(t, err)
		rc, err := f.Open()
		require.NoError(t, err)
		_, err = io.Copy(dst, rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
	}
	require.NoError(t, zw.Close())

	_, err = decode(t, buf.Bytes(), "")
	require.ErrorIs(t, err, domain.ErrMalformedArchive)
}

func TestDecode_EmptyShapefileIsNoData(t *testing.T) {
	data := buildArchive(t, []Layer{{Name: "day1otlk_lyr"}})

	_, err := decode(t, data, "")
	require.ErrorIs(t, err, domain.ErrNoDataAvailable)
}

func TestDetectEncoding(t *testing.T) {
	cases := []struct {
		name, variant string
		expected      domain.EncodingKind
	}{
		{"day1otlk_lyr", "", domain.Layered},
		{"day1otlk_nolyr", "", domain.NonLayered},
		{"day1otlk-nonlayer", "lyr", domain.NonLayered},
		{"Day1_LAYER", "nolyr", domain.Layered},
		{"outlooks_2025", "nolyr", domain.NonLayered},
		{"outlooks_2025", "lyr", domain.Layered},
		{"outlooks_2025", "", domain.Layered},
		{"polyrings", "", domain.Layered},
	}
	for _, tc := range cases {
		t.Run(tc.name+"/"+tc.variant, func(t *testing.T) {
			assert.Equal(t, tc.expected, DetectEncoding(tc.name, tc.variant))
		})
	}
}
