package kafka

import (
	"testing"
	"time"

	"github.com/couchcryptid/spc-outlook-etl/internal/domain"
	gj "github.com/paulmach/go.geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCollection() domain.HazardCollection {
	return domain.HazardCollection{
		Hazard: domain.HazardWind,
		Title:  "Wind Probability",
		Cycle:  domain.NewCycle(20, 0),
		Records: []domain.GeometryRecord{{
			Threshold: "0.15",
			Rank:      2,
			Geometry: gj.NewMultiPolygonGeometry([][][]float64{{
				{-98, 34}, {-96, 34}, {-96, 36}, {-98, 36}, {-98, 34},
			}}),
		}},
		Issued: "202604262000",
	}
}

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2026, 4, 26, 20, 5, 0, 0, time.UTC)
	key := domain.NewArchiveKey(time.Date(2026, 4, 26, 0, 0, 0, 0, time.UTC), 1, domain.Convective)

	msg, err := serializeToMessage("run-1", key, testCollection(), now)
	require.NoError(t, err)

	assert.Equal(t, []byte("2026-04-26:1:convective:20z:wind"), msg.Key)

	fc, err := gj.UnmarshalFeatureCollection(msg.Value)
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "0.15", fc.Features[0].Properties["threshold"])

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Len(t, msg.Headers, 7)
	assert.Equal(t, "run-1", headers[HeaderRunID])
	assert.Equal(t, "convective", headers[HeaderOutlookType])
	assert.Equal(t, "1", headers[HeaderDay])
	assert.Equal(t, "20z", headers[HeaderCycle])
	assert.Equal(t, "wind", headers[HeaderHazard])
	assert.Equal(t, "202604262000", headers[HeaderIssued])
	assert.Equal(t, now.Format(time.RFC3339), headers[HeaderPublishedAt])
}

func TestMessageKey(t *testing.T) {
	key := domain.NewArchiveKey(time.Date(2026, 4, 26, 0, 0, 0, 0, time.UTC), 2, domain.Fire)
	c := domain.HazardCollection{Hazard: domain.HazardDryThunder, Cycle: domain.NewCycle(7, 0)}
	assert.Equal(t, "2026-04-26:2:fire:07z:dryt", MessageKey(key, c))
}
