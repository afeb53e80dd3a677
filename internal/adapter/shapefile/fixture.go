package shapefile

import (
	"fmt"
	"time"

	"github.com/couchcryptid/spc-outlook-etl/internal/domain"
)

type band struct {
	category  string
	threshold string
	half      float64
}

var convectiveBands = []band{
	{"CATEGORICAL", "TSTM", 9},
	{"CATEGORICAL", "MRGL", 6},
	{"CATEGORICAL", "SLGT", 4},
	{"CATEGORICAL", "ENH", 2},
	{"TORNADO", "0.02", 5},
	{"TORNADO", "0.05", 3},
	{"TORNADO", "0.10", 1},
	{"WIND", "0.05", 6},
	{"WIND", "0.15", 4},
	{"WIND", "SIGN", 1.5},
	{"HAIL", "0.05", 5},
	{"HAIL", "0.15", 2.5},
}

var fireBands = []band{
	{"FIRE WEATHER", "ELEV", 6},
	{"FIRE WEATHER", "CRIT", 3},
	{"DRY THUNDERSTORM", "IDRT", 2},
}

// SyntheticLayers builds a layered and a non-layered shapefile carrying
// every hazard family of the outlook type for each cycle. Bands are nested
// squares whose centre drifts east with each cycle.
func SyntheticLayers(key domain.ArchiveKey, cycles []domain.Cycle) []Layer {
	bands := convectiveBands
	prefix := fmt.Sprintf("day%dotlk", key.Day)
	if key.Type == domain.Fire {
		bands = fireBands
		prefix = fmt.Sprintf("day%dfw", key.Day)
	}

	layered := Layer{Name: prefix + "_lyr"}
	nonLayered := Layer{Name: prefix + "_nolyr"}
	for i, c := range cycles {
		issued := key.Date.Add(time.Duration(c) * time.Minute)
		expire := key.Date.AddDate(0, 0, int(key.Day)).Add(12 * time.Hour)
		lon, lat := -100+float64(i)*1.5, 37.0

		for _, b := range bands {
			f := Feature{
				Category:  b.category,
				Threshold: b.threshold,
				Cycle:     cycleAttribute(c, key),
				Issued:    issued.Format("200601021504"),
				Valid:     issued.Format("200601021504"),
				Expire:    expire.Format("200601021504"),
				Polygon:   Square(lon, lat, b.half),
			}
			layered.Features = append(layered.Features, f)
			nonLayered.Features = append(nonLayered.Features, f)
		}
	}
	return []Layer{layered, nonLayered}
}

// cycleAttribute renders a cycle the way upstream fills CYCLE: the hour,
// with 1630z recorded as 16. Other off-hour cycles omit it.
func cycleAttribute(c domain.Cycle, key domain.ArchiveKey) int {
	switch {
	case c.Minute() == 0:
		return c.Hour()
	case c == domain.NewCycle(16, 30) && key.Day == 1 && key.Type == domain.Convective:
		return 16
	default:
		return -1
	}
}

// Square returns a closed counter-clockwise ring centred on (lon, lat).
func Square(lon, lat, half float64) [][][]float64 {
	return [][][]float64{{
		{lon - half, lat - half},
		{lon + half, lat - half},
		{lon + half, lat + half},
		{lon - half, lat + half},
		{lon - half, lat - half},
	}}
}
