package domain

import (
	"fmt"
	"strings"
	"time"
)

// Day is the outlook day: 1 covers the current convective day, 2 and 3 the following days.
type Day int

// Valid reports whether d is an outlook day the archive serves.
func (d Day) Valid() bool { return d >= 1 && d <= 3 }

// OutlookType selects the SPC product family.
type OutlookType string

const (
	Convective OutlookType = "convective"
	Fire       OutlookType = "fire"
)

// ParseOutlookType accepts the product name or its single-letter upstream code.
func ParseOutlookType(s string) (OutlookType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "convective", "c":
		return Convective, nil
	case "fire", "f", "fire weather":
		return Fire, nil
	default:
		return "", fmt.Errorf("%w: unknown outlook type %q", ErrInvalidRequest, s)
	}
}

// Code returns the upstream type parameter ("C" or "F").
func (t OutlookType) Code() string {
	if t == Fire {
		return "F"
	}
	return "C"
}

// Title is the display name used in logs and output metadata.
func (t OutlookType) Title() string {
	if t == Fire {
		return "Fire Weather"
	}
	return "Convective"
}

// Hazard is a requestable hazard product within an outlook type.
type Hazard string

const (
	HazardCategorical Hazard = "categorical"
	HazardTornado     Hazard = "tornado"
	HazardWind        Hazard = "wind"
	HazardHail        Hazard = "hail"
	HazardTSTM        Hazard = "tstm"
	HazardFire        Hazard = "fire"
	HazardDryThunder  Hazard = "dryt"
)

// ArchiveKey identifies one upstream archive: all cycles for a UTC date,
// outlook day and type.
type ArchiveKey struct {
	Date time.Time
	Day  Day
	Type OutlookType
}

// NewArchiveKey normalizes the date to midnight UTC.
func NewArchiveKey(date time.Time, day Day, t OutlookType) ArchiveKey {
	return ArchiveKey{Date: StartOfDay(date), Day: day, Type: t}
}

// DateString renders the key date as YYYY-MM-DD.
func (k ArchiveKey) DateString() string {
	return k.Date.Format(time.DateOnly)
}

// String renders the key as "<date>_day<d>_<type>", the archive directory name.
func (k ArchiveKey) String() string {
	return fmt.Sprintf("%s_day%d_%s", k.DateString(), k.Day, k.Type)
}

// Final reports whether the UTC day is over, so no further cycles can be
// added to the archive.
func (k ArchiveKey) Final() bool {
	return k.Date.Before(Today())
}

// Archive is the raw compressed archive returned by upstream.
type Archive struct {
	Key ArchiveKey
	// Data holds the zip bytes exactly as received.
	Data []byte
	// Variant is the geometry parameter upstream accepted ("", "lyr" or "nolyr").
	Variant   string
	FetchedAt time.Time
}
