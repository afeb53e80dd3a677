package domain

import (
	"fmt"
	"strings"
	"time"
)

// EncodingPreference chooses which geometry encoding wins when an archive
// carries both for the same hazard and cycle.
type EncodingPreference int

const (
	PreferLayered EncodingPreference = iota
	PreferNonLayered
)

// OutlookRequest is a validated request. Construct it with ParseRequest;
// nothing downstream re-validates it.
type OutlookRequest struct {
	Date    time.Time
	Day     Day
	Type    OutlookType
	Hazards []Hazard
	Cycles  CycleSelection

	Preference EncodingPreference
	// DownloadOnly fetches and persists the archive without extracting hazards.
	DownloadOnly bool
	// KeepEmpty keeps empty collections in the result set for requested
	// pairs that produced no geometry, so "no data this cycle" can be told
	// apart from "not requested".
	KeepEmpty bool
}

// RequestInput carries the loosely typed values a CLI or HTTP caller collects.
type RequestInput struct {
	Date     string // YYYY-MM-DD
	Day      int
	Type     string
	Hazards  string // comma-separated, or "all"
	Cycles   string // comma-separated, "latest" or "all"
	Geometry string // "layered" (default) or "nonlayered"

	DownloadOnly bool
	KeepEmpty    bool
}

// ParseRequest validates raw input into an OutlookRequest.
func ParseRequest(in RequestInput) (OutlookRequest, error) {
	date, err := time.Parse(time.DateOnly, strings.TrimSpace(in.Date))
	if err != nil {
		return OutlookRequest{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidRequest, in.Date)
	}

	day := Day(in.Day)
	if in.Day == 0 {
		day = 1
	}
	if !day.Valid() {
		return OutlookRequest{}, fmt.Errorf("%w: day must be 1, 2 or 3, got %d", ErrInvalidRequest, in.Day)
	}

	t, err := ParseOutlookType(in.Type)
	if err != nil {
		return OutlookRequest{}, err
	}

	hazards, err := parseHazards(t, in.Hazards)
	if err != nil {
		return OutlookRequest{}, err
	}

	cycles, err := parseCycleSelection(in.Cycles, day, t)
	if err != nil {
		return OutlookRequest{}, err
	}

	pref, err := parsePreference(in.Geometry)
	if err != nil {
		return OutlookRequest{}, err
	}

	return OutlookRequest{
		Date:         StartOfDay(date),
		Day:          day,
		Type:         t,
		Hazards:      hazards,
		Cycles:       cycles,
		Preference:   pref,
		DownloadOnly: in.DownloadOnly,
		KeepEmpty:    in.KeepEmpty,
	}, nil
}

func parsePreference(s string) (EncodingPreference, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "layered", "lyr":
		return PreferLayered, nil
	case "nonlayered", "non-layered", "nolyr":
		return PreferNonLayered, nil
	default:
		return 0, fmt.Errorf("%w: unknown geometry encoding %q", ErrInvalidRequest, s)
	}
}

// Key returns the archive key the request is served from.
func (r OutlookRequest) Key() ArchiveKey {
	return NewArchiveKey(r.Date, r.Day, r.Type)
}
