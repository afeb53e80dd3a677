package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Family is a category family in the upstream CATEGORY attribute.
type Family string

const (
	FamilyCategorical Family = "categorical"
	FamilyTornado     Family = "tornado"
	FamilyWind        Family = "wind"
	FamilyHail        Family = "hail"
	FamilyFire        Family = "fire"
	FamilyDryThunder  Family = "dryt"
)

type familySpec struct {
	matches    func(category string) bool
	thresholds []string
	aliases    map[string]string
}

func exactly(name string) func(string) bool {
	return func(category string) bool { return category == name }
}

func containing(token string) func(string) bool {
	return func(category string) bool { return strings.Contains(category, token) }
}

var probabilistic = []string{"0.05", "0.15", "0.30", "0.45", "0.60", "SIGN"}

var families = map[Family]familySpec{
	FamilyCategorical: {
		matches:    exactly("CATEGORICAL"),
		thresholds: []string{"TSTM", "MRGL", "SLGT", "ENH", "MDT", "HIGH"},
	},
	FamilyTornado: {
		matches:    exactly("TORNADO"),
		thresholds: []string{"0.02", "0.05", "0.10", "0.15", "0.30", "0.45", "0.60", "SIGN"},
	},
	FamilyWind: {matches: exactly("WIND"), thresholds: probabilistic},
	FamilyHail: {matches: exactly("HAIL"), thresholds: probabilistic},
	FamilyFire: {
		matches:    containing("FIRE"),
		thresholds: []string{"ELEV", "CRIT", "EXTM"},
	},
	FamilyDryThunder: {
		matches:    containing("DRY"),
		thresholds: []string{"ISODRYT", "DRYT", "SCTDRYT"},
		aliases:    map[string]string{"IDRT": "ISODRYT", "SDRT": "SCTDRYT"},
	},
}

// Matches reports whether an upstream CATEGORY value belongs to the family.
func (f Family) Matches(category string) bool {
	spec, ok := families[f]
	if !ok {
		return false
	}
	return spec.matches(strings.ToUpper(strings.TrimSpace(category)))
}

// Rank normalizes an upstream THRESHOLD value and returns its label and
// 1-based severity rank within the family.
func (f Family) Rank(threshold string) (string, int, bool) {
	spec, ok := families[f]
	if !ok {
		return "", 0, false
	}
	label := normalizeThreshold(threshold)
	if alias, ok := spec.aliases[label]; ok {
		label = alias
	}
	for i, t := range spec.thresholds {
		if t == label {
			return label, i + 1, true
		}
	}
	return label, 0, false
}

// Thresholds returns the family's threshold labels in ascending severity.
func (f Family) Thresholds() []string {
	return append([]string(nil), families[f].thresholds...)
}

// normalizeThreshold upper-cases labels and renders probabilities with two
// decimals so "0.1" and "0.10" compare equal.
func normalizeThreshold(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return strconv.FormatFloat(v, 'f', 2, 64)
	}
	return s
}

// HazardSpec binds a requestable hazard to the category family it is cut from.
type HazardSpec struct {
	Hazard Hazard
	Family Family
	// Only restricts the hazard to a single threshold of the family.
	Only string
	// Title is the display name for map layers and logs.
	Title string
}

// Accepts reports whether a source record belongs to this hazard.
func (s HazardSpec) Accepts(category, threshold string) bool {
	if !s.Family.Matches(category) {
		return false
	}
	if s.Only == "" {
		return true
	}
	label, _, ok := s.Family.Rank(threshold)
	return ok && label == s.Only
}

type product struct {
	hazards []HazardSpec
	cycles  map[Day][]Cycle
}

// catalog is the single table consulted by request validation, the cycle
// catalog and the extractor.
var catalog = map[OutlookType]product{
	Convective: {
		hazards: []HazardSpec{
			{Hazard: HazardCategorical, Family: FamilyCategorical, Title: "Categorical Outlook"},
			{Hazard: HazardTornado, Family: FamilyTornado, Title: "Tornado Probability"},
			{Hazard: HazardWind, Family: FamilyWind, Title: "Wind Probability"},
			{Hazard: HazardHail, Family: FamilyHail, Title: "Hail Probability"},
			{Hazard: HazardTSTM, Family: FamilyCategorical, Only: "TSTM", Title: "General Thunderstorm Outlook"},
		},
		cycles: map[Day][]Cycle{
			1: {NewCycle(1, 0), NewCycle(6, 0), NewCycle(13, 0), NewCycle(16, 30), NewCycle(20, 0)},
			2: {NewCycle(7, 0), NewCycle(17, 0)},
			3: {NewCycle(8, 0), NewCycle(20, 0)},
		},
	},
	Fire: {
		hazards: []HazardSpec{
			{Hazard: HazardFire, Family: FamilyFire, Title: "Fire Weather Outlook"},
			{Hazard: HazardDryThunder, Family: FamilyDryThunder, Title: "Dry Thunderstorm Outlook"},
		},
		cycles: map[Day][]Cycle{
			1: {NewCycle(7, 0), NewCycle(17, 0)},
			2: {NewCycle(7, 0), NewCycle(17, 0)},
			3: {NewCycle(7, 0), NewCycle(17, 0)},
		},
	},
}

// HazardsFor returns every hazard of an outlook type in table order.
func HazardsFor(t OutlookType) []Hazard {
	specs := catalog[t].hazards
	out := make([]Hazard, len(specs))
	for i, s := range specs {
		out[i] = s.Hazard
	}
	return out
}

// LookupHazard returns the spec for a hazard of the given outlook type.
func LookupHazard(t OutlookType, h Hazard) (HazardSpec, bool) {
	for _, s := range catalog[t].hazards {
		if s.Hazard == h {
			return s, true
		}
	}
	return HazardSpec{}, false
}

// ValidCycles returns the scheduled cycles for a day and type, earliest first.
func ValidCycles(day Day, t OutlookType) []Cycle {
	return append([]Cycle(nil), catalog[t].cycles[day]...)
}

// parseHazards expands "all" and validates each hazard against the type.
func parseHazards(t OutlookType, raw string) ([]Hazard, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" || raw == "all" {
		return HazardsFor(t), nil
	}

	var out []Hazard
	seen := make(map[Hazard]bool)
	for _, part := range strings.Split(raw, ",") {
		h := Hazard(strings.TrimSpace(part))
		if h == "" || seen[h] {
			continue
		}
		if _, ok := LookupHazard(t, h); !ok {
			return nil, fmt.Errorf("%w: hazard %q is not valid for %s outlooks (choose from %s)",
				ErrInvalidRequest, h, t, joinHazards(HazardsFor(t)))
		}
		seen[h] = true
		out = append(out, h)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no hazards requested", ErrInvalidRequest)
	}
	return out, nil
}

func joinHazards(hs []Hazard) string {
	parts := make([]string, len(hs))
	for i, h := range hs {
		parts[i] = string(h)
	}
	return strings.Join(parts, ", ")
}
