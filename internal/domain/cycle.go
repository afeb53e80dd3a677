package domain

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Cycle is an issuance time, stored as minutes past 00 UTC so cycles
// compare chronologically ("1630z" sorts before "20z", "06z" before "0630z").
type Cycle int

// NewCycle builds a cycle from an hour and minute.
func NewCycle(hour, minute int) Cycle {
	return Cycle(hour*60 + minute)
}

func (c Cycle) Hour() int   { return int(c) / 60 }
func (c Cycle) Minute() int { return int(c) % 60 }

// Label renders "HHz", or "HHMMz" for off-the-hour cycles.
func (c Cycle) Label() string {
	if c.Minute() == 0 {
		return fmt.Sprintf("%02dz", c.Hour())
	}
	return fmt.Sprintf("%02d%02dz", c.Hour(), c.Minute())
}

func (c Cycle) String() string { return c.Label() }

// ParseCycle parses a cycle label such as "01z", "1z", "1630" or "16z".
// "16z" is accepted as an alias for the 1630z day 1 convective update.
func ParseCycle(s string, day Day, t OutlookType) (Cycle, error) {
	raw := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "z")
	if raw == "" || len(raw) > 4 {
		return 0, fmt.Errorf("%w: invalid cycle %q", ErrInvalidRequest, s)
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid cycle %q", ErrInvalidRequest, s)
	}

	hour, minute := n, 0
	if len(raw) > 2 {
		hour, minute = n/100, n%100
	}
	if hour > 23 || minute > 59 {
		return 0, fmt.Errorf("%w: invalid cycle %q", ErrInvalidRequest, s)
	}
	return cycleAlias(NewCycle(hour, minute), day, t), nil
}

// CycleFromHour maps the archive CYCLE attribute onto a cycle. Values above
// 99 are read as HHMM.
func CycleFromHour(v int, day Day, t OutlookType) Cycle {
	if v > 99 {
		return cycleAlias(NewCycle(v/100, v%100), day, t)
	}
	return cycleAlias(NewCycle(v, 0), day, t)
}

// CycleFromIssue recovers the cycle from a PRODISS timestamp (YYYYMMDDHHMM).
func CycleFromIssue(prodiss string, day Day, t OutlookType) (Cycle, bool) {
	prodiss = strings.TrimSpace(prodiss)
	if len(prodiss) < 12 {
		return 0, false
	}
	hour, errH := strconv.Atoi(prodiss[8:10])
	minute, errM := strconv.Atoi(prodiss[10:12])
	if errH != nil || errM != nil || hour > 23 || minute > 59 {
		return 0, false
	}
	return cycleAlias(NewCycle(hour, minute), day, t), true
}

// cycleAlias folds the 16z hour onto the 1630z day 1 convective update.
func cycleAlias(c Cycle, day Day, t OutlookType) Cycle {
	if t == Convective && day == 1 && c == NewCycle(16, 0) {
		return NewCycle(16, 30)
	}
	return c
}

// CycleMode selects how a request's cycle filter resolves against an archive.
type CycleMode int

const (
	CyclesAll CycleMode = iota
	CyclesLatest
	CyclesExplicit
)

// CycleSelection is a request's cycle filter.
type CycleSelection struct {
	Mode   CycleMode
	Cycles []Cycle // set only for CyclesExplicit
}

func (s CycleSelection) String() string {
	switch s.Mode {
	case CyclesLatest:
		return "latest"
	case CyclesExplicit:
		labels := make([]string, len(s.Cycles))
		for i, c := range s.Cycles {
			labels[i] = c.Label()
		}
		return strings.Join(labels, ",")
	default:
		return "all"
	}
}

func parseCycleSelection(raw string, day Day, t OutlookType) (CycleSelection, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	switch raw {
	case "", "all":
		return CycleSelection{Mode: CyclesAll}, nil
	case "latest":
		return CycleSelection{Mode: CyclesLatest}, nil
	}

	var cycles []Cycle
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		c, err := ParseCycle(part, day, t)
		if err != nil {
			return CycleSelection{}, err
		}
		if !slices.Contains(cycles, c) {
			cycles = append(cycles, c)
		}
	}
	if len(cycles) == 0 {
		return CycleSelection{}, fmt.Errorf("%w: no cycles requested", ErrInvalidRequest)
	}
	slices.Sort(cycles)
	return CycleSelection{Mode: CyclesExplicit, Cycles: cycles}, nil
}

// ResolveCycleFilter narrows the cycles present in an archive to the
// requested selection. available must be sorted ascending. Requested or
// scheduled cycles missing from the archive come back as CycleNotIssued
// diagnostics rather than errors, since SPC legitimately skips cycles.
func ResolveCycleFilter(sel CycleSelection, available []Cycle, day Day, t OutlookType) ([]Cycle, []Diagnostic) {
	switch sel.Mode {
	case CyclesLatest:
		if len(available) == 0 {
			return nil, nil
		}
		return []Cycle{slices.Max(available)}, nil

	case CyclesExplicit:
		var out []Cycle
		var diags []Diagnostic
		for _, c := range sel.Cycles {
			if slices.Contains(available, c) {
				out = append(out, c)
				continue
			}
			diags = append(diags, Diagnostic{Err: ErrCycleNotIssued, Cycle: c})
		}
		return out, diags

	default:
		var diags []Diagnostic
		for _, c := range ValidCycles(day, t) {
			if !slices.Contains(available, c) {
				diags = append(diags, Diagnostic{Err: ErrCycleNotIssued, Cycle: c})
			}
		}
		return slices.Clone(available), diags
	}
}
