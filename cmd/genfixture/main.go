// Command genfixture writes a synthetic outlook archive in the layout the
// IEM service returns: a zip holding a layered and a non-layered shapefile
// with every hazard family for each requested cycle. It is used to exercise
// the pipeline without network access.
//
// Usage:
//
//	go run ./cmd/genfixture -date 2025-03-14 -day 1 -type convective -out testdata/day1.zip
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/couchcryptid/spc-outlook-etl/internal/adapter/shapefile"
	"github.com/couchcryptid/spc-outlook-etl/internal/domain"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	date := flag.String("date", "2025-03-14", "outlook date (YYYY-MM-DD)")
	day := flag.Int("day", 1, "outlook day (1, 2 or 3)")
	outlookType := flag.String("type", "convective", "outlook type: convective or fire")
	cycles := flag.String("cycles", "", "comma-separated cycles to include (default: every scheduled cycle)")
	out := flag.String("out", "", "output zip path")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	req, err := domain.ParseRequest(domain.RequestInput{Date: *date, Day: *day, Type: *outlookType, Cycles: *cycles})
	if err != nil {
		return err
	}
	key := domain.NewArchiveKey(req.Date, req.Day, req.Type)

	selected := domain.ValidCycles(req.Day, req.Type)
	if req.Cycles.Mode == domain.CyclesExplicit {
		selected = req.Cycles.Cycles
	}

	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("create %s: %w", *out, err)
	}
	if err := shapefile.WriteArchive(f, shapefile.SyntheticLayers(key, selected)); err != nil {
		f.Close()
		return fmt.Errorf("write archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", *out, err)
	}

	labels := make([]string, len(selected))
	for i, c := range selected {
		labels[i] = c.Label()
	}
	log.Printf("wrote %s (%s, cycles %s)", *out, key, strings.Join(labels, ","))
	return nil
}
