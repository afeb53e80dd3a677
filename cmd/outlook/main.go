// Command outlook downloads one day of SPC outlooks and writes the requested
// hazards as GeoJSON, one file per cycle and hazard.
//
// Usage:
//
//	go run ./cmd/outlook -day 1 -type convective -hazards tornado,hail -cycles latest 2025-03-14
//
// The raw archive and the GeoJSON land under
// <out>/<date>_day<d>_<type>/. Settings not covered by flags (IEM_*, LOG_*)
// are read from the environment.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/spc-outlook-etl/internal/adapter/archive"
	"github.com/couchcryptid/spc-outlook-etl/internal/adapter/geojson"
	"github.com/couchcryptid/spc-outlook-etl/internal/adapter/iem"
	"github.com/couchcryptid/spc-outlook-etl/internal/adapter/shapefile"
	"github.com/couchcryptid/spc-outlook-etl/internal/config"
	"github.com/couchcryptid/spc-outlook-etl/internal/domain"
	"github.com/couchcryptid/spc-outlook-etl/internal/observability"
	"github.com/couchcryptid/spc-outlook-etl/internal/pipeline"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

func main() {
	os.Exit(run())
}

func run() int {
	day := flag.Int("day", 1, "outlook day (1, 2 or 3)")
	outlookType := flag.String("type", "convective", "outlook type: convective or fire")
	hazards := flag.String("hazards", "all", "comma-separated hazards, or all")
	cycles := flag.String("cycles", "all", "comma-separated cycles (e.g. 06z,1630z), latest or all")
	geometry := flag.String("geometry", "layered", "preferred geometry encoding: layered or nonlayered")
	out := flag.String("out", "", "output root directory (default $ARCHIVE_DIR)")
	quick := flag.Bool("quick", false, "download and keep the archive only, skip extraction")
	keepEmpty := flag.Bool("keep-empty", false, "write empty collections for requested pairs without geometry")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] YYYY-MM-DD\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}
	if *out != "" {
		cfg.ArchiveDir = *out
	}
	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)

	req, err := domain.ParseRequest(domain.RequestInput{
		Date:         flag.Arg(0),
		Day:          *day,
		Type:         *outlookType,
		Hazards:      *hazards,
		Cycles:       *cycles,
		Geometry:     *geometry,
		DownloadOnly: *quick,
		KeepEmpty:    *keepEmpty,
	})
	if err != nil {
		logger.Error("invalid request", "error", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()
	store := archive.NewFSStore(cfg.ArchiveDir)
	fetcher := archive.NewCachingFetcher(iem.NewClient(cfg, logger, metrics), store, logger, metrics)
	p := pipeline.New(fetcher, shapefile.NewDecoder(logger), logger, metrics, cfg.ExtractWorkers)

	res, err := p.Run(ctx, req)
	if res.Set != nil {
		for _, d := range res.Set.Diagnostics() {
			logger.Warn("diagnostic", "message", d.Error())
		}
	}
	if err != nil {
		logger.Error("outlook request failed", "error", err)
		if errors.Is(err, domain.ErrNoResults) || errors.Is(err, domain.ErrNoDataAvailable) {
			return 3
		}
		return 1
	}

	key := domain.NewArchiveKey(req.Date, req.Day, req.Type)
	logger.Info("archive saved", "path", store.Path(key))
	if req.DownloadOnly {
		return 0
	}

	paths, err := geojson.WriteResultSet(store.Dir(key), res.Set)
	if err != nil {
		logger.Error("write geojson failed", "error", err)
		return 1
	}
	for _, path := range paths {
		fmt.Println(path)
	}
	logger.Info("outlook written", "files", len(paths), "cycles", len(res.Set.Cycles()), "run_id", res.RunID)
	return 0
}
