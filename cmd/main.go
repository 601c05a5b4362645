package main

import (
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/osm"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "net/http/pprof"

	"github.com/urfave/cli/v3"
	_ "github.com/KimMachineGun/automemlimit"
	_ "go.uber.org/automaxprocs"

	"github.com/mapgrove/osmconflate/conflate"
	"github.com/mapgrove/osmconflate/internal/stats"
	"github.com/mapgrove/osmconflate/internal/telemetry"
	"github.com/mapgrove/osmconflate/osmchange"
	"github.com/mapgrove/osmconflate/overpass"
	"github.com/mapgrove/osmconflate/shpload"
	"github.com/mapgrove/osmconflate/tagmap"
)

func main() {
	app := &cli.App{
		Name:        "osmconflate",
		Description: "Conflates surveyed buildings and addresses against OSM and emits reviewable changesets",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run the conflation pipeline over shapefile inputs",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:      "addresses",
						Aliases:   []string{"a"},
						Usage:     "shapefile with surveyed address points",
						TakesFile: true,
					},
					&cli.StringFlag{
						Name:      "buildings",
						Aliases:   []string{"b"},
						Usage:     "shapefile with surveyed building footprints",
						TakesFile: true,
					},
					&cli.StringFlag{
						Name:     "out",
						Aliases:  []string{"o"},
						Usage:    "output directory for changeset files",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:  "map-tag",
						Usage: "rename a source field to an OSM tag, FIELD=tag",
					},
					&cli.StringSliceFlag{
						Name:  "add-tag",
						Usage: "constant tag added to every imported feature, key=value",
					},
					&cli.StringSliceFlag{
						Name:  "tag-filters",
						Usage: "value filter file for one tag, tag,file",
					},
					&cli.StringSliceFlag{
						Name:  "changeset-tag",
						Usage: "tag appended to every emitted element, key=value",
					},
					&cli.StringFlag{
						Name:  "overpass.endpoint",
						Value: overpass.DefaultEndpoint,
					},
					&cli.StringFlag{
						Name:  "overpass.cache",
						Usage: "directory for cached overpass responses",
					},
					&cli.StringFlag{
						Name:  "generator",
						Value: "osmconflate",
					},
					&cli.IntFlag{
						Name:  "zoom",
						Value: 15,
					},
					&cli.IntFlag{
						Name:        "threads",
						Aliases:     []string{"t"},
						DefaultText: "max",
					},
					&cli.Float64Flag{
						Name:  "dedup.radius",
						Usage: "address duplicate radius in meters",
						Value: 5,
					},
					&cli.Float64Flag{
						Name:  "dedup.overlap",
						Usage: "building duplicate overlap fraction",
						Value: 0.30,
					},
					&cli.Float64Flag{
						Name:  "match.radius",
						Usage: "nearest-building search radius in meters",
						Value: 50,
					},
					&cli.Float64Flag{
						Name:  "street.radius",
						Usage: "street name search radius in meters",
						Value: 100,
					},
					&cli.BoolFlag{
						Name:  "compress",
						Usage: "write .osc.zst instead of .osc",
					},
					&cli.StringFlag{
						Name:  "stats",
						Usage: "write a resource report to this file",
					},
					&cli.StringFlag{
						Name: "metrics.listen",
					},
					&cli.StringFlag{
						Name: "pprof.listen",
					},
					&cli.BoolFlag{
						Name: "pprof.profile",
					},
					&cli.BoolFlag{
						Name: "pprof.heap",
					},
				},
				Action: run,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(ctx *cli.Context) error {
	if err := telemetry.Setup(ctx.Context, "osmconflate"); err != nil {
		return err
	}
	log := slog.Default()

	threads := ctx.Int("threads")
	if threads == 0 {
		threads = runtime.GOMAXPROCS(0)
	}
	log = log.With("threads", threads)

	if listen := ctx.String("metrics.listen"); listen != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Info("serving metrics", "listen", listen)
			if err := http.ListenAndServe(listen, mux); err != nil {
				log.Error("metrics server failed", "error", err)
			}
		}()
	}
	if listen := ctx.String("pprof.listen"); listen != "" {
		go func() {
			log.Info("serving pprof", "listen", listen)
			if err := http.ListenAndServe(listen, nil); err != nil {
				log.Error("pprof server failed", "error", err)
			}
		}()
	}
	if ctx.Bool("pprof.profile") {
		f, err := os.OpenFile("profile.cpu.pprof", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return fmt.Errorf("error creating pprof file: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			return fmt.Errorf("error starting pprof: %w", err)
		}
		defer pprof.StopCPUProfile()
	}

	var collector *stats.Collector
	if ctx.String("stats") != "" {
		var err error
		collector, err = stats.NewCollector(5 * time.Second)
		if err != nil {
			return err
		}
		collector.Start()
	}

	tm, err := buildTagMap(ctx)
	if err != nil {
		return err
	}

	addrPath := ctx.String("addresses")
	bldPath := ctx.String("buildings")
	if addrPath == "" && bldPath == "" {
		return fmt.Errorf("at least one of --addresses or --buildings is required")
	}

	var imp conflate.ImportData
	if addrPath != "" {
		imp.Addresses, err = shpload.LoadAddresses(addrPath, tm, true)
		if err != nil {
			return err
		}
		log.Info("loaded addresses", "file", addrPath, "count", humanize.Comma(int64(len(imp.Addresses))))
	}
	if bldPath != "" {
		imp.Buildings, err = shpload.LoadBuildings(bldPath, tm, true)
		if err != nil {
			return err
		}
		log.Info("loaded buildings", "file", bldPath, "count", humanize.Comma(int64(len(imp.Buildings))))
	}

	var points []orb.Point
	for _, a := range imp.Addresses {
		points = append(points, a.Point)
	}
	for _, b := range imp.Buildings {
		points = append(points, b.RepresentativePoint())
	}

	client := overpass.NewClient(ctx.String("overpass.endpoint"), ctx.String("overpass.cache"))
	ref, err := overpass.FetchReference(ctx.Context, client, points)
	if err != nil {
		return fmt.Errorf("fetching reference data: %w", err)
	}
	queries, cached := client.Requests()
	log.Info("fetched reference data",
		"buildings", humanize.Comma(int64(len(ref.Buildings))),
		"addresses", humanize.Comma(int64(len(ref.Addresses))),
		"streets", humanize.Comma(int64(len(ref.Streets))),
		"queries", queries, "cached", cached)

	cfg := conflate.ConfigDefault()
	cfg.AddressDuplicateRadius = ctx.Float64("dedup.radius")
	cfg.BuildingOverlapFraction = ctx.Float64("dedup.overlap")
	cfg.MatchSearchRadius = ctx.Float64("match.radius")
	cfg.StreetSearchRadius = ctx.Float64("street.radius")
	cfg.TileZoom = maptile.Zoom(ctx.Int("zoom"))
	cfg.Threads = threads

	res, err := conflate.Run(ctx.Context, ref, imp, cfg)
	if err != nil {
		return err
	}

	if ctx.Bool("pprof.heap") {
		if err := writeHeapProfile("profile"); err != nil {
			return fmt.Errorf("error writing heap profile: %w", err)
		}
	}

	outDir := ctx.String("out")
	opts := osmchange.Options{
		Generator: ctx.String("generator"),
		ExtraTags: parseTags(ctx.StringSlice("changeset-tag")),
		Compress:  ctx.Bool("compress"),
	}
	written, err := osmchange.WriteAll(outDir, res.Changesets, opts)
	if err != nil {
		return err
	}

	provPath := filepath.Join(outDir, "provenance.jsonl")
	pf, err := os.Create(provPath)
	if err != nil {
		return fmt.Errorf("creating provenance log: %w", err)
	}
	if err := conflate.WriteProvenance(pf, res.Provenance); err != nil {
		pf.Close()
		return err
	}
	if err := pf.Close(); err != nil {
		return err
	}

	if collector != nil {
		report := collector.Stop()
		if err := report.SaveToFile(ctx.String("stats"), res.Timings); err != nil {
			return err
		}
	}

	log.Info("run complete",
		"tiles", res.Summary.Tiles,
		"changesets", len(written),
		"dropped_buildings", res.Summary.DroppedBuildings,
		"dropped_addresses", res.Summary.DroppedAddresses,
		"failed_validation", res.Summary.FailedValidation,
		"timings", res.Timings.String())
	return nil
}

func buildTagMap(ctx *cli.Context) (*tagmap.Set, error) {
	tm := tagmap.NewSet()
	for _, spec := range ctx.StringSlice("map-tag") {
		if err := tm.AddMapping(spec); err != nil {
			return nil, err
		}
	}
	for _, spec := range ctx.StringSlice("add-tag") {
		if err := tm.AddConstant(spec); err != nil {
			return nil, err
		}
	}
	for _, spec := range ctx.StringSlice("tag-filters") {
		tag, file, ok := strings.Cut(spec, ",")
		if !ok {
			return nil, fmt.Errorf("tag-filters must look like tag,file, got %q", spec)
		}
		filters, err := tagmap.LoadFilters(file)
		if err != nil {
			return nil, err
		}
		tm.AddFilters(tag, filters)
	}
	return tm, nil
}

func parseTags(specs []string) osm.Tags {
	var out osm.Tags
	for _, spec := range specs {
		if key, value, ok := strings.Cut(spec, "="); ok {
			out = append(out, osm.Tag{Key: key, Value: value})
		}
	}
	return out
}

func writeHeapProfile(name string) error {
	f, err := os.Create(name + ".heap.prof")
	if err != nil {
		return err
	}
	defer f.Close()
	return pprof.WriteHeapProfile(f)
}
