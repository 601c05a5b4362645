package conflate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mapgrove/osmconflate/geomodel"
	"github.com/mapgrove/osmconflate/internal/stats"
)

// ErrNoReferenceData means the reference dataset came back empty; running
// against nothing would classify every import as novel, so the run refuses.
var ErrNoReferenceData = errors.New("reference dataset is empty")

// Summary carries the per-stage counts reported at the end of a run.
type Summary struct {
	ReferenceBuildings int
	ReferenceAddresses int
	ReferenceStreets   int
	ImportedBuildings  int
	ImportedAddresses  int

	DroppedBuildings int
	DroppedAddresses int

	MatchedContainment int
	MatchedAmbiguous   int
	MatchedNearest     int
	Unmatched          int
	FailedValidation   int

	Tiles      int
	Changesets int
}

// RunResult is everything a run produces: the review tiles, their
// changesets, the provenance log, stage timings and counts.
type RunResult struct {
	Tiles      []*geomodel.Tile
	Changesets []geomodel.Changeset
	Provenance []geomodel.ProvenanceEntry
	Timings    *stats.Timings
	Summary    Summary
}

var meter = otel.Meter("github.com/mapgrove/osmconflate/conflate")

// Run executes the full pipeline: index, dedup, match, validate, partition,
// generate. Both datasets are treated as immutable; every stage reads the
// previous stage's output and the shared index snapshot.
func Run(ctx context.Context, ref ReferenceData, imp ImportData, cfg Config) (*RunResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if ref.Empty() {
		return nil, ErrNoReferenceData
	}

	log := slog.With("component", "pipeline")
	droppedCounter, _ := meter.Int64Counter("conflate.features.dropped")
	matchedCounter, _ := meter.Int64Counter("conflate.addresses.matched")

	res := &RunResult{
		Timings: stats.NewTimings(),
		Summary: Summary{
			ReferenceBuildings: len(ref.Buildings),
			ReferenceAddresses: len(ref.Addresses),
			ReferenceStreets:   len(ref.Streets),
			ImportedBuildings:  len(imp.Buildings),
			ImportedAddresses:  len(imp.Addresses),
		},
	}

	stop := res.Timings.Track("index")
	idx := BuildIndex(ref, cfg)
	res.Provenance = append(res.Provenance, idx.Anomalies...)
	stop()
	log.InfoContext(ctx, "reference indexed",
		"buildings", len(ref.Buildings), "addresses", len(ref.Addresses),
		"streets", len(ref.Streets), "degenerate", len(idx.Anomalies))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stop = res.Timings.Track("dedup")
	dd := Dedup(imp, idx, cfg)
	stop()
	res.Provenance = append(res.Provenance, dd.Dropped...)
	res.Summary.DroppedBuildings = len(imp.Buildings) - len(dd.Buildings)
	res.Summary.DroppedAddresses = len(imp.Addresses) - len(dd.Addresses)
	droppedCounter.Add(ctx, int64(res.Summary.DroppedBuildings),
		metric.WithAttributes(attribute.String("kind", "building")))
	droppedCounter.Add(ctx, int64(res.Summary.DroppedAddresses),
		metric.WithAttributes(attribute.String("kind", "address")))
	log.InfoContext(ctx, "deduplicated",
		"dropped_buildings", res.Summary.DroppedBuildings,
		"dropped_addresses", res.Summary.DroppedAddresses)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The novel snapshot flags degenerate imported footprints too; carry the
	// new entries forward.
	indexed := len(idx.Anomalies)
	idx = idx.WithNovelBuildings(dd.Buildings)
	res.Provenance = append(res.Provenance, idx.Anomalies[indexed:]...)

	stop = res.Timings.Track("match")
	matches, matchProv := MatchAddresses(dd.Addresses, idx, cfg)
	stop()
	res.Provenance = append(res.Provenance, matchProv...)
	for _, m := range matches {
		matchedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", m.Strategy.String())))
		switch m.Strategy {
		case geomodel.MatchContainment:
			res.Summary.MatchedContainment++
		case geomodel.MatchContainmentAmbiguous:
			res.Summary.MatchedAmbiguous++
		case geomodel.MatchNearest:
			res.Summary.MatchedNearest++
		default:
			res.Summary.Unmatched++
		}
	}
	log.InfoContext(ctx, "addresses matched",
		"containment", res.Summary.MatchedContainment,
		"ambiguous", res.Summary.MatchedAmbiguous,
		"nearest", res.Summary.MatchedNearest,
		"unmatched", res.Summary.Unmatched)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stop = res.Timings.Track("validate")
	validated, valProv := Validate(matches, DefaultRules(), idx, cfg)
	stop()
	res.Provenance = append(res.Provenance, valProv...)
	for _, vm := range validated {
		if vm.Result.Failed() {
			res.Summary.FailedValidation++
		}
	}
	log.InfoContext(ctx, "validated", "failed", res.Summary.FailedValidation)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stop = res.Timings.Track("partition")
	res.Tiles = Partition(dd.Buildings, validated, cfg.TileZoom)
	stop()

	stop = res.Timings.Track("generate")
	res.Changesets = GenerateChangesets(res.Tiles)
	stop()

	res.Summary.Tiles = len(res.Tiles)
	res.Summary.Changesets = len(res.Changesets)
	log.InfoContext(ctx, "changesets generated",
		"tiles", res.Summary.Tiles, "changesets", res.Summary.Changesets)

	return res, nil
}
