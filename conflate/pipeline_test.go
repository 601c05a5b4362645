package conflate_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/thejerf/slogassert"

	"github.com/mapgrove/osmconflate/conflate"
	"github.com/mapgrove/osmconflate/geomodel"
	"github.com/mapgrove/osmconflate/osmchange"
)

func pipelineFixture() (conflate.ReferenceData, conflate.ImportData) {
	ref := conflate.ReferenceData{
		Buildings: []*geomodel.Building{
			existingBuilding(1, at(0, 0), 10,
				addrTags("10", "Main Street")...),
			existingBuilding(2, at(100, 0), 10),
		},
		Addresses: []*geomodel.Address{
			existingAddress(3, at(0, 0), "10", "Main Street"),
		},
		Streets: []*geomodel.Street{
			refStreet(4, "Main Street", at(-200, 20), at(300, 20)),
		},
	}
	imp := conflate.ImportData{
		Buildings: []*geomodel.Building{
			newBuilding("import/b1", at(0, 0), 10),    // duplicate of way/1
			newBuilding("import/b2", at(200, 0), 10),  // novel
			newBuilding("import/b3", at(300, 50), 10), // novel, no address
		},
		Addresses: []*geomodel.Address{
			newAddress("import/a1", at(1, 0), "10", "Main St"),     // duplicate of node/3
			newAddress("import/a2", at(100, 1), "100", "Main St"),  // matches existing way/2
			newAddress("import/a3", at(200, 1), "200", "Main St"),  // matches novel b2
			newAddress("import/a4", at(-300, 0), "300", "Main St"), // unmatched
		},
	}
	return ref, imp
}

func TestRunEndToEnd(t *testing.T) {
	ref, imp := pipelineFixture()
	cfg := testConfig(t)

	res, err := conflate.Run(context.Background(), ref, imp, cfg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	s := res.Summary
	if s.DroppedBuildings != 1 || s.DroppedAddresses != 1 {
		t.Fatalf("expected 1 dropped building and address, got %d and %d", s.DroppedBuildings, s.DroppedAddresses)
	}
	if s.Unmatched != 1 {
		t.Fatalf("expected 1 unmatched address, got %d", s.Unmatched)
	}
	if s.MatchedContainment+s.MatchedAmbiguous+s.MatchedNearest != 2 {
		t.Fatalf("expected 2 matched addresses, got %+v", s)
	}
	if s.Tiles == 0 || s.Changesets == 0 {
		t.Fatalf("expected tiles and changesets, got %+v", s)
	}

	// every surviving item lands in exactly one tile
	total := 0
	for _, tile := range res.Tiles {
		if tile.Len() == 0 {
			t.Fatalf("tile %s is empty", tile.Name())
		}
		total += tile.Len()
	}
	// 2 novel buildings (one folded into its match) + 2 matches + 1 unmatched
	if total != 4 {
		t.Fatalf("expected 4 review items, got %d", total)
	}

	if len(res.Timings.Stages()) != 6 {
		t.Fatalf("expected 6 timed stages, got %d", len(res.Timings.Stages()))
	}
}

func TestRunFlagsDegenerateImport(t *testing.T) {
	ref, imp := pipelineFixture()
	// zero-area footprint: indexed by bound only, must still be reported
	imp.Buildings = append(imp.Buildings, newBuilding("import/flat", at(400, 400), 0))

	res, err := conflate.Run(context.Background(), ref, imp, testConfig(t))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	found := false
	for _, e := range res.Provenance {
		if e.FeatureID == "import/flat" && e.Code == geomodel.ProvDegenerateGeometry {
			found = true
		}
	}
	if !found {
		t.Fatalf("degenerate imported footprint missing from the log: %+v", res.Provenance)
	}
}

func renderAll(t *testing.T, res *conflate.RunResult) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, cs := range res.Changesets {
		fmt.Fprintf(&buf, "== %s %s\n", osmchange.FileName(cs, false), cs.Bucket)
		if err := osmchange.Write(&buf, cs, osmchange.Options{Generator: "test"}); err != nil {
			t.Fatalf("writing changeset: %v", err)
		}
	}
	if err := conflate.WriteProvenance(&buf, res.Provenance); err != nil {
		t.Fatalf("writing provenance: %v", err)
	}
	return buf.Bytes()
}

func TestRunDeterministic(t *testing.T) {
	ref, imp := pipelineFixture()

	var first []byte
	for run := 0; run < 3; run++ {
		cfg := conflate.ConfigDefault()
		cfg.Threads = 1 + run*3
		res, err := conflate.Run(context.Background(), ref, imp, cfg)
		if err != nil {
			t.Fatalf("run %d failed: %v", run, err)
		}
		out := renderAll(t, res)
		if first == nil {
			first = out
			continue
		}
		if !bytes.Equal(first, out) {
			t.Fatalf("output differs between runs (threads=%d)", cfg.Threads)
		}
	}
}

func TestRunEmptyReference(t *testing.T) {
	_, imp := pipelineFixture()
	_, err := conflate.Run(context.Background(), conflate.ReferenceData{}, imp, testConfig(t))
	if !errors.Is(err, conflate.ErrNoReferenceData) {
		t.Fatalf("expected ErrNoReferenceData, got %v", err)
	}
}

func TestRunRejectsBadConfig(t *testing.T) {
	ref, imp := pipelineFixture()
	cfg := conflate.ConfigDefault()
	cfg.MatchSearchRadius = -2
	if _, err := conflate.Run(context.Background(), ref, imp, cfg); err == nil {
		t.Fatalf("expected config error")
	}
}

func TestRunCancellation(t *testing.T) {
	ref, imp := pipelineFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := conflate.Run(ctx, ref, imp, testConfig(t)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunLogsStages(t *testing.T) {
	handler := slogassert.New(t, slog.LevelInfo, nil)
	prev := slog.Default()
	slog.SetDefault(slog.New(handler))
	defer slog.SetDefault(prev)

	ref, imp := pipelineFixture()
	if _, err := conflate.Run(context.Background(), ref, imp, testConfig(t)); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	handler.AssertMessage("reference indexed")
	handler.AssertMessage("deduplicated")
	handler.AssertMessage("addresses matched")
	handler.AssertMessage("validated")
	handler.AssertMessage("changesets generated")
	handler.AssertEmpty()
}
