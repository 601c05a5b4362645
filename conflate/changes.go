package conflate

import (
	"sort"

	"github.com/mapgrove/osmconflate/geomodel"
)

// GenerateChangesets turns review tiles into per-(tile, bucket) edit lists.
//
// A match that failed any validation rule lands in the tile's failed bucket;
// everything else, including bare novel buildings, lands in the passed
// bucket. Each surviving feature is the subject of exactly one operation
// across all changesets:
//
//   - novel building, lone match: one create carrying both footprint and
//     address tags
//   - existing building, lone match: one modify applying the address tags
//   - contested building (several matches): the building is left alone (a
//     novel footprint still gets its bare create) and every match becomes an
//     address-node create, as with unmatched addresses
func GenerateChangesets(tiles []*geomodel.Tile) []geomodel.Changeset {
	var out []geomodel.Changeset
	for _, t := range tiles {
		passed := geomodel.Changeset{Tile: t.Key, Bucket: geomodel.BucketPassed}
		failed := geomodel.Changeset{Tile: t.Key, Bucket: geomodel.BucketFailed}

		for _, b := range t.Buildings {
			passed.Ops = append(passed.Ops, geomodel.Operation{Kind: geomodel.OpCreate, Building: b})
		}
		for _, vm := range t.Addresses {
			op := geomodel.Operation{Kind: geomodel.OpCreate, Address: vm.Address}
			appendOp(&passed, &failed, vm, op)
		}
		for _, vm := range t.Matches {
			op := matchOperation(vm)
			appendOp(&passed, &failed, vm, op)
		}

		for _, cs := range []geomodel.Changeset{passed, failed} {
			if len(cs.Ops) == 0 {
				continue
			}
			sortOps(cs.Ops)
			out = append(out, cs)
		}
	}
	return out
}

func matchOperation(vm geomodel.ValidatedMatch) geomodel.Operation {
	switch {
	case !vm.MergeIntoBuilding:
		// The building is contested or emitted from its own tile; this match
		// only contributes the address node.
		return geomodel.Operation{Kind: geomodel.OpCreate, Address: vm.Address}
	case vm.Building.Origin == geomodel.OriginExisting:
		return geomodel.Operation{Kind: geomodel.OpModify, Building: vm.Building, Address: vm.Address}
	default:
		return geomodel.Operation{Kind: geomodel.OpCreate, Building: vm.Building, Address: vm.Address}
	}
}

func appendOp(passed, failed *geomodel.Changeset, vm geomodel.ValidatedMatch, op geomodel.Operation) {
	if vm.Result.Failed() {
		failed.Ops = append(failed.Ops, op)
		return
	}
	passed.Ops = append(passed.Ops, op)
}

func sortOps(ops []geomodel.Operation) {
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].Kind != ops[j].Kind {
			return ops[i].Kind < ops[j].Kind
		}
		return ops[i].SubjectID() < ops[j].SubjectID()
	})
}
