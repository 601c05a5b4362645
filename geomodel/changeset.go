package geomodel

import "github.com/paulmach/orb/maptile"

// Bucket separates review batches by validation outcome.
type Bucket uint8

const (
	BucketPassed Bucket = iota
	BucketFailed
)

func (b Bucket) String() string {
	if b == BucketFailed {
		return "failed"
	}
	return "passed"
}

// OpKind distinguishes creating a new element from modifying an existing one.
type OpKind uint8

const (
	OpCreate OpKind = iota
	OpModify
)

func (k OpKind) String() string {
	if k == OpModify {
		return "modify"
	}
	return "create"
}

// Operation is one proposed edit. The three shapes are:
//
//   - create building: Building set (novel), Address optionally set when its
//     tags are folded into the footprint element
//   - create address node: Building nil, Address set
//   - modify existing building: Building set (existing), Address supplies the
//     addr:* tags to apply
type Operation struct {
	Kind     OpKind
	Building *Building
	Address  *Address
}

// SubjectID returns the identifier of the feature the operation edits, used
// for deterministic ordering and cross-changeset uniqueness checks.
func (op Operation) SubjectID() string {
	if op.Kind == OpCreate && op.Building != nil {
		return op.Building.ID
	}
	if op.Address != nil && op.Building == nil {
		return op.Address.ID
	}
	return op.Building.ID
}

// Changeset is the ordered operation list for one (tile, outcome) pair. It
// never mixes tiles or buckets.
type Changeset struct {
	Tile   maptile.Tile
	Bucket Bucket
	Ops    []Operation
}
