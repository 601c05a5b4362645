package conflate

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/mapgrove/osmconflate/geomodel"
)

// WriteProvenance streams entries as one JSON object per line, in the order
// collected (index, dedup, match, validation).
func WriteProvenance(w io.Writer, entries []geomodel.ProvenanceEntry) error {
	enc := json.NewEncoder(w)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("encoding provenance for %s: %w", e.FeatureID, err)
		}
	}
	return nil
}
