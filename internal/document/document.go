// Package document defines the uniform unit every reader yields and every
// hunt/search/render pass consumes.
package document

import (
	"github.com/triagelabs/chainsaw/internal/datetime"
	"github.com/triagelabs/chainsaw/internal/value"
)

// Document is exactly one source record: one EVTX Event, one JSON array
// element, one registry value, and so on.
type Document struct {
	Data value.Value

	// Source is the originating file path.
	Source string

	// RecordID is the 1-based position of this record within Source, for
	// Event-Log-style artefacts that have a native sequence.
	RecordID *uint64

	// Timestamp is lifted from a format-defined location when recoverable.
	Timestamp *datetime.DateTime
}
