package core

import "strings"

// EstimateMarker is the token older rows used inside notes to flag an
// estimated amount. IsEstimate is a real column now; the marker is only read.
const EstimateMarker = "[ESTIMATE]"

// DecodeLegacyNotes strips a leading estimate marker from notes and reports
// whether it was present.
func DecodeLegacyNotes(notes string) (bool, string) {
	trimmed := strings.TrimLeft(notes, " ")
	if !strings.HasPrefix(trimmed, EstimateMarker) {
		return false, notes
	}
	return true, strings.TrimLeft(strings.TrimPrefix(trimmed, EstimateMarker), " ")
}

// NormalizeEstimate folds a legacy marker found in the notes into the
// IsEstimate flag.
func (b *PayableBill) NormalizeEstimate() {
	if legacy, notes := DecodeLegacyNotes(b.Notes); legacy {
		b.IsEstimate = true
		b.Notes = notes
	}
}
