// Package verify checks that a candidate track from a provider is the
// same recording as the canonical track, both before download (cheap
// metadata comparison) and after (acoustic fingerprint).
package verify

import (
	"strings"

	"yoink/internal/metadata"
)

// DurationToleranceMS is the maximum absolute duration difference, in
// milliseconds, accepted when no ISRC comparison is possible.
const DurationToleranceMS = 3000

// Identity is the outcome of a pre-fetch comparison.
type Identity struct {
	OK     bool
	Reason string
}

// CheckIdentity compares a provider candidate against the canonical
// track. A matching ISRC is conclusive on its own; an absent or
// mismatched ISRC falls through to the duration tolerance. Neither
// signal passing rejects the candidate.
func CheckIdentity(want metadata.Track, gotISRC string, gotDurationMS int) Identity {
	if want.ISRC != "" && gotISRC != "" && strings.EqualFold(want.ISRC, gotISRC) {
		return Identity{OK: true, Reason: "isrc match"}
	}

	if want.DurationMS > 0 && gotDurationMS > 0 {
		diff := want.DurationMS - gotDurationMS
		if diff < 0 {
			diff = -diff
		}
		if diff <= DurationToleranceMS {
			return Identity{OK: true, Reason: "duration within tolerance"}
		}
		return Identity{OK: false, Reason: "duration mismatch"}
	}

	return Identity{OK: false, Reason: "no comparable identity signal"}
}
