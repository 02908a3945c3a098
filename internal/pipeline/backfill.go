package pipeline

import (
	"fmt"
	"strings"
	"unicode"

	"treatment-review/internal/models"
)

// BackfillPolicy decides what a failed side-effect backfill does to the run.
type BackfillPolicy string

const (
	// BackfillKeep logs the failure and keeps the previous side effects.
	BackfillKeep BackfillPolicy = "keep"
	// BackfillAbort fails the run.
	BackfillAbort BackfillPolicy = "abort"
)

// ParseBackfillPolicy accepts "" as BackfillKeep.
func ParseBackfillPolicy(s string) (BackfillPolicy, error) {
	switch BackfillPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", BackfillKeep:
		return BackfillKeep, nil
	case BackfillAbort:
		return BackfillAbort, nil
	default:
		return "", fmt.Errorf("unknown backfill policy %q", s)
	}
}

var unavailableMarkers = map[string]struct{}{
	"na":           {},
	"notavailable": {},
	"none":         {},
	"notspecified": {},
}

// NeedsBackfill reports whether a medication's side effects are missing:
// the list is empty, or its first entry is a placeholder such as "N/A",
// "none" or "Not specified." compared in lower case with every
// non-alphanumeric rune dropped.
func NeedsBackfill(med models.Medication) bool {
	if len(med.SideEffects) == 0 {
		return true
	}
	_, ok := unavailableMarkers[normalizeMarker(med.SideEffects[0])]
	return ok
}

// normalizeMarker lowercases s and keeps only letters and digits.
func normalizeMarker(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
