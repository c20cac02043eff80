package types

import (
	"strings"

	"bonita/internal/errors"
)

// FailurePolicy decides what a failed parcel lookup does to the run.
type FailurePolicy string

const (
	// FailureAbort stops the run at the first failed parcel
	FailureAbort FailurePolicy = "abort"

	// FailureSkip leaves the parcel out of every sum and continues
	FailureSkip FailurePolicy = "skip"
)

// ParseFailurePolicy accepts "abort" or "skip" (case-insensitive).
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case FailureAbort, FailureSkip:
		return p, nil
	default:
		return "", errors.Newf(errors.TypeConfig, "unknown parcel failure policy %q (use abort or skip)", s)
	}
}
