package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSource records where a soil code price came from.
type PriceSource string

const (
	PriceFromCache  PriceSource = "cache"
	PriceFromRemote PriceSource = "remote"
)

// SheetKind classifies the land-registry sheets seen in a run.
type SheetKind string

const (
	SheetsNone     SheetKind = "none"
	SheetsUnique   SheetKind = "unique"
	SheetsMultiple SheetKind = "multiple"
)

// NoSoilFormula is the formula text when there is nothing to weigh.
const NoSoilFormula = "(No BPEJ data)"

// Report is the result of one valuation run.
type Report struct {
	// RunID identifies the run in logs and JSON output
	RunID string `json:"run_id"`

	// GeneratedAt is when the report was assembled
	GeneratedAt time.Time `json:"generated_at"`

	// CadastralAreaCode scopes the parcel numbers
	CadastralAreaCode int `json:"cadastral_area_code"`

	// UsedLocalCache is set when prices were looked up in the cache file first
	UsedLocalCache bool `json:"used_local_cache"`

	// ForcedFreshCache is set when the cache was rebuilt without asking
	ForcedFreshCache bool `json:"forced_fresh_cache"`

	// TotalArea covers every resolved parcel, with or without soil codes
	TotalArea decimal.Decimal `json:"total_area"`

	// Breakdown has one line per distinct soil code, first-seen order
	Breakdown []SoilLine `json:"breakdown"`

	// WeightedSum is the sum of the breakdown partials
	WeightedSum decimal.Decimal `json:"weighted_sum"`

	// AveragePrice is WeightedSum / TotalArea, rounded to 2 places
	AveragePrice decimal.Decimal `json:"average_price"`

	// Unclassified lists parcels without a soil code breakdown
	Unclassified []UnclassifiedParcel `json:"unclassified,omitempty"`

	// UnclassifiedArea is the area subtotal of Unclassified
	UnclassifiedArea decimal.Decimal `json:"unclassified_area"`

	// Sheets summarizes the land-registry sheet numbers
	Sheets SheetSummary `json:"sheets"`

	// Formula reproduces the average as a spreadsheet expression
	Formula string `json:"formula"`

	// Skipped lists parcels left out under the skip policy
	Skipped []SkippedParcel `json:"skipped,omitempty"`
}

// SoilLine is the aggregate for one soil code.
type SoilLine struct {
	Code    SoilCode        `json:"code"`
	Area    decimal.Decimal `json:"area"`
	Price   decimal.Decimal `json:"price"`
	Partial decimal.Decimal `json:"partial"`
	Source  PriceSource     `json:"source"`
}

// UnclassifiedParcel is a parcel reported by land type only.
type UnclassifiedParcel struct {
	Parcel   string          `json:"parcel"`
	Area     decimal.Decimal `json:"area"`
	LandType string          `json:"land_type"`
}

// SheetSummary lists distinct sheet numbers in first-seen order.
type SheetSummary struct {
	Kind    SheetKind `json:"kind"`
	Numbers []int     `json:"numbers,omitempty"`
}

// SkippedParcel records why a parcel is missing from the sums.
type SkippedParcel struct {
	Parcel string `json:"parcel"`
	Reason string `json:"reason"`
}
