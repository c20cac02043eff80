// Package types defines the parcel, soil code and report types shared by the
// resolvers, the aggregator and the formatters.
package types

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"bonita/internal/errors"
)

// ParcelID identifies a parcel within a cadastral area: a principal number and
// an optional subdivision ("1119/1" or "1284").
type ParcelID struct {
	Number         int
	Subdivision    int
	HasSubdivision bool
}

// ParseParcelID parses "N" or "N/M".
func ParseParcelID(s string) (ParcelID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ParcelID{}, errors.Input("empty parcel number")
	}

	head, tail, divided := strings.Cut(s, "/")
	number, err := parseParcelPart(head)
	if err != nil {
		return ParcelID{}, errors.Wrapf(errors.TypeInput, err, "invalid parcel %q", s)
	}
	id := ParcelID{Number: number}

	if divided {
		sub, err := parseParcelPart(tail)
		if err != nil {
			return ParcelID{}, errors.Wrapf(errors.TypeInput, err, "invalid parcel %q", s)
		}
		id.Subdivision = sub
		id.HasSubdivision = true
	}
	return id, nil
}

// ParseParcelIDs parses a list, failing on the first invalid entry.
func ParseParcelIDs(raw []string) ([]ParcelID, error) {
	ids := make([]ParcelID, 0, len(raw))
	for _, s := range raw {
		id, err := ParseParcelID(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseParcelPart(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.Input("missing number")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, errors.Input("not a number: " + s)
		}
	}
	return strconv.Atoi(s)
}

// String renders the identifier the way it is written in extracts.
func (p ParcelID) String() string {
	if p.HasSubdivision {
		return strconv.Itoa(p.Number) + "/" + strconv.Itoa(p.Subdivision)
	}
	return strconv.Itoa(p.Number)
}

// SoilArea is the part of a parcel's area classified under one soil code.
type SoilArea struct {
	Code SoilCode        `json:"code"`
	Area decimal.Decimal `json:"area"`
}

// ParcelRecord is the resolved cadastre data for one parcel.
// A record carries either SoilAreas or a LandType fallback, never both.
type ParcelRecord struct {
	ID        ParcelID        `json:"-"`
	Area      decimal.Decimal `json:"area"`
	Sheet     *int            `json:"sheet,omitempty"`
	LandType  string          `json:"land_type,omitempty"`
	SoilAreas []SoilArea      `json:"soil_areas,omitempty"`
}

// HasSoilCodes reports whether the parcel has a soil code breakdown.
func (r *ParcelRecord) HasSoilCodes() bool {
	return len(r.SoilAreas) > 0
}
