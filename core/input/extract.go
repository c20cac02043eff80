// Package input turns operator-supplied text into a cadastral area code and a
// parcel list. Two shapes are accepted: a pasted cadastre extract, and a plain
// list with one parcel per line.
package input

import (
	"regexp"
	"strconv"
	"strings"

	"bonita/core/types"
	"bonita/internal/errors"
)

var (
	areaLine   = regexp.MustCompile(`Katastrální\s+území\s*:\s*(.+?)\[(\d+)\]`)
	parcelLine = regexp.MustCompile(`^\d+(/\d+)?$`)
)

// parcelHeader marks the start of the parcel column in an extract. Matched
// case-insensitively.
const parcelHeader = "parcelní číslo"

// Extract is what could be read out of a pasted cadastre extract.
type Extract struct {
	AreaName string
	AreaCode int
	Parcels  []string
}

// Usable reports whether both the area code and at least one parcel were found.
// An extract that is not usable is ignored in favour of the configured values.
func (e *Extract) Usable() bool {
	return e != nil && e.AreaCode > 0 && len(e.Parcels) > 0
}

// ParcelIDs parses the collected parcel numbers.
func (e *Extract) ParcelIDs() ([]types.ParcelID, error) {
	return types.ParseParcelIDs(e.Parcels)
}

// ParseExtract scans raw extract text. The first "Katastrální území: Name [code]"
// line supplies the area. Parcels are the lines directly after the first line
// containing "Parcelní číslo", up to the first empty or non-parcel line.
func ParseExtract(raw string) *Extract {
	lines := splitLines(raw)
	ext := &Extract{}

	for _, line := range lines {
		m := areaLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		code, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		ext.AreaName = strings.TrimSpace(m[1])
		ext.AreaCode = code
		break
	}

	collecting := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if !collecting {
			if strings.Contains(strings.ToLower(line), parcelHeader) {
				collecting = true
			}
			continue
		}
		if line == "" || !parcelLine.MatchString(line) {
			break
		}
		ext.Parcels = append(ext.Parcels, line)
	}

	return ext
}

// ParseParcelList splits free-form text into parcel numbers, one per line.
// Blank lines are dropped. Each entry must be "N" or "N/M".
func ParseParcelList(text string) ([]types.ParcelID, error) {
	var raw []string
	for _, line := range splitLines(text) {
		if line = strings.TrimSpace(line); line != "" {
			raw = append(raw, line)
		}
	}
	if len(raw) == 0 {
		return nil, errors.Input("parcel list is empty")
	}
	return types.ParseParcelIDs(raw)
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Split(s, "\n")
}
