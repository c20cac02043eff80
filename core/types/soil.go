package types

import (
	"strings"

	"bonita/internal/errors"
)

// SoilCodeWidth is the canonical width of a soil code.
const SoilCodeWidth = 5

// SoilCode is a soil quality (BPEJ) code in canonical form: five digits,
// left-padded with zeros. Use NormalizeSoilCode wherever a code enters.
type SoilCode string

// NormalizeSoilCode converts "100", "00100" or " 00100 " to "00100".
func NormalizeSoilCode(raw string) (SoilCode, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", errors.Input("empty soil code")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", errors.Newf(errors.TypeInput, "soil code %q is not numeric", raw)
		}
	}
	if len(s) > SoilCodeWidth {
		return "", errors.Newf(errors.TypeInput, "soil code %q is longer than %d digits", raw, SoilCodeWidth)
	}
	return SoilCode(strings.Repeat("0", SoilCodeWidth-len(s)) + s), nil
}

func (c SoilCode) String() string {
	return string(c)
}
