package validate

import (
	"fmt"
	"strconv"
)

// verifyChecksum dispatches on the algorithm name declared by the schema.
func verifyChecksum(algorithm, value string) error {
	switch algorithm {
	case "icao9303":
		return verifyICAO9303(value)
	default:
		return fmt.Errorf("unknown checksum algorithm %q", algorithm)
	}
}

// verifyICAO9303 validates the 7-3-1 check digit used in machine-readable
// travel documents. The check digit is only printed in the MRZ document
// number field (9 characters + 1 check digit), so shorter values (the
// human-readable number without a check digit) are accepted as-is.
func verifyICAO9303(value string) error {
	if len(value) != 10 {
		return nil
	}
	weights := [3]int{7, 3, 1}
	sum := 0
	for i, r := range value[:9] {
		var v int
		switch {
		case r >= '0' && r <= '9':
			v = int(r - '0')
		case r >= 'A' && r <= 'Z':
			v = int(r-'A') + 10
		case r == '<':
			v = 0
		default:
			return fmt.Errorf("document number has invalid character %q", r)
		}
		sum += v * weights[i%3]
	}
	want := sum % 10
	got, err := strconv.Atoi(value[9:])
	if err != nil {
		return fmt.Errorf("document number check digit is not numeric")
	}
	if got != want {
		return fmt.Errorf("document number check digit mismatch: have %d, computed %d", got, want)
	}
	return nil
}
