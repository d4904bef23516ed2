package observation

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/antzucaro/matchr"
)

var ErrUnknownCadence = errors.New("unknown cadence")

// Cadence is the sampling rate an observation was taken at.
type Cadence int

const (
	// Short is the 2-minute cadence.
	Short Cadence = iota
	// Fast is the 20-second cadence.
	Fast
)

// Cadences lists every known cadence in canonical order (by letter).
var Cadences = []Cadence{Fast, Short}

func (c Cadence) Letter() byte {
	switch c {
	case Fast:
		return 'F'
	default:
		return 'S'
	}
}

func (c Cadence) String() string {
	switch c {
	case Fast:
		return "fast"
	default:
		return "short"
	}
}

// TotalCode is the header used for the derived totals pseudo-column of this cadence.
func (c Cadence) TotalCode() string {
	return string(c.Letter()) + "TOT"
}

// ParseCadence parses a cadence name, when it cannot be parsed the error
// contains the most similar known name.
func ParseCadence(name string) (Cadence, error) {
	normalized := strings.ToLower(strings.Trim(name, " \t\n"))
	for _, c := range Cadences {
		if normalized == c.String() {
			return c, nil
		}
	}

	suggestion := ""
	var similarity float64
	for _, c := range Cadences {
		sim := matchr.JaroWinkler(normalized, c.String(), false)
		if sim > similarity {
			similarity = sim
			suggestion = c.String()
		}
	}
	if suggestion == "" {
		return 0, fmt.Errorf("%w: '%s'", ErrUnknownCadence, name)
	}
	return 0, fmt.Errorf("%w: '%s' (did you mean '%s'?)", ErrUnknownCadence, name, suggestion)
}

// ParseCadences parses a list of cadence names, keeping the order they are
// given in. Duplicates are dropped.
func ParseCadences(names []string) ([]Cadence, error) {
	var out []Cadence
	for _, n := range names {
		c, err := ParseCadence(n)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out, nil
}

// ColumnKey identifies a sector-cadence column, ex. S014 or F027.
type ColumnKey struct {
	Cadence Cadence
	Sector  int
}

func (k ColumnKey) String() string {
	return fmt.Sprintf("%c%03d", k.Cadence.Letter(), k.Sector)
}

// Compare orders keys by cadence letter and then by sector number.
func (k ColumnKey) Compare(other ColumnKey) int {
	kl, ol := k.Cadence.Letter(), other.Cadence.Letter()
	if kl != ol {
		if kl < ol {
			return -1
		}
		return 1
	}
	if k.Sector < other.Sector {
		return -1
	}
	if k.Sector > other.Sector {
		return 1
	}
	return 0
}

// IsTotalCode reports whether a header is one of the derived totals columns.
func IsTotalCode(code string) bool {
	return len(code) == 4 && strings.HasSuffix(code, "TOT")
}

// ParseColumnKey parses the serialized form of a column key.
func ParseColumnKey(code string) (ColumnKey, error) {
	if len(code) < 2 || IsTotalCode(code) {
		return ColumnKey{}, fmt.Errorf("invalid column code '%s'", code)
	}

	var cadence Cadence
	switch code[0] {
	case 'S':
		cadence = Short
	case 'F':
		cadence = Fast
	default:
		return ColumnKey{}, fmt.Errorf("%w: column code '%s'", ErrUnknownCadence, code)
	}

	sector, err := strconv.Atoi(code[1:])
	if err != nil || sector < 0 {
		return ColumnKey{}, fmt.Errorf("invalid sector in column code '%s'", code)
	}
	return ColumnKey{Cadence: cadence, Sector: sector}, nil
}
