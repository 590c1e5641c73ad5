package scoring

import (
	_ "embed"
	"errors"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"
)

const (
	MinBand = 1.0
	MaxBand = 9.0
)

//go:embed bands.yaml
var defaultBandsYAML []byte

// Threshold maps an inclusive lower percentage bound to a band.
type Threshold struct {
	Min  float64 `yaml:"min"`
	Band float64 `yaml:"band"`
}

// BandTable converts a percentage of correct answers into a band.
type BandTable struct {
	thresholds []Threshold
}

// ParseBandTable decodes and validates a YAML band table.
func ParseBandTable(data []byte) (*BandTable, error) {
	var doc struct {
		Thresholds []Threshold `yaml:"thresholds"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode band table: %w", err)
	}
	if len(doc.Thresholds) == 0 {
		return nil, errors.New("band table is empty")
	}

	prev := Threshold{Min: math.Inf(-1), Band: MinBand}
	for i, t := range doc.Thresholds {
		if t.Min <= prev.Min {
			return nil, fmt.Errorf("threshold %d: min %.2f not above %.2f", i, t.Min, prev.Min)
		}
		if t.Band <= prev.Band {
			return nil, fmt.Errorf("threshold %d: band %.1f not above %.1f", i, t.Band, prev.Band)
		}
		if !ValidBand(t.Band) {
			return nil, fmt.Errorf("threshold %d: band %.2f off the 0.5 grid", i, t.Band)
		}
		prev = t
	}
	return &BandTable{thresholds: doc.Thresholds}, nil
}

// DefaultBandTable returns the embedded reading/listening table.
func DefaultBandTable() *BandTable {
	t, err := ParseBandTable(defaultBandsYAML)
	if err != nil {
		panic(err)
	}
	return t
}

// Band returns the band for percentage. Values below the first threshold
// map to MinBand.
func (t *BandTable) Band(percentage float64) float64 {
	band := MinBand
	for _, th := range t.thresholds {
		if percentage < th.Min {
			break
		}
		band = th.Band
	}
	return band
}

// ValidBand reports whether b lies in [1, 9] on the 0.5 grid.
func ValidBand(b float64) bool {
	if b < MinBand || b > MaxBand {
		return false
	}
	return math.Mod(b*2, 1) == 0
}

// RoundHalf rounds v to the nearest 0.5, halves rounding up.
func RoundHalf(v float64) float64 {
	return math.Floor(v*2+0.5) / 2
}
