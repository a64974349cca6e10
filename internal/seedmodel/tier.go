package seedmodel

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/postings"
)

// Tier is a term's document-frequency class, encoded only in its name.
type Tier int

const (
	VeryLow Tier = iota
	Low
	Medium
	Big
)

var tierPrefixes = map[Tier]string{
	VeryLow: "verylow_",
	Low:     "low_",
	Medium:  "medium_",
	Big:     "big_",
}

// TierOf classifies term by its prefix.
func TierOf(term string) Tier {
	switch {
	case strings.HasPrefix(term, "big_"):
		return Big
	case strings.HasPrefix(term, "medium_"):
		return Medium
	case strings.HasPrefix(term, "low_"):
		return Low
	default:
		return VeryLow
	}
}

func (t Tier) Prefix() string {
	return tierPrefixes[t]
}

func (t Tier) String() string {
	return strings.TrimSuffix(t.Prefix(), "_")
}

// Range returns the [min, max] document frequency for the tier. The very-low
// tier ignores the multiplier.
func (t Tier) Range(multiplier int) (int, int) {
	switch t {
	case Big:
		return multiplier * 50000, multiplier * 70000
	case Medium:
		return multiplier * 3000, multiplier * 6000
	case Low:
		return multiplier, multiplier * 40
	default:
		return 1, 3
	}
}

// ForTerm builds the Model of a corpus term.
func ForTerm(term string, seed uint64, multiplier int, live postings.Bits, ceiling postings.Capability) *Model {
	lo, hi := TierOf(term).Range(multiplier)
	return New(seed, lo, hi, live, ceiling)
}
