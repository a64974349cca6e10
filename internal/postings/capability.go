package postings

import (
	"fmt"
	"math"
	"strings"
)

// NoMoreDocs is the docID an exhausted enumerator reports.
const NoMoreDocs = math.MaxInt32

// Capability is the information level a field is indexed with. Levels are
// ordered; each one includes everything below it.
type Capability uint8

const (
	DocsOnly Capability = iota
	DocsAndFreqs
	DocsAndFreqsAndPositions
	DocsAndFreqsAndPositionsAndOffsets
)

// Capabilities lists every level from lowest to highest.
var Capabilities = []Capability{
	DocsOnly,
	DocsAndFreqs,
	DocsAndFreqsAndPositions,
	DocsAndFreqsAndPositionsAndOffsets,
}

func (c Capability) HasFreqs() bool     { return c >= DocsAndFreqs }
func (c Capability) HasPositions() bool { return c >= DocsAndFreqsAndPositions }
func (c Capability) HasOffsets() bool   { return c >= DocsAndFreqsAndPositionsAndOffsets }

func (c Capability) String() string {
	switch c {
	case DocsOnly:
		return "docs"
	case DocsAndFreqs:
		return "docs+freqs"
	case DocsAndFreqsAndPositions:
		return "docs+freqs+positions"
	case DocsAndFreqsAndPositionsAndOffsets:
		return "docs+freqs+positions+offsets"
	default:
		return fmt.Sprintf("capability(%d)", uint8(c))
	}
}

// MinCapability returns the lowest of the given levels.
func MinCapability(first Capability, rest ...Capability) Capability {
	m := first
	for _, c := range rest {
		if c < m {
			m = c
		}
	}
	return m
}

// Request describes the enumerator shape a caller wants. Positions selects
// the positional flavor; Offsets and Payloads only matter with Positions.
type Request struct {
	Freqs     bool
	Positions bool
	Offsets   bool
	Payloads  bool
}

// Flavor names the enumerator variant the request resolves to.
func (r Request) Flavor() string {
	switch {
	case r.Positions:
		return "positions"
	case r.Freqs:
		return "freqs"
	default:
		return "docs"
	}
}

func (r Request) String() string {
	var flags []string
	if r.Freqs {
		flags = append(flags, "freqs")
	}
	if r.Positions {
		flags = append(flags, "positions")
	}
	if r.Offsets {
		flags = append(flags, "offsets")
	}
	if r.Payloads {
		flags = append(flags, "payloads")
	}
	if len(flags) == 0 {
		return "docs"
	}
	return strings.Join(flags, "|")
}

// FieldInfo is the realized per-field metadata an artifact is written with.
type FieldInfo struct {
	Name        string
	Number      int
	Capability  Capability
	HasPayloads bool
}

// TermStats is committed once per term. TotalTermFreq is -1 when the field
// does not index frequencies.
type TermStats struct {
	DocFreq       int
	TotalTermFreq int64
}

// FieldStats is committed once per field. SumTotalTermFreq is -1 when the
// field does not index frequencies.
type FieldStats struct {
	SumTotalTermFreq int64
	SumDocFreq       int64
	DocCount         int
	TermCount        int
}

// Bits is a read-only document filter over [0, Len()).
type Bits interface {
	Get(doc int) bool
	Len() int
}
