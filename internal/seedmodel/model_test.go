package seedmodel

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/postings"
)

type everyOther struct{ n int }

func (b everyOther) Get(doc int) bool { return doc%2 == 0 }
func (b everyOther) Len() int         { return b.n }

type posting struct {
	doc       int
	freq      int
	positions []int
	payloads  [][]byte
	starts    []int
	ends      []int
}

func drain(m *Model, withPositions bool) []posting {
	var out []posting
	for doc := m.NextDoc(); doc != postings.NoMoreDocs; doc = m.NextDoc() {
		p := posting{doc: doc, freq: m.Freq()}
		if withPositions {
			for range m.Freq() {
				p.positions = append(p.positions, m.NextPosition())
				p.payloads = append(p.payloads, bytes.Clone(m.Payload()))
				p.starts = append(p.starts, m.StartOffset())
				p.ends = append(p.ends, m.EndOffset())
			}
		}
		out = append(out, p)
	}
	return out
}

func docIDs(ps []posting) []int {
	ids := make([]int, len(ps))
	for i, p := range ps {
		ids[i] = p.doc
	}
	return ids
}

func TestModel_DenseFixedSeed(t *testing.T) {
	m := New(42, 5, 5, nil, postings.DocsOnly, WithMaxDocSpacing(1))
	assert.Equal(t, -1, m.DocID())
	assert.Equal(t, 5, m.DocFreq())
	assert.Equal(t, int64(5), m.Cost())

	got := docIDs(drain(m, false))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestModel_Deterministic(t *testing.T) {
	full := postings.DocsAndFreqsAndPositionsAndOffsets
	for _, seed := range []uint64{1, 7, 42, 1 << 40, 0xdeadbeefcafe} {
		a := drain(New(seed, 1, 200, nil, full), true)
		b := drain(New(seed, 1, 200, nil, full), true)
		require.Equal(t, a, b, "seed %d", seed)
		require.NotEmpty(t, a)
	}
}

func TestModel_DocIDsIndependentOfCeiling(t *testing.T) {
	for _, seed := range []uint64{3, 99, 123456} {
		want := docIDs(drain(New(seed, 10, 100, nil, postings.DocsOnly), false))
		for _, c := range postings.Capabilities {
			got := docIDs(drain(New(seed, 10, 100, nil, c), c.HasPositions()))
			assert.Equal(t, want, got, "seed %d ceiling %s", seed, c)
		}
	}
}

func TestModel_UnreadPositionsKeepStreamAligned(t *testing.T) {
	ceiling := postings.DocsAndFreqsAndPositionsAndOffsets
	want := drain(New(77, 20, 60, nil, ceiling), true)

	m := New(77, 20, 60, nil, ceiling)
	i := 0
	for doc := m.NextDoc(); doc != postings.NoMoreDocs; doc = m.NextDoc() {
		require.Equal(t, want[i].doc, doc)
		require.Equal(t, want[i].freq, m.Freq())
		// Read only a prefix of the positions; the rest is drained by NextDoc.
		for j := 0; j < i%3 && j < m.Freq(); j++ {
			require.Equal(t, want[i].positions[j], m.NextPosition())
			require.Equal(t, want[i].payloads[j], bytes.Clone(m.Payload()))
		}
		i++
	}
	assert.Equal(t, len(want), i)
}

func TestModel_LiveDocsFilter(t *testing.T) {
	all := drain(New(5, 50, 80, nil, postings.DocsAndFreqs), false)
	live := everyOther{n: 1 << 20}

	m := New(5, 50, 80, live, postings.DocsAndFreqs)
	filtered := drain(m, false)

	var want []posting
	for _, p := range all {
		if live.Get(p.doc) {
			want = append(want, p)
		}
	}
	assert.Equal(t, want, filtered)
	assert.Equal(t, len(all), m.DocFreq())
	assert.Equal(t, m.DocFreq(), m.Upto())
}

func TestModel_AdvanceMatchesNextDoc(t *testing.T) {
	ref := docIDs(drain(New(11, 30, 60, nil, postings.DocsOnly), false))
	require.NotEmpty(t, ref)
	last := ref[len(ref)-1]

	for target := 0; target <= last+2; target += 7 {
		m := New(11, 30, 60, nil, postings.DocsOnly)
		got := m.Advance(target)

		want := postings.NoMoreDocs
		for _, d := range ref {
			if d >= target {
				want = d
				break
			}
		}
		assert.Equal(t, want, got, "target %d", target)
	}
}

func TestModel_ExhaustedIsSticky(t *testing.T) {
	m := New(8, 1, 3, nil, postings.DocsAndFreqsAndPositions)
	drain(m, false)
	assert.Equal(t, postings.NoMoreDocs, m.DocID())
	assert.Equal(t, postings.NoMoreDocs, m.NextDoc())
	assert.Equal(t, postings.NoMoreDocs, m.Advance(10))
	assert.Equal(t, postings.NoMoreDocs, m.DocID())
}

func TestModel_PositionsMonotoneAndOffsetsOrdered(t *testing.T) {
	ps := drain(New(2024, 100, 200, nil, postings.DocsAndFreqsAndPositionsAndOffsets), true)
	for _, p := range ps {
		require.Len(t, p.positions, p.freq)
		for i := range p.positions {
			if i > 0 {
				assert.GreaterOrEqual(t, p.positions[i], p.positions[i-1])
				assert.GreaterOrEqual(t, p.starts[i], p.ends[i-1])
			}
			assert.GreaterOrEqual(t, p.ends[i], p.starts[i])
			if p.payloads[i] != nil {
				assert.NotEmpty(t, p.payloads[i])
			}
		}
	}
}

func TestModel_NextPositionPastFreqPanics(t *testing.T) {
	m := New(4, 1, 1, nil, postings.DocsAndFreqsAndPositions)
	m.NextDoc()
	for range m.Freq() {
		m.NextPosition()
	}
	assert.Panics(t, func() { m.NextPosition() })
}

func TestTierOf(t *testing.T) {
	tests := []struct {
		term   string
		tier   Tier
		lo, hi int
	}{
		{"big_abc", Big, 100000, 140000},
		{"medium_x", Medium, 6000, 12000},
		{"low_q", Low, 2, 80},
		{"verylow_q", VeryLow, 1, 3},
		{"other", VeryLow, 1, 3},
	}
	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			tier := TierOf(tt.term)
			assert.Equal(t, tt.tier, tier)
			lo, hi := tier.Range(2)
			assert.Equal(t, tt.lo, lo)
			assert.Equal(t, tt.hi, hi)
		})
	}
}

func TestModel_FrequencyTiers(t *testing.T) {
	m := New(77, 20000, 20000, nil, postings.DocsOnly)
	var low, medium, high int
	for doc := m.NextDoc(); doc != postings.NoMoreDocs; doc = m.NextDoc() {
		switch f := m.Freq(); {
		case f <= 4:
			low++
		case f <= 20:
			medium++
		default:
			high++
		}
	}
	// Roughly 10% of documents draw from 1..20; 5..20 is 16/20 of those.
	assert.InDelta(t, 0.08, float64(medium)/20000, 0.02)
	assert.Positive(t, high)
	assert.Greater(t, low, medium)
}
