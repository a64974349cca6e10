package corpus

import (
	"bytes"
	"log/slog"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/postings"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/seedmodel"
)

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed+1))
}

func TestBuild_Deterministic(t *testing.T) {
	a := Build(newRand(9), Options{Multiplier: 1})
	b := Build(newRand(9), Options{Multiplier: 1})

	assert.Equal(t, a.FieldNames(), b.FieldNames())
	assert.Equal(t, a.AllTerms(), b.AllTerms())
	assert.Equal(t, a.MaxDoc(), b.MaxDoc())
	assert.Equal(t, a.LiveDocs().Cardinality(), b.LiveDocs().Cardinality())
}

func TestBuild_Shape(t *testing.T) {
	for seed := uint64(1); seed <= 20; seed++ {
		c := Build(newRand(seed), Options{Multiplier: 1})
		names := c.FieldNames()
		require.GreaterOrEqual(t, len(names), 1)
		require.LessOrEqual(t, len(names), 5)
		assert.True(t, sort.StringsAreSorted(names))

		for i, f := range c.Fields() {
			assert.Equal(t, i, f.Number)
			assert.Equal(t, postings.DocsAndFreqsAndPositionsAndOffsets, f.Ceiling)

			terms := c.Terms(f.Name)
			require.NotEmpty(t, terms)
			for j := 1; j < len(terms); j++ {
				assert.Negative(t, bytes.Compare(terms[j-1], terms[j]), "terms must be strictly ordered")
			}
			for _, term := range terms {
				_, ok := c.Seed(f.Name, term)
				assert.True(t, ok)
			}
		}
		assert.Equal(t, c.MaxDoc(), c.LiveDocs().Len())
	}
}

func TestBuild_MaxDocCoversEveryTerm(t *testing.T) {
	c := Build(newRand(33), Options{Multiplier: 1})
	for _, ft := range c.AllTerms() {
		m, err := c.Model(ft.Field, ft.Term, nil, postings.DocsOnly)
		require.NoError(t, err)
		for doc := m.NextDoc(); doc != postings.NoMoreDocs; doc = m.NextDoc() {
			assert.Less(t, doc, c.MaxDoc())
		}
	}
}

func TestBuild_MediumAndBigTermsOnFirstField(t *testing.T) {
	const corpora = 60
	var withMedium, singleField, singleFieldWithMedium int
	for seed := uint64(1); seed <= corpora; seed++ {
		c := Build(newRand(seed), Options{Multiplier: 1, Nightly: true})
		var mediumField, bigField string
		var medium, big int
		for _, ft := range c.AllTerms() {
			switch seedmodel.TierOf(string(ft.Term)) {
			case seedmodel.Medium:
				medium++
				mediumField = ft.Field
			case seedmodel.Big:
				big++
				bigField = ft.Field
			}
		}
		// The big term is the first term drawn, so it is never a duplicate.
		require.Equal(t, 1, big, "seed %d", seed)
		require.LessOrEqual(t, medium, 1, "seed %d", seed)
		if medium == 1 {
			withMedium++
			assert.Equal(t, bigField, mediumField, "seed %d", seed)
		}
		if len(c.Fields()) == 1 {
			singleField++
			singleFieldWithMedium += medium
		}
		c.Close()
	}
	// Only a second term equal to the first loses the medium slot.
	assert.GreaterOrEqual(t, withMedium, corpora-2)
	require.Positive(t, singleField)
	assert.GreaterOrEqual(t, singleFieldWithMedium, singleField-1)
}

func TestBuild_SummaryOnlyAtDebug(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	Build(newRand(8), Options{Multiplier: 1}).Close()
	assert.Empty(t, buf.String())

	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	Build(newRand(8), Options{Multiplier: 1}).Close()
	assert.Contains(t, buf.String(), "corpus built")
}

func TestBuild_NoBigTermWithoutNightly(t *testing.T) {
	for seed := uint64(1); seed <= 20; seed++ {
		c := Build(newRand(seed), Options{Multiplier: 1})
		for _, ft := range c.AllTerms() {
			assert.NotEqual(t, seedmodel.Big, seedmodel.TierOf(string(ft.Term)))
		}
		c.Close()
	}
}

func TestAllTerms_OwnsCopies(t *testing.T) {
	c := Build(newRand(4), Options{Multiplier: 1})
	all := c.AllTerms()
	require.NotEmpty(t, all)

	orig := bytes.Clone(all[0].Term)
	if len(all[0].Term) > 0 {
		all[0].Term[0] ^= 0xff
	}
	again := c.AllTerms()
	assert.Equal(t, orig, again[0].Term)
}

func TestSeed_UnknownTerm(t *testing.T) {
	c := Build(newRand(5), Options{Multiplier: 1})
	_, ok := c.Seed("no-such-field", []byte("x"))
	assert.False(t, ok)
	_, err := c.Model(c.FieldNames()[0], []byte("zzzz_not_a_term"), nil, postings.DocsOnly)
	assert.Error(t, err)
}

func TestClose_LaterUsePanics(t *testing.T) {
	c := Build(newRand(6), Options{Multiplier: 1})
	c.Close()
	assert.Panics(t, func() { c.AllTerms() })
}

func TestLiveDocs(t *testing.T) {
	l := NewLiveDocs(10, 1, 3, 9, 12, -1)
	assert.Equal(t, 10, l.Len())
	assert.Equal(t, uint64(3), l.Cardinality())
	assert.True(t, l.Get(3))
	assert.False(t, l.Get(2))
	assert.False(t, l.Get(12))
	assert.False(t, l.Get(-1))
}
