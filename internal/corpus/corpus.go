// Package corpus builds the randomized universe of fields, terms and term
// seeds that every scenario verifies against, plus the shared live-docs
// filter. A Corpus is immutable once built and safe for concurrent readers.
package corpus

import (
	"bytes"
	"context"
	"math/rand/v2"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/postings"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/seedmodel"
	perrors "github.com/Adithya-Monish-Kumar-K/postings-conformance/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/pkg/logger"
)

// FieldDescriptor is the declared shape of a corpus field.
type FieldDescriptor struct {
	Name            string
	Number          int
	Ceiling         postings.Capability
	PayloadEligible bool
}

// FieldAndTerm names one term. Term is owned by the value.
type FieldAndTerm struct {
	Field string
	Term  []byte
}

func NewFieldAndTerm(field string, term []byte) FieldAndTerm {
	return FieldAndTerm{Field: field, Term: bytes.Clone(term)}
}

func (ft FieldAndTerm) String() string {
	return ft.Field + ":" + string(ft.Term)
}

type termEntry struct {
	term []byte
	seed uint64
}

type fieldEntry struct {
	desc  FieldDescriptor
	terms []termEntry
}

// Options tunes corpus generation.
type Options struct {
	Multiplier int
	// Nightly adds one big-tier term.
	Nightly bool
}

// Corpus maps field → term → seed, both levels in byte order.
type Corpus struct {
	fields     []fieldEntry
	byName     map[string]int
	liveDocs   *LiveDocs
	maxDoc     int
	multiplier int
	closed     bool
}

// Build draws a new corpus from rng.
func Build(rng *rand.Rand, opts Options) *Corpus {
	if opts.Multiplier < 1 {
		opts.Multiplier = 1
	}
	log := logger.Component(context.Background(), "corpus")

	c := &Corpus{
		byName:     make(map[string]int),
		multiplier: opts.Multiplier,
	}

	numFields := 1 + rng.IntN(5)
	maxDocID := 0
	seenFields := make(map[string]struct{}, numFields)
	for fieldUpto := 0; fieldUpto < numFields; {
		name := randomSimpleString(rng, 1, 10)
		if _, ok := seenFields[name]; ok {
			continue
		}
		seenFields[name] = struct{}{}
		// Counted before the terms: the first field is fieldUpto 1 below.
		fieldUpto++

		fe := fieldEntry{desc: FieldDescriptor{
			Name:            name,
			Ceiling:         postings.DocsAndFreqsAndPositionsAndOffsets,
			PayloadEligible: true,
		}}

		var numTerms int
		if rng.IntN(10) == 7 {
			numTerms = 50 + rng.IntN(26)
		} else {
			numTerms = 2 + rng.IntN(19)
		}

		seenTerms := make(map[string]struct{}, numTerms)
		for termUpto := 0; termUpto < numTerms; termUpto++ {
			raw := randomSimpleString(rng, 0, 20)
			if _, ok := seenTerms[raw]; ok {
				continue
			}
			seenTerms[raw] = struct{}{}

			var tier seedmodel.Tier
			switch {
			case opts.Nightly && termUpto == 0 && fieldUpto == 1:
				tier = seedmodel.Big
			case termUpto == 1 && fieldUpto == 1:
				tier = seedmodel.Medium
			case rng.IntN(2) == 0:
				tier = seedmodel.Low
			default:
				tier = seedmodel.VeryLow
			}
			term := tier.Prefix() + raw
			seed := rng.Uint64()
			fe.terms = append(fe.terms, termEntry{term: []byte(term), seed: seed})

			m := seedmodel.ForTerm(term, seed, opts.Multiplier, nil, postings.DocsOnly)
			for doc := m.NextDoc(); doc != postings.NoMoreDocs; doc = m.NextDoc() {
				maxDocID = max(maxDocID, doc)
			}
		}
		sort.Slice(fe.terms, func(i, j int) bool {
			return bytes.Compare(fe.terms[i].term, fe.terms[j].term) < 0
		})
		c.fields = append(c.fields, fe)
	}

	sort.Slice(c.fields, func(i, j int) bool {
		return c.fields[i].desc.Name < c.fields[j].desc.Name
	})
	for i := range c.fields {
		c.fields[i].desc.Number = i
		c.byName[c.fields[i].desc.Name] = i
	}

	// A count, not the last docID.
	c.maxDoc = maxDocID + 1
	c.liveDocs = sampleLiveDocs(rng, c.maxDoc)

	log.Debug("corpus built",
		"fields", len(c.fields),
		"terms", c.NumTerms(),
		"max_doc", c.maxDoc,
		"live_docs", c.liveDocs.Cardinality(),
	)
	return c
}

func randomSimpleString(rng *rand.Rand, minLen, maxLen int) string {
	n := minLen + rng.IntN(maxLen-minLen+1)
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + rng.IntN(26))
	}
	return string(b)
}

func (c *Corpus) mustOpen() {
	if c.closed {
		panic(perrors.New(perrors.ErrClosed, "corpus used after Close"))
	}
}

// Fields returns the field descriptors in name order.
func (c *Corpus) Fields() []FieldDescriptor {
	c.mustOpen()
	out := make([]FieldDescriptor, len(c.fields))
	for i, f := range c.fields {
		out[i] = f.desc
	}
	return out
}

func (c *Corpus) FieldNames() []string {
	c.mustOpen()
	out := make([]string, len(c.fields))
	for i, f := range c.fields {
		out[i] = f.desc.Name
	}
	return out
}

// Terms returns copies of field's terms in byte order.
func (c *Corpus) Terms(field string) [][]byte {
	c.mustOpen()
	i, ok := c.byName[field]
	if !ok {
		return nil
	}
	out := make([][]byte, len(c.fields[i].terms))
	for j, te := range c.fields[i].terms {
		out[j] = bytes.Clone(te.term)
	}
	return out
}

// Seed returns the generator seed of field:term.
func (c *Corpus) Seed(field string, term []byte) (uint64, bool) {
	c.mustOpen()
	i, ok := c.byName[field]
	if !ok {
		return 0, false
	}
	terms := c.fields[i].terms
	j := sort.Search(len(terms), func(k int) bool {
		return bytes.Compare(terms[k].term, term) >= 0
	})
	if j >= len(terms) || !bytes.Equal(terms[j].term, term) {
		return 0, false
	}
	return terms[j].seed, true
}

// AllTerms returns a fresh list of every field:term pair in field then term
// order. Callers may shuffle it.
func (c *Corpus) AllTerms() []FieldAndTerm {
	c.mustOpen()
	out := make([]FieldAndTerm, 0, c.NumTerms())
	for _, f := range c.fields {
		for _, te := range f.terms {
			out = append(out, NewFieldAndTerm(f.desc.Name, te.term))
		}
	}
	return out
}

func (c *Corpus) NumTerms() int {
	n := 0
	for _, f := range c.fields {
		n += len(f.terms)
	}
	return n
}

// Model returns a fresh reference generator for field:term. live may be nil.
func (c *Corpus) Model(field string, term []byte, live postings.Bits, ceiling postings.Capability) (*seedmodel.Model, error) {
	seed, ok := c.Seed(field, term)
	if !ok {
		return nil, perrors.Newf(perrors.ErrMissingTerm, "corpus has no term %s:%s", field, term)
	}
	return seedmodel.ForTerm(string(term), seed, c.multiplier, live, ceiling), nil
}

func (c *Corpus) MaxDoc() int { return c.maxDoc }

func (c *Corpus) LiveDocs() *LiveDocs {
	c.mustOpen()
	return c.liveDocs
}

func (c *Corpus) Multiplier() int { return c.multiplier }

// Close releases the corpus. Any later use is a setup defect and panics.
func (c *Corpus) Close() {
	c.fields = nil
	c.byName = nil
	c.liveDocs = nil
	c.closed = true
}
