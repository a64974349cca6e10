// Package oracle checks one term of a postings artifact against the
// reference generator. Every run picks its enumerator flavor, skip targets
// and consumption depth from the policy's random source, so repeated runs
// cover different access paths over the same data.
package oracle

import (
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/postings"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/seedmodel"
	perrors "github.com/Adithya-Monish-Kumar-K/postings-conformance/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/pkg/metrics"
)

// Policy bounds what a verification run may request and check.
type Policy struct {
	Corpus *corpus.Corpus
	// Fields are the realized field shapes the artifact was written with.
	Fields []postings.FieldInfo
	// MaxTest caps the capability that is requested and checked.
	MaxTest postings.Capability
	// MaxIndex is the cap the artifact was built with; reference models
	// are replayed at this level.
	MaxIndex      postings.Capability
	Options       Options
	AlwaysTestMax bool
	// Rand is owned by the calling goroutine.
	Rand    *rand.Rand
	Metrics *metrics.Metrics
}

func (p *Policy) field(name string) (postings.FieldInfo, bool) {
	for _, f := range p.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return postings.FieldInfo{}, false
}

// ReuseSlots hold the last enumerator of each flavor a goroutine obtained.
type ReuseSlots struct {
	Docs      postings.Enumerator
	Positions postings.Enumerator
}

// Verify checks the term dict is positioned on against a fresh reference
// model. It returns a *perrors.MismatchError on the first divergence.
func Verify(ctx context.Context, slots *ReuseSlots, ft corpus.FieldAndTerm, dict postings.TermDictionary, p Policy) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v := &verifier{p: p, rng: p.Rand, ft: ft, slots: slots}
	v.pat.options = p.Options
	err := v.run(dict)
	if err == nil {
		logger.FromContext(ctx).Debug("term verified",
			"field", ft.Field,
			"term", string(ft.Term),
			"pattern", v.pat.String(),
		)
	}
	return err
}

type verifier struct {
	p     Policy
	rng   *rand.Rand
	ft    corpus.FieldAndTerm
	slots *ReuseSlots
	pat   pattern
}

func (v *verifier) mismatch(what string, expected, actual any) error {
	return &perrors.MismatchError{
		Field:    v.ft.Field,
		Term:     string(v.ft.Term),
		Pattern:  v.pat.String(),
		What:     what,
		Expected: expected,
		Actual:   actual,
	}
}

// chance reports whether a weighted check is on for this run.
func (v *verifier) chance() bool {
	return v.p.AlwaysTestMax || v.rng.IntN(3) != 0
}

func (v *verifier) coin() bool { return v.rng.IntN(2) == 0 }

func nextInt(r *rand.Rand, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return lo + r.IntN(hi-lo+1)
}

func (v *verifier) run(dict postings.TermDictionary) error {
	if got := dict.Term(); !bytes.Equal(got, v.ft.Term) {
		return v.mismatch("term", string(v.ft.Term), string(got))
	}
	info, ok := v.p.field(v.ft.Field)
	if !ok {
		return perrors.Newf(perrors.ErrMissingField, "no realized shape for field %q", v.ft.Field)
	}
	opts := v.p.Options

	var live postings.Bits
	if opts.Has(LiveDocs) && v.coin() {
		live = v.p.Corpus.LiveDocs()
		v.pat.live = true
	}
	expected, err := v.p.Corpus.Model(v.ft.Field, v.ft.Term, live, v.p.MaxIndex)
	if err != nil {
		return err
	}
	if expected.DocFreq() != dict.DocFreq() {
		return v.mismatch("docFreq", expected.DocFreq(), dict.DocFreq())
	}

	capability := info.Capability
	allowFreqs := capability.HasFreqs() && v.p.MaxTest.HasFreqs()
	doCheckFreqs := allowFreqs && v.chance()
	allowPositions := capability.HasPositions() && v.p.MaxTest.HasPositions()
	doCheckPositions := allowPositions && v.chance()
	allowOffsets := capability.HasOffsets() && v.p.MaxTest.HasOffsets()
	doCheckOffsets := allowOffsets && v.chance()
	doCheckPayloads := opts.Has(Payloads) && allowPositions && info.HasPayloads && v.chance()

	e, err := v.openEnum(dict, live, allowPositions, doCheckPositions, doCheckFreqs, doCheckOffsets, doCheckPayloads)
	if err != nil {
		return err
	}
	if v.p.Metrics != nil {
		v.p.Metrics.EnumsVerifiedTotal.WithLabelValues(v.pat.req.Flavor()).Inc()
	}
	if doc := e.DocID(); doc != -1 {
		return v.mismatch("initial-docID", -1, doc)
	}

	docFreq := expected.DocFreq()
	stopAt := docFreq
	if !v.p.AlwaysTestMax && opts.Has(PartialDocConsume) && docFreq > 1 && v.rng.IntN(10) == 7 {
		stopAt = v.rng.IntN(docFreq - 1)
	}
	v.pat.stopAt, v.pat.docFreq = stopAt, docFreq

	skipChance := 0.5
	if !v.p.AlwaysTestMax {
		skipChance = v.rng.Float64()
	}
	numSkips := 1
	if docFreq >= 3 {
		numSkips = nextInt(v.rng, 1, min(20, docFreq/3))
	}
	skipInc := max(1, docFreq/numSkips)
	skipDocInc := max(1, v.p.Corpus.MaxDoc()/numSkips)
	doAllSkipping := opts.Has(Skipping) && v.rng.IntN(7) == 1

	freqAskChance, payloadCheckChance, offsetCheckChance := 1.0, 1.0, 1.0
	if !v.p.AlwaysTestMax {
		freqAskChance = v.rng.Float64()
		payloadCheckChance = v.rng.Float64()
		offsetCheckChance = v.rng.Float64()
	}
	if opts.Has(Skipping) {
		v.pat.skipChance = skipChance
		v.pat.allSkipping = doAllSkipping
	}

	for expected.Upto() <= stopAt {
		if expected.Upto() == stopAt {
			if stopAt == docFreq {
				v.pat.step = "nextDoc at end"
				if doc := e.NextDoc(); doc != postings.NoMoreDocs {
					return v.mismatch("exhausted", postings.NoMoreDocs, doc)
				}
				if err := v.checkSticky(e); err != nil {
					return err
				}
			}
			break
		}

		if opts.Has(Skipping) && (doAllSkipping || v.rng.Float64() <= skipChance) {
			target := -1
			if expected.Upto() < stopAt && v.coin() {
				// Known target: step the reference over a few entries.
				skipCount := nextInt(v.rng, 1, skipInc)
				for range skipCount {
					if expected.NextDoc() == postings.NoMoreDocs {
						break
					}
				}
			} else {
				target = expected.DocID() + nextInt(v.rng, 1, skipDocInc)
				expected.Advance(target)
			}

			if expected.Upto() >= stopAt {
				end := postings.NoMoreDocs
				if v.coin() {
					end = v.p.Corpus.MaxDoc()
				}
				v.pat.step = fmt.Sprintf("advance(%d) past end", end)
				if doc := e.Advance(end); doc != postings.NoMoreDocs {
					return v.mismatch("exhausted", postings.NoMoreDocs, doc)
				}
				if err := v.checkSticky(e); err != nil {
					return err
				}
				break
			}
			if target == -1 {
				target = expected.DocID()
			}
			v.pat.step = fmt.Sprintf("advance(%d)", target)
			if doc := e.Advance(target); doc != expected.DocID() {
				return v.mismatch("docID", expected.DocID(), doc)
			}
		} else {
			expected.NextDoc()
			v.pat.step = "nextDoc"
			doc := e.NextDoc()
			if doc != expected.DocID() {
				return v.mismatch("docID", expected.DocID(), doc)
			}
			if doc == postings.NoMoreDocs {
				if err := v.checkSticky(e); err != nil {
					return err
				}
				break
			}
		}

		if doCheckFreqs && v.rng.Float64() <= freqAskChance {
			if freq := e.Freq(); freq != expected.Freq() {
				return v.mismatch("freq", expected.Freq(), freq)
			}
		}

		if doCheckPositions {
			if err := v.checkPositions(e, expected, capability, doCheckPayloads, doCheckOffsets, payloadCheckChance, offsetCheckChance); err != nil {
				return err
			}
		}
	}
	return nil
}

// openEnum requests the enumerator flavor for this run and records it in
// the reuse slots.
func (v *verifier) openEnum(dict postings.TermDictionary, live postings.Bits, allowPositions, doCheckPositions, doCheckFreqs, doCheckOffsets, doCheckPayloads bool) (postings.Enumerator, error) {
	reuse := v.p.Options.Has(ReuseEnums)
	var (
		prev postings.Enumerator
		req  postings.Request
	)
	switch {
	case !doCheckPositions && allowPositions && v.rng.IntN(10) == 7:
		// Pull a positional enumerator even though positions go unchecked.
		if reuse && v.rng.IntN(10) < 9 {
			prev = v.slots.Positions
		}
		req = postings.Request{Freqs: true, Positions: true}
		req.Offsets = v.p.AlwaysTestMax || v.coin()
		req.Payloads = v.p.AlwaysTestMax || v.coin()
	case !doCheckPositions:
		if reuse && v.rng.IntN(10) < 9 {
			prev = v.slots.Docs
		}
		req = postings.Request{Freqs: doCheckFreqs}
	default:
		if reuse && v.rng.IntN(10) < 9 {
			prev = v.slots.Positions
		}
		req = postings.Request{Freqs: true, Positions: true}
		req.Offsets = v.p.AlwaysTestMax || doCheckOffsets || v.rng.IntN(3) == 1
		req.Payloads = v.p.AlwaysTestMax || doCheckPayloads || v.rng.IntN(3) == 1
	}
	v.pat.req = req

	e, err := dict.Enumerator(live, prev, req)
	if err != nil {
		return nil, fmt.Errorf("opening %s enumerator for %s: %w", req, v.ft, err)
	}
	if e == nil {
		return nil, perrors.Newf(perrors.ErrInvalidInput, "format returned a nil %s enumerator for %s", req, v.ft)
	}
	switch {
	case prev == nil:
		v.pat.reuse = "new"
	case prev == e:
		v.pat.reuse = "reused"
	default:
		v.pat.reuse = "replaced"
	}
	if req.Positions {
		v.slots.Positions = e
	} else {
		v.slots.Docs = e
	}
	return e, nil
}

// checkSticky requires an exhausted enumerator to stay exhausted.
func (v *verifier) checkSticky(e postings.Enumerator) error {
	if doc := e.DocID(); doc != postings.NoMoreDocs {
		return v.mismatch("exhausted", postings.NoMoreDocs, doc)
	}
	v.pat.step = "nextDoc after end"
	if doc := e.NextDoc(); doc != postings.NoMoreDocs {
		return v.mismatch("exhausted", postings.NoMoreDocs, doc)
	}
	return nil
}

func (v *verifier) checkPositions(e postings.Enumerator, expected *seedmodel.Model, capability postings.Capability,
	doCheckPayloads, doCheckOffsets bool, payloadCheckChance, offsetCheckChance float64) error {
	freq := e.Freq()
	numPos := freq
	if !v.p.AlwaysTestMax && v.p.Options.Has(PartialPosConsume) && v.rng.IntN(5) == 1 {
		numPos = v.rng.IntN(freq)
	}
	for i := range numPos {
		v.pat.step = fmt.Sprintf("position %d/%d of doc %d", i+1, numPos, expected.DocID())
		pos := expected.NextPosition()
		if got := e.NextPosition(); got != pos {
			return v.mismatch("position", pos, got)
		}

		if doCheckPayloads {
			want := expected.Payload()
			if v.rng.Float64() <= payloadCheckChance {
				if err := v.checkPayload(e, want); err != nil {
					return err
				}
			}
		}

		switch {
		case doCheckOffsets:
			if v.rng.Float64() <= offsetCheckChance {
				if got := e.StartOffset(); got != expected.StartOffset() {
					return v.mismatch("startOffset", expected.StartOffset(), got)
				}
				if got := e.EndOffset(); got != expected.EndOffset() {
					return v.mismatch("endOffset", expected.EndOffset(), got)
				}
			}
		case !capability.HasOffsets():
			if got := e.StartOffset(); got != -1 {
				return v.mismatch("startOffset", -1, got)
			}
			if got := e.EndOffset(); got != -1 {
				return v.mismatch("endOffset", -1, got)
			}
		}
	}
	return nil
}

func (v *verifier) checkPayload(e postings.Enumerator, want []byte) error {
	got := e.Payload()
	if len(want) == 0 {
		if got != nil {
			return v.mismatch("payload-presence", "nil", fmt.Sprintf("%x", got))
		}
		return nil
	}
	if got == nil {
		return v.mismatch("payload-presence", fmt.Sprintf("%x", want), "nil")
	}
	if len(got) != len(want) {
		return v.mismatch("payload-length", len(want), len(got))
	}
	if !bytes.Equal(got, want) {
		return v.mismatch("payload", fmt.Sprintf("%x", want), fmt.Sprintf("%x", got))
	}
	kept := bytes.Clone(got)
	if again := e.Payload(); !bytes.Equal(kept, again) {
		return v.mismatch("payload-reread", fmt.Sprintf("%x", kept), fmt.Sprintf("%x", again))
	}
	return nil
}
