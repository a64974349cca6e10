package driver

import (
	"context"
	"math/rand/v2"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/builder"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/formats/memory"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/formats/segment"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/oracle"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/postings"
	perrors "github.com/Adithya-Monish-Kumar-K/postings-conformance/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/pkg/metrics"
)

// largeCorpus returns a corpus with enough terms for seek states to be
// captured and replayed within one pass.
func largeCorpus(t *testing.T) *corpus.Corpus {
	t.Helper()
	for seed := uint64(0); ; seed++ {
		c := corpus.Build(rand.New(rand.NewPCG(seed, 1000)), corpus.Options{Multiplier: 1})
		if c.NumTerms() >= 20 {
			t.Cleanup(c.Close)
			return c
		}
		c.Close()
	}
}

func build(t *testing.T, c *corpus.Corpus, f postings.Format, alwaysTestMax bool) *builder.Built {
	t.Helper()
	built, err := builder.New(f, nil).Build(context.Background(), t.TempDir(), c, builder.Params{
		MaxAllowed:    postings.DocsAndFreqsAndPositionsAndOffsets,
		AllowPayloads: true,
		AlwaysTestMax: alwaysTestMax,
	}, rand.New(rand.NewPCG(2, 3)))
	require.NoError(t, err)
	t.Cleanup(func() { built.Close() })
	return built
}

func params(c *corpus.Corpus, built *builder.Built, a postings.Artifact, opts oracle.Options, seed uint64) Params {
	return Params{
		Artifact:   a,
		Corpus:     c,
		Fields:     built.Fields,
		MaxTest:    built.MaxIndex,
		MaxIndex:   built.MaxIndex,
		Options:    opts,
		Seed:       seed,
		MinWorkers: 2,
		MaxWorkers: 5,
	}
}

func TestRun_Formats(t *testing.T) {
	c := largeCorpus(t)
	formats := []postings.Format{
		memory.New(),
		segment.New(segment.Options{Compression: segment.CompressionLZ4, SkipInterval: 5}),
	}
	for _, f := range formats {
		t.Run(f.Name(), func(t *testing.T) {
			for _, alwaysTestMax := range []bool{true, false} {
				built := build(t, c, f, alwaysTestMax)
				m := metrics.New(nil)
				p := params(c, built, built.Artifact, oracle.AllOptions, 42)
				p.AlwaysTestMax = alwaysTestMax
				p.Metrics = m
				require.NoError(t, Run(context.Background(), p))

				assert.GreaterOrEqual(t, testutil.ToFloat64(m.TermsVerifiedTotal), float64(2*c.NumTerms()))
				assert.Equal(t, 0.0, testutil.ToFloat64(m.WorkersActive))
			}
		})
	}
}

func TestRun_SingleWorkerWithoutThreads(t *testing.T) {
	c := largeCorpus(t)
	built := build(t, c, memory.New(), true)
	m := metrics.New(nil)
	p := params(c, built, built.Artifact, oracle.AllOptions.Without(oracle.Threads), 7)
	p.Metrics = m
	require.NoError(t, Run(context.Background(), p))
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.TermsVerifiedTotal), float64(c.NumTerms()))
}

func TestRun_ReplaysSeekStates(t *testing.T) {
	c := largeCorpus(t)
	built := build(t, c, segment.New(segment.Options{}), false)
	m := metrics.New(nil)
	for seed := range uint64(10) {
		p := params(c, built, built.Artifact, oracle.TermState|oracle.Threads, seed)
		p.Metrics = m
		require.NoError(t, Run(context.Background(), p))
	}
	assert.Positive(t, testutil.ToFloat64(m.SeekStateReplays))
}

func TestRun_WorkerFailurePropagates(t *testing.T) {
	c := largeCorpus(t)
	built := build(t, c, memory.New(), true)
	m := metrics.New(nil)
	p := params(c, built, &shiftedArtifact{Artifact: built.Artifact}, oracle.AllOptions, 3)
	p.AlwaysTestMax = true
	p.Metrics = m

	err := Run(context.Background(), p)
	require.ErrorIs(t, err, perrors.ErrMismatch)
	assert.Equal(t, "freq", perrors.MismatchKind(err))
	assert.Contains(t, err.Error(), "worker ")
	assert.Contains(t, err.Error(), "seek=")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MismatchesTotal.WithLabelValues("freq")))
}

func TestRun_BrokenSeekState(t *testing.T) {
	c := largeCorpus(t)
	built := build(t, c, memory.New(), false)
	var err error
	for seed := uint64(0); seed < 50 && err == nil; seed++ {
		p := params(c, built, &lostStateArtifact{Artifact: built.Artifact}, oracle.TermState, seed)
		err = Run(context.Background(), p)
	}
	require.Error(t, err)
	assert.Equal(t, "seek-state", perrors.MismatchKind(err))
}

func TestRun_MissingField(t *testing.T) {
	c := largeCorpus(t)
	built := build(t, c, memory.New(), true)
	p := params(c, built, &missingFieldArtifact{Artifact: built.Artifact, missing: c.FieldNames()[0]}, 0, 1)
	assert.ErrorIs(t, Run(context.Background(), p), perrors.ErrMissingField)
}

func TestRun_FieldVanishesDuringReplay(t *testing.T) {
	c := largeCorpus(t)
	built := build(t, c, memory.New(), false)
	var err error
	for seed := uint64(0); seed < 50 && err == nil; seed++ {
		a := &vanishingArtifact{Artifact: built.Artifact}
		err = Run(context.Background(), params(c, built, a, oracle.TermState, seed))
	}
	require.Error(t, err)
	assert.ErrorIs(t, err, perrors.ErrMissingField)
}

func TestRun_Canceled(t *testing.T) {
	c := largeCorpus(t)
	built := build(t, c, memory.New(), true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Run(ctx, params(c, built, built.Artifact, oracle.Threads, 1)), context.Canceled)
}

// shiftedArtifact reports every frequency one too high.
type shiftedArtifact struct{ postings.Artifact }

func (a *shiftedArtifact) Dictionary(field string) (postings.TermDictionary, bool) {
	d, ok := a.Artifact.Dictionary(field)
	if !ok {
		return nil, false
	}
	return &shiftedDict{d}, true
}

type shiftedDict struct{ postings.TermDictionary }

func (d *shiftedDict) Enumerator(live postings.Bits, reuse postings.Enumerator, req postings.Request) (postings.Enumerator, error) {
	if s, ok := reuse.(*shiftedEnum); ok {
		reuse = s.Enumerator
	}
	e, err := d.TermDictionary.Enumerator(live, reuse, req)
	if err != nil {
		return nil, err
	}
	return &shiftedEnum{e}, nil
}

type shiftedEnum struct{ postings.Enumerator }

func (e *shiftedEnum) Freq() int { return e.Enumerator.Freq() + 1 }

// lostStateArtifact accepts seek states without positioning the cursor.
type lostStateArtifact struct{ postings.Artifact }

func (a *lostStateArtifact) Dictionary(field string) (postings.TermDictionary, bool) {
	d, ok := a.Artifact.Dictionary(field)
	if !ok {
		return nil, false
	}
	return &lostStateDict{TermDictionary: d}, true
}

type lostStateDict struct {
	postings.TermDictionary
	lost bool
}

func (d *lostStateDict) SeekExact(term []byte) (bool, error) {
	d.lost = false
	return d.TermDictionary.SeekExact(term)
}

func (d *lostStateDict) SeekExactState(term []byte, state postings.TermState) error {
	d.lost = true
	return nil
}

func (d *lostStateDict) DocFreq() int {
	if d.lost {
		return 0
	}
	return d.TermDictionary.DocFreq()
}

type missingFieldArtifact struct {
	postings.Artifact
	missing string
}

func (a *missingFieldArtifact) Dictionary(field string) (postings.TermDictionary, bool) {
	if field == a.missing {
		return nil, false
	}
	return a.Artifact.Dictionary(field)
}

// vanishingArtifact stops serving dictionaries once a saved state is
// replayed.
type vanishingArtifact struct {
	postings.Artifact
	gone atomic.Bool
}

func (a *vanishingArtifact) Dictionary(field string) (postings.TermDictionary, bool) {
	if a.gone.Load() {
		return nil, false
	}
	d, ok := a.Artifact.Dictionary(field)
	if !ok {
		return nil, false
	}
	return &vanishingDict{TermDictionary: d, a: a}, true
}

type vanishingDict struct {
	postings.TermDictionary
	a *vanishingArtifact
}

func (d *vanishingDict) SeekExactState(term []byte, state postings.TermState) error {
	err := d.TermDictionary.SeekExactState(term, state)
	d.a.gone.Store(true)
	return err
}
