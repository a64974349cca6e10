package builder

import (
	"context"
	"math/rand/v2"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/formats/memory"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/formats/segment"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/postings"
	perrors "github.com/Adithya-Monish-Kumar-K/postings-conformance/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/pkg/metrics"
)

func testCorpus(t *testing.T) *corpus.Corpus {
	t.Helper()
	c := corpus.Build(rand.New(rand.NewPCG(11, 12)), corpus.Options{Multiplier: 1})
	t.Cleanup(c.Close)
	return c
}

func TestBuild_AlwaysTestMax(t *testing.T) {
	c := testCorpus(t)
	m := metrics.New(nil)
	b := New(segment.New(segment.Options{}), m)

	built, err := b.Build(context.Background(), t.TempDir(), c, Params{
		MaxAllowed:    postings.DocsAndFreqsAndPositionsAndOffsets,
		AllowPayloads: true,
		AlwaysTestMax: true,
	}, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	defer built.Close()

	require.Len(t, built.Fields, len(c.Fields()))
	var wantPostings int64
	for _, f := range built.Fields {
		assert.Equal(t, postings.DocsAndFreqsAndPositionsAndOffsets, f.Capability)
		assert.True(t, f.HasPayloads)

		var sumDF, sumTTF int64
		for _, term := range c.Terms(f.Name) {
			model, err := c.Model(f.Name, term, nil, postings.DocsAndFreqsAndPositionsAndOffsets)
			require.NoError(t, err)
			sumDF += int64(model.DocFreq())
			for model.NextDoc() != postings.NoMoreDocs {
				sumTTF += int64(model.Freq())
			}
		}
		stats := built.Stats[f.Name]
		assert.Equal(t, sumDF, stats.SumDocFreq, f.Name)
		assert.Equal(t, sumTTF, stats.SumTotalTermFreq, f.Name)
		assert.LessOrEqual(t, stats.DocCount, c.MaxDoc())
		wantPostings += sumDF

		committed, ok := built.Artifact.FieldStats(f.Name)
		require.True(t, ok)
		assert.Equal(t, stats, committed)
	}
	assert.Equal(t, float64(wantPostings), testutil.ToFloat64(m.PostingsIndexedTotal))
}

func TestBuild_MemoryClampsOffsets(t *testing.T) {
	c := testCorpus(t)
	b := New(memory.New(), nil)
	built, err := b.Build(context.Background(), "", c, Params{
		MaxAllowed:    postings.DocsAndFreqsAndPositionsAndOffsets,
		AlwaysTestMax: true,
	}, rand.New(rand.NewPCG(3, 4)))
	require.NoError(t, err)
	defer built.Close()

	for _, f := range built.Fields {
		assert.Equal(t, postings.DocsAndFreqsAndPositions, f.Capability)
		assert.False(t, f.HasPayloads)
	}
}

func TestBuild_RandomShapesStayUnderCap(t *testing.T) {
	c := testCorpus(t)
	b := New(memory.New(), nil)
	for seed := range uint64(10) {
		built, err := b.Build(context.Background(), "", c, Params{
			MaxAllowed:    postings.DocsAndFreqs,
			AllowPayloads: true,
		}, rand.New(rand.NewPCG(seed, 0)))
		require.NoError(t, err)
		for _, f := range built.Fields {
			assert.LessOrEqual(t, f.Capability, postings.DocsAndFreqs)
			assert.False(t, f.HasPayloads, "payloads need positions")
			if f.Capability == postings.DocsOnly {
				assert.Equal(t, int64(-1), built.Stats[f.Name].SumTotalTermFreq)
			}
			got, ok := built.Field(f.Name)
			require.True(t, ok)
			assert.Equal(t, f, got)
		}
		require.NoError(t, built.Close())
	}
}

// failingFormat commits nothing: its second field is rejected.
type failingFormat struct {
	postings.Format
	aborted *bool
}

type failingWriter struct {
	postings.FieldsWriter
	fields  int
	aborted *bool
}

func (f failingFormat) NewWriter(dir string, maxDoc int) (postings.FieldsWriter, error) {
	w, err := f.Format.NewWriter(dir, maxDoc)
	if err != nil {
		return nil, err
	}
	return &failingWriter{FieldsWriter: w, aborted: f.aborted}, nil
}

func (w *failingWriter) AddField(info postings.FieldInfo) (postings.TermsWriter, error) {
	w.fields++
	if w.fields > 1 {
		return nil, perrors.New(perrors.ErrUnsupported, "second field")
	}
	return w.FieldsWriter.AddField(info)
}

func (w *failingWriter) Abort() error {
	*w.aborted = true
	return w.FieldsWriter.Abort()
}

func TestBuild_AbortsOnFailure(t *testing.T) {
	var c *corpus.Corpus
	for seed := uint64(0); ; seed++ {
		c = corpus.Build(rand.New(rand.NewPCG(seed, 99)), corpus.Options{Multiplier: 1})
		if len(c.Fields()) > 1 {
			break
		}
		c.Close()
	}
	defer c.Close()

	dir := t.TempDir()
	aborted := false
	b := New(failingFormat{Format: segment.New(segment.Options{}), aborted: &aborted}, nil)
	_, err := b.Build(context.Background(), dir, c, Params{MaxAllowed: postings.DocsAndFreqs}, rand.New(rand.NewPCG(5, 6)))
	require.ErrorIs(t, err, perrors.ErrUnsupported)
	assert.True(t, aborted)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBuild_CanceledContext(t *testing.T) {
	c := testCorpus(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(memory.New(), nil).Build(ctx, "", c, Params{MaxAllowed: postings.DocsOnly}, rand.New(rand.NewPCG(7, 8)))
	assert.ErrorIs(t, err, context.Canceled)
}
