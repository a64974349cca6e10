// Package builder replays a corpus through a postings format's write session
// and returns the committed, read-only artifact together with the field
// shapes it was actually written with.
package builder

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/postings"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/pkg/metrics"
)

// Params selects the field shapes of one build.
type Params struct {
	// MaxAllowed caps every field's capability. The reference generators
	// are replayed at this level.
	MaxAllowed    postings.Capability
	AllowPayloads bool
	// AlwaysTestMax indexes every field at its cap instead of a random level.
	AlwaysTestMax bool
}

// Built is a committed artifact plus what went into it.
type Built struct {
	Artifact postings.Artifact
	// Fields holds the realized per-field shapes in name order.
	Fields []postings.FieldInfo
	Stats  map[string]postings.FieldStats
	// MaxIndex is the MaxAllowed the artifact was built with.
	MaxIndex postings.Capability

	byName map[string]int
}

// Field returns the realized shape of name.
func (b *Built) Field(name string) (postings.FieldInfo, bool) {
	i, ok := b.byName[name]
	if !ok {
		return postings.FieldInfo{}, false
	}
	return b.Fields[i], true
}

func (b *Built) Close() error {
	if b.Artifact == nil {
		return nil
	}
	err := b.Artifact.Close()
	b.Artifact = nil
	return err
}

type Builder struct {
	format  postings.Format
	metrics *metrics.Metrics
}

// New returns a Builder writing through format. m may be nil.
func New(format postings.Format, m *metrics.Metrics) *Builder {
	return &Builder{
		format:  format,
		metrics: m,
	}
}

// Build writes c into a fresh artifact under dir. rng only decides field
// shapes; postings come from the corpus seeds.
func (b *Builder) Build(ctx context.Context, dir string, c *corpus.Corpus, p Params, rng *rand.Rand) (*Built, error) {
	start := time.Now()
	log := logger.Component(ctx, "builder")

	fields := b.realizeFields(c.Fields(), p, rng)

	w, err := b.format.NewWriter(dir, c.MaxDoc())
	if err != nil {
		return nil, fmt.Errorf("opening write session: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if abortErr := w.Abort(); abortErr != nil {
				log.Error("aborting write session", "error", abortErr)
			}
		}
	}()

	built := &Built{
		Fields:   fields,
		Stats:    make(map[string]postings.FieldStats, len(fields)),
		MaxIndex: p.MaxAllowed,
		byName:   make(map[string]int, len(fields)),
	}
	var totalPostings int64
	for i, info := range fields {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stats, n, err := b.writeField(w, c, info, p.MaxAllowed)
		if err != nil {
			return nil, fmt.Errorf("writing field %q: %w", info.Name, err)
		}
		built.Stats[info.Name] = stats
		built.byName[info.Name] = i
		totalPostings += n
		log.Debug("field written",
			"field", info.Name,
			"capability", info.Capability.String(),
			"payloads", info.HasPayloads,
			"terms", stats.TermCount,
			"doc_count", stats.DocCount,
		)
	}

	artifact, err := w.Commit()
	if err != nil {
		return nil, fmt.Errorf("committing write session: %w", err)
	}
	committed = true
	built.Artifact = artifact

	elapsed := time.Since(start)
	if b.metrics != nil {
		b.metrics.IndexBuildDuration.Observe(elapsed.Seconds())
		b.metrics.PostingsIndexedTotal.Add(float64(totalPostings))
	}
	log.Info("index built",
		"fields", len(fields),
		"terms", c.NumTerms(),
		"postings", totalPostings,
		"max_allowed", p.MaxAllowed.String(),
		"duration", elapsed,
	)
	return built, nil
}

// realizeFields picks each field's capability and payload flag.
func (b *Builder) realizeFields(descs []corpus.FieldDescriptor, p Params, rng *rand.Rand) []postings.FieldInfo {
	out := make([]postings.FieldInfo, len(descs))
	for i, d := range descs {
		limit := postings.MinCapability(d.Ceiling, p.MaxAllowed)
		if !b.format.SupportsOffsets() {
			limit = postings.MinCapability(limit, postings.DocsAndFreqsAndPositions)
		}
		capability := limit
		if !p.AlwaysTestMax {
			capability = postings.Capability(rng.IntN(int(limit) + 1))
		}
		out[i] = postings.FieldInfo{
			Name:        d.Name,
			Number:      d.Number,
			Capability:  capability,
			HasPayloads: capability.HasPositions() && p.AllowPayloads && d.PayloadEligible,
		}
	}
	return out
}

func (b *Builder) writeField(w postings.FieldsWriter, c *corpus.Corpus, info postings.FieldInfo, maxAllowed postings.Capability) (postings.FieldStats, int64, error) {
	tw, err := w.AddField(info)
	if err != nil {
		return postings.FieldStats{}, 0, err
	}
	doFreq := info.Capability.HasFreqs()
	doPos := info.Capability.HasPositions()
	doOffsets := info.Capability.HasOffsets()

	var sumTotalTF, sumDF, postingsCount int64
	seenDocs := roaring.New()
	terms := c.Terms(info.Name)
	for _, term := range terms {
		model, err := c.Model(info.Name, term, nil, maxAllowed)
		if err != nil {
			return postings.FieldStats{}, 0, err
		}
		pw, err := tw.StartTerm(term)
		if err != nil {
			return postings.FieldStats{}, 0, fmt.Errorf("starting term %q: %w", term, err)
		}
		var totalTF int64
		for doc := model.NextDoc(); doc != postings.NoMoreDocs; doc = model.NextDoc() {
			freq := model.Freq()
			docFreqArg := -1
			if doFreq {
				docFreqArg = freq
			}
			if err := pw.StartDoc(doc, docFreqArg); err != nil {
				return postings.FieldStats{}, 0, fmt.Errorf("term %q doc %d: %w", term, doc, err)
			}
			seenDocs.Add(uint32(doc))
			switch {
			case doPos:
				totalTF += int64(freq)
				for range freq {
					pos := model.NextPosition()
					var payload []byte
					if info.HasPayloads {
						payload = model.Payload()
					}
					start, end := -1, -1
					if doOffsets {
						start, end = model.StartOffset(), model.EndOffset()
					}
					if err := pw.AddPosition(pos, payload, start, end); err != nil {
						return postings.FieldStats{}, 0, fmt.Errorf("term %q doc %d position %d: %w", term, doc, pos, err)
					}
				}
			case doFreq:
				totalTF += int64(freq)
			default:
				totalTF++
			}
			if err := pw.FinishDoc(); err != nil {
				return postings.FieldStats{}, 0, fmt.Errorf("term %q doc %d: %w", term, doc, err)
			}
		}

		ttf := int64(-1)
		if doFreq {
			ttf = totalTF
		}
		if err := tw.FinishTerm(term, postings.TermStats{DocFreq: model.DocFreq(), TotalTermFreq: ttf}); err != nil {
			return postings.FieldStats{}, 0, fmt.Errorf("finishing term %q: %w", term, err)
		}
		sumTotalTF += totalTF
		sumDF += int64(model.DocFreq())
		postingsCount += int64(model.DocFreq())
	}

	stats := postings.FieldStats{
		SumTotalTermFreq: sumTotalTF,
		SumDocFreq:       sumDF,
		DocCount:         int(seenDocs.GetCardinality()),
		TermCount:        len(terms),
	}
	if !doFreq {
		stats.SumTotalTermFreq = -1
	}
	if err := tw.Finish(stats.SumTotalTermFreq, stats.SumDocFreq, stats.DocCount); err != nil {
		return postings.FieldStats{}, 0, fmt.Errorf("finishing field: %w", err)
	}
	return stats, postingsCount, nil
}
