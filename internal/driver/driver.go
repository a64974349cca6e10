// Package driver walks every corpus term of a built artifact through the
// oracle, optionally from several goroutines, replaying captured seek
// states along the way.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/oracle"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/postings"
	perrors "github.com/Adithya-Monish-Kumar-K/postings-conformance/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/pkg/metrics"
)

const (
	defaultMinWorkers = 2
	defaultMaxWorkers = 5
)

// Params describes one verification pass over an artifact.
type Params struct {
	Artifact postings.Artifact
	Corpus   *corpus.Corpus
	// Fields are the realized field shapes the artifact was written with.
	Fields        []postings.FieldInfo
	MaxTest       postings.Capability
	MaxIndex      postings.Capability
	Options       oracle.Options
	AlwaysTestMax bool
	// Seed derives every worker's random stream.
	Seed       uint64
	MinWorkers int
	MaxWorkers int
	Metrics    *metrics.Metrics
}

// Run verifies every corpus term at least once. With oracle.Threads it
// spreads the full protocol over MinWorkers..MaxWorkers goroutines, each
// with private reuse slots, seek states and random stream. The first
// failure of any worker is returned.
func Run(ctx context.Context, p Params) error {
	if p.MinWorkers < 1 {
		p.MinWorkers = defaultMinWorkers
	}
	if p.MaxWorkers < p.MinWorkers {
		p.MaxWorkers = max(defaultMaxWorkers, p.MinWorkers)
	}
	log := logger.Component(ctx, "driver")
	rng := rand.New(rand.NewPCG(p.Seed, p.Seed^0x5851f42d4c957f2d))

	numWorkers := 1
	if p.Options.Has(oracle.Threads) {
		numWorkers = p.MinWorkers + rng.IntN(p.MaxWorkers-p.MinWorkers+1)
	}
	log.Info("verifying terms",
		"workers", numWorkers,
		"terms", p.Corpus.NumTerms(),
		"max_test", p.MaxTest.String(),
		"max_index", p.MaxIndex.String(),
		"options", p.Options.String(),
		"always_test_max", p.AlwaysTestMax,
	)

	g, gctx := errgroup.WithContext(ctx)
	for id := range numWorkers {
		w := &worker{
			id:  id,
			p:   &p,
			rng: rand.New(rand.NewPCG(rng.Uint64(), rng.Uint64())),
			log: log.With("worker", id),
		}
		g.Go(func() error {
			if p.Metrics != nil {
				p.Metrics.WorkersActive.Inc()
				defer p.Metrics.WorkersActive.Dec()
			}
			if err := w.run(gctx); err != nil {
				return fmt.Errorf("worker %d: %w", w.id, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if kind := perrors.MismatchKind(err); kind != "" && p.Metrics != nil {
			p.Metrics.MismatchesTotal.WithLabelValues(kind).Inc()
		}
		log.Error("verification failed", "error", err)
		return err
	}
	return nil
}

type savedState struct {
	ft    corpus.FieldAndTerm
	state postings.TermState
}

type worker struct {
	id     int
	p      *Params
	rng    *rand.Rand
	log    *slog.Logger
	slots  oracle.ReuseSlots
	states []savedState
}

func (w *worker) policy() oracle.Policy {
	return oracle.Policy{
		Corpus:        w.p.Corpus,
		Fields:        w.p.Fields,
		MaxTest:       w.p.MaxTest,
		MaxIndex:      w.p.MaxIndex,
		Options:       w.p.Options,
		AlwaysTestMax: w.p.AlwaysTestMax,
		Rand:          w.rng,
		Metrics:       w.p.Metrics,
	}
}

func (w *worker) run(ctx context.Context) error {
	terms := w.p.Corpus.AllTerms()
	w.rng.Shuffle(len(terms), func(i, j int) {
		terms[i], terms[j] = terms[j], terms[i]
	})
	withStates := w.p.Options.Has(oracle.TermState)

	for upto := 0; upto < len(terms); {
		if err := ctx.Err(); err != nil {
			return err
		}
		var (
			ft    corpus.FieldAndTerm
			saved *savedState
		)
		if len(w.states) > 0 && w.rng.IntN(5) == 1 {
			saved = &w.states[w.rng.IntN(len(w.states))]
			ft = saved.ft
		} else {
			ft = terms[upto]
			upto++
		}

		dict, ok := w.p.Artifact.Dictionary(ft.Field)
		if !ok {
			return perrors.Newf(perrors.ErrMissingField, "artifact has no dictionary for corpus field %q", ft.Field)
		}
		seek := "text"
		if saved != nil {
			seek = "state"
			if err := w.replay(dict, saved); err != nil {
				return err
			}
		} else {
			found, err := dict.SeekExact(ft.Term)
			if err != nil {
				return fmt.Errorf("seeking %s: %w", ft, err)
			}
			if !found {
				return &perrors.MismatchError{Field: ft.Field, Term: string(ft.Term), Pattern: "seek=text",
					What: "seek", Expected: true, Actual: false}
			}
		}

		captured := false
		if withStates && saved == nil && w.rng.IntN(5) == 1 {
			if err := w.capture(dict, ft); err != nil {
				return err
			}
			captured = true
		}

		if err := w.verify(ctx, ft, dict, seek); err != nil {
			return err
		}

		if withStates && saved == nil && !captured && w.rng.IntN(5) == 1 {
			if err := w.capture(dict, ft); err != nil {
				return err
			}
		}

		if w.p.AlwaysTestMax || w.rng.IntN(10) == 7 {
			if err := w.verify(ctx, ft, dict, seek+"+again"); err != nil {
				return err
			}
		}
		if w.p.Metrics != nil {
			w.p.Metrics.TermsVerifiedTotal.Inc()
		}
	}
	w.log.Debug("worker finished", "terms", len(terms), "saved_states", len(w.states))
	return nil
}

func (w *worker) verify(ctx context.Context, ft corpus.FieldAndTerm, dict postings.TermDictionary, seek string) error {
	err := oracle.Verify(ctx, &w.slots, ft, dict, w.policy())
	var m *perrors.MismatchError
	if perrors.As(err, &m) {
		m.Pattern += " seek=" + seek
	}
	return err
}

func (w *worker) capture(dict postings.TermDictionary, ft corpus.FieldAndTerm) error {
	state := dict.CaptureState()
	if state == nil {
		return perrors.Newf(perrors.ErrInvalidInput, "no seek state captured for %s", ft)
	}
	w.states = append(w.states, savedState{ft: ft, state: state.Clone()})
	return nil
}

// replay positions dict from a saved state and checks it against a fresh
// text seek on another cursor.
func (w *worker) replay(dict postings.TermDictionary, s *savedState) error {
	if err := dict.SeekExactState(s.ft.Term, s.state.Clone()); err != nil {
		return fmt.Errorf("seeking %s from saved state: %w", s.ft, err)
	}
	if w.p.Metrics != nil {
		w.p.Metrics.SeekStateReplays.Inc()
	}
	fresh, ok := w.p.Artifact.Dictionary(s.ft.Field)
	if !ok {
		return perrors.Newf(perrors.ErrMissingField, "artifact has no dictionary for corpus field %q", s.ft.Field)
	}
	found, err := fresh.SeekExact(s.ft.Term)
	if err != nil {
		return fmt.Errorf("seeking %s: %w", s.ft, err)
	}
	mismatch := func(what string, expected, actual any) error {
		return &perrors.MismatchError{Field: s.ft.Field, Term: string(s.ft.Term), Pattern: "seek=state vs seek=text",
			What: what, Expected: expected, Actual: actual}
	}
	if !found {
		return mismatch("seek", true, false)
	}
	if fresh.DocFreq() != dict.DocFreq() {
		return mismatch("seek-state", fresh.DocFreq(), dict.DocFreq())
	}
	if fresh.TotalTermFreq() != dict.TotalTermFreq() {
		return mismatch("seek-state", fresh.TotalTermFreq(), dict.TotalTermFreq())
	}
	return nil
}
