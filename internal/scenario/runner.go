// Package scenario runs the named conformance scenarios against one postings
// format. A Runner builds the corpus once and reuses it for every scenario.
package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/builder"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/driver"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/oracle"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/postings"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/pkg/config"
	perrors "github.com/Adithya-Monish-Kumar-K/postings-conformance/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/pkg/tracing"
)

type Runner struct {
	cfg     config.HarnessConfig
	format  postings.Format
	builder *builder.Builder
	corpus  *corpus.Corpus
	rng     *rand.Rand
	seed    uint64
	dataDir string
	ownsDir bool
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	current string
	failed  []string
}

// NewRunner builds the corpus for cfg and prepares the data directory.
// m may be nil.
func NewRunner(cfg config.HarnessConfig, format postings.Format, m *metrics.Metrics) (*Runner, error) {
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	log := logger.Component(context.Background(), "scenario").With("format", format.Name())

	dataDir, ownsDir := cfg.DataDir, false
	if dataDir == "" {
		dir, err := os.MkdirTemp("", "postingscheck-")
		if err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dataDir, ownsDir = dir, true
	} else if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	rng := rand.New(rand.NewPCG(seed, seed^0xda942042e4dd58b5))
	start := time.Now()
	c := corpus.Build(rand.New(rand.NewPCG(rng.Uint64(), rng.Uint64())), corpus.Options{
		Multiplier: cfg.Multiplier,
		Nightly:    cfg.Nightly,
	})
	log.Info("corpus ready",
		"seed", seed,
		"fields", len(c.Fields()),
		"terms", c.NumTerms(),
		"max_doc", c.MaxDoc(),
		"data_dir", dataDir,
		"duration", time.Since(start),
	)

	return &Runner{
		cfg:     cfg,
		format:  format,
		builder: builder.New(format, m),
		corpus:  c,
		rng:     rng,
		seed:    seed,
		dataDir: dataDir,
		ownsDir: ownsDir,
		metrics: m,
		logger:  log,
	}, nil
}

// Seed is the seed every random decision of the run derives from.
func (r *Runner) Seed() uint64 { return r.seed }

// Run executes the named scenario.
func (r *Runner) Run(ctx context.Context, name string) error {
	s, ok := lookup(name)
	if !ok {
		return perrors.Newf(perrors.ErrInvalidInput, "unknown scenario %q", name)
	}
	ctx = logger.WithScenario(ctx, name, r.format.Name())
	log := logger.Component(ctx, "scenario")
	log.Info("scenario started")
	r.setCurrent(name)

	ctx, span := tracing.StartSpan(ctx, name, fmt.Sprintf("%016x", r.seed))
	err := s.run(ctx, r)
	span.End()
	span.Log(log)
	elapsed := span.Duration
	r.finish(name, err)

	result := "pass"
	if err != nil {
		result = "fail"
	}
	if r.metrics != nil {
		r.metrics.ScenariosTotal.WithLabelValues(name, result).Inc()
		r.metrics.ScenarioDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	}
	if err != nil {
		log.Error("scenario failed", "error", err, "seed", r.seed, "duration", elapsed)
		return fmt.Errorf("scenario %s: %w", name, err)
	}
	log.Info("scenario passed", "duration", elapsed)
	return nil
}

// RunAll executes every scenario and returns the joined failures.
func (r *Runner) RunAll(ctx context.Context) error {
	var errs []error
	for _, name := range Names() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := r.Run(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return perrors.Join(errs...)
}

// Close releases the corpus and removes a data directory the runner created.
func (r *Runner) Close() error {
	if r.corpus != nil {
		r.corpus.Close()
		r.corpus = nil
	}
	if r.ownsDir {
		if err := os.RemoveAll(r.dataDir); err != nil {
			return fmt.Errorf("removing data directory: %w", err)
		}
	}
	return nil
}

// build writes a fresh artifact into its own directory under the data dir.
// The returned cleanup closes the artifact and removes the directory.
func (r *Runner) build(ctx context.Context, p builder.Params) (*builder.Built, func(), error) {
	ctx, span := tracing.StartChildSpan(ctx, "build")
	defer span.End()
	dir, err := os.MkdirTemp(r.dataDir, "build-")
	if err != nil {
		return nil, nil, fmt.Errorf("creating build directory: %w", err)
	}
	built, err := r.builder.Build(ctx, dir, r.corpus, p, r.rng)
	if err != nil {
		os.RemoveAll(dir)
		return nil, nil, fmt.Errorf("building index: %w", err)
	}
	cleanup := func() {
		if err := built.Close(); err != nil {
			r.logger.Error("closing artifact", "error", err)
		}
		if err := os.RemoveAll(dir); err != nil {
			r.logger.Error("removing build directory", "error", err)
		}
	}
	if err := oracle.VerifyFields(r.corpus, built); err != nil {
		cleanup()
		return nil, nil, err
	}
	span.SetAttr("fields", len(built.Fields))
	span.SetAttr("max_index", built.MaxIndex.String())
	return built, cleanup, nil
}

func (r *Runner) verify(ctx context.Context, built *builder.Built, maxTest postings.Capability, opts oracle.Options, alwaysTestMax bool) error {
	ctx, span := tracing.StartChildSpan(ctx, "verify")
	defer span.End()
	span.SetAttr("max_test", maxTest.String())
	span.SetAttr("options", opts.String())
	return driver.Run(ctx, driver.Params{
		Artifact:      built.Artifact,
		Corpus:        r.corpus,
		Fields:        built.Fields,
		MaxTest:       maxTest,
		MaxIndex:      built.MaxIndex,
		Options:       opts,
		AlwaysTestMax: alwaysTestMax,
		Seed:          r.rng.Uint64(),
		MinWorkers:    r.cfg.MinWorkers,
		MaxWorkers:    r.cfg.MaxWorkers,
		Metrics:       r.metrics,
	})
}

// testFull indexes every field at maxAllowed and verifies each weaker
// capability against it with every option on.
func (r *Runner) testFull(ctx context.Context, maxAllowed postings.Capability, payloads bool) error {
	built, cleanup, err := r.build(ctx, builder.Params{
		MaxAllowed:    maxAllowed,
		AllowPayloads: payloads,
		AlwaysTestMax: true,
	})
	if err != nil {
		return err
	}
	defer cleanup()

	for _, maxTest := range postings.Capabilities {
		if maxTest > maxAllowed {
			break
		}
		if err := r.verify(ctx, built, maxTest, oracle.AllOptions, true); err != nil {
			return fmt.Errorf("testing up to %s: %w", maxTest, err)
		}
		if payloads {
			if err := r.verify(ctx, built, maxTest, oracle.AllOptions.Without(oracle.Payloads), true); err != nil {
				return fmt.Errorf("testing up to %s without payloads: %w", maxTest, err)
			}
		}
	}
	return nil
}

// testRandom indexes with random field shapes several times and verifies
// each artifact once with every option on.
func (r *Runner) testRandom(ctx context.Context) error {
	for iter := range r.cfg.RandomIterations {
		payloads := r.rng.IntN(2) == 0
		built, cleanup, err := r.build(ctx, builder.Params{
			MaxAllowed:    postings.DocsAndFreqsAndPositionsAndOffsets,
			AllowPayloads: payloads,
		})
		if err != nil {
			return fmt.Errorf("iteration %d: %w", iter, err)
		}
		err = r.verify(ctx, built, postings.DocsAndFreqsAndPositionsAndOffsets, oracle.AllOptions, false)
		cleanup()
		if err != nil {
			return fmt.Errorf("iteration %d (payloads=%t): %w", iter, payloads, err)
		}
	}
	return nil
}

func (r *Runner) setCurrent(name string) {
	r.mu.Lock()
	r.current = name
	r.mu.Unlock()
}

func (r *Runner) finish(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = ""
	if err != nil {
		r.failed = append(r.failed, name)
	}
}

// RegisterHealth adds the runner's checks to c: a failed scenario degrades
// readiness and a vanished data directory takes it down.
func (r *Runner) RegisterHealth(c *health.Checker) {
	c.Register("scenarios", func(context.Context) health.ComponentHealth {
		r.mu.Lock()
		defer r.mu.Unlock()
		if len(r.failed) > 0 {
			return health.ComponentHealth{
				Status:  health.StatusDegraded,
				Message: "failed: " + strings.Join(r.failed, ", "),
			}
		}
		if r.current != "" {
			return health.ComponentHealth{Status: health.StatusUp, Message: "running " + r.current}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	c.Register("data-dir", func(context.Context) health.ComponentHealth {
		if _, err := os.Stat(r.dataDir); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
}
