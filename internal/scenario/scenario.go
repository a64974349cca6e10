package scenario

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/postings"
)

// Scenario is one named entry of the matrix.
type Scenario struct {
	Name string
	run  func(ctx context.Context, r *Runner) error
}

func full(name string, capability postings.Capability, payloads bool) Scenario {
	return Scenario{
		Name: name,
		run: func(ctx context.Context, r *Runner) error {
			return r.testFull(ctx, capability, payloads)
		},
	}
}

var matrix = []Scenario{
	full("docs-only", postings.DocsOnly, false),
	full("docs-freqs", postings.DocsAndFreqs, false),
	full("docs-freqs-positions", postings.DocsAndFreqsAndPositions, false),
	full("docs-freqs-positions-payloads", postings.DocsAndFreqsAndPositions, true),
	full("docs-freqs-positions-offsets", postings.DocsAndFreqsAndPositionsAndOffsets, false),
	full("docs-freqs-positions-offsets-payloads", postings.DocsAndFreqsAndPositionsAndOffsets, true),
	{Name: "random", run: func(ctx context.Context, r *Runner) error { return r.testRandom(ctx) }},
}

// Names lists every scenario in execution order.
func Names() []string {
	names := make([]string, len(matrix))
	for i, s := range matrix {
		names[i] = s.Name
	}
	return names
}

func lookup(name string) (Scenario, bool) {
	for _, s := range matrix {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}
