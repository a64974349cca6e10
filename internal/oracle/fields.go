package oracle

import (
	"slices"

	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/builder"
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/corpus"
	perrors "github.com/Adithya-Monish-Kumar-K/postings-conformance/pkg/errors"
)

// VerifyFields checks that the artifact lists exactly the corpus fields in
// byte order and reports the statistics each field was committed with.
func VerifyFields(c *corpus.Corpus, built *builder.Built) error {
	want := c.FieldNames()
	got := built.Artifact.Fields()
	if !slices.Equal(want, got) {
		return &perrors.MismatchError{Pattern: "field iteration", What: "fields", Expected: want, Actual: got}
	}
	for _, name := range want {
		stats, ok := built.Artifact.FieldStats(name)
		if !ok {
			return perrors.Newf(perrors.ErrMissingField, "artifact has no statistics for field %q", name)
		}
		if committed := built.Stats[name]; stats != committed {
			return &perrors.MismatchError{
				Field:    name,
				Pattern:  "field statistics",
				What:     "field-stats",
				Expected: committed,
				Actual:   stats,
			}
		}
		if _, ok := built.Artifact.Dictionary(name); !ok {
			return perrors.Newf(perrors.ErrMissingField, "artifact has no dictionary for field %q", name)
		}
	}
	return nil
}
