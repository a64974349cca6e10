package corpus

import (
	"math/rand/v2"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/postings"
)

// LiveDocs marks which documents in [0, maxDoc) are visible. It wraps a
// roaring bitmap that is never mutated after sampling, so concurrent Get
// calls are safe.
type LiveDocs struct {
	rb     *roaring.Bitmap
	maxDoc int
}

var _ postings.Bits = (*LiveDocs)(nil)

func sampleLiveDocs(rng *rand.Rand, maxDoc int) *LiveDocs {
	rb := roaring.New()
	keepRatio := rng.Float64()
	for i := 0; i < maxDoc; i++ {
		if rng.Float64() <= keepRatio {
			rb.Add(uint32(i))
		}
	}
	rb.RunOptimize()
	return &LiveDocs{rb: rb, maxDoc: maxDoc}
}

// NewLiveDocs builds a filter from an explicit document list.
func NewLiveDocs(maxDoc int, live ...int) *LiveDocs {
	rb := roaring.New()
	for _, d := range live {
		if d >= 0 && d < maxDoc {
			rb.Add(uint32(d))
		}
	}
	return &LiveDocs{rb: rb, maxDoc: maxDoc}
}

func (l *LiveDocs) Get(doc int) bool {
	if doc < 0 || doc >= l.maxDoc {
		return false
	}
	return l.rb.Contains(uint32(doc))
}

func (l *LiveDocs) Len() int { return l.maxDoc }

func (l *LiveDocs) Cardinality() uint64 { return l.rb.GetCardinality() }
