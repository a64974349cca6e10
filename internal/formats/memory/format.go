// Package memory is a RAM-resident postings format. It stores no offsets,
// so the builder has to clamp fields to positions when writing through it.
package memory

import (
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/postings"
	perrors "github.com/Adithya-Monish-Kumar-K/postings-conformance/pkg/errors"
)

type Format struct{}

var _ postings.Format = (*Format)(nil)

func New() *Format {
	return &Format{}
}

func (f *Format) Name() string { return "memory" }

func (f *Format) SupportsOffsets() bool { return false }

// NewWriter ignores dir; the artifact lives on the heap until closed.
func (f *Format) NewWriter(_ string, maxDoc int) (postings.FieldsWriter, error) {
	if maxDoc < 0 {
		return nil, perrors.Newf(perrors.ErrInvalidInput, "negative maxDoc %d", maxDoc)
	}
	return &fieldsWriter{maxDoc: maxDoc}, nil
}
