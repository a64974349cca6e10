// Package segment is a single-file postings format. Each term's postings are
// delta/varint encoded behind a skip table and stored as one block,
// optionally compressed with LZ4, ZSTD or S2. A JSON dictionary and a
// checksummed footer follow the postings.
package segment

import (
	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/postings"
)

const defaultSkipInterval = 16

type Options struct {
	Compression Compression
	// SkipInterval is the number of documents between skip table entries.
	SkipInterval int
}

// Format writes and opens segment files.
type Format struct {
	compression  Compression
	skipInterval int
}

var _ postings.Format = (*Format)(nil)

func New(opts Options) *Format {
	if opts.SkipInterval < 2 {
		opts.SkipInterval = defaultSkipInterval
	}
	return &Format{
		compression:  opts.Compression,
		skipInterval: opts.SkipInterval,
	}
}

func (f *Format) Name() string {
	return "segment-" + f.compression.String()
}

func (f *Format) SupportsOffsets() bool { return true }

func (f *Format) NewWriter(dir string, maxDoc int) (postings.FieldsWriter, error) {
	return newFieldsWriter(f, dir, maxDoc)
}
