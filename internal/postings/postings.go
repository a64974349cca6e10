// Package postings defines the contract a postings format implements: a write
// session fed term by term in sorted order, and a read-only artifact whose
// term dictionaries hand out docs/freqs/positions enumerators.
//
// Read paths (Artifact, TermDictionary creation, Enumerator creation and
// advancement) must tolerate unsynchronized use from independent cursors on
// many goroutines. A single TermDictionary or Enumerator is owned by one
// goroutine at a time.
package postings

// Format creates write sessions for one postings encoding.
type Format interface {
	Name() string
	SupportsOffsets() bool
	// NewWriter opens a write session storing its artifact under dir.
	// The session must be finished with Commit or Abort.
	NewWriter(dir string, maxDoc int) (FieldsWriter, error)
}

// FieldsWriter is a write session. Fields are added in name order.
type FieldsWriter interface {
	AddField(info FieldInfo) (TermsWriter, error)
	// Commit finalizes the session and opens the written artifact.
	Commit() (Artifact, error)
	// Abort discards everything written. It is safe after Commit, where it
	// does nothing.
	Abort() error
}

// TermsWriter receives the terms of one field in byte order.
type TermsWriter interface {
	StartTerm(term []byte) (PostingsWriter, error)
	FinishTerm(term []byte, stats TermStats) error
	Finish(sumTotalTermFreq, sumDocFreq int64, docCount int) error
}

// PostingsWriter receives the documents of one term in docID order. freq is
// -1 when the field omits frequencies; payload is nil and offsets are -1 when
// absent.
type PostingsWriter interface {
	StartDoc(docID, freq int) error
	AddPosition(pos int, payload []byte, startOffset, endOffset int) error
	FinishDoc() error
}

// Artifact is the read-only result of a committed write session.
type Artifact interface {
	// Fields lists indexed field names in byte order.
	Fields() []string
	// Dictionary returns a new, unpositioned cursor over field's terms.
	Dictionary(field string) (TermDictionary, bool)
	FieldStats(field string) (FieldStats, bool)
	Close() error
}

// TermState is an opaque, copyable handle on a dictionary position. Only the
// dictionary that produced it may interpret it.
type TermState interface {
	Clone() TermState
}

// TermDictionary is a cursor over one field's terms.
type TermDictionary interface {
	SeekExact(term []byte) (bool, error)
	// SeekExactState positions the cursor from a captured state without a
	// term lookup.
	SeekExactState(term []byte, state TermState) error
	Term() []byte
	DocFreq() int
	TotalTermFreq() int64
	CaptureState() TermState
	// Enumerator opens postings for the current term. live filters yielded
	// documents (nil keeps all); reuse may be recycled by the format.
	Enumerator(live Bits, reuse Enumerator, req Request) (Enumerator, error)
}

// Enumerator walks one term's postings. DocID is -1 before the first
// advance and NoMoreDocs once exhausted. Position accessors are only
// meaningful for enumerators opened with Request.Positions.
type Enumerator interface {
	DocID() int
	Freq() int
	NextDoc() int
	// Advance moves to the first document >= target. target must be greater
	// than the current DocID.
	Advance(target int) int
	NextPosition() int
	StartOffset() int
	EndOffset() int
	// Payload returns the payload at the current position, nil when there is
	// none. The slice is valid until the next NextPosition or NextDoc call.
	Payload() []byte
	Cost() int64
}
