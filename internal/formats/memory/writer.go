package memory

import (
	"bytes"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/postings"
	perrors "github.com/Adithya-Monish-Kumar-K/postings-conformance/pkg/errors"
)

type position struct {
	pos     int
	payload []byte
}

type posting struct {
	doc       int
	freq      int
	positions []position
}

// termEntry holds one term. Docs-only fields keep a bitmap, every other
// level keeps sorted postings.
type termEntry struct {
	term          []byte
	docFreq       int
	totalTermFreq int64
	docs          *roaring.Bitmap
	postings      []posting
}

type fieldEntry struct {
	info  postings.FieldInfo
	terms []*termEntry
	stats postings.FieldStats
}

type fieldsWriter struct {
	maxDoc  int
	fields  []*fieldEntry
	current *termsWriter
	done    bool
}

func (w *fieldsWriter) AddField(info postings.FieldInfo) (postings.TermsWriter, error) {
	if w.done {
		return nil, perrors.New(perrors.ErrClosed, "write session finished")
	}
	if info.Capability.HasOffsets() {
		return nil, perrors.Newf(perrors.ErrUnsupported, "field %q: memory format does not index offsets", info.Name)
	}
	if w.current != nil && !w.current.finished {
		return nil, perrors.Newf(perrors.ErrInvalidInput, "field %q not finished before %q", w.current.field.info.Name, info.Name)
	}
	if n := len(w.fields); n > 0 && w.fields[n-1].info.Name >= info.Name {
		return nil, perrors.Newf(perrors.ErrInvalidInput, "field %q added out of order after %q", info.Name, w.fields[n-1].info.Name)
	}
	fe := &fieldEntry{info: info}
	w.fields = append(w.fields, fe)
	w.current = &termsWriter{w: w, field: fe}
	return w.current, nil
}

func (w *fieldsWriter) Commit() (postings.Artifact, error) {
	if w.done {
		return nil, perrors.New(perrors.ErrClosed, "write session finished")
	}
	if w.current != nil && !w.current.finished {
		return nil, perrors.Newf(perrors.ErrInvalidInput, "field %q not finished", w.current.field.info.Name)
	}
	w.done = true
	return newIndex(w.fields, w.maxDoc), nil
}

func (w *fieldsWriter) Abort() error {
	if !w.done {
		w.done = true
		w.fields = nil
		w.current = nil
	}
	return nil
}

type termsWriter struct {
	w        *fieldsWriter
	field    *fieldEntry
	lastTerm []byte
	current  *postingsWriter
	finished bool
}

func (tw *termsWriter) StartTerm(term []byte) (postings.PostingsWriter, error) {
	if tw.finished {
		return nil, perrors.Newf(perrors.ErrClosed, "field %q already finished", tw.field.info.Name)
	}
	if tw.lastTerm != nil && bytes.Compare(tw.lastTerm, term) >= 0 {
		return nil, perrors.Newf(perrors.ErrInvalidInput, "term %q added out of order after %q in field %q",
			term, tw.lastTerm, tw.field.info.Name)
	}
	tw.lastTerm = bytes.Clone(term)
	te := &termEntry{term: bytes.Clone(term)}
	if tw.field.info.Capability == postings.DocsOnly {
		te.docs = roaring.New()
	}
	tw.current = &postingsWriter{
		entry:      te,
		capability: tw.field.info.Capability,
		payloads:   tw.field.info.HasPayloads,
		maxDoc:     tw.w.maxDoc,
		lastDoc:    -1,
	}
	return tw.current, nil
}

func (tw *termsWriter) FinishTerm(term []byte, stats postings.TermStats) error {
	pw := tw.current
	if pw == nil || !bytes.Equal(term, tw.lastTerm) {
		return perrors.Newf(perrors.ErrInvalidInput, "FinishTerm(%q) without matching StartTerm", term)
	}
	if pw.inDoc {
		return perrors.Newf(perrors.ErrInvalidInput, "term %q finished inside a document", term)
	}
	if stats.DocFreq == 0 || stats.DocFreq != pw.docCount {
		return perrors.Newf(perrors.ErrInvalidInput, "term %q: docFreq %d but %d documents written",
			term, stats.DocFreq, pw.docCount)
	}
	if pw.entry.docs != nil {
		pw.entry.docs.RunOptimize()
	}
	pw.entry.docFreq = stats.DocFreq
	pw.entry.totalTermFreq = stats.TotalTermFreq
	tw.field.terms = append(tw.field.terms, pw.entry)
	tw.current = nil
	return nil
}

func (tw *termsWriter) Finish(sumTotalTermFreq, sumDocFreq int64, docCount int) error {
	if tw.current != nil {
		return perrors.Newf(perrors.ErrInvalidInput, "field %q finished with an open term", tw.field.info.Name)
	}
	tw.field.stats = postings.FieldStats{
		SumTotalTermFreq: sumTotalTermFreq,
		SumDocFreq:       sumDocFreq,
		DocCount:         docCount,
		TermCount:        len(tw.field.terms),
	}
	tw.finished = true
	return nil
}

type postingsWriter struct {
	entry      *termEntry
	capability postings.Capability
	payloads   bool
	maxDoc     int

	docCount int
	lastDoc  int
	lastPos  int
	inDoc    bool
	cur      posting
}

func (pw *postingsWriter) StartDoc(docID, freq int) error {
	if pw.inDoc {
		return perrors.Newf(perrors.ErrInvalidInput, "StartDoc(%d) before FinishDoc", docID)
	}
	if docID <= pw.lastDoc || docID >= pw.maxDoc {
		return perrors.Newf(perrors.ErrInvalidInput, "docID %d out of order or range (last %d, maxDoc %d)",
			docID, pw.lastDoc, pw.maxDoc)
	}
	if pw.capability.HasFreqs() && freq < 1 {
		return perrors.Newf(perrors.ErrInvalidInput, "doc %d: freq %d on a field with freqs", docID, freq)
	}
	pw.lastDoc = docID
	pw.lastPos = 0
	pw.inDoc = true
	pw.cur = posting{doc: docID, freq: freq}
	if pw.capability.HasPositions() {
		pw.cur.positions = make([]position, 0, freq)
	}
	return nil
}

func (pw *postingsWriter) AddPosition(pos int, payload []byte, startOffset, endOffset int) error {
	if !pw.inDoc {
		return perrors.New(perrors.ErrInvalidInput, "AddPosition outside a document")
	}
	if startOffset != -1 || endOffset != -1 {
		return perrors.Newf(perrors.ErrUnsupported, "doc %d: memory format does not index offsets", pw.lastDoc)
	}
	if !pw.capability.HasPositions() {
		return perrors.Newf(perrors.ErrInvalidInput, "AddPosition on a %s field", pw.capability)
	}
	if pos < pw.lastPos {
		return perrors.Newf(perrors.ErrInvalidInput, "doc %d: position %d before %d", pw.lastDoc, pos, pw.lastPos)
	}
	pw.lastPos = pos
	p := position{pos: pos}
	if pw.payloads && len(payload) > 0 {
		p.payload = bytes.Clone(payload)
	}
	pw.cur.positions = append(pw.cur.positions, p)
	return nil
}

func (pw *postingsWriter) FinishDoc() error {
	if !pw.inDoc {
		return perrors.New(perrors.ErrInvalidInput, "FinishDoc outside a document")
	}
	if pw.capability.HasPositions() && len(pw.cur.positions) != pw.cur.freq {
		return perrors.Newf(perrors.ErrInvalidInput, "doc %d: %d positions for freq %d",
			pw.lastDoc, len(pw.cur.positions), pw.cur.freq)
	}
	if pw.entry.docs != nil {
		pw.entry.docs.Add(uint32(pw.cur.doc))
	} else {
		pw.entry.postings = append(pw.entry.postings, pw.cur)
	}
	pw.cur = posting{}
	pw.inDoc = false
	pw.docCount++
	return nil
}
