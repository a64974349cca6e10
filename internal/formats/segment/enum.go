package segment

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/postings"
	perrors "github.com/Adithya-Monish-Kumar-K/postings-conformance/pkg/errors"
)

// postingsEnum decodes one term block. A reused enum keeps its buffers.
type postingsEnum struct {
	reader *Reader

	raw   []byte
	inflt []byte
	body  []byte
	skips []skipEntry

	hasFreqs     bool
	hasPositions bool
	hasPayloads  bool
	hasOffsets   bool
	wantOffsets  bool
	wantPayloads bool
	live         postings.Bits

	docFreq int
	upto    int
	doc     int
	prevDoc int
	freq    int
	off     int
	posEnd  int

	posOff      int
	posLeft     int
	pos         int
	lastStart   int
	startOffset int
	endOffset   int
	payload     []byte
}

var _ postings.Enumerator = (*postingsEnum)(nil)

func (e *postingsEnum) reset(entry *DictEntry, field *FieldEntry, live postings.Bits, req postings.Request) error {
	raw, err := e.reader.readBlock(entry, e.raw)
	if err != nil {
		return err
	}
	e.raw = raw
	data, err := decompressBlock(raw, e.reader.compression, e.inflt)
	if err != nil {
		return fmt.Errorf("decoding postings for term %q: %w", entry.Term, err)
	}
	if binary.LittleEndian.Uint32(raw[4:]) != 0 {
		// data was inflated into its own buffer; keep it for the next term.
		e.inflt = data
	}

	capability := field.capability()
	e.hasFreqs = capability.HasFreqs()
	e.hasPositions = capability.HasPositions()
	e.hasOffsets = capability.HasOffsets()
	e.hasPayloads = field.HasPayloads
	e.wantOffsets = req.Positions && req.Offsets
	e.wantPayloads = req.Positions && req.Payloads
	e.live = live

	if err := e.parseSkips(data, entry); err != nil {
		return err
	}
	e.docFreq = entry.DocFreq
	e.upto = 0
	e.doc = -1
	e.prevDoc = -1
	e.freq = 0
	e.off = 0
	e.posEnd = 0
	e.posLeft = 0
	e.startOffset, e.endOffset = -1, -1
	e.payload = nil
	return nil
}

func (e *postingsEnum) parseSkips(data []byte, entry *DictEntry) error {
	corrupt := func() error {
		return perrors.Newf(perrors.ErrCorrupt, "bad skip table for term %q", entry.Term)
	}
	interval, n := binary.Uvarint(data)
	if n <= 0 || interval == 0 {
		return corrupt()
	}
	off := n
	numSkips, n := binary.Uvarint(data[off:])
	if n <= 0 {
		return corrupt()
	}
	off += n
	e.skips = e.skips[:0]
	doc, pos := 0, 0
	for i := 0; i < int(numSkips); i++ {
		dd, n := binary.Uvarint(data[off:])
		if n <= 0 {
			return corrupt()
		}
		off += n
		od, n := binary.Uvarint(data[off:])
		if n <= 0 {
			return corrupt()
		}
		off += n
		doc += int(dd)
		pos += int(od)
		e.skips = append(e.skips, skipEntry{doc: doc, offset: pos, count: (i + 1) * int(interval)})
	}
	e.body = data[off:]
	return nil
}

func (e *postingsEnum) uvarint(off *int) int {
	v, n := binary.Uvarint(e.body[*off:])
	if n <= 0 {
		panic(perrors.Newf(perrors.ErrCorrupt, "truncated postings at byte %d", *off))
	}
	*off += n
	return int(v)
}

func (e *postingsEnum) varint(off *int) int {
	v, n := binary.Varint(e.body[*off:])
	if n <= 0 {
		panic(perrors.Newf(perrors.ErrCorrupt, "truncated postings at byte %d", *off))
	}
	*off += n
	return int(v)
}

func (e *postingsEnum) NextDoc() int {
	for {
		if e.upto >= e.docFreq {
			e.doc = postings.NoMoreDocs
			return e.doc
		}
		e.off = e.posEnd
		e.readDoc()
		if e.live == nil || e.live.Get(e.doc) {
			return e.doc
		}
	}
}

func (e *postingsEnum) readDoc() {
	e.doc = e.prevDoc + e.uvarint(&e.off)
	e.prevDoc = e.doc
	e.upto++
	if e.hasFreqs {
		e.freq = e.uvarint(&e.off)
	} else {
		e.freq = 1
	}
	if e.hasPositions {
		n := e.uvarint(&e.off)
		e.posOff = e.off
		e.posEnd = e.off + n
		e.posLeft = e.freq
	} else {
		e.posEnd = e.off
		e.posLeft = 0
	}
	e.pos = 0
	e.lastStart = 0
	e.startOffset, e.endOffset = -1, -1
	e.payload = nil
}

func (e *postingsEnum) Advance(target int) int {
	if e.upto < e.docFreq && len(e.skips) > 0 {
		i := sort.Search(len(e.skips), func(k int) bool {
			return e.skips[k].doc >= target
		}) - 1
		if i >= 0 && e.skips[i].count > e.upto {
			s := e.skips[i]
			e.prevDoc = s.doc
			e.posEnd = s.offset
			e.upto = s.count
		}
	}
	for {
		doc := e.NextDoc()
		if doc >= target {
			return doc
		}
	}
}

func (e *postingsEnum) NextPosition() int {
	if e.posLeft <= 0 {
		panic(fmt.Sprintf("segment: NextPosition past freq %d at doc %d", e.freq, e.doc))
	}
	e.pos += e.uvarint(&e.posOff)
	e.payload = nil
	if e.hasPayloads {
		n := e.uvarint(&e.posOff)
		if n > 0 && e.wantPayloads {
			e.payload = e.body[e.posOff : e.posOff+n]
		}
		e.posOff += n
	}
	if e.hasOffsets {
		start := e.lastStart + e.varint(&e.posOff)
		end := start + e.varint(&e.posOff)
		e.lastStart = start
		if e.wantOffsets {
			e.startOffset, e.endOffset = start, end
		}
	}
	e.posLeft--
	return e.pos
}

func (e *postingsEnum) DocID() int       { return e.doc }
func (e *postingsEnum) Freq() int        { return e.freq }
func (e *postingsEnum) StartOffset() int { return e.startOffset }
func (e *postingsEnum) EndOffset() int   { return e.endOffset }
func (e *postingsEnum) Payload() []byte  { return e.payload }
func (e *postingsEnum) Cost() int64      { return int64(e.docFreq) }
