package memory

import (
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/postings"
)

// docsEnum walks a docs-only term's bitmap.
type docsEnum struct {
	x       *Index
	it      roaring.IntPeekable
	live    postings.Bits
	doc     int
	docFreq int
}

func (e *docsEnum) reset(t *termEntry, live postings.Bits) {
	e.it = t.docs.Iterator()
	e.live = live
	e.doc = -1
	e.docFreq = t.docFreq
}

func (e *docsEnum) NextDoc() int {
	for e.it.HasNext() {
		doc := int(e.it.Next())
		if e.live == nil || e.live.Get(doc) {
			e.doc = doc
			return doc
		}
	}
	e.doc = postings.NoMoreDocs
	return e.doc
}

func (e *docsEnum) Advance(target int) int {
	if e.doc == postings.NoMoreDocs {
		return e.doc
	}
	if target >= postings.NoMoreDocs {
		e.doc = postings.NoMoreDocs
		return e.doc
	}
	e.it.AdvanceIfNeeded(uint32(target))
	return e.NextDoc()
}

func (e *docsEnum) DocID() int { return e.doc }
func (e *docsEnum) Freq() int  { return 1 }

func (e *docsEnum) NextPosition() int {
	panic(fmt.Sprintf("memory: NextPosition on a docs-only enumerator at doc %d", e.doc))
}

func (e *docsEnum) StartOffset() int { return -1 }
func (e *docsEnum) EndOffset() int   { return -1 }
func (e *docsEnum) Payload() []byte  { return nil }
func (e *docsEnum) Cost() int64      { return int64(e.docFreq) }

// listEnum walks sorted postings; Advance binary searches the rest of the
// list.
type listEnum struct {
	x            *Index
	list         []posting
	live         postings.Bits
	wantPayloads bool
	idx          int
	doc          int
	posIdx       int
}

func (e *listEnum) reset(t *termEntry, live postings.Bits, wantPayloads bool) {
	e.list = t.postings
	e.live = live
	e.wantPayloads = wantPayloads
	e.idx = -1
	e.doc = -1
	e.posIdx = 0
}

func (e *listEnum) settle() int {
	for ; e.idx < len(e.list); e.idx++ {
		doc := e.list[e.idx].doc
		if e.live == nil || e.live.Get(doc) {
			e.doc = doc
			e.posIdx = 0
			return doc
		}
	}
	e.doc = postings.NoMoreDocs
	return e.doc
}

func (e *listEnum) NextDoc() int {
	if e.doc == postings.NoMoreDocs {
		return e.doc
	}
	e.idx++
	return e.settle()
}

func (e *listEnum) Advance(target int) int {
	if e.doc == postings.NoMoreDocs {
		return e.doc
	}
	from := e.idx + 1
	rest := e.list[from:]
	e.idx = from + sort.Search(len(rest), func(i int) bool {
		return rest[i].doc >= target
	})
	return e.settle()
}

func (e *listEnum) DocID() int { return e.doc }

func (e *listEnum) Freq() int {
	if e.doc < 0 || e.doc == postings.NoMoreDocs {
		return 0
	}
	return e.list[e.idx].freq
}

func (e *listEnum) current() *position {
	if e.posIdx == 0 {
		return nil
	}
	return &e.list[e.idx].positions[e.posIdx-1]
}

func (e *listEnum) NextPosition() int {
	p := &e.list[e.idx]
	if e.posIdx >= len(p.positions) {
		panic(fmt.Sprintf("memory: NextPosition past freq %d at doc %d", p.freq, p.doc))
	}
	e.posIdx++
	return p.positions[e.posIdx-1].pos
}

func (e *listEnum) StartOffset() int { return -1 }
func (e *listEnum) EndOffset() int   { return -1 }

func (e *listEnum) Payload() []byte {
	if !e.wantPayloads {
		return nil
	}
	if p := e.current(); p != nil {
		return p.payload
	}
	return nil
}

func (e *listEnum) Cost() int64 { return int64(len(e.list)) }
