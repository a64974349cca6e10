package memory

import (
	"bytes"
	"sort"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/postings"
	perrors "github.com/Adithya-Monish-Kumar-K/postings-conformance/pkg/errors"
)

// Index is a committed memory artifact. Nothing mutates it after Commit,
// so cursors and enumerators on separate goroutines need no locking.
type Index struct {
	fields []*fieldEntry
	byName map[string]*fieldEntry
	maxDoc int
	closed atomic.Bool
}

var _ postings.Artifact = (*Index)(nil)

func newIndex(fields []*fieldEntry, maxDoc int) *Index {
	byName := make(map[string]*fieldEntry, len(fields))
	for _, fe := range fields {
		byName[fe.info.Name] = fe
	}
	return &Index{fields: fields, byName: byName, maxDoc: maxDoc}
}

func (x *Index) Fields() []string {
	names := make([]string, len(x.fields))
	for i, fe := range x.fields {
		names[i] = fe.info.Name
	}
	return names
}

func (x *Index) Dictionary(field string) (postings.TermDictionary, bool) {
	fe, ok := x.byName[field]
	if !ok {
		return nil, false
	}
	return &cursor{x: x, field: fe, ord: -1}, true
}

func (x *Index) FieldStats(field string) (postings.FieldStats, bool) {
	fe, ok := x.byName[field]
	if !ok {
		return postings.FieldStats{}, false
	}
	return fe.stats, true
}

func (x *Index) MaxDoc() int { return x.maxDoc }

func (x *Index) Close() error {
	x.closed.Store(true)
	return nil
}

type termState struct {
	x     *Index
	field string
	ord   int
}

func (s *termState) Clone() postings.TermState {
	c := *s
	return &c
}

type cursor struct {
	x     *Index
	field *fieldEntry
	ord   int
}

func (c *cursor) SeekExact(term []byte) (bool, error) {
	if c.x.closed.Load() {
		return false, perrors.New(perrors.ErrClosed, "memory index closed")
	}
	terms := c.field.terms
	idx := sort.Search(len(terms), func(i int) bool {
		return bytes.Compare(terms[i].term, term) >= 0
	})
	if idx >= len(terms) || !bytes.Equal(terms[idx].term, term) {
		c.ord = -1
		return false, nil
	}
	c.ord = idx
	return true, nil
}

func (c *cursor) SeekExactState(term []byte, state postings.TermState) error {
	ts, ok := state.(*termState)
	if !ok || ts.x != c.x || ts.field != c.field.info.Name || ts.ord < 0 || ts.ord >= len(c.field.terms) {
		return perrors.Newf(perrors.ErrInvalidInput, "foreign term state for %s:%s", c.field.info.Name, term)
	}
	c.ord = ts.ord
	return nil
}

func (c *cursor) entry() *termEntry {
	if c.ord < 0 {
		return nil
	}
	return c.field.terms[c.ord]
}

func (c *cursor) Term() []byte {
	if e := c.entry(); e != nil {
		return e.term
	}
	return nil
}

func (c *cursor) DocFreq() int {
	if e := c.entry(); e != nil {
		return e.docFreq
	}
	return 0
}

func (c *cursor) TotalTermFreq() int64 {
	if e := c.entry(); e != nil {
		return e.totalTermFreq
	}
	return -1
}

func (c *cursor) CaptureState() postings.TermState {
	if c.ord < 0 {
		return nil
	}
	return &termState{x: c.x, field: c.field.info.Name, ord: c.ord}
}

func (c *cursor) Enumerator(live postings.Bits, reuse postings.Enumerator, req postings.Request) (postings.Enumerator, error) {
	if c.x.closed.Load() {
		return nil, perrors.New(perrors.ErrClosed, "memory index closed")
	}
	e := c.entry()
	if e == nil {
		return nil, perrors.Newf(perrors.ErrInvalidInput, "cursor on field %q is not positioned", c.field.info.Name)
	}
	capability := c.field.info.Capability
	if req.Positions && !capability.HasPositions() {
		return nil, perrors.Newf(perrors.ErrUnsupported, "field %q indexed at %s has no positions", c.field.info.Name, capability)
	}

	if e.docs != nil {
		de, ok := reuse.(*docsEnum)
		if !ok || de.x != c.x {
			de = &docsEnum{x: c.x}
		}
		de.reset(e, live)
		return de, nil
	}
	le, ok := reuse.(*listEnum)
	if !ok || le.x != c.x {
		le = &listEnum{x: c.x}
	}
	le.reset(e, live, capability.HasPositions() && req.Positions && req.Payloads)
	return le, nil
}
