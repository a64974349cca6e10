package segment

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"sort"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/postings"
	perrors "github.com/Adithya-Monish-Kumar-K/postings-conformance/pkg/errors"
)

// Reader is a read-only view of a committed segment file. All methods are
// safe for concurrent use; postings blocks are read with ReadAt.
type Reader struct {
	file        *os.File
	filePath    string
	header      SegmentHeader
	compression Compression
	fields      []*FieldEntry
	byName      map[string]*FieldEntry
	closed      atomic.Bool
}

var _ postings.Artifact = (*Reader)(nil)

func OpenReader(path string, compression Compression) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading segment header: %w", err)
	}
	magic := binary.LittleEndian.Uint32(headerBytes[0:4])
	if magic != MagicBytes {
		f.Close()
		return nil, perrors.Newf(perrors.ErrCorrupt, "invalid segment file: bad magic bytes %x", magic)
	}
	header := SegmentHeader{
		Magic:      magic,
		Version:    binary.LittleEndian.Uint32(headerBytes[4:8]),
		FieldCount: binary.LittleEndian.Uint32(headerBytes[8:12]),
		MaxDoc:     binary.LittleEndian.Uint32(headerBytes[12:16]),
		CreatedAt:  int64(binary.LittleEndian.Uint64(headerBytes[16:24])),
		DictOffset: int64(binary.LittleEndian.Uint64(headerBytes[24:32])),
		DictSize:   int64(binary.LittleEndian.Uint64(headerBytes[32:40])),
		PostOffset: int64(binary.LittleEndian.Uint64(headerBytes[40:48])),
		PostSize:   int64(binary.LittleEndian.Uint64(headerBytes[48:56])),
	}
	if header.Version != FormatVersion {
		f.Close()
		return nil, perrors.Newf(perrors.ErrCorrupt, "unsupported segment version %d", header.Version)
	}

	dictBytes := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictBytes, header.DictOffset); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, header.DictOffset+header.DictSize); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading footer: %w", err)
	}
	if want := binary.LittleEndian.Uint32(footer[0:4]); want != crc32.ChecksumIEEE(dictBytes) {
		f.Close()
		return nil, perrors.New(perrors.ErrCorrupt, "dictionary checksum mismatch")
	}

	var fields []*FieldEntry
	if err := json.Unmarshal(dictBytes, &fields); err != nil {
		f.Close()
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}
	byName := make(map[string]*FieldEntry, len(fields))
	for _, fe := range fields {
		byName[fe.Name] = fe
	}
	return &Reader{
		file:        f,
		filePath:    path,
		header:      header,
		compression: compression,
		fields:      fields,
		byName:      byName,
	}, nil
}

func (r *Reader) Fields() []string {
	names := make([]string, len(r.fields))
	for i, fe := range r.fields {
		names[i] = fe.Name
	}
	return names
}

func (r *Reader) Dictionary(field string) (postings.TermDictionary, bool) {
	fe, ok := r.byName[field]
	if !ok {
		return nil, false
	}
	return &termsCursor{r: r, field: fe, ord: -1}, true
}

func (r *Reader) FieldStats(field string) (postings.FieldStats, bool) {
	fe, ok := r.byName[field]
	if !ok {
		return postings.FieldStats{}, false
	}
	return postings.FieldStats{
		SumTotalTermFreq: fe.SumTotalTermFreq,
		SumDocFreq:       fe.SumDocFreq,
		DocCount:         fe.DocCount,
		TermCount:        len(fe.Terms),
	}, true
}

func (r *Reader) MaxDoc() int { return int(r.header.MaxDoc) }

func (r *Reader) Path() string { return r.filePath }

func (r *Reader) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	return r.file.Close()
}

func (r *Reader) readBlock(entry *DictEntry, buf []byte) ([]byte, error) {
	if r.closed.Load() {
		return nil, perrors.New(perrors.ErrClosed, "segment reader closed")
	}
	if cap(buf) < entry.PostLen {
		buf = make([]byte, entry.PostLen)
	}
	buf = buf[:entry.PostLen]
	if _, err := r.file.ReadAt(buf, r.header.PostOffset+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings for term %q: %w", entry.Term, err)
	}
	if crc32.ChecksumIEEE(buf) != entry.Checksum {
		return nil, perrors.Newf(perrors.ErrCorrupt, "postings checksum mismatch for term %q", entry.Term)
	}
	return buf, nil
}

// termState pins a dictionary ordinal of one field.
type termState struct {
	field string
	ord   int
	entry DictEntry
}

func (s *termState) Clone() postings.TermState {
	c := *s
	c.entry.Term = bytes.Clone(s.entry.Term)
	return &c
}

type termsCursor struct {
	r     *Reader
	field *FieldEntry
	ord   int
}

func (c *termsCursor) SeekExact(term []byte) (bool, error) {
	terms := c.field.Terms
	idx := sort.Search(len(terms), func(i int) bool {
		return bytes.Compare(terms[i].Term, term) >= 0
	})
	if idx >= len(terms) || !bytes.Equal(terms[idx].Term, term) {
		c.ord = -1
		return false, nil
	}
	c.ord = idx
	return true, nil
}

func (c *termsCursor) SeekExactState(term []byte, state postings.TermState) error {
	ts, ok := state.(*termState)
	if !ok || ts.field != c.field.Name || ts.ord < 0 || ts.ord >= len(c.field.Terms) {
		return perrors.Newf(perrors.ErrInvalidInput, "foreign term state for %s:%s", c.field.Name, term)
	}
	c.ord = ts.ord
	return nil
}

func (c *termsCursor) entry() *DictEntry {
	if c.ord < 0 {
		return nil
	}
	return &c.field.Terms[c.ord]
}

func (c *termsCursor) Term() []byte {
	if e := c.entry(); e != nil {
		return e.Term
	}
	return nil
}

func (c *termsCursor) DocFreq() int {
	if e := c.entry(); e != nil {
		return e.DocFreq
	}
	return 0
}

func (c *termsCursor) TotalTermFreq() int64 {
	if e := c.entry(); e != nil {
		return e.TotalTermFreq
	}
	return -1
}

func (c *termsCursor) CaptureState() postings.TermState {
	e := c.entry()
	if e == nil {
		return nil
	}
	return &termState{field: c.field.Name, ord: c.ord, entry: *e}
}

func (c *termsCursor) Enumerator(live postings.Bits, reuse postings.Enumerator, req postings.Request) (postings.Enumerator, error) {
	e := c.entry()
	if e == nil {
		return nil, perrors.Newf(perrors.ErrInvalidInput, "cursor on field %q is not positioned", c.field.Name)
	}
	capability := c.field.capability()
	if req.Positions && !capability.HasPositions() {
		return nil, perrors.Newf(perrors.ErrUnsupported, "field %q indexed at %s has no positions", c.field.Name, capability)
	}

	pe, ok := reuse.(*postingsEnum)
	if !ok || pe.reader != c.r {
		pe = &postingsEnum{reader: c.r}
	}
	if err := pe.reset(e, c.field, live, req); err != nil {
		return nil, err
	}
	return pe, nil
}
