package segment

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/postings"
	perrors "github.com/Adithya-Monish-Kumar-K/postings-conformance/pkg/errors"
)

// MagicBytes identifies a valid postings segment file.
const (
	MagicBytes    uint32 = 0x50535447
	FormatVersion uint32 = 1
	HeaderSize    int    = 64
	FooterSize    int    = 32
)

// SegmentHeader is the 64-byte header written at the start of every segment.
type SegmentHeader struct {
	Magic      uint32
	Version    uint32
	FieldCount uint32
	MaxDoc     uint32
	CreatedAt  int64
	DictOffset int64
	DictSize   int64
	PostOffset int64
	PostSize   int64
}

// DictEntry locates one term's postings block.
type DictEntry struct {
	Term          []byte `json:"t"`
	PostOffset    int64  `json:"o"`
	PostLen       int    `json:"l"`
	DocFreq       int    `json:"d"`
	TotalTermFreq int64  `json:"f"`
	Checksum      uint32 `json:"c"`
}

// FieldEntry is the dictionary record of one field.
type FieldEntry struct {
	Name             string      `json:"n"`
	Number           int         `json:"i"`
	Capability       uint8       `json:"cap"`
	HasPayloads      bool        `json:"p"`
	SumTotalTermFreq int64       `json:"sttf"`
	SumDocFreq       int64       `json:"sdf"`
	DocCount         int         `json:"dc"`
	Terms            []DictEntry `json:"terms"`
}

func (f *FieldEntry) capability() postings.Capability {
	return postings.Capability(f.Capability)
}

type fieldsWriter struct {
	format    *Format
	dir       string
	finalPath string
	tmpPath   string
	file      *os.File
	maxDoc    int
	fields    []*FieldEntry
	current   *termsWriter
	committed bool
	aborted   bool
}

func newFieldsWriter(f *Format, dir string, maxDoc int) (*fieldsWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating segment directory: %w", err)
	}
	name := fmt.Sprintf("seg_%d.pseg", time.Now().UnixNano())
	finalPath := filepath.Join(dir, name)
	tmpPath := finalPath + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("creating temp segment file: %w", err)
	}
	// Header is rewritten on commit once offsets are known.
	if _, err := file.Write(make([]byte, HeaderSize)); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("writing header placeholder: %w", err)
	}
	return &fieldsWriter{
		format:    f,
		dir:       dir,
		finalPath: finalPath,
		tmpPath:   tmpPath,
		file:      file,
		maxDoc:    maxDoc,
	}, nil
}

func (w *fieldsWriter) AddField(info postings.FieldInfo) (postings.TermsWriter, error) {
	if w.committed || w.aborted {
		return nil, perrors.New(perrors.ErrClosed, "write session finished")
	}
	if w.current != nil && !w.current.finished {
		return nil, perrors.Newf(perrors.ErrInvalidInput, "field %q not finished before %q", w.current.field.Name, info.Name)
	}
	if n := len(w.fields); n > 0 && w.fields[n-1].Name >= info.Name {
		return nil, perrors.Newf(perrors.ErrInvalidInput, "field %q added out of order after %q", info.Name, w.fields[n-1].Name)
	}
	fe := &FieldEntry{
		Name:        info.Name,
		Number:      info.Number,
		Capability:  uint8(info.Capability),
		HasPayloads: info.HasPayloads && info.Capability.HasPositions(),
	}
	w.fields = append(w.fields, fe)
	w.current = &termsWriter{w: w, field: fe}
	return w.current, nil
}

func (w *fieldsWriter) Commit() (postings.Artifact, error) {
	if w.committed || w.aborted {
		return nil, perrors.New(perrors.ErrClosed, "write session finished")
	}
	if w.current != nil && !w.current.finished {
		return nil, perrors.Newf(perrors.ErrInvalidInput, "field %q not finished", w.current.field.Name)
	}
	if err := w.writeTrailer(); err != nil {
		return nil, err
	}
	if err := w.file.Close(); err != nil {
		return nil, fmt.Errorf("closing segment file: %w", err)
	}
	if err := os.Rename(w.tmpPath, w.finalPath); err != nil {
		return nil, fmt.Errorf("renaming segment file: %w", err)
	}
	w.committed = true
	return OpenReader(w.finalPath, w.format.compression)
}

func (w *fieldsWriter) writeTrailer() error {
	dictStart, err := w.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("locating dictionary: %w", err)
	}
	dictData, err := json.Marshal(w.fields)
	if err != nil {
		return fmt.Errorf("marshaling dictionary: %w", err)
	}
	if _, err := w.file.Write(dictData); err != nil {
		return fmt.Errorf("writing dictionary: %w", err)
	}
	postSize := dictStart - int64(HeaderSize)
	dictSize := int64(len(dictData))

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(dictData))
	binary.LittleEndian.PutUint32(footer[4:8], uint32(len(w.fields)))
	binary.LittleEndian.PutUint64(footer[8:16], uint64(dictStart))
	binary.LittleEndian.PutUint64(footer[16:24], uint64(dictSize))
	binary.LittleEndian.PutUint64(footer[24:32], uint64(postSize))
	if _, err := w.file.Write(footer); err != nil {
		return fmt.Errorf("writing footer: %w", err)
	}

	header := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(header[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(w.fields)))
	binary.LittleEndian.PutUint32(header[12:16], uint32(w.maxDoc))
	binary.LittleEndian.PutUint64(header[16:24], uint64(time.Now().Unix()))
	binary.LittleEndian.PutUint64(header[24:32], uint64(dictStart))
	binary.LittleEndian.PutUint64(header[32:40], uint64(dictSize))
	binary.LittleEndian.PutUint64(header[40:48], uint64(HeaderSize))
	binary.LittleEndian.PutUint64(header[48:56], uint64(postSize))
	if _, err := w.file.WriteAt(header, 0); err != nil {
		return fmt.Errorf("updating header: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("syncing segment file: %w", err)
	}
	return nil
}

func (w *fieldsWriter) Abort() error {
	if w.committed || w.aborted {
		return nil
	}
	w.aborted = true
	closeErr := w.file.Close()
	if err := os.Remove(w.tmpPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing temp segment file: %w", err)
	}
	return closeErr
}

type termsWriter struct {
	w        *fieldsWriter
	field    *FieldEntry
	lastTerm []byte
	current  *postingsWriter
	finished bool
}

func (tw *termsWriter) StartTerm(term []byte) (postings.PostingsWriter, error) {
	if tw.finished {
		return nil, perrors.Newf(perrors.ErrClosed, "field %q already finished", tw.field.Name)
	}
	if tw.lastTerm != nil && bytes.Compare(tw.lastTerm, term) >= 0 {
		return nil, perrors.Newf(perrors.ErrInvalidInput, "term %q added out of order after %q in field %q",
			term, tw.lastTerm, tw.field.Name)
	}
	tw.lastTerm = bytes.Clone(term)
	tw.current = newPostingsWriter(tw.field.capability(), tw.field.HasPayloads, tw.w.format.skipInterval, tw.w.maxDoc)
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
	if stats.DocFreq != pw.docCount {
		return perrors.Newf(perrors.ErrInvalidInput, "term %q: docFreq %d but %d documents written",
			term, stats.DocFreq, pw.docCount)
	}
	if stats.DocFreq == 0 {
		return perrors.Newf(perrors.ErrInvalidInput, "term %q has no documents", term)
	}

	block, err := compressBlock(pw.encode(), tw.w.format.compression)
	if err != nil {
		return fmt.Errorf("compressing postings for term %q: %w", term, err)
	}
	offset, err := tw.w.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("locating postings for term %q: %w", term, err)
	}
	if _, err := tw.w.file.Write(block); err != nil {
		return fmt.Errorf("writing postings for term %q: %w", term, err)
	}
	tw.field.Terms = append(tw.field.Terms, DictEntry{
		Term:          bytes.Clone(term),
		PostOffset:    offset - int64(HeaderSize),
		PostLen:       len(block),
		DocFreq:       stats.DocFreq,
		TotalTermFreq: stats.TotalTermFreq,
		Checksum:      crc32.ChecksumIEEE(block),
	})
	tw.current = nil
	return nil
}

func (tw *termsWriter) Finish(sumTotalTermFreq, sumDocFreq int64, docCount int) error {
	if tw.current != nil {
		return perrors.Newf(perrors.ErrInvalidInput, "field %q finished with an open term", tw.field.Name)
	}
	tw.field.SumTotalTermFreq = sumTotalTermFreq
	tw.field.SumDocFreq = sumDocFreq
	tw.field.DocCount = docCount
	tw.finished = true
	return nil
}

type skipEntry struct {
	doc    int
	offset int
	count  int
}

// postingsWriter encodes one term:
//
//	uvarint skipInterval, uvarint numSkips, numSkips × (uvarint docDelta, uvarint offsetDelta)
//	body: per doc uvarint docDelta [uvarint freq] [uvarint posBytes, positions]
//	position: uvarint posDelta [uvarint payloadLen, payload] [varint startDelta, varint length]
type postingsWriter struct {
	capability   postings.Capability
	payloads     bool
	skipInterval int
	maxDoc       int

	body    []byte
	posBuf  []byte
	skips   []skipEntry
	scratch [binary.MaxVarintLen64]byte

	docCount  int
	lastDoc   int
	inDoc     bool
	freq      int
	posCount  int
	lastPos   int
	lastStart int
}

func newPostingsWriter(c postings.Capability, payloads bool, skipInterval, maxDoc int) *postingsWriter {
	return &postingsWriter{
		capability:   c,
		payloads:     payloads,
		skipInterval: skipInterval,
		maxDoc:       maxDoc,
		lastDoc:      -1,
	}
}

func (pw *postingsWriter) putUvarint(dst []byte, v uint64) []byte {
	n := binary.PutUvarint(pw.scratch[:], v)
	return append(dst, pw.scratch[:n]...)
}

func (pw *postingsWriter) putVarint(dst []byte, v int64) []byte {
	n := binary.PutVarint(pw.scratch[:], v)
	return append(dst, pw.scratch[:n]...)
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

	pw.body = pw.putUvarint(pw.body, uint64(docID-pw.lastDoc))
	if pw.capability.HasFreqs() {
		pw.body = pw.putUvarint(pw.body, uint64(freq))
	}
	pw.lastDoc = docID
	pw.freq = freq
	pw.posCount = 0
	pw.lastPos = 0
	pw.lastStart = 0
	pw.posBuf = pw.posBuf[:0]
	pw.inDoc = true
	return nil
}

func (pw *postingsWriter) AddPosition(pos int, payload []byte, startOffset, endOffset int) error {
	if !pw.inDoc {
		return perrors.New(perrors.ErrInvalidInput, "AddPosition outside a document")
	}
	if !pw.capability.HasPositions() {
		return perrors.Newf(perrors.ErrInvalidInput, "AddPosition on a %s field", pw.capability)
	}
	if pos < pw.lastPos {
		return perrors.Newf(perrors.ErrInvalidInput, "doc %d: position %d before %d", pw.lastDoc, pos, pw.lastPos)
	}
	pw.posBuf = pw.putUvarint(pw.posBuf, uint64(pos-pw.lastPos))
	pw.lastPos = pos
	if pw.payloads {
		pw.posBuf = pw.putUvarint(pw.posBuf, uint64(len(payload)))
		pw.posBuf = append(pw.posBuf, payload...)
	}
	if pw.capability.HasOffsets() {
		if startOffset < 0 || endOffset < startOffset {
			return perrors.Newf(perrors.ErrInvalidInput, "doc %d: bad offsets [%d,%d)", pw.lastDoc, startOffset, endOffset)
		}
		pw.posBuf = pw.putVarint(pw.posBuf, int64(startOffset-pw.lastStart))
		pw.posBuf = pw.putVarint(pw.posBuf, int64(endOffset-startOffset))
		pw.lastStart = startOffset
	}
	pw.posCount++
	return nil
}

func (pw *postingsWriter) FinishDoc() error {
	if !pw.inDoc {
		return perrors.New(perrors.ErrInvalidInput, "FinishDoc outside a document")
	}
	if pw.capability.HasPositions() {
		if pw.posCount != pw.freq {
			return perrors.Newf(perrors.ErrInvalidInput, "doc %d: %d positions for freq %d", pw.lastDoc, pw.posCount, pw.freq)
		}
		pw.body = pw.putUvarint(pw.body, uint64(len(pw.posBuf)))
		pw.body = append(pw.body, pw.posBuf...)
	}
	pw.inDoc = false
	pw.docCount++
	if pw.docCount%pw.skipInterval == 0 {
		pw.skips = append(pw.skips, skipEntry{doc: pw.lastDoc, offset: len(pw.body), count: pw.docCount})
	}
	return nil
}

func (pw *postingsWriter) encode() []byte {
	out := make([]byte, 0, len(pw.body)+4*len(pw.skips)+8)
	out = pw.putUvarint(out, uint64(pw.skipInterval))
	out = pw.putUvarint(out, uint64(len(pw.skips)))
	prevDoc, prevOff := 0, 0
	for _, s := range pw.skips {
		out = pw.putUvarint(out, uint64(s.doc-prevDoc))
		out = pw.putUvarint(out, uint64(s.offset-prevOff))
		prevDoc, prevOff = s.doc, s.offset
	}
	return append(out, pw.body...)
}
