// Package seedmodel generates deterministic synthetic postings. Given the same
// seed and frequency range a Model always enumerates the same documents,
// frequencies, positions, payloads and offsets, so no postings ever need to
// be materialized to check an index against them.
package seedmodel

import (
	"fmt"
	"math/rand/v2"

	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/postings"
)

// streamMix decorrelates the two PCG words derived from one 64-bit seed.
const streamMix = 0x9e3779b97f4a7c15

// Option adjusts a Model after its construction-time draws, so overriding a
// value never shifts the random stream.
type Option func(*Model)

// WithMaxDocSpacing forces the maximum gap between consecutive docIDs.
func WithMaxDocSpacing(n int) Option {
	return func(m *Model) {
		if n >= 1 {
			m.maxDocSpacing = n
		}
	}
}

// Model is a postings enumerator over generated data. It is not safe for
// concurrent use.
type Model struct {
	// rng drives frequencies, positions, payloads and offsets; docRng only
	// drives docID gaps so docIDs do not depend on what else is consumed.
	rng    *rand.Rand
	docRng *rand.Rand

	docFreq       int
	maxDocSpacing int
	payloadSize   int
	fixedPayloads bool
	live          postings.Bits
	doPositions   bool

	payload    []byte
	payloadLen int

	docID int
	last  int
	freq  int
	upto  int

	pos         int
	offset      int
	startOffset int
	endOffset   int
	posSpacing  int
	posUpto     int
}

var _ postings.Enumerator = (*Model)(nil)

// New returns a Model in the before-first state. live, when non-nil, hides
// documents it does not mark without changing DocFreq. ceiling decides
// whether positions consume randomness; two models compared with each other
// must share it.
func New(seed uint64, minFreq, maxFreq int, live postings.Bits, ceiling postings.Capability, opts ...Option) *Model {
	if minFreq < 1 || maxFreq < minFreq {
		panic(fmt.Sprintf("seedmodel: invalid frequency range [%d,%d]", minFreq, maxFreq))
	}
	rng := rand.New(rand.NewPCG(seed, seed^streamMix))
	docRng := rand.New(rand.NewPCG(rng.Uint64(), rng.Uint64()))

	m := &Model{
		rng:         rng,
		docRng:      docRng,
		live:        live,
		doPositions: ceiling.HasPositions(),
		docID:       -1,
	}
	m.docFreq = nextInt(rng, minFreq, maxFreq)
	m.maxDocSpacing = nextInt(rng, 1, 100)
	if rng.IntN(10) == 7 {
		// Occasionally use wider payloads.
		m.payloadSize = 1 + rng.IntN(3)
	} else {
		m.payloadSize = 1
	}
	m.fixedPayloads = rng.IntN(2) == 0
	m.payload = make([]byte, m.payloadSize)

	for _, opt := range opts {
		opt(m)
	}
	return m
}

// nextInt returns a uniform int in [lo, hi].
func nextInt(r *rand.Rand, lo, hi int) int {
	return lo + r.IntN(hi-lo+1)
}

func (m *Model) NextDoc() int {
	for {
		m.nextGenerated()
		if m.live == nil || m.docID == postings.NoMoreDocs || m.live.Get(m.docID) {
			return m.docID
		}
	}
}

func (m *Model) nextGenerated() {
	// Positions left unread still have to be drawn to keep the stream
	// aligned with callers that read them.
	for m.posUpto < m.freq {
		m.NextPosition()
	}

	if m.upto >= m.docFreq {
		m.docID = postings.NoMoreDocs
		return
	}

	if m.upto == 0 {
		repeatZero := m.docRng.IntN(2) == 0
		if repeatZero || m.maxDocSpacing == 1 {
			m.last = 0
		} else {
			m.last = nextInt(m.docRng, 1, m.maxDocSpacing)
		}
	} else if m.maxDocSpacing == 1 {
		m.last++
	} else {
		m.last += nextInt(m.docRng, 1, m.maxDocSpacing)
	}

	switch {
	case m.rng.IntN(200) == 17:
		m.freq = nextInt(m.rng, 1, 1000)
	case m.rng.IntN(10) == 7:
		m.freq = nextInt(m.rng, 1, 20)
	default:
		m.freq = nextInt(m.rng, 1, 4)
	}

	m.pos = 0
	m.offset = 0
	m.posUpto = 0
	m.payloadLen = 0
	m.posSpacing = nextInt(m.rng, 1, 100)

	m.upto++
	m.docID = m.last
}

func (m *Model) NextPosition() int {
	if !m.doPositions {
		m.posUpto = m.freq
		return 0
	}
	if m.posUpto >= m.freq {
		panic(fmt.Sprintf("seedmodel: NextPosition past freq %d at doc %d", m.freq, m.docID))
	}

	switch {
	case m.posUpto == 0 && m.rng.IntN(2) == 0:
		// first position stays at 0
	case m.posSpacing == 1:
		m.pos++
	default:
		m.pos += nextInt(m.rng, 1, m.posSpacing)
	}

	if m.fixedPayloads {
		m.fillPayload()
	} else if m.rng.IntN(m.payloadSize) != 0 {
		m.fillPayload()
	} else {
		m.payloadLen = 0
	}

	m.startOffset = m.offset + m.rng.IntN(5)
	m.endOffset = m.startOffset + m.rng.IntN(10)
	m.offset = m.endOffset

	m.posUpto++
	return m.pos
}

func (m *Model) fillPayload() {
	m.payloadLen = m.payloadSize
	for i := range m.payload {
		m.payload[i] = byte(m.rng.Uint32())
	}
}

// Advance is the reference skip: step with NextDoc until target is reached.
func (m *Model) Advance(target int) int {
	for {
		doc := m.NextDoc()
		if doc >= target {
			return doc
		}
	}
}

func (m *Model) DocID() int       { return m.docID }
func (m *Model) Freq() int        { return m.freq }
func (m *Model) StartOffset() int { return m.startOffset }
func (m *Model) EndOffset() int   { return m.endOffset }

// DocFreq is the unfiltered number of generated documents.
func (m *Model) DocFreq() int { return m.docFreq }

// Upto counts generated documents consumed so far, live or not.
func (m *Model) Upto() int { return m.upto }

func (m *Model) Cost() int64 { return int64(m.docFreq) }

// Payload returns the current position's payload or nil. The returned slice
// is overwritten by the next NextPosition.
func (m *Model) Payload() []byte {
	if m.payloadLen == 0 {
		return nil
	}
	return m.payload[:m.payloadLen]
}
