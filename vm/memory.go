package vm

import (
	"github.com/holiman/uint256"
)

// Memory is a read view of the machine's paged memory.
type Memory interface {
	// Words returns the words with index in [from, to) of page. Words that
	// were never written read as zero.
	Words(page uint32, from, to uint32) []uint256.Int
	// Bytes returns length bytes of page starting at byte offset start.
	Bytes(page uint32, start, length uint32) []byte
}

// PageMemory is a sparse, word-addressed Memory.
type PageMemory struct {
	pages map[uint32]map[uint32]uint256.Int
}

func NewPageMemory() *PageMemory {
	return &PageMemory{pages: make(map[uint32]map[uint32]uint256.Int)}
}

// WriteWord stores w at word index idx of page.
func (m *PageMemory) WriteWord(page, idx uint32, w *uint256.Int) {
	p, ok := m.pages[page]
	if !ok {
		p = make(map[uint32]uint256.Int)
		m.pages[page] = p
	}
	if w.IsZero() {
		delete(p, idx)
		return
	}
	p[idx] = *w
}

// WriteBytes stores data at byte offset start of page, read-modify-writing
// the words it partially covers.
func (m *PageMemory) WriteBytes(page, start uint32, data []byte) {
	for i := 0; i < len(data); {
		off := start + uint32(i)
		idx, within := off/WordSize, off%WordSize
		word := m.word(page, idx).Bytes32()
		n := copy(word[within:], data[i:])
		m.WriteWord(page, idx, new(uint256.Int).SetBytes32(word[:]))
		i += n
	}
}

func (m *PageMemory) word(page, idx uint32) *uint256.Int {
	w := m.pages[page][idx]
	return &w
}

func (m *PageMemory) Words(page uint32, from, to uint32) []uint256.Int {
	if to < from {
		return nil
	}
	out := make([]uint256.Int, 0, to-from)
	for idx := from; idx < to; idx++ {
		out = append(out, *m.word(page, idx))
	}
	return out
}

func (m *PageMemory) Bytes(page uint32, start, length uint32) []byte {
	out := make([]byte, 0, length)
	for i := uint32(0); i < length; {
		off := start + i
		idx, within := off/WordSize, off%WordSize
		word := m.word(page, idx).Bytes32()
		n := uint32(WordSize) - within
		if rest := length - i; rest < n {
			n = rest
		}
		out = append(out, word[within:within+n]...)
		i += n
	}
	return out
}
