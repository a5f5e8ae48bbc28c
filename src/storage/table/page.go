package table

import (
	"encoding/binary"

	"github.com/relstore/relstore/src/pkg/assert"
	"github.com/relstore/relstore/src/pkg/common"
	"github.com/relstore/relstore/src/pkg/optional"
)

// Slotted page layout, big-endian:
//
//	[ nextPageID int64 | slotCount u16 | freeEnd u16 | slots... | free | tuples... ]
//
// Slots grow forward from the header, tuple bytes grow backward from
// the end of the page. Deleted tuples leave holes; slots are
// tombstoned, never reused, so slot numbers stay stable.
const (
	offNext      = 0
	offSlotCount = 8
	offFreeEnd   = 10
	headerSize   = 12

	slotSize = 6
)

type slotStatus uint16

const (
	slotFree slotStatus = iota
	slotOccupied
	slotMarkedDelete
)

// maxTupleSize is the largest tuple an empty page can hold.
const maxTupleSize = common.PageSize - headerSize - slotSize

type slot struct {
	offset uint16
	length uint16
	status slotStatus
}

// tablePage interprets a pinned frame's buffer. The caller holds the
// page latch.
type tablePage struct {
	data []byte
}

func (p tablePage) init() {
	p.setNext(common.InvalidPageID)
	binary.BigEndian.PutUint16(p.data[offSlotCount:], 0)
	binary.BigEndian.PutUint16(p.data[offFreeEnd:], common.PageSize)
}

func (p tablePage) next() common.PageID {
	return common.PageID(binary.BigEndian.Uint64(p.data[offNext:]))
}

func (p tablePage) setNext(id common.PageID) {
	binary.BigEndian.PutUint64(p.data[offNext:], uint64(id))
}

func (p tablePage) slotCount() uint16 {
	return binary.BigEndian.Uint16(p.data[offSlotCount:])
}

func (p tablePage) freeEnd() uint16 {
	return binary.BigEndian.Uint16(p.data[offFreeEnd:])
}

func (p tablePage) getSlot(i uint16) slot {
	assert.Assert(i < p.slotCount(), "slot %d out of range", i)

	base := headerSize + int(i)*slotSize

	return slot{
		offset: binary.BigEndian.Uint16(p.data[base:]),
		length: binary.BigEndian.Uint16(p.data[base+2:]),
		status: slotStatus(binary.BigEndian.Uint16(p.data[base+4:])),
	}
}

func (p tablePage) setSlot(i uint16, s slot) {
	base := headerSize + int(i)*slotSize

	binary.BigEndian.PutUint16(p.data[base:], s.offset)
	binary.BigEndian.PutUint16(p.data[base+2:], s.length)
	binary.BigEndian.PutUint16(p.data[base+4:], uint16(s.status))
}

// insertTuple copies the tuple in and returns its slot number, or none
// when the page lacks room for the bytes plus a fresh slot entry.
func (p tablePage) insertTuple(tuple []byte) optional.Optional[uint16] {
	count := p.slotCount()
	freeEnd := int(p.freeEnd())
	slotsEnd := headerSize + (int(count)+1)*slotSize

	if freeEnd-len(tuple) < slotsEnd {
		return optional.None[uint16]()
	}

	newOffset := uint16(freeEnd - len(tuple))
	copy(p.data[newOffset:freeEnd], tuple)

	p.setSlot(count, slot{
		offset: newOffset,
		length: uint16(len(tuple)),
		status: slotOccupied,
	})
	binary.BigEndian.PutUint16(p.data[offSlotCount:], count+1)
	binary.BigEndian.PutUint16(p.data[offFreeEnd:], newOffset)

	return optional.Some(count)
}

func (p tablePage) getTuple(i uint16) ([]byte, bool) {
	if i >= p.slotCount() {
		return nil, false
	}

	s := p.getSlot(i)
	if s.status != slotOccupied {
		return nil, false
	}

	return p.data[s.offset : s.offset+s.length], true
}

// updateTuple overwrites the tuple in place. The replacement must not
// be larger than the stored one; fixed-width schemas always qualify.
func (p tablePage) updateTuple(i uint16, tuple []byte) bool {
	if i >= p.slotCount() {
		return false
	}

	s := p.getSlot(i)
	if s.status != slotOccupied || len(tuple) > int(s.length) {
		return false
	}

	copy(p.data[s.offset:int(s.offset)+len(tuple)], tuple)
	s.length = uint16(len(tuple))
	p.setSlot(i, s)

	return true
}

func (p tablePage) markDelete(i uint16) bool {
	if i >= p.slotCount() {
		return false
	}

	s := p.getSlot(i)
	if s.status != slotOccupied {
		return false
	}

	s.status = slotMarkedDelete
	p.setSlot(i, s)

	return true
}

func (p tablePage) rollbackDelete(i uint16) bool {
	if i >= p.slotCount() {
		return false
	}

	s := p.getSlot(i)
	if s.status != slotMarkedDelete {
		return false
	}

	s.status = slotOccupied
	p.setSlot(i, s)

	return true
}

func (p tablePage) applyDelete(i uint16) bool {
	if i >= p.slotCount() {
		return false
	}

	s := p.getSlot(i)
	if s.status == slotFree {
		return false
	}

	s.status = slotFree
	p.setSlot(i, s)

	return true
}
