package bufferpool

import (
	"sync"

	"github.com/relstore/relstore/src/pkg/common"
)

// Frame is a fixed-size buffer holding one resident page plus its
// bookkeeping. The metadata (page id, pin count, dirty bit) is guarded
// by the owning manager's latch; the embedded RWMutex is the page latch
// callers take while reading or writing the data buffer.
type Frame struct {
	latch sync.RWMutex

	data     [common.PageSize]byte
	pageID   common.PageID
	pinCount int
	dirty    bool
}

// Data returns the page buffer. Valid only while the caller holds a pin.
func (f *Frame) Data() []byte {
	return f.data[:]
}

func (f *Frame) PageID() common.PageID {
	return f.pageID
}

func (f *Frame) PinCount() int {
	return f.pinCount
}

func (f *Frame) IsDirty() bool {
	return f.dirty
}

func (f *Frame) Lock()    { f.latch.Lock() }
func (f *Frame) Unlock()  { f.latch.Unlock() }
func (f *Frame) RLock()   { f.latch.RLock() }
func (f *Frame) RUnlock() { f.latch.RUnlock() }

func (f *Frame) reset() {
	f.pageID = common.InvalidPageID
	f.pinCount = 0
	f.dirty = false
}

func (f *Frame) zero() {
	clear(f.data[:])
}
