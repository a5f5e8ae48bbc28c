package bufferpool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/relstore/relstore/src/pkg/assert"
	"github.com/relstore/relstore/src/pkg/common"
)

var (
	ErrBufferPoolExhausted = errors.New("all frames are pinned")
	ErrPageNotResident     = errors.New("page is not resident")
)

// DiskManager is the block I/O surface the pool writes back through.
type DiskManager interface {
	ReadPage(pageID common.PageID, buf []byte) error
	WritePage(pageID common.PageID, buf []byte) error
	DeallocatePage(pageID common.PageID) error
}

// BufferPool is what the table heap and catalog program against; both
// the single instance and the parallel manager satisfy it.
type BufferPool interface {
	NewPage() (*Frame, error)
	FetchPage(pageID common.PageID) (*Frame, error)
	UnpinPage(pageID common.PageID, isDirty bool) bool
	FlushPage(pageID common.PageID) error
	FlushAllPages() error
	DeletePage(pageID common.PageID) (bool, error)
}

// Manager is one buffer pool instance. A single latch serializes every
// public operation from entry to return, disk I/O included. Page ids it
// allocates satisfy id mod numInstances == instanceIndex.
type Manager struct {
	mu sync.Mutex

	poolSize      uint64
	numInstances  uint32
	instanceIndex uint32
	nextPageID    common.PageID

	frames    []Frame
	pageTable map[common.PageID]common.FrameID
	freeList  []common.FrameID

	replacer Replacer
	disk     DiskManager
	metrics  *poolMetrics
}

var _ BufferPool = &Manager{}

// New builds a stand-alone instance (a pool of one).
func New(poolSize uint64, replacer Replacer, disk DiskManager) *Manager {
	return NewInstance(poolSize, 1, 0, replacer, disk)
}

func NewInstance(
	poolSize uint64,
	numInstances uint32,
	instanceIndex uint32,
	replacer Replacer,
	disk DiskManager,
) *Manager {
	assert.Assert(poolSize > 0, "pool size must be greater than zero")
	assert.Assert(numInstances > 0, "instance count must be greater than zero")
	assert.Assert(instanceIndex < numInstances,
		"instance index %d out of range for %d instances",
		instanceIndex, numInstances)

	frames := make([]Frame, poolSize)
	freeList := make([]common.FrameID, poolSize)
	for i := range poolSize {
		frames[i].pageID = common.InvalidPageID
		freeList[i] = common.FrameID(i)
	}

	return &Manager{
		poolSize:      poolSize,
		numInstances:  numInstances,
		instanceIndex: instanceIndex,
		nextPageID:    common.PageID(instanceIndex),
		frames:        frames,
		pageTable:     make(map[common.PageID]common.FrameID),
		freeList:      freeList,
		replacer:      replacer,
		disk:          disk,
		metrics:       newPoolMetrics(),
	}
}

// allocatePage hands out the next page id of this instance's stripe.
func (m *Manager) allocatePage() common.PageID {
	id := m.nextPageID
	m.nextPageID += common.PageID(m.numInstances)

	assert.Assert(uint32(id)%m.numInstances == m.instanceIndex,
		"page id %d does not belong to instance %d", id, m.instanceIndex)

	return id
}

// NewPage allocates a fresh page, pins it and returns its frame. The
// returned buffer is zeroed; nothing is read from disk.
func (m *Manager) NewPage() (*Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	allPinned := true
	for i := range m.frames {
		if m.frames[i].pinCount == 0 {
			allPinned = false
			break
		}
	}
	if allPinned {
		return nil, ErrBufferPoolExhausted
	}

	frameID, err := m.findReplace()
	if err != nil {
		return nil, ErrBufferPoolExhausted
	}

	pageID := m.allocatePage()

	frame := &m.frames[frameID]
	frame.zero()
	frame.pageID = pageID
	frame.pinCount = 1
	frame.dirty = false

	m.pageTable[pageID] = frameID
	m.replacer.Pin(frameID)

	return frame, nil
}

// FetchPage returns the frame holding the page, reading it from disk if
// it is not resident. Concurrent holders share one frame.
func (m *Manager) FetchPage(pageID common.PageID) (*Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frameID, ok := m.pageTable[pageID]; ok {
		frame := &m.frames[frameID]
		frame.pinCount++
		m.replacer.Pin(frameID)
		m.metrics.hit()

		return frame, nil
	}

	m.metrics.miss()

	frameID, err := m.findReplace()
	if err != nil {
		return nil, ErrBufferPoolExhausted
	}

	frame := &m.frames[frameID]
	if err := m.disk.ReadPage(pageID, frame.Data()); err != nil {
		frame.reset()
		m.freeList = append(m.freeList, frameID)

		return nil, fmt.Errorf("failed to read page %d: %w", pageID, err)
	}

	frame.pageID = pageID
	frame.pinCount = 1
	frame.dirty = false

	m.pageTable[pageID] = frameID
	m.replacer.Pin(frameID)

	return frame, nil
}

// UnpinPage drops one pin, recording whether the holder wrote the page.
func (m *Manager) UnpinPage(pageID common.PageID, isDirty bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	frameID, ok := m.pageTable[pageID]
	if !ok {
		return false
	}

	frame := &m.frames[frameID]
	if isDirty {
		frame.dirty = true
	}

	if frame.pinCount == 0 {
		return false
	}

	frame.pinCount--
	if frame.pinCount == 0 {
		m.replacer.Unpin(frameID)
	}

	return true
}

// FlushPage writes the resident page to disk unconditionally. The dirty
// bit is left as is; a later eviction re-writes the page, which is
// idempotent.
func (m *Manager) FlushPage(pageID common.PageID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.flushPage(pageID)
}

func (m *Manager) flushPage(pageID common.PageID) error {
	if pageID == common.InvalidPageID {
		return ErrPageNotResident
	}

	frameID, ok := m.pageTable[pageID]
	if !ok {
		return ErrPageNotResident
	}

	frame := &m.frames[frameID]
	if err := m.disk.WritePage(pageID, frame.Data()); err != nil {
		return fmt.Errorf("failed to flush page %d: %w", pageID, err)
	}

	return nil
}

func (m *Manager) FlushAllPages() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for pageID := range m.pageTable {
		if err := m.flushPage(pageID); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// DeletePage evicts and deallocates an unpinned page. Returns true if
// the page is gone afterwards, false while someone still pins it.
func (m *Manager) DeletePage(pageID common.PageID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	frameID, ok := m.pageTable[pageID]
	if !ok {
		return true, nil
	}

	frame := &m.frames[frameID]
	if frame.pinCount > 0 {
		return false, nil
	}

	if frame.dirty {
		if err := m.disk.WritePage(pageID, frame.Data()); err != nil {
			return false, fmt.Errorf("failed to flush page %d: %w", pageID, err)
		}
	}

	if err := m.disk.DeallocatePage(pageID); err != nil {
		return false, fmt.Errorf("failed to deallocate page %d: %w", pageID, err)
	}

	delete(m.pageTable, pageID)
	m.replacer.Pin(frameID) // the frame is no longer an eviction candidate
	frame.reset()
	m.freeList = append(m.freeList, frameID)

	return true, nil
}

// findReplace claims a frame: the free list first, otherwise an evicted
// victim. The victim's page is written back if dirty and unmapped. The
// frame header carries its own page id, so eviction needs no page-table
// scan.
func (m *Manager) findReplace() (common.FrameID, error) {
	if len(m.freeList) > 0 {
		frameID := m.freeList[0]
		m.freeList = m.freeList[1:]

		return frameID, nil
	}

	frameID, err := m.replacer.ChooseVictim()
	if err != nil {
		return 0, err
	}

	frame := &m.frames[frameID]
	assert.Assert(frame.pinCount == 0, "replacer returned a pinned frame %d", frameID)

	if frame.dirty {
		if err := m.disk.WritePage(frame.pageID, frame.Data()); err != nil {
			return 0, fmt.Errorf("failed to write back page %d: %w", frame.pageID, err)
		}
	}

	delete(m.pageTable, frame.pageID)
	m.metrics.eviction()

	return frameID, nil
}
