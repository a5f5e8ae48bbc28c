package disk

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/afero"

	"github.com/relstore/relstore/src/pkg/common"
)

var ErrShortPage = errors.New("page buffer must be exactly one page long")

// Manager performs block-addressed I/O over a single heap file. Page p
// lives at byte offset p*PageSize. It is written against afero.Fs so
// tests can run on an in-memory filesystem.
type Manager struct {
	mu   sync.RWMutex
	fs   afero.Fs
	file afero.File
	path string

	nextPageID  common.PageID
	deallocated map[common.PageID]struct{}
}

func New(fs afero.Fs, path string) (*Manager, error) {
	file, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open heap file %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat heap file %s: %w", path, err)
	}

	return &Manager{
		fs:          fs,
		file:        file,
		path:        path,
		nextPageID:  common.PageID(info.Size() / common.PageSize),
		deallocated: make(map[common.PageID]struct{}),
	}, nil
}

// ReadPage fills buf with the page's bytes. A page that has never been
// written reads back as zeroes.
func (m *Manager) ReadPage(pageID common.PageID, buf []byte) error {
	if len(buf) != common.PageSize {
		return ErrShortPage
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	offset := int64(pageID) * common.PageSize

	n, err := m.file.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("failed to read page %d: %w", pageID, err)
	}

	// Short read past EOF: the tail of the file is logically zero.
	for i := n; i < common.PageSize; i++ {
		buf[i] = 0
	}

	return nil
}

func (m *Manager) WritePage(pageID common.PageID, buf []byte) error {
	if len(buf) != common.PageSize {
		return ErrShortPage
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	offset := int64(pageID) * common.PageSize

	if _, err := m.file.WriteAt(buf, offset); err != nil {
		return fmt.Errorf("failed to write page %d: %w", pageID, err)
	}

	if pageID >= m.nextPageID {
		m.nextPageID = pageID + 1
	}

	return nil
}

// AllocatePage extends the file-growth bookkeeping and returns a fresh
// page id. Buffer pool instances that stripe their own id space do not
// call this; it serves callers that talk to the disk directly.
func (m *Manager) AllocatePage() common.PageID {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextPageID
	m.nextPageID++

	return id
}

func (m *Manager) DeallocatePage(pageID common.PageID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deallocated[pageID] = struct{}{}

	return nil
}

// IsDeallocated reports whether the page was handed back. Used by tests.
func (m *Manager) IsDeallocated(pageID common.PageID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.deallocated[pageID]

	return ok
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.file.Close(); err != nil {
		return fmt.Errorf("failed to close heap file %s: %w", m.path, err)
	}

	return nil
}
