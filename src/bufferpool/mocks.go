package bufferpool

import (
	"github.com/stretchr/testify/mock"

	"github.com/relstore/relstore/src/pkg/common"
)

type MockDiskManager struct {
	mock.Mock
}

var _ DiskManager = &MockDiskManager{}

func (m *MockDiskManager) ReadPage(pageID common.PageID, buf []byte) error {
	args := m.Called(pageID, buf)
	return args.Error(0)
}

func (m *MockDiskManager) WritePage(pageID common.PageID, buf []byte) error {
	args := m.Called(pageID, buf)
	return args.Error(0)
}

func (m *MockDiskManager) DeallocatePage(pageID common.PageID) error {
	args := m.Called(pageID)
	return args.Error(0)
}

type MockReplacer struct {
	mock.Mock
}

var _ Replacer = &MockReplacer{}

func (m *MockReplacer) Pin(frameID common.FrameID) {
	m.Called(frameID)
}

func (m *MockReplacer) Unpin(frameID common.FrameID) {
	m.Called(frameID)
}

func (m *MockReplacer) ChooseVictim() (common.FrameID, error) {
	args := m.Called()
	return args.Get(0).(common.FrameID), args.Error(1)
}

func (m *MockReplacer) GetSize() uint64 {
	args := m.Called()
	return args.Get(0).(uint64)
}
