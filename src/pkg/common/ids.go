package common

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// PageID identifies one page of the heap file. Allocation is striped
// across buffer pool instances: instance i hands out i, i+n, i+2n, ...
type PageID int64

// TxnID is a monotonically increasing transaction identifier. A larger
// id means a younger transaction.
type TxnID int64

// FrameID indexes a frame inside one buffer pool instance.
type FrameID uint64

const (
	InvalidPageID PageID = -1
	InvalidTxnID  TxnID  = -1

	PageSize = 4096
)

// RID locates one tuple: the page it lives on and its slot there.
// It is stable for the tuple's lifetime.
type RID struct {
	PageID  PageID
	SlotNum uint16
}

func (r RID) String() string {
	return fmt.Sprintf("(%d:%d)", r.PageID, r.SlotNum)
}

func (r RID) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.BigEndian, int64(r.PageID))
	_ = binary.Write(buf, binary.BigEndian, r.SlotNum)

	return buf.Bytes(), nil
}

func (r *RID) UnmarshalBinary(data []byte) error {
	rd := bytes.NewReader(data)

	var pageID int64
	if err := binary.Read(rd, binary.BigEndian, &pageID); err != nil {
		return err
	}
	r.PageID = PageID(pageID)

	return binary.Read(rd, binary.BigEndian, &r.SlotNum)
}
