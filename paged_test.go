// Copyright 2024 The ft245r Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ft245r

import (
	"context"
	"testing"
)

type memFake struct {
	kind     MemKind
	pageSize int
	size     int
}

func (m memFake) Kind() MemKind  { return m.kind }
func (m memFake) PageSize() int  { return m.pageSize }
func (m memFake) Size() int      { return m.size }

func testPart() PartDescriptor {
	return PartDescriptor{
		LoadPageHi:  [4]byte{0x48, 0, 0, 0},
		LoadPageLo:  [4]byte{0x40, 0, 0, 0},
		WritePage:   [4]byte{0x4c, 0, 0, 0},
		ReadHi:      [4]byte{0x28, 0, 0, 0},
		ReadLo:      [4]byte{0x20, 0, 0, 0},
		LoadExtAddr: [4]byte{0x4d, 0, 0, 0},

		WriteByteCmd: [4]byte{0xc0, 0, 0, 0},
		ReadByteCmd:  [4]byte{0xa0, 0, 0, 0},
	}
}

func TestPagedWriteFlashSpansTwoPages(t *testing.T) {
	s := newTestSession(t)
	mem := memFake{kind: MemFlash, pageSize: 16, size: 1024}
	data := make([]byte, 32)
	for i := range data {
		data[i] = byte(i)
	}
	n, err := s.PagedWrite(context.Background(), mem, testPart(), 0, data)
	if err != nil {
		t.Fatalf("PagedWrite: %v", err)
	}
	if n != len(data) {
		t.Fatalf("PagedWrite n = %d, want %d", n, len(data))
	}
	if s.queue.outstanding != 0 {
		t.Fatalf("queue.outstanding = %d, want 0 after page-boundary drain", s.queue.outstanding)
	}
}

// TestPagedWriteFlashBatchesFragments asserts the pipelined request queue
// batches fragmentCmds (8) commands per posted node rather than posting one
// node per command: writing 256 bytes with a 128-byte page should post
// exactly 256/8 = 32 request nodes in total.
func TestPagedWriteFlashBatchesFragments(t *testing.T) {
	s := newTestSession(t)
	mem := memFake{kind: MemFlash, pageSize: 128, size: 1024}
	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i)
	}
	if _, err := s.PagedWrite(context.Background(), mem, testPart(), 0, data); err != nil {
		t.Fatalf("PagedWrite: %v", err)
	}
	if s.queue.totalPushed != 32 {
		t.Fatalf("queue.totalPushed = %d, want 32", s.queue.totalPushed)
	}
}

func TestPagedWriteZeroBytesIsNoOp(t *testing.T) {
	s := newTestSession(t)
	mem := memFake{kind: MemFlash, pageSize: 16, size: 1024}
	n, err := s.PagedWrite(context.Background(), mem, testPart(), 0, nil)
	if err != nil {
		t.Fatalf("PagedWrite: %v", err)
	}
	if n != 0 {
		t.Fatalf("PagedWrite n = %d, want 0", n)
	}
}

func TestPagedWriteUnsupportedMemory(t *testing.T) {
	s := newTestSession(t)
	mem := memFake{kind: MemOther}
	_, err := s.PagedWrite(context.Background(), mem, testPart(), 0, []byte{1})
	if err != ErrUnsupportedMemory {
		t.Fatalf("PagedWrite error = %v, want ErrUnsupportedMemory", err)
	}
}

func TestPagedLoadFlashRoundTrip(t *testing.T) {
	s := newTestSession(t)
	mem := memFake{kind: MemFlash, pageSize: 16, size: 1024}
	out := make([]byte, 8)
	n, err := s.PagedLoad(context.Background(), mem, testPart(), 0, out)
	if err != nil {
		t.Fatalf("PagedLoad: %v", err)
	}
	if n != len(out) {
		t.Fatalf("PagedLoad n = %d, want %d", n, len(out))
	}
	if s.queue.outstanding != 0 {
		t.Fatalf("queue.outstanding = %d, want 0 after PagedLoad drain", s.queue.outstanding)
	}
}

func TestWriteEEPROMByteByByte(t *testing.T) {
	s := newTestSession(t)
	mem := memFake{kind: MemEEPROM, size: 512}
	n, err := s.PagedWrite(context.Background(), mem, testPart(), 10, []byte{0x11, 0x22, 0x33})
	if err != nil {
		t.Fatalf("PagedWrite: %v", err)
	}
	if n != 3 {
		t.Fatalf("PagedWrite n = %d, want 3", n)
	}
}
