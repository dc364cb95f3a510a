// Copyright 2024 The ft245r Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ft245r

import "context"

// cmdWithAddr fills a 4-byte ISP command template's address and data
// fields: opcode stays at byte 0, the 16-bit word address goes at bytes
// 1-2 (high byte first), and data (ignored by templates that don't use it,
// e.g. WritePage) goes at byte 3.
func cmdWithAddr(tmpl [4]byte, wordAddr int, data byte) [4]byte {
	return [4]byte{tmpl[0], byte(wordAddr >> 8), byte(wordAddr), data}
}

// cmdExtAddr fills the Load Extended Address template with the upper byte
// of a >64K word address.
func cmdExtAddr(tmpl [4]byte, wordAddr int) [4]byte {
	return [4]byte{tmpl[0], 0, byte(wordAddr >> 16), 0}
}

// hasLoadExtAddr reports whether p names a real LOAD_EXT_ADDR opcode. A
// part with no such opcode (the zero [4]byte, i.e. opcode byte 0) does not
// need one: most AVR flash fits in 64K words.
func (p PartDescriptor) hasLoadExtAddr() bool {
	return p.LoadExtAddr != [4]byte{}
}

// encodeCmd returns the raw bus bytes (no trailing pad) that drive a 4-byte
// ISP command out, matching the original firmware's load-extended-address
// send: its reply carries nothing worth decoding, so it is sent via
// sendAndDiscard rather than through the full Cmd round trip.
func (s *Session) encodeCmd(cmd [4]byte) []byte {
	var raw []byte
	for _, b := range cmd {
		raw = s.encodeByte(raw, b)
	}
	return raw
}

// PagedWrite writes data to mem starting at byte address addr, using the
// paged flash algorithm or per-byte EEPROM access depending on mem.Kind().
// It returns the number of bytes written. Per the original firmware's
// dispatcher, n_bytes == 0 is a valid no-op and an unsupported memory kind
// is reported as ErrUnsupportedMemory rather than silently ignored.
func (s *Session) PagedWrite(ctx context.Context, mem Memory, part PartDescriptor, addr int, data []byte) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}
	switch mem.Kind() {
	case MemFlash:
		if err := s.pagedWriteFlash(ctx, part, mem.PageSize(), addr, data); err != nil {
			return 0, err
		}
		return len(data), nil
	case MemEEPROM:
		if err := s.writeEEPROM(ctx, part, addr, data); err != nil {
			return 0, err
		}
		return len(data), nil
	default:
		return 0, ErrUnsupportedMemory
	}
}

// PagedLoad reads len(out) bytes from mem starting at byte address addr
// into out, using the same kind dispatch as PagedWrite.
func (s *Session) PagedLoad(ctx context.Context, mem Memory, part PartDescriptor, addr int, out []byte) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	if len(out) == 0 {
		return 0, nil
	}
	switch mem.Kind() {
	case MemFlash:
		if err := s.pagedLoadFlash(ctx, part, addr, out); err != nil {
			return 0, err
		}
		return len(out), nil
	case MemEEPROM:
		if err := s.readEEPROM(ctx, part, addr, out); err != nil {
			return 0, err
		}
		return len(out), nil
	default:
		return 0, ErrUnsupportedMemory
	}
}

// pagedWriteFlash loads data into the target's page buffer byte by byte,
// pipelining LOADPAGE_HI/LO requests (component F), and commits WRITE_PAGE
// once per page boundary after draining every pipelined request for that
// page — the commit must never race a still-outstanding load. Unlike
// pagedLoadFlash, the original firmware's write path never emits
// LOAD_EXT_ADDR; WRITE_PAGE's own address bits are relied on instead.
func (s *Session) pagedWriteFlash(ctx context.Context, part PartDescriptor, pageSize, addr int, data []byte) error {
	for i, b := range data {
		byteAddr := addr + i
		wordAddr := byteAddr / 2

		tmpl := part.LoadPageLo
		if byteAddr%2 != 0 {
			tmpl = part.LoadPageHi
		}
		cmd := cmdWithAddr(tmpl, wordAddr, b)
		if err := s.pipelinedCmd(ctx, cmd, nil); err != nil {
			return err
		}

		atPageEnd := (byteAddr+1)%pageSize == 0
		atEnd := i == len(data)-1
		if atPageEnd || atEnd {
			if err := s.drainAll(ctx); err != nil {
				return err
			}
			pageWordAddr := (byteAddr / 2 / (pageSize / 2)) * (pageSize / 2)
			var res [4]byte
			if err := s.Cmd(ctx, cmdWithAddr(part.WritePage, pageWordAddr, 0), res[:]); err != nil {
				return err
			}
			sleepCtx(ctx, part.WritePageDelay)
		}
	}
	return nil
}

// pagedLoadFlash reads data back via pipelined READ_HI/LO requests, each
// decoding directly into out so the pipeline depth never needs a
// correlated side buffer. Callers always pass a page-aligned addr, so a
// part with a LOAD_EXT_ADDR opcode only needs it emitted once, up front,
// rather than re-checked on every byte.
func (s *Session) pagedLoadFlash(ctx context.Context, part PartDescriptor, addr int, out []byte) error {
	if part.hasLoadExtAddr() {
		if err := s.sendAndDiscard(ctx, s.encodeCmd(cmdExtAddr(part.LoadExtAddr, addr/2))); err != nil {
			return err
		}
	}
	for i := range out {
		byteAddr := addr + i
		wordAddr := byteAddr / 2

		tmpl := part.ReadLo
		if byteAddr%2 != 0 {
			tmpl = part.ReadHi
		}
		idx := i
		cmd := cmdWithAddr(tmpl, wordAddr, 0)
		if err := s.pipelinedCmd(ctx, cmd, func(res [4]byte) {
			out[idx] = res[3]
		}); err != nil {
			return err
		}
	}
	return s.drainAll(ctx)
}

// writeEEPROM writes data one byte at a time via the part's generic
// WriteByteCmd, matching the original firmware's byte-addressed EEPROM
// delegation rather than the paged flash algorithm.
func (s *Session) writeEEPROM(ctx context.Context, part PartDescriptor, addr int, data []byte) error {
	for i, b := range data {
		cmd := cmdWithAddr(part.WriteByteCmd, addr+i, b)
		var res [4]byte
		if err := s.Cmd(ctx, cmd, res[:]); err != nil {
			return err
		}
		sleepCtx(ctx, part.WriteByteDelay)
	}
	return nil
}

// readEEPROM reads data one byte at a time via the part's generic
// ReadByteCmd.
func (s *Session) readEEPROM(ctx context.Context, part PartDescriptor, addr int, out []byte) error {
	for i := range out {
		cmd := cmdWithAddr(part.ReadByteCmd, addr+i, 0)
		var res [4]byte
		if err := s.Cmd(ctx, cmd, res[:]); err != nil {
			return err
		}
		out[i] = res[3]
	}
	return nil
}
