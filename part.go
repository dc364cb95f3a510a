// Copyright 2024 The ft245r Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ft245r

import "time"

// MemKind distinguishes the paged-write/paged-load algorithm a Memory
// needs: flash uses the two-cycle LOADPAGE/write_page algorithm, EEPROM is
// written and read one byte at a time, anything else is not supported by
// this programmer.
type MemKind int

const (
	MemOther MemKind = iota
	MemFlash
	MemEEPROM
)

// Memory is the external collaborator describing a single memory region's
// kind and page geometry. It owns no content: the bytes being written or
// read are always supplied directly to PagedWrite/PagedLoad by the caller,
// consistent with the host-side memory buffer being an external concern
// this package does not manage.
type Memory interface {
	// Kind selects the paged algorithm PagedWrite/PagedLoad uses.
	Kind() MemKind

	// PageSize is the flash page size in bytes. Unused for EEPROM.
	PageSize() int

	// Size is the total addressable size of this memory in bytes.
	Size() int
}

// PartDescriptor is the external collaborator describing the target AVR
// part: its ISP/TPI command opcodes, timing, and program-enable sequence.
// This package never hardcodes a part's opcodes; every opcode byte used by
// Cmd/CmdTPI/ProgramEnable/ChipErase is supplied through this interface.
type PartDescriptor struct {
	// UsesTPI selects the TPI protocol (component E) instead of ISP SPI
	// (component D) for this part.
	UsesTPI bool

	// ProgramEnable is the 4-byte ISP command that enables programming
	// mode. Unused when UsesTPI is true.
	ProgramEnable [4]byte
	// PollIndex is the response byte index (0-3) program-enable checks
	// against PollValue to confirm the target accepted the command.
	PollIndex int
	PollValue byte

	// ChipEraseCmd is the 4-byte ISP chip-erase command. Unused when
	// UsesTPI is true, where chip erase is a TPI-specific NVM controller
	// sequence instead (see Session.ChipErase).
	ChipEraseCmd [4]byte
	// ChipEraseDelay is how long to wait after issuing chip erase before
	// the part is ready to be re-initialized.
	ChipEraseDelay time.Duration

	// TPIGuardTime is the TPIPCR guard-time value written during TPI
	// initialization (e.g. TPIPCR_GT_0b for the fastest guard time).
	TPIGuardTime byte

	// TPIIdent is the expected TPIIR identification register value read
	// back during TPI link verification.
	TPIIdent byte

	// ISP paged-access opcode templates, each a 4-byte ISP command with the
	// address and data bytes left as zero for paged.go to fill in:
	//   LoadPageHi/Lo  - load one byte into the flash page buffer
	//   WritePage      - commit the page buffer to flash at the current page
	//   ReadHi/Lo      - read one byte directly from flash
	//   LoadExtAddr    - load the upper address byte (>64K parts only)
	LoadPageHi  [4]byte
	LoadPageLo  [4]byte
	WritePage   [4]byte
	ReadHi      [4]byte
	ReadLo      [4]byte
	LoadExtAddr [4]byte
	// WritePageDelay bounds how long to wait after WritePage before the
	// page buffer may be reused.
	WritePageDelay time.Duration

	// ReadByteCmd/WriteByteCmd are the generic (non-paged) single-byte ISP
	// access opcode templates used for EEPROM and any other byte-addressed
	// memory, mirroring the original firmware's delegation of EEPROM access
	// to the programmer's plain read_byte/write_byte hooks rather than the
	// paged flash algorithm.
	ReadByteCmd  [4]byte
	WriteByteCmd [4]byte
	// WriteByteDelay bounds how long to wait after a single EEPROM byte
	// write before the next access may proceed.
	WriteByteDelay time.Duration
}
