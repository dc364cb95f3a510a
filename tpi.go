// Copyright 2024 The ft245r Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ft245r

import (
	"context"

	"periph.io/x/conn/v3/gpio"
)

// TPI frames a byte as: 1 start bit (0), 8 data bits LSB first, 1 even
// parity bit, 2 stop bits (1, 1) — 12 bits total, matching a standard
// async UART frame at the TPI physical layer.
const tpiFrameBits = 12

// tpiBits returns the 12 time-ordered bits of a TPI frame carrying b.
func tpiBits(b byte) []bool {
	bits := make([]bool, 0, tpiFrameBits)
	bits = append(bits, false) // start bit
	parity := false
	for i := 0; i < 8; i++ {
		bit := b&(1<<uint(i)) != 0
		bits = append(bits, bit)
		if bit {
			parity = !parity
		}
	}
	bits = append(bits, parity) // even parity
	bits = append(bits, true, true) // 2 stop bits
	return bits
}

// tpiTx sends one TPI frame carrying b. The reply is entirely uninteresting
// (TPI is half-duplex: the target isn't driving the line while we are) so
// it is discarded wholesale rather than bit-decoded.
func (s *Session) tpiTx(ctx context.Context, b byte) error {
	var raw []byte
	for _, bit := range tpiBits(b) {
		raw = s.encodeBit(raw, bit)
	}
	return s.sendAndDiscard(ctx, raw)
}

// tpiRx receives one TPI frame. It holds SDO/MOSI high (idle) for 16
// bit-times — two logical 0xFF bytes run through the ordinary SPI bit
// encoder, per the original firmware's ft245r_tpi_rx — while sampling
// whatever the target drives back on MISO (wired to SDI via the board's
// TPI strap), then searches the 16 samples for a start bit and decodes the
// following data/parity/stop bits.
func (s *Session) tpiRx(ctx context.Context) (byte, error) {
	var raw []byte
	raw = s.encodeByte(raw, 0xff)
	raw = s.encodeByte(raw, 0xff)
	raw = append(raw, s.padByte()) // trailing pad for the 16th bit's sample point

	if err := s.sendCtx(ctx, raw); err != nil {
		return 0, err
	}
	rawIn := make([]byte, len(raw))
	if err := s.recv(ctx, rawIn); err != nil {
		return 0, err
	}
	bits := s.decodeBits(rawIn, 0, 16)

	for start := 0; start+tpiFrameBits <= len(bits); start++ {
		if bits[start] {
			continue // idle, not a start bit
		}
		var data byte
		parity := false
		for i := 0; i < 8; i++ {
			if bits[start+1+i] {
				data |= 1 << uint(i)
				parity = !parity
			}
		}
		gotParity := bits[start+9]
		stop1, stop2 := bits[start+10], bits[start+11]
		if gotParity == parity && stop1 && stop2 {
			return data, nil
		}
		return 0, ErrTPIFraming
	}
	return 0, ErrTPIFraming
}

// tpiInitialize runs the TPI-specific bring-up sequence: verify the board's
// SDO/SDI strap link is intact, hold a 16-cycle SDO-high guard before the
// target's TPI interface is enabled, write the guard-time register, then
// read back TPIIR to confirm the target answers as a TPI part.
func (s *Session) tpiInitialize(ctx context.Context, part PartDescriptor) error {
	if !s.cfg.SkipTPILinkCheck {
		if err := s.tpiCheckLink(ctx); err != nil {
			return err
		}
	}
	// Hold SDO high for 16 SCK cycles: the guard time the target's TPI
	// state machine needs after reset before it will accept a command.
	if err := s.setPin(s.pins.MOSI, gpio.High); err != nil {
		return err
	}
	for i := 0; i < 16; i++ {
		if err := s.setPin(s.pins.SCK, false); err != nil {
			return err
		}
		if err := s.setPin(s.pins.SCK, true); err != nil {
			return err
		}
	}
	if err := s.tpiWriteCSS(ctx, tpiRegTPIPCR, part.TPIGuardTime); err != nil {
		return err
	}
	id, err := s.tpiReadCSS(ctx, tpiRegTPIIR)
	if err != nil {
		return err
	}
	if id != part.TPIIdent {
		return ErrTPILink
	}
	return nil
}

// TPI control/status space register addresses this package writes during
// bring-up. Only the two registers tpiInitialize needs are named; any
// other NVM/IO space access is the caller's (PartDescriptor-driven)
// responsibility via CmdTPI.
const (
	tpiRegTPIPCR = 0x02
	tpiRegTPIIR  = 0x0f
)

// TPI instruction opcodes, per the TPI physical/link layer (independent of
// any specific part).
const (
	tpiOpSLD  = 0x20 // space load
	tpiOpSST  = 0x60 // space store, direct
	tpiOpSSTP = 0x64 // space store, with CSS address
	tpiOpSKEY = 0xe0
	tpiOpSIN  = 0x10
	tpiOpSOUT = 0x90
)

func (s *Session) tpiWriteCSS(ctx context.Context, reg, v byte) error {
	if err := s.tpiTx(ctx, tpiOpSOUT|(reg<<1)); err != nil {
		return err
	}
	return s.tpiTx(ctx, v)
}

func (s *Session) tpiReadCSS(ctx context.Context, reg byte) (byte, error) {
	if err := s.tpiTx(ctx, tpiOpSIN|(reg<<1)); err != nil {
		return 0, err
	}
	return s.tpiRx(ctx)
}

// tpiCheckLink verifies SDO is shorted to SDI through the board's TPI strap:
// since TPI uses a single shared TPIDATA line, SDO and SDI must be linked
// together through a resistor, with SDI mirroring whatever SDO drives. It
// drives SDO low and confirms SDI reads back low, then drives SDO high and
// confirms SDI reads back high, sampling the pin state directly rather than
// clocking a byte through the SPI bit encoder.
func (s *Session) tpiCheckLink(ctx context.Context) error {
	if err := s.setPin(s.pins.MOSI, gpio.Low); err != nil {
		return err
	}
	low, err := s.readPin(s.pins.MISO)
	if err != nil {
		return err
	}
	if err := s.setPin(s.pins.MOSI, gpio.High); err != nil {
		return err
	}
	high, err := s.readPin(s.pins.MISO)
	if err != nil {
		return err
	}
	if low != gpio.Low || high != gpio.High {
		return ErrTPILink
	}
	return nil
}

// CmdTPI writes the TPI instruction in, byte by byte, then reads back len(out)
// response bytes. Most TPI NVM operations are a short fixed instruction
// sequence (SLD/SST-style); this is the general byte-in/byte-out primitive
// for PartDescriptor-driven higher-level code. Nothing in this package
// calls it; paged.go uses the ISP path only.
func (s *Session) CmdTPI(ctx context.Context, in []byte, out []byte) error {
	for _, b := range in {
		if err := s.tpiTx(ctx, b); err != nil {
			return err
		}
	}
	for i := range out {
		v, err := s.tpiRx(ctx)
		if err != nil {
			return err
		}
		out[i] = v
	}
	return nil
}

// tpiChipErase issues the TPI NVM controller's chip-erase sequence: select
// the NVM command register, write CHIP_ERASE, then poll the NVM bus busy
// flag until it clears, for at most 32 reads; if it is still set after
// that, it returns ErrTPILink.
func (s *Session) tpiChipErase(ctx context.Context, part PartDescriptor) error {
	const (
		nvmcmd      = 0x33
		nvmcsr      = 0x32
		chipErase   = 0x10
		nvmBusyBit  = 0x02
	)
	if err := s.tpiTx(ctx, tpiOpSOUT|(nvmcmd<<1)); err != nil {
		return err
	}
	if err := s.tpiTx(ctx, chipErase); err != nil {
		return err
	}
	for i := 0; i < 32; i++ {
		if err := s.tpiTx(ctx, tpiOpSIN|(nvmcsr<<1)); err != nil {
			return err
		}
		csr, err := s.tpiRx(ctx)
		if err != nil {
			return err
		}
		if csr&nvmBusyBit == 0 {
			return nil
		}
	}
	return ErrTPILink
}
