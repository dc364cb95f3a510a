// Copyright 2024 The ft245r Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ft245r

import "periph.io/x/conn/v3/gpio"

// ft245rCycles is the number of raw bus bytes one logical bit occupies at
// normal pulse width: one byte for the setup (SCK low) phase and one for
// the clock (SCK high) phase. Some targets need a wider SCK pulse than a
// single USB-clocked byte-time provides; Config.SlowPulseWidth doubles
// this at runtime (see cycles) by widening every phase uniformly rather
// than special-casing any one part.
const ft245rCycles = 2

// phaseReps returns how many raw bytes make up a single bit phase (SCK low
// or SCK high): 1 normally, 2 when SlowPulseWidth widens the pulse.
func (c Config) phaseReps() int {
	if c.SlowPulseWidth {
		return 2
	}
	return 1
}

// cycles is the number of raw bytes making up one full bit-time (both
// phases), used as the propagation-delay offset by extractByte/extractBits.
func (s *Session) cycles() int {
	return ft245rCycles * s.cfg.phaseReps()
}

// byteSpan is the number of raw bus bytes one encoded 8-bit byte occupies.
func (s *Session) byteSpan() int {
	return 8 * s.cycles()
}

// encodeByte appends one byte's worth of raw bus bytes to buf, using this
// session's current output register and pulse-width setting.
func (s *Session) encodeByte(buf []byte, v byte) []byte {
	return encodeByte(buf, s.out, s.pins.SCK, s.pins.MOSI, v, s.cfg.phaseReps())
}

// encodeBit appends one bit's worth of raw bus bytes to buf.
func (s *Session) encodeBit(buf []byte, bit bool) []byte {
	return addBit(buf, s.out, s.pins.SCK, s.pins.MOSI, bit, s.cfg.phaseReps())
}

// decodeByte decodes one byte sampled on MISO starting at raw buffer offset
// off, using this session's pulse-width setting.
func (s *Session) decodeByte(buf []byte, off int) byte {
	return extractByte(buf, off, s.pins.MISO, s.cycles())
}

// decodeBits decodes n consecutive bits sampled on MISO starting at raw
// buffer offset off.
func (s *Session) decodeBits(buf []byte, off int, n int) []bool {
	return extractBits(buf, off, s.pins.MISO, n, s.cycles())
}

// padByte is the single trailing raw byte appended after an encoded
// command to supply its last bit's sample point (see extractByte's
// propagation-delay offset). It is always a literal zero, not the live
// output register: the original firmware writes this byte as a bare 0
// regardless of the current state of RESET/VCC/BUFF, so a command's pad
// byte never re-asserts those lines.
func (s *Session) padByte() byte {
	return 0
}

// Pin identifies a single FTDI DBus line by its bit mask within
// the synchronous bit-bang output/input register, plus whether the signal
// is active-low on the board (Invert). Only the low 8 bits of the port are
// addressable in synchronous bit-bang mode.
type Pin struct {
	Mask   byte
	Invert bool
}

// isSet reports whether p is wired to a real DBus bit. A zero mask is a
// documented no-op target: not every logical pin (an LED, VCC, or BUFF
// line) needs to be wired on every board.
func (p Pin) isSet() bool { return p.Mask != 0 }

// Pins names every logical signal this package drives or samples on the
// FTDI DBus. Fields left at the zero Pin are silently ignored by setOutput,
// matching the original firmware's pin helper.
type Pins struct {
	SCK   Pin
	MOSI  Pin
	MISO  Pin
	RESET Pin
	VCC   Pin
	BUFF  Pin

	LEDRdy Pin
	LEDErr Pin
	LEDPgm Pin
	LEDVfy Pin
}

// outputMask is the DDR value (1 = output) for every pin this package ever
// drives. MISO is the only input.
func (p Pins) outputMask() byte {
	var m byte
	for _, pin := range []Pin{p.SCK, p.MOSI, p.RESET, p.VCC, p.BUFF, p.LEDRdy, p.LEDErr, p.LEDPgm, p.LEDVfy} {
		m |= pin.Mask
	}
	return m
}

// setOutput returns reg with pin's bit set to the physical level that
// asserts the logical level, or reg unchanged if pin is not wired to a real
// DBus bit. pin.Invert flips the physical sense for active-low signals
// (many RESET/BUFF/VCC lines on AVR programmer boards are wired this way).
func setOutput(reg byte, pin Pin, level gpio.Level) byte {
	if !pin.isSet() {
		return reg
	}
	phys := level
	if pin.Invert {
		phys = !phys
	}
	if phys {
		return reg | pin.Mask
	}
	return reg &^ pin.Mask
}

// readInput reports the logical level sampled on pin's bit within reg,
// undoing pin.Invert so callers always see the asserted/deasserted sense
// rather than the board's physical wiring.
func readInput(reg byte, pin Pin) gpio.Level {
	v := reg&pin.Mask != 0
	if pin.Invert {
		v = !v
	}
	return gpio.Level(v)
}

// addBit appends the 2*reps bus bytes (reps with SCK low, then reps with SCK
// high) that drive a single output bit while holding every other
// currently-set output pin at its last known level. idle is the output
// register value to hold between bits (SCK low); it is not modified.
//
// mode selects clock polarity: for SPI mode 0/2, SCK rises through the
// sample edge; for mode 1/3, SCK falls through it. The FT245R/avrdude
// programmer only ever uses mode 0, so this package hardcodes the mode-0/2
// shape (SCK low, bit value latched, then SCK high).
func addBit(buf []byte, idle byte, sck, mosi Pin, bit bool, reps int) []byte {
	lo := setOutput(idle, mosi, gpio.Level(bit))
	lo = setOutput(lo, sck, gpio.Low)
	hi := setOutput(lo, sck, gpio.High)
	for i := 0; i < reps; i++ {
		buf = append(buf, lo)
	}
	for i := 0; i < reps; i++ {
		buf = append(buf, hi)
	}
	return buf
}

// encodeByte appends the raw bus bytes (8 bits x 2*reps bytes) that drive v
// out MOSI, MSB first, while holding idle's other bits steady.
func encodeByte(buf []byte, idle byte, sck, mosi Pin, v byte, reps int) []byte {
	for i := 7; i >= 0; i-- {
		buf = addBit(buf, idle, sck, mosi, v&(1<<uint(i)) != 0, reps)
	}
	return buf
}

// extractByte decodes the byte sampled on MISO starting at raw buffer offset
// off. Per the datasheet's propagation delay, the bit sampled for position i
// lives at off + cycles + i*cycles, i.e. one full bit-time after the bit's
// first raw byte (the first byte of the following bit), where cycles is
// the raw-byte width of one bit-time (2,
// doubled to 4 when SlowPulseWidth is set). Bits are MSB first to match
// encodeByte.
func extractByte(buf []byte, off int, miso Pin, cycles int) byte {
	var v byte
	for i := 0; i < 8; i++ {
		pos := off + cycles + i*cycles
		if readInput(buf[pos], miso) {
			v |= 1 << uint(7-i)
		}
	}
	return v
}

// extractBits decodes n consecutive time-ordered bits sampled on MISO
// starting at raw buffer offset off, using the same one-bit-time
// propagation delay as extractByte. Unlike extractByte it does not assume
// the bits form a byte or any particular order, which is what TPI's
// bit-level start-bit search needs.
func extractBits(buf []byte, off int, miso Pin, n int, cycles int) []bool {
	bits := make([]bool, n)
	for i := 0; i < n; i++ {
		pos := off + cycles + i*cycles
		bits[i] = readInput(buf[pos], miso)
	}
	return bits
}
