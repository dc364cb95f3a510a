// Copyright 2024 The ft245r Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ft245r

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// sleepCtx sleeps for d, or until ctx is canceled, whichever comes first.
// A non-positive d returns immediately.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// fifoMin is the usable size of the FTDI chip's host-side receive FIFO.
// The flow controller never lets more than this many bytes be in flight
// unread, to guarantee a drain is always possible without deadlocking a
// pipelined request sequence.
const fifoMin = 128

// reqOutstanding is the maximum number of in-flight pipelined paged-access
// requests before the queue is drained down (see queue.go/paged.go).
const reqOutstanding = 10

// Bit-clock constants, named exactly as in the hardware's bit-bang mode:
// SetBaudRate's argument is multiplied by 16 internally by the chip to
// produce the SCK bit-time, so the maximum and default SCK rates below are
// expressed as the post-multiplication (effective) frequency.
const (
	maxBitclock     = 750 * physic.KiloHertz
	defaultBitclock = 150 * physic.KiloHertz
)

// Config describes how to open a Session: which FTDI device to use and at
// what rate to run it. The core package never parses command-line flags;
// callers (e.g. cmd/ft245r-smoketest) own translating user input into a
// Config.
type Config struct {
	// Port selects the device: "usb:ft<digits>" names a D2XX enumeration
	// index directly (e.g. "usb:ft0"), "usb:" followed by nothing selects
	// index 0, and "usb:" followed by exactly 8 characters is taken as an
	// FTDI serial number. Any other form is rejected.
	Port string

	// VID/PID/Product/Serial further qualify which device to open when Port
	// alone is ambiguous; the zero value of each means "don't filter on
	// this".
	VID, PID uint16
	Product  string
	Serial   string

	// Bitclock is the target SCK rate. Zero selects defaultBitclock.
	Bitclock physic.Frequency

	// Pins wires the logical SCK/MOSI/MISO/RESET/VCC/BUFF/LED signals to
	// FTDI DBus bits.
	Pins Pins

	// SlowPulseWidth works around chips whose SCK pulse is too narrow for
	// slow targets by doubling every bit's cycle count in software instead
	// of relying on a build-time constant, widening every bit's cycle count
	// in software for targets whose SCK pulse would otherwise be too narrow.
	SlowPulseWidth bool

	// SkipTPILinkCheck disables the TPI strap-link integrity verification
	// during Initialize, for boards whose link wiring is known-good but
	// doesn't pass the automatic check.
	SkipTPILinkCheck bool
}

// index parses the "usb:ft<digits>" form of Port, returning the
// D2XX device index. The original programmer's parser matched this form
// with an inverted strncmp condition that actually accepted far more than
// intended; this implementation requires the literal "ft" prefix.
func (c Config) index() (int, error) {
	const prefix = "usb:ft"
	if !strings.HasPrefix(c.Port, prefix) {
		return 0, fmt.Errorf("ft245r: invalid port %q: want \"usb:ft<digits>\"", c.Port)
	}
	digits := c.Port[len(prefix):]
	if digits == "" {
		return 0, fmt.Errorf("ft245r: invalid port %q: missing index", c.Port)
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("ft245r: invalid port %q: %w", c.Port, err)
	}
	return n, nil
}

// portSelectorKind distinguishes the two ways Port can name a device: a
// bare D2XX enumeration index, or an 8-character FTDI serial number.
type portSelectorKind int

const (
	portByIndex portSelectorKind = iota
	portBySerial
)

// portSelector is the parsed form of Config.Port: "usb:" followed by
// either an 8-character serial token, "ft<digits>", or nothing (meaning
// index 0). Anything else is rejected.
type portSelector struct {
	kind   portSelectorKind
	index  int
	serial string
}

// parsePort parses c.Port into a portSelector.
func (c Config) parsePort() (portSelector, error) {
	const prefix = "usb:"
	if !strings.HasPrefix(c.Port, prefix) {
		return portSelector{}, fmt.Errorf("ft245r: invalid port %q: want a \"usb:\" prefix", c.Port)
	}
	rest := c.Port[len(prefix):]
	switch {
	case rest == "":
		return portSelector{kind: portByIndex, index: 0}, nil
	case strings.HasPrefix(rest, "ft"):
		n, err := c.index()
		if err != nil {
			return portSelector{}, err
		}
		return portSelector{kind: portByIndex, index: n}, nil
	case len(rest) == 8:
		return portSelector{kind: portBySerial, serial: rest}, nil
	default:
		return portSelector{}, fmt.Errorf("ft245r: invalid port %q: want \"usb:ft<digits>\" or an 8-character serial number", c.Port)
	}
}

func (c Config) bitclock() physic.Frequency {
	if c.Bitclock == 0 {
		return defaultBitclock
	}
	if c.Bitclock > maxBitclock {
		return maxBitclock
	}
	return c.Bitclock
}

// Session is a single open connection to an FTDI-attached AVR programmer.
// It is not safe for concurrent use: every operation is blocking and
// assumes exclusive ownership of the transport, matching the
// single-threaded concurrency model this package is designed around.
type Session struct {
	cfg Config
	t   Transport

	pins Pins
	ddr  byte // direction register: 1 = output
	out  byte // last driven output register value

	rx      ring
	pending int // bytes written to the chip, not yet accounted for by the flow controller
	discard int // bytes at the head of the pipe the caller does not want returned

	queue requestQueue

	fragRaw     []byte
	fragDecodes [fragmentCmds]decodeFunc
	fragN       int

	closed bool
}

// Open opens the FTDI device named by cfg.Port (or VID/PID/Product/Serial),
// switches it to synchronous bit-bang mode at cfg.bitclock, and returns a
// ready-to-use Session. The caller must Close it.
func Open(cfg Config) (*Session, error) {
	t, err := openD2XX(cfg)
	if err != nil {
		return nil, err
	}
	return newSession(cfg, t)
}

// newSession wires a Session around an already-open Transport; it is split
// out from Open so tests can supply a fakeTransport.
func newSession(cfg Config, t Transport) (*Session, error) {
	s := &Session{cfg: cfg, t: t, pins: cfg.Pins}
	s.ddr = cfg.Pins.outputMask()
	if err := t.SetBitMode(s.ddr, bitModeSyncBitbang); err != nil {
		_ = t.Close()
		return nil, wrapErr("open", err)
	}
	if err := t.SetBaudRate(cfg.bitclock() / 16); err != nil {
		_ = t.Close()
		return nil, wrapErr("open", err)
	}
	if err := t.SetLatencyTimer(time.Millisecond); err != nil {
		_ = t.Close()
		return nil, wrapErr("open", err)
	}
	// Drive every output pin low before anything else touches the bus.
	s.out = 0
	if err := s.emit(); err != nil {
		_ = t.Close()
		return nil, err
	}
	if err := s.drain(); err != nil {
		_ = t.Close()
		return nil, err
	}
	return s, nil
}

// emit writes the current output register once, with no clocked bits, so
// static pin levels (RESET, VCC, BUFF, LEDs) take effect immediately. Its
// echo carries no sample anyone needs, so it is marked for discard.
func (s *Session) emit() error {
	return s.sendAndDiscard(context.Background(), []byte{s.out})
}

// Close idles every output pin, returns DBus to synchronous bit-bang with
// all pins as inputs, and releases the underlying transport. Close is
// idempotent.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.t.SetBitMode(0, bitModeSyncBitbang)
	_ = s.t.SetBitMode(0, bitModeReset)
	return s.t.Close()
}

func (s *Session) checkOpen() error {
	if s.closed {
		return ErrClosed
	}
	return nil
}

// setPin drives a logical pin to level and writes the change out
// immediately. Pins with a zero Mask are silently ignored.
func (s *Session) setPin(pin Pin, level gpio.Level) error {
	s.out = setOutput(s.out, pin, level)
	return s.emit()
}

// readPin samples pin's live logical level directly off the transport,
// independent of anything clocked through the bit-bang write/echo stream.
func (s *Session) readPin(pin Pin) (gpio.Level, error) {
	reg, err := s.t.ReadPins()
	if err != nil {
		return gpio.Low, err
	}
	return readInput(reg, pin), nil
}

// Enable de-asserts RESET, briefly settles, then turns the buffer chip on.
// RESET starts (and is left, between sessions) asserted, so the AVR is held
// in reset until the buffer is live and the programmer is ready to drive
// the lines itself; de-asserting first and settling before enabling the
// buffer avoids a moment where both the AVR and the programmer drive the
// bus at once.
func (s *Session) Enable() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.setPin(s.pins.RESET, gpio.High); err != nil {
		return err
	}
	time.Sleep(time.Microsecond)
	if err := s.setPin(s.pins.BUFF, gpio.Low); err != nil {
		return err
	}
	return nil
}

// Disable turns the buffer chip off (BUFF driven high), releasing the
// target's lines. VCC is left as it is; Powerdown removes it.
func (s *Session) Disable() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.setPin(s.pins.BUFF, gpio.High)
}

// Powerup asserts VCC to the target and waits for its supply to settle.
func (s *Session) Powerup() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.setPin(s.pins.VCC, gpio.High); err != nil {
		return err
	}
	time.Sleep(100 * time.Microsecond)
	return nil
}

// Powerdown removes VCC from the target.
func (s *Session) Powerdown() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.setPin(s.pins.VCC, gpio.Low)
}

// Initialize applies power with SCK and RESET both low, pulses RESET with a
// positive edge to guarantee a clean reset even if SCK wasn't held low
// through power-up, then runs ProgramEnable (ISP) or the TPI bring-up
// sequence (TPI), per part.UsesTPI.
func (s *Session) Initialize(ctx context.Context, part PartDescriptor) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.setPin(s.pins.SCK, gpio.Low); err != nil {
		return err
	}
	if err := s.Powerup(); err != nil {
		return err
	}
	if err := s.setPin(s.pins.RESET, gpio.Low); err != nil {
		return err
	}
	time.Sleep(5 * time.Millisecond)
	if err := s.setPin(s.pins.RESET, gpio.High); err != nil {
		return err
	}
	time.Sleep(5 * time.Millisecond)
	if err := s.setPin(s.pins.RESET, gpio.Low); err != nil {
		return err
	}
	time.Sleep(20 * time.Millisecond)
	if part.UsesTPI {
		return s.tpiInitialize(ctx, part)
	}
	return s.ProgramEnable(ctx, part)
}

// ProgramEnable issues part.ProgramEnable up to 4 times, pulsing RESET
// between attempts, until the response byte at PollIndex equals PollValue.
// On the final attempt the pipe is fully drained first, so a prior failed
// attempt's stale bytes cannot masquerade as this attempt's response.
func (s *Session) ProgramEnable(ctx context.Context, part PartDescriptor) error {
	const attempts = 4
	var res [4]byte
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt == attempts-1 {
			if err := s.drain(); err != nil {
				return err
			}
		}
		if err := s.Cmd(ctx, part.ProgramEnable, res[:]); err != nil {
			return err
		}
		if res[part.PollIndex] == part.PollValue {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		if err := s.setPin(s.pins.RESET, gpio.High); err != nil {
			return err
		}
		time.Sleep(time.Millisecond)
		if err := s.setPin(s.pins.RESET, gpio.Low); err != nil {
			return err
		}
		time.Sleep(20 * time.Millisecond)
	}
	return ErrProgramEnable
}

// ChipErase issues the part's chip-erase command (ISP) or TPI NVM
// controller chip-erase sequence (TPI), waits the part's erase delay, and
// re-initializes the part, matching the original programmer's behavior of
// never leaving the target in a freshly-erased-but-uninitialized state.
func (s *Session) ChipErase(ctx context.Context, part PartDescriptor) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if part.UsesTPI {
		if err := s.tpiChipErase(ctx, part); err != nil {
			return err
		}
	} else {
		var res [4]byte
		if err := s.Cmd(ctx, part.ChipEraseCmd, res[:]); err != nil {
			return err
		}
	}
	time.Sleep(part.ChipEraseDelay)
	return s.Initialize(ctx, part)
}
