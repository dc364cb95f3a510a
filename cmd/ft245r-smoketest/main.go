// Copyright 2024 The ft245r Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// ft245r-smoketest opens an FTDI-attached AVR programmer and runs Initialize
// against it (and, with -erase, ChipErase, which re-initializes the part),
// reporting pass or fail.
// It exists to exercise the ft245r package from outside, the way a real
// programmer front-end would; it does not parse a part database or accept a
// memory image, both of which are a caller's concern.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/go-avr/ft245r"
)

// defaultPins is a common DBus wiring for FT232R-based AVR programmer
// boards: SCK/MOSI/MISO on DBus0-2, RESET on DBus4 (active low through the
// board's inverting buffer), VCC and the enable buffer on DBus5-6.
var defaultPins = ft245r.Pins{
	SCK:   ft245r.Pin{Mask: 0x01},
	MOSI:  ft245r.Pin{Mask: 0x02},
	MISO:  ft245r.Pin{Mask: 0x04},
	RESET: ft245r.Pin{Mask: 0x10, Invert: true},
	VCC:   ft245r.Pin{Mask: 0x20},
	BUFF:  ft245r.Pin{Mask: 0x40, Invert: true},
}

// atmelISP is the standard AVR ISP programming-enable/chip-erase opcode
// sequence, per the ATmega/ATtiny datasheets' serial programming
// instruction set; it is not specific to any one part.
var atmelISP = ft245r.PartDescriptor{
	ProgramEnable:  [4]byte{0xac, 0x53, 0x00, 0x00},
	PollIndex:      2,
	PollValue:      0x53,
	ChipEraseCmd:   [4]byte{0xac, 0x80, 0x00, 0x00},
	ChipEraseDelay: 20 * time.Millisecond,
}

func mainImpl() error {
	port := flag.String("port", "usb:ft0", `device port, e.g. "usb:ft0" or an 8-character serial`)
	bitclockKHz := flag.Uint("bitclock-khz", 0, "SCK frequency in kHz; 0 selects the package default")
	erase := flag.Bool("erase", false, "chip-erase the target after a successful program-enable")
	timeout := flag.Duration("timeout", 5*time.Second, "overall operation timeout")
	flag.Parse()
	if flag.NArg() != 0 {
		return errors.New("unexpected argument, try -help")
	}

	cfg := ft245r.Config{Port: *port, Pins: defaultPins}
	if *bitclockKHz > 0 {
		cfg.Bitclock = physic.Frequency(*bitclockKHz) * physic.KiloHertz
	}

	s, err := ft245r.Open(cfg)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := s.Powerup(); err != nil {
		return fmt.Errorf("powerup: %w", err)
	}
	if err := s.Enable(); err != nil {
		return fmt.Errorf("enable: %w", err)
	}
	defer s.Disable()

	if err := s.Initialize(ctx, atmelISP); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	fmt.Println("program enable: OK")

	if *erase {
		if err := s.ChipErase(ctx, atmelISP); err != nil {
			return fmt.Errorf("chip erase: %w", err)
		}
		fmt.Println("chip erase: OK")
	}
	return nil
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "ft245r-smoketest: %s.\n", err)
		os.Exit(1)
	}
}
