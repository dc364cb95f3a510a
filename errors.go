// Copyright 2024 The ft245r Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ft245r

import (
	"errors"
	"fmt"
)

// Sentinel errors callers can match with errors.Is.
var (
	// ErrProgramEnable is returned when the target did not accept the ISP
	// program-enable sequence after the retry budget was exhausted.
	ErrProgramEnable = errors.New("ft245r: program enable failed")

	// ErrTPIFraming is returned when a byte received over TPI does not carry
	// a valid start bit, stop bits, or parity.
	ErrTPIFraming = errors.New("ft245r: tpi framing error")

	// ErrTPILink is returned when the TPI strap-link integrity check (SDO
	// shorted to SDI) fails, when TPIIR does not read back the expected
	// identification value, or when a TPI chip erase's NVM busy flag does
	// not clear.
	ErrTPILink = errors.New("ft245r: tpi link check failed")

	// ErrUnsupportedMemory is returned by PagedWrite/PagedLoad when the
	// requested Memory is neither flash nor EEPROM.
	ErrUnsupportedMemory = errors.New("ft245r: unsupported memory kind")

	// ErrClosed is returned by Enable, Disable, Powerup, Powerdown,
	// Initialize, ChipErase, PagedWrite and PagedLoad when called after
	// Close. Cmd, CmdTPI and ProgramEnable do not check for it.
	ErrClosed = errors.New("ft245r: session closed")

	// ErrDeviceNotFound is returned by Open when no attached D2XX device
	// matches the requested VID/PID/Serial filter.
	ErrDeviceNotFound = errors.New("no matching device found")

	// errInvalidResLen is an internal precondition check: callers of Cmd
	// must supply a 4-byte response buffer.
	errInvalidResLen = errors.New("response buffer must be 4 bytes")
)

// wrapErr prefixes err with the failing operation, matching the "ft245r: "
// convention used throughout this package's error messages.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("ft245r: %s: %w", op, err)
}
