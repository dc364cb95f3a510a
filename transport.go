// Copyright 2024 The ft245r Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ft245r

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/d2xx"
)

// bit-bang modes, as passed to SetBitMode. Only the synchronous mode is used
// by this package; bitModeReset is used to flush and idle the chip at Close.
const (
	bitModeReset       = 0x00
	bitModeSyncBitbang = 0x04
)

// Transport is the external collaborator that moves raw bytes to and from
// the FTDI chip. It is the minimal surface this package needs from a USB
// D2XX handle; production code uses d2xxTransport, tests use a fake that
// loops SDO back to SDI.
type Transport interface {
	// SetBitMode puts the chip into synchronous bit-bang mode with the given
	// direction mask (1 bit = output).
	SetBitMode(mask byte, mode byte) error

	// SetBaudRate sets the synchronous bit-bang clock. The effective SCK
	// bit-time is 16x this value, per the FT232R/FT245R bit-bang datasheet.
	SetBaudRate(f physic.Frequency) error

	// SetLatencyTimer bounds how long the chip buffers fewer-than-full USB
	// packets before flushing them to the host.
	SetLatencyTimer(d time.Duration) error

	// Write blocks until all of b has been accepted by the chip's output
	// queue.
	Write(b []byte) (int, error)

	// Read performs a single non-blocking read: it returns whatever is
	// already queued, which may be less than len(b), including zero.
	Read(b []byte) (int, error)

	// ReadAll blocks, issuing repeated non-blocking reads, until b is fully
	// populated or ctx is done.
	ReadAll(ctx context.Context, b []byte) (int, error)

	// ReadPins samples the live state of every DBus pin directly, independent
	// of the synchronous-bitbang write/echo stream. Used where a single
	// instantaneous pin read is needed (the TPI SDO/SDI strap-link check)
	// rather than a byte clocked through the bit encoder.
	ReadPins() (byte, error)

	// Close releases the underlying USB handle.
	Close() error
}

// toErr converts a d2xx.Err into a Go error, or nil for the zero (success)
// value, matching periph's ftdi package's own toErr idiom (d2xx.Err is a
// raw status code, not a Go error, so it is rendered via its String method).
func toErr(op string, e d2xx.Err) error {
	if e == 0 {
		return nil
	}
	return fmt.Errorf("ft245r: %s: %s", op, e.String())
}

// d2xxTransport adapts a periph.io/x/d2xx handle to Transport.
type d2xxTransport struct {
	h d2xx.Handle
}

// openD2XX opens a D2XX handle by the criteria in Config and wraps it as a
// Transport. periph.io/x/d2xx only opens devices by their enumeration index
// (d2xx.Open(i)); when Config names a VID/PID/Serial instead of a bare
// "usb:ft<digits>" index, every present device is opened in turn and
// inspected via GetDeviceInfo (and, for a Serial match, an EEPROM read)
// until one matches, mirroring periph's own open(opener, i) retry shape: try
// Init, and on failure reset the device once and retry before giving up.
func openD2XX(cfg Config) (*d2xxTransport, error) {
	index, err := resolveIndex(cfg)
	if err != nil {
		return nil, err
	}
	h, e := d2xx.Open(index)
	if e != 0 {
		return nil, toErr("Open", e)
	}
	t := &d2xxTransport{h: wrapDebug(h)}
	if err := t.init(); err != nil {
		if e := h.ResetDevice(); e != 0 {
			_ = h.Close()
			return nil, toErr("open: reset after failed init", e)
		}
		if err := t.init(); err != nil {
			_ = h.Close()
			return nil, err
		}
	}
	return t, nil
}

// resolveIndex picks the D2XX enumeration index to open, per Config.Port's
// grammar (see portSelector). A bare "usb:ft<digits>" or "usb:" port with no
// VID/PID/Serial filter names the D2XX enumeration index directly; an
// 8-character serial token, or any VID/PID filter, instead enumerates every
// present device, opening each just long enough to read its identity, and
// picks the index-th match (0 for a serial-only selector) among devices
// satisfying the filter — matching libftdi's ftdi_usb_open_desc2 semantics,
// where index selects among already-VID/PID/serial-filtered candidates
// rather than the raw enumeration order.
func resolveIndex(cfg Config) (int, error) {
	sel, err := cfg.parsePort()
	if err != nil {
		return 0, err
	}
	serial := cfg.Serial
	if sel.kind == portBySerial {
		serial = sel.serial
	}
	if cfg.VID == 0 && cfg.PID == 0 && serial == "" && cfg.Product == "" {
		return sel.index, nil
	}
	want := 0
	if sel.kind == portByIndex {
		want = sel.index
	}
	num, e := d2xx.CreateDeviceInfoList()
	if e != 0 {
		return 0, toErr("CreateDeviceInfoList", e)
	}
	found := 0
	for i := 0; i < num; i++ {
		h, e := d2xx.Open(i)
		if e != 0 {
			continue
		}
		match := deviceMatches(h, cfg.VID, cfg.PID, cfg.Product, serial)
		_ = h.Close()
		if !match {
			continue
		}
		if found == want {
			return i, nil
		}
		found++
	}
	return 0, wrapErr("resolveIndex", ErrDeviceNotFound)
}

// deviceMatches reports whether the open handle h satisfies the given
// VID/PID/Product/Serial filter. A zero VID/PID or empty Product/Serial
// means "don't filter on this field", matching the original programmer's
// "first match wins" semantics.
func deviceMatches(h d2xx.Handle, vid, pid uint16, product, serial string) bool {
	devType, gotVID, gotDID, e := h.GetDeviceInfo()
	if e != 0 {
		return false
	}
	if vid != 0 && vid != gotVID {
		return false
	}
	if pid != 0 && pid != gotDID {
		return false
	}
	if product == "" && serial == "" {
		return true
	}
	ee := d2xx.EEPROM{Raw: make([]byte, 256)}
	if e := h.EEPROMRead(uint32(devType), &ee); e != 0 {
		return false
	}
	if product != "" && ee.Desc != product {
		return false
	}
	if serial != "" && ee.Serial != serial {
		return false
	}
	return true
}

// init performs the one-time, non-bitbang-specific setup every open needs:
// maximum USB packet size, generous I/O timeouts, and flow control off
// (this package manages its own FIFO headroom, see flow.go).
func (t *d2xxTransport) init() error {
	if e := t.h.SetUSBParameters(65536, 65536); e != 0 {
		return toErr("SetUSBParameters", e)
	}
	if e := t.h.SetTimeouts(15000, 15000); e != 0 {
		return toErr("SetTimeouts", e)
	}
	if e := t.h.SetFlowControl(); e != 0 {
		return toErr("SetFlowControl", e)
	}
	if e := t.h.SetLatencyTimer(1); e != 0 {
		return toErr("SetLatencyTimer", e)
	}
	return nil
}

func (t *d2xxTransport) SetBitMode(mask byte, mode byte) error {
	return toErr("SetBitMode", t.h.SetBitMode(mask, mode))
}

func (t *d2xxTransport) SetBaudRate(f physic.Frequency) error {
	return toErr("SetBaudRate", t.h.SetBaudRate(uint32(f/physic.Hertz)))
}

func (t *d2xxTransport) SetLatencyTimer(d time.Duration) error {
	ms := int(d / time.Millisecond)
	if ms < 1 {
		ms = 1
	}
	return toErr("SetLatencyTimer", t.h.SetLatencyTimer(ms))
}

func (t *d2xxTransport) Write(b []byte) (int, error) {
	n, e := t.h.Write(b)
	return n, toErr("Write", e)
}

// Read is non-blocking: it first asks the chip's queue status, then reads
// only what is already available. A FIFO-aware caller (flow.go) relies on
// this never blocking, since blocking here could deadlock a pipelined
// request sequence waiting on its own unread output.
func (t *d2xxTransport) Read(b []byte) (int, error) {
	avail, e := t.h.GetQueueStatus()
	if e != 0 {
		return 0, toErr("GetQueueStatus", e)
	}
	if avail == 0 {
		return 0, nil
	}
	if int(avail) < len(b) {
		b = b[:avail]
	}
	n, e := t.h.Read(b)
	return n, toErr("Read", e)
}

func (t *d2xxTransport) ReadPins() (byte, error) {
	v, e := t.h.GetBitMode()
	return v, toErr("GetBitMode", e)
}

func (t *d2xxTransport) ReadAll(ctx context.Context, b []byte) (int, error) {
	total := 0
	for total < len(b) {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}
		n, err := t.Read(b[total:])
		if err != nil {
			return total, err
		}
		total += n
		if n == 0 {
			time.Sleep(time.Millisecond)
		}
	}
	return total, nil
}

func (t *d2xxTransport) Close() error {
	return toErr("Close", t.h.Close())
}
