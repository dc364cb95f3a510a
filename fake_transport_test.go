// Copyright 2024 The ft245r Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ft245r

import (
	"context"
	"time"

	"periph.io/x/conn/v3/physic"
)

// fakeTransport is a software loopback of the synchronous bit-bang wire:
// MOSI is electrically shorted to MISO through ft245rCycles bytes of delay,
// exactly mirroring the real propagation delay extractByte/extractBits
// compensate for. It lets every codec test run without real hardware,
// mirroring the pack's d2xxtest.Fake style of a hand-rolled fake transport
// rather than a mocking framework.
type fakeTransport struct {
	mosi, miso Pin
	history    []byte
	queue      []byte
	last       byte
}

func newFakeTransport(mosi, miso Pin) *fakeTransport {
	return &fakeTransport{mosi: mosi, miso: miso}
}

func (f *fakeTransport) SetBitMode(mask byte, mode byte) error           { return nil }
func (f *fakeTransport) SetBaudRate(freq physic.Frequency) error         { return nil }
func (f *fakeTransport) SetLatencyTimer(d time.Duration) error           { return nil }
func (f *fakeTransport) Close() error                                   { return nil }

func (f *fakeTransport) Write(b []byte) (int, error) {
	for _, wb := range b {
		f.history = append(f.history, wb)
		idx := len(f.history) - 1
		rb := wb
		if idx >= ft245rCycles && f.history[idx-ft245rCycles]&f.mosi.Mask != 0 {
			rb |= f.miso.Mask
		} else {
			rb &^= f.miso.Mask
		}
		f.queue = append(f.queue, rb)
		f.last = wb
	}
	return len(b), nil
}

// ReadPins mirrors MOSI straight onto MISO with no propagation delay,
// matching a direct electrical short rather than the bit-bang echo stream's
// one-bit-time sampling lag.
func (f *fakeTransport) ReadPins() (byte, error) {
	rb := f.last
	if f.last&f.mosi.Mask != 0 {
		rb |= f.miso.Mask
	} else {
		rb &^= f.miso.Mask
	}
	return rb, nil
}

func (f *fakeTransport) Read(b []byte) (int, error) {
	n := copy(b, f.queue)
	f.queue = f.queue[n:]
	return n, nil
}

func (f *fakeTransport) ReadAll(ctx context.Context, b []byte) (int, error) {
	return f.Read(b)
}
