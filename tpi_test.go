// Copyright 2024 The ft245r Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ft245r

import (
	"context"
	"testing"
	"time"

	"periph.io/x/conn/v3/physic"
)

func TestTPIFrameBits(t *testing.T) {
	bits := tpiBits(0x80)
	if len(bits) != tpiFrameBits {
		t.Fatalf("len(bits) = %d, want %d", len(bits), tpiFrameBits)
	}
	if bits[0] {
		t.Fatal("start bit must be 0")
	}
	if !bits[10] || !bits[11] {
		t.Fatal("both stop bits must be 1")
	}
}

// scriptedTransport ignores what is written and hands back the next bytes of
// a fixed, scripted reply on every read, as many as fit, regardless of
// transaction boundaries. It models the TPI target actively driving MISO independently
// of whatever the host holds on MOSI — something a pure MOSI/MISO loopback
// cannot represent, since TPI's physical layer is half-duplex.
type scriptedTransport struct {
	reply []byte
	pos   int
}

func (s *scriptedTransport) SetBitMode(mask byte, mode byte) error   { return nil }
func (s *scriptedTransport) SetBaudRate(f physic.Frequency) error    { return nil }
func (s *scriptedTransport) SetLatencyTimer(d time.Duration) error   { return nil }
func (s *scriptedTransport) Close() error                            { return nil }

func (s *scriptedTransport) Write(b []byte) (int, error) { return len(b), nil }

func (s *scriptedTransport) ReadPins() (byte, error) { return 0, nil }

func (s *scriptedTransport) Read(b []byte) (int, error) {
	n := copy(b, s.reply[s.pos:])
	s.pos += n
	return n, nil
}

func (s *scriptedTransport) ReadAll(ctx context.Context, b []byte) (int, error) {
	return s.Read(b)
}

// encodeMISOFrame builds the 33-byte raw buffer tpiRx's recv call expects,
// with the 16 time-ordered bits sampled by extractBits (at raw buffer
// positions 2, 4, ..., 32) set to the TPI frame for v, starting at bit
// position 0.
func encodeMISOFrame(miso Pin, v byte) []byte {
	bits := tpiBits(v)
	raw := make([]byte, 33)
	for i, bit := range bits {
		if bit {
			raw[2+2*i] = miso.Mask
		}
	}
	return raw
}

func TestTPIRxDecodesFrame(t *testing.T) {
	pins := testPins()
	// One byte answers newSession's initial pin write; the frame is
	// scripted only after that write has been drained, so the drain
	// cannot swallow it.
	script := &scriptedTransport{reply: []byte{0}}
	cfg := Config{Port: "usb:ft0", Pins: pins}
	s, err := newSession(cfg, script)
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}
	script.reply, script.pos = encodeMISOFrame(pins.MISO, 0x80), 0
	got, err := s.tpiRx(context.Background())
	if err != nil {
		t.Fatalf("tpiRx: %v", err)
	}
	if got != 0x80 {
		t.Fatalf("tpiRx = %#02x, want 0x80", got)
	}
}

func TestTPITxDiscardsItsOwnReply(t *testing.T) {
	s := newTestSession(t)
	if err := s.tpiTx(context.Background(), 0x42); err != nil {
		t.Fatalf("tpiTx: %v", err)
	}
	if s.discard != tpiFrameBits*ft245rCycles {
		t.Fatalf("discard = %d, want %d", s.discard, tpiFrameBits*ft245rCycles)
	}
}
