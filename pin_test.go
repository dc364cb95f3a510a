// Copyright 2024 The ft245r Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ft245r

import "testing"

func TestOutputMaskIgnoresUnsetPins(t *testing.T) {
	p := Pins{SCK: Pin{Mask: 0x01}, MOSI: Pin{Mask: 0x02}}
	if got, want := p.outputMask(), byte(0x03); got != want {
		t.Fatalf("outputMask() = %#02x, want %#02x", got, want)
	}
}

func TestSetOutputNoOpOnZeroMask(t *testing.T) {
	var reg byte = 0xff
	if got := setOutput(reg, Pin{}, false); got != reg {
		t.Fatalf("setOutput with zero-mask pin changed register: got %#02x want %#02x", got, reg)
	}
}

func TestEncodeByteLength(t *testing.T) {
	sck, mosi := Pin{Mask: 0x01}, Pin{Mask: 0x02}
	raw := encodeByte(nil, 0, sck, mosi, 0xa5, 1)
	if len(raw) != 16 {
		t.Fatalf("len(raw) = %d, want 16", len(raw))
	}
}
