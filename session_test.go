// Copyright 2024 The ft245r Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ft245r

import (
	"context"
	"testing"
)

func TestConfigIndexRequiresLiteralFtPrefix(t *testing.T) {
	cases := []struct {
		port    string
		wantErr bool
	}{
		{"usb:ft0", false},
		{"usb:ft12", false},
		{"usb:foo0", true},  // the original's inverted strncmp would have accepted this
		{"usb:ft", true},    // no digits
		{"usb:xt0", true},
		{"", true},
	}
	for _, c := range cases {
		_, err := Config{Port: c.port}.index()
		if (err != nil) != c.wantErr {
			t.Errorf("Config{Port: %q}.index() error = %v, wantErr %v", c.port, err, c.wantErr)
		}
	}
}

// TestProgramEnableFailsAfterFourAttempts forces ProgramEnable through all 4
// attempts and exercises the final-attempt full drain before it gives up
// with ErrProgramEnable.
func TestProgramEnableFailsAfterFourAttempts(t *testing.T) {
	pins := testPins()
	// MOSI is intentionally NOT wired to MISO here (distinct, disconnected
	// masks), so the part's response never matches: PollIndex's byte stays
	// whatever the idle register drives, never PollValue.
	ft := newFakeTransport(Pin{Mask: 0x40}, pins.MISO)
	cfg := Config{Port: "usb:ft0", Pins: pins}
	s, err := newSession(cfg, ft)
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}
	part := PartDescriptor{
		ProgramEnable: [4]byte{0xac, 0x53, 0x00, 0x00},
		PollIndex:     1,
		PollValue:     0x53,
	}
	err = s.ProgramEnable(context.Background(), part)
	if err != ErrProgramEnable {
		t.Fatalf("ProgramEnable error = %v, want ErrProgramEnable", err)
	}
}

func TestProgramEnableSucceedsOnLoopback(t *testing.T) {
	s := newTestSession(t)
	part := PartDescriptor{
		ProgramEnable: [4]byte{0xac, 0x53, 0x00, 0x00},
		PollIndex:     1,
		PollValue:     0x53,
	}
	if err := s.ProgramEnable(context.Background(), part); err != nil {
		t.Fatalf("ProgramEnable: %v", err)
	}
}
