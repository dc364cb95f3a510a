// Copyright 2024 The ft245r Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ft245r

import "context"

// Cmd performs a single 4-byte ISP SPI transaction: it shifts out cmd MSB
// first per byte, MOSI on the rising edge, latching whatever is sampled on
// MISO into res (res must be 4 bytes). One trailing byte with SCK held low
// is appended after the 4th command byte: the last bit of the 4th byte is
// only sampled one bus byte after its rising edge, so without this pad byte
// that sample would fall past the end of the transaction.
func (s *Session) Cmd(ctx context.Context, cmd [4]byte, res []byte) error {
	if len(res) != 4 {
		return wrapErr("Cmd", errInvalidResLen)
	}
	var raw []byte
	for _, b := range cmd {
		raw = s.encodeByte(raw, b)
	}
	raw = append(raw, s.padByte())
	if err := s.sendCtx(ctx, raw); err != nil {
		return err
	}
	rawIn := make([]byte, len(raw))
	if err := s.recv(ctx, rawIn); err != nil {
		return err
	}
	span := s.byteSpan()
	for i := range cmd {
		res[i] = s.decodeByte(rawIn, i*span)
	}
	return nil
}
