// Copyright 2024 The ft245r Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ft245r implements an AVR device programmer back-end that drives
// an AVR microcontroller's ISP SPI protocol, and optionally TPI, by
// bit-banging it through a USB-attached FTDI FT232R/FT245R chip in
// synchronous bit-bang mode.
//
// The package owns the bit-level protocol, FIFO flow control, and request
// pipelining needed to talk to the target efficiently over a USB link with
// non-trivial latency. It does not know about AVR part databases, host-side
// memory images, or command-line flags: callers supply a PartDescriptor and
// a Memory per operation.
//
// Use build tag ft245r_debug to enable verbose transport tracing.
package ft245r
