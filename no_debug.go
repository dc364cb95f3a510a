// Copyright 2024 The ft245r Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build !ft245r_debug

package ft245r

import "periph.io/x/d2xx"

func logf(format string, args ...interface{}) {}

// wrapDebug is a no-op without the ft245r_debug build tag.
func wrapDebug(h d2xx.Handle) d2xx.Handle { return h }
