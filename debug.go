// Copyright 2024 The ft245r Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build ft245r_debug

package ft245r

import (
	"log"

	"periph.io/x/d2xx"
	"periph.io/x/d2xx/d2xxtest"
)

func logf(format string, args ...interface{}) {
	log.Printf("ft245r: "+format, args...)
}

// wrapDebug wraps h so every D2XX call it makes is traced via logf, when
// built with the ft245r_debug tag.
func wrapDebug(h d2xx.Handle) d2xx.Handle {
	return &d2xxtest.Log{H: h, Printf: logf}
}
