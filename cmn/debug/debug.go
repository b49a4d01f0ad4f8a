// Package debug gates the engine's internal invariant checks.
//
// Assertions take effect only when COMPILED is true (set from the OPR_DEBUG
// environment variable), so that production runs skip internal invariant
// checks such as the
// timeline-overlap / single-reservation-at-a-time assertions.
/*
 * Copyright (c) 2024, Open Product Recovery contributors.
 */
package debug

import (
	"fmt"
	"os"
)

// COMPILED toggles the assertions on. Left as a package var (rather than a
// build tag) so tests can flip it at runtime without a second build.
var COMPILED = os.Getenv("OPR_DEBUG") != ""

// Assert panics with msg when cond is false and checks are enabled.
func Assert(cond bool, msg ...interface{}) {
	if !COMPILED || cond {
		return
	}
	panic(fmt.Sprint(append([]interface{}{"assertion failed: "}, msg...)...))
}

// AssertNoErr panics when err is non-nil and checks are enabled.
func AssertNoErr(err error) {
	if !COMPILED || err == nil {
		return
	}
	panic(fmt.Sprintf("assertion failed: unexpected error: %v", err))
}
