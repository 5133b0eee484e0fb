// Package clock centralizes the time source so approval timestamps can be
// frozen in tests.
package clock

import "time"

// NowFunc is the active time source. Tests may swap it for determinism.
var NowFunc = time.Now

// Now returns the current time per NowFunc.
func Now() time.Time { return NowFunc() }
