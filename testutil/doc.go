// Package testutil provides helpers for greyhound tests.
//
// This package is intended for use in tests only. It generates
// deterministic point clouds and writes them as source files into any
// arbiter-resolvable location.
//
//	rng := testutil.NewRNG(4711)
//	pts := rng.UniformPoints(1000, cube)
//	testutil.WriteRaw(t, arb, "mem://bucket/autzen.grp", pts, "zstd")
package testutil
