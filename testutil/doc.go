// Package testutil provides testing utilities for kvgo.
//
// This package is intended for use in tests and benchmarks only.
// It provides a seeded, thread-safe RNG plus helpers for generating
// deterministic keys, values and query vectors.
//
// # Deterministic Data Generation
//
//	rng := testutil.NewRNG(seed)
//	keys := rng.Keys("user", 100)
//	vec := rng.UnitVector(128)
package testutil
