// Package keypool rotates interchangeable provider credentials.
//
// Invariants:
//   - The key list is fixed at construction and never empty.
//   - 0 <= cursor < Size() at all times.
//   - Exhausted indices are a subset of [0, Size()); the pool reports
//     AllExhausted once the set covers every index.
//   - Every exported method is linearizable under one mutex.
//
// Usage:
//
//	pool, err := keypool.New(cfg.Keys.Values, keypool.Options{Logger: log})
//	key := pool.Next()
//	if quota {
//		pool.MarkExhausted()
//		pool.Rotate()
//	}
package keypool
