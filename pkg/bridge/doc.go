// Package bridge runs blocking callers' work on one long-lived execution
// context.
//
// Invariants:
//   - One dispatcher goroutine per Bridge; New returns only after it is ready.
//   - Submissions run concurrently, bounded by MaxInFlight, under the bridge's
//     lifetime context, so pooled resources outlive any single call.
//   - After Shutdown, Submit fails fast with ErrNotRunning.
//
// Usage:
//
//	b, err := bridge.New(bridge.Options{Logger: log})
//	defer b.Shutdown(context.Background())
//	html, err := bridge.Run(ctx, b, func(ctx context.Context) (string, error) {
//		return fetch(ctx, url)
//	})
package bridge
