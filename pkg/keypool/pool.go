package keypool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harun/hybridsolver/internal/observability"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	// ErrNoKeys is returned by New when the credential list is empty.
	ErrNoKeys = errors.New("keypool: no keys configured")
	// ErrIndexOutOfRange is returned when marking an index outside the pool.
	ErrIndexOutOfRange = errors.New("keypool: key index out of range")
)

// DefaultRequestsPerKey is the per-key request allowance per minute.
const DefaultRequestsPerKey = 15

// Options configures a Pool.
type Options struct {
	// RequestsPerKey bounds requests per minute per key. Zero uses
	// DefaultRequestsPerKey, a negative value disables limiting.
	RequestsPerKey int
	Logger         zerolog.Logger
}

// Pool is a round-robin set of credentials with exhaustion tracking.
type Pool struct {
	mu           sync.Mutex
	keys         []string
	cursor       int
	exhausted    map[int]struct{}
	allExhausted bool

	limiter *rate.Limiter
	logger  zerolog.Logger
}

// New builds a pool over a copy of keys.
func New(keys []string, opts Options) (*Pool, error) {
	if len(keys) == 0 {
		return nil, ErrNoKeys
	}
	for i, k := range keys {
		if k == "" {
			return nil, fmt.Errorf("keypool: key %d is empty", i+1)
		}
	}

	p := &Pool{
		keys:      append([]string(nil), keys...),
		exhausted: make(map[int]struct{}),
		logger:    opts.Logger.With().Str("component", "keypool").Logger(),
	}

	perKey := opts.RequestsPerKey
	if perKey == 0 {
		perKey = DefaultRequestsPerKey
	}
	if perKey > 0 {
		total := perKey * len(keys)
		p.limiter = rate.NewLimiter(rate.Limit(float64(total)/60.0), total)
	}

	observability.SetKeysAvailable(len(keys))
	p.logger.Info().Int("keys", len(keys)).Msg("Key pool loaded")
	return p, nil
}

// Preview returns a loggable form of key showing only its last four characters.
func Preview(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "..." + key[len(key)-4:]
}

// Size returns the number of keys.
func (p *Pool) Size() int {
	return len(p.keys)
}

// skipExhausted moves the cursor forward past exhausted keys, at most Size()
// steps. It reports false when every key was skipped. Callers hold mu.
func (p *Pool) skipExhausted() bool {
	for skips := 0; skips < len(p.keys); skips++ {
		if _, bad := p.exhausted[p.cursor]; !bad {
			return true
		}
		p.cursor = (p.cursor + 1) % len(p.keys)
	}
	return false
}

// Next returns the first non-exhausted key at or after the cursor. When every
// key is exhausted it logs a warning and returns the key at the cursor; such a
// call is expected to fail.
func (p *Pool) Next() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.skipExhausted() {
		p.logger.Warn().
			Int("index", p.cursor+1).
			Int("keys", len(p.keys)).
			Msg("All keys exhausted, returning current key anyway")
	}

	key := p.keys[p.cursor]
	p.logger.Debug().
		Int("index", p.cursor+1).
		Int("keys", len(p.keys)).
		Str("key", Preview(key)).
		Msg("Using key")
	return key
}

// Current returns the key at the cursor without moving it.
func (p *Pool) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.keys[p.cursor]
}

// CurrentIndex returns the zero-based cursor.
func (p *Pool) CurrentIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Rotate advances the cursor by one, then past any exhausted keys.
func (p *Pool) Rotate() {
	p.mu.Lock()
	defer p.mu.Unlock()

	old := p.cursor
	p.cursor = (p.cursor + 1) % len(p.keys)
	p.skipExhausted()

	observability.RecordKeyRotation()
	p.logger.Info().Int("from", old+1).Int("to", p.cursor+1).Msg("Rotated key")
}

// MarkExhausted marks the key at the cursor exhausted.
func (p *Pool) MarkExhausted() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.markLocked(p.cursor)
}

// MarkExhaustedIndex marks the key at index i exhausted.
func (p *Pool) MarkExhaustedIndex(i int) error {
	if i < 0 || i >= len(p.keys) {
		return fmt.Errorf("%w: %d (pool has %d)", ErrIndexOutOfRange, i, len(p.keys))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.markLocked(i)
	return nil
}

func (p *Pool) markLocked(i int) {
	if _, dup := p.exhausted[i]; !dup {
		p.exhausted[i] = struct{}{}
		observability.RecordKeyExhausted()
	}
	observability.SetKeysAvailable(len(p.keys) - len(p.exhausted))

	p.logger.Warn().Int("index", i+1).Int("keys", len(p.keys)).Msg("Key marked exhausted")

	if len(p.exhausted) >= len(p.keys) && !p.allExhausted {
		p.allExhausted = true
		p.logger.Error().Int("keys", len(p.keys)).Msg("All keys exhausted")
	}
}

// ResetExhaustion clears every exhaustion mark.
func (p *Pool) ResetExhaustion() {
	p.mu.Lock()
	defer p.mu.Unlock()

	cleared := len(p.exhausted)
	p.exhausted = make(map[int]struct{})
	p.allExhausted = false

	observability.RecordKeyReset()
	observability.SetKeysAvailable(len(p.keys))
	p.logger.Info().Int("cleared", cleared).Msg("Key exhaustion reset")
}

// AvailableCount returns the number of keys not marked exhausted.
func (p *Pool) AvailableCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys) - len(p.exhausted)
}

// AllExhausted reports whether every key is marked exhausted.
func (p *Pool) AllExhausted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allExhausted
}

// Wait blocks until the pool's request limiter admits one call or ctx ends.
func (p *Pool) Wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	start := time.Now()
	err := p.limiter.Wait(ctx)
	if waited := time.Since(start); waited > time.Millisecond {
		observability.RecordLimiterWait(waited)
	}
	return err
}
