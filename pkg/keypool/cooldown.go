package keypool

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultCooldownSchedule resets exhausted keys once a minute.
const DefaultCooldownSchedule = "@every 1m"

// CooldownScheduler periodically clears exhaustion marks on a pool so
// rate-limited keys become usable again.
type CooldownScheduler struct {
	pool   *Pool
	cron   *cron.Cron
	logger zerolog.Logger

	mu      sync.Mutex
	started bool
}

// NewCooldownScheduler parses spec (standard cron or a descriptor such as
// "@every 5m") and binds it to pool.
func NewCooldownScheduler(pool *Pool, spec string, logger zerolog.Logger) (*CooldownScheduler, error) {
	if spec == "" {
		spec = DefaultCooldownSchedule
	}

	s := &CooldownScheduler{
		pool:   pool,
		cron:   cron.New(),
		logger: logger.With().Str("component", "keypool.cooldown").Logger(),
	}
	if _, err := s.cron.AddFunc(spec, s.Tick); err != nil {
		return nil, fmt.Errorf("invalid cooldown schedule %q: %w", spec, err)
	}
	return s, nil
}

// Tick resets exhaustion if any key is currently exhausted.
func (s *CooldownScheduler) Tick() {
	if s.pool.AvailableCount() == s.pool.Size() {
		return
	}
	s.logger.Info().
		Int("available", s.pool.AvailableCount()).
		Int("keys", s.pool.Size()).
		Msg("Cooldown elapsed, resetting exhausted keys")
	s.pool.ResetExhaustion()
}

// Start begins the schedule. Calling it twice is a no-op.
func (s *CooldownScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
}

// Stop halts the schedule and waits for a running tick to finish.
func (s *CooldownScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.started = false
	<-s.cron.Stop().Done()
}
