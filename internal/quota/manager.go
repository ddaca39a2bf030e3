package quota

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/adudulescu/stock-predictor/internal/model"
)

// ErrExhausted is returned by Reserve once the daily limit is used up.
var ErrExhausted = errors.New("daily request quota exhausted")

const dayLayout = "2006-01-02"

// Manager tracks the daily upstream request budget with concurrency safety.
// A limit of zero disables enforcement but still counts.
type Manager struct {
	mu       sync.Mutex
	state    *model.QuotaState
	filePath string
	log      zerolog.Logger
	now      func() time.Time
}

// NewManager creates a Manager, loading or initializing state from disk.
func NewManager(filePath string, dailyLimit int, log zerolog.Logger) (*Manager, error) {
	state, err := LoadState(filePath)
	if err != nil {
		return nil, err
	}
	state.DailyLimit = dailyLimit

	m := &Manager{
		state:    state,
		filePath: filePath,
		log:      log.With().Str("component", "quota").Logger(),
		now:      time.Now,
	}
	m.rollover()
	if err := m.save(); err != nil {
		return nil, err
	}
	return m, nil
}

// State returns a copy of the current quota state.
func (m *Manager) State() model.QuotaState {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover()
	return *m.state
}

// Reserve takes one request from today's budget.
func (m *Manager) Reserve() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rollover()
	if m.state.DailyLimit > 0 && m.state.Used >= m.state.DailyLimit {
		return ErrExhausted
	}
	m.state.Used++
	m.persist()
	return nil
}

// Release hands back one reservation that was never sent upstream.
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rollover()
	if m.state.Used > 0 {
		m.state.Used--
		m.persist()
	}
}

// NoteRateLimited records an upstream 429.
func (m *Manager) NoteRateLimited() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rollover()
	m.state.RateLimited++
	m.persist()
}

// Reset clears today's counters (called at midnight).
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resetLocked(m.now())
	m.persist()
	m.log.Info().Int("daily_limit", m.state.DailyLimit).Msg("daily quota reset")
}

// rollover resets the counters when the calendar day has changed since the
// last write, covering missed midnight resets.
func (m *Manager) rollover() {
	now := m.now()
	if m.state.Day != now.Format(dayLayout) {
		m.resetLocked(now)
	}
}

func (m *Manager) resetLocked(now time.Time) {
	m.state.Used = 0
	m.state.RateLimited = 0
	m.state.Day = now.Format(dayLayout)
	m.state.ResetAt = now
}

func (m *Manager) persist() {
	if err := m.save(); err != nil {
		m.log.Error().Err(err).Msg("failed to save quota state")
	}
}

func (m *Manager) save() error {
	return SaveState(m.filePath, m.state)
}
