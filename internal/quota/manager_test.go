package quota

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_EnforcesDailyLimit(t *testing.T) {
	m, err := NewManager("", 3, zerolog.Nop())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, m.Reserve())
	}
	assert.ErrorIs(t, m.Reserve(), ErrExhausted)

	st := m.State()
	assert.Equal(t, 3, st.Used)
	assert.Equal(t, 0, st.Remaining())
}

func TestManager_ZeroLimitOnlyCounts(t *testing.T) {
	m, err := NewManager("", 0, zerolog.Nop())
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, m.Reserve())
	}
	assert.Equal(t, 10, m.State().Used)
}

func TestManager_PersistsAcrossRestarts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "quota.json")

	m, err := NewManager(path, 5, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, m.Reserve())
	require.NoError(t, m.Reserve())
	m.NoteRateLimited()

	again, err := NewManager(path, 10, zerolog.Nop())
	require.NoError(t, err)
	st := again.State()
	assert.Equal(t, 2, st.Used)
	assert.Equal(t, 1, st.RateLimited)
	assert.Equal(t, 10, st.DailyLimit)
	assert.Equal(t, 8, st.Remaining())
}

func TestManager_DayRollover(t *testing.T) {
	m, err := NewManager("", 2, zerolog.Nop())
	require.NoError(t, err)

	clock := time.Date(2024, 6, 10, 23, 59, 0, 0, time.Local)
	m.now = func() time.Time { return clock }
	m.Reset()

	require.NoError(t, m.Reserve())
	require.NoError(t, m.Reserve())
	assert.ErrorIs(t, m.Reserve(), ErrExhausted)

	clock = clock.Add(2 * time.Minute)
	require.NoError(t, m.Reserve())
	assert.Equal(t, "2024-06-11", m.State().Day)
	assert.Equal(t, 1, m.State().Used)
}

func TestManager_Release(t *testing.T) {
	m, err := NewManager("", 1, zerolog.Nop())
	require.NoError(t, err)

	m.Release()
	assert.Zero(t, m.State().Used, "never below zero")

	require.NoError(t, m.Reserve())
	assert.ErrorIs(t, m.Reserve(), ErrExhausted)
	m.Release()
	require.NoError(t, m.Reserve())
	assert.Equal(t, 1, m.State().Used)
}

func TestManager_Reset(t *testing.T) {
	m, err := NewManager("", 2, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, m.Reserve())
	m.NoteRateLimited()

	m.Reset()
	st := m.State()
	assert.Zero(t, st.Used)
	assert.Zero(t, st.RateLimited)
}

func TestManager_Concurrent(t *testing.T) {
	m, err := NewManager("", 50, zerolog.Nop())
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Reserve() == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, granted)
}
