package circuit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerLifecycle(t *testing.T) {
	now := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	cb := New("binance", 2, time.Minute)
	cb.SetClock(func() time.Time { return now })

	var transitions []string
	cb.OnStateChange(func(name string, from, to State) {
		transitions = append(transitions, from.String()+">"+to.String())
	})

	boom := errors.New("boom")
	assert.ErrorIs(t, cb.Do(func() error { return boom }), boom)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Do(func() error { return boom }), boom)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Do(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)

	now = now.Add(time.Minute)
	require.NoError(t, cb.Do(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, []string{"CLOSED>OPEN", "OPEN>HALF-OPEN", "HALF-OPEN>CLOSED"}, transitions)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Unix(0, 0)
	cb := New("gate", 1, time.Second)
	cb.SetClock(func() time.Time { return now })
	cb.OnStateChange(func(string, State, State) {})

	cb.RecordFailure()
	require.Equal(t, StateOpen, cb.State())
	now = now.Add(2 * time.Second)
	require.True(t, cb.Allow())
	require.Equal(t, StateHalfOpen, cb.State())
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "UNKNOWN", State(9).String())
}
