package resilience

import (
	"errors"
	"fmt"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errConnLost = fmt.Errorf("read tcp: %w", syscall.ECONNRESET)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int, cooldown time.Duration) (*Breaker, *clock, *[]string) {
	var moves []string
	b := NewBreaker(BreakerConfig{
		Threshold: threshold,
		Cooldown:  cooldown,
		OnStateChange: func(from, to State) {
			moves = append(moves, from.String()+"->"+to.String())
		},
	})
	c := &clock{t: time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)}
	b.now = c.now
	return b, c, &moves
}

func fail(t *testing.T, b *Breaker, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		tk, err := b.Allow()
		require.NoError(t, err)
		b.Record(tk, errConnLost)
	}
}

func succeed(t *testing.T, b *Breaker) {
	t.Helper()
	tk, err := b.Allow()
	require.NoError(t, err)
	b.Record(tk, nil)
}

func denied(b *Breaker) error {
	_, err := b.Allow()
	return err
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b, _, moves := newTestBreaker(3, time.Minute)

	fail(t, b, 2)
	assert.Equal(t, Closed, b.State())
	assert.Equal(t, 2, b.Failures())

	fail(t, b, 1)
	assert.Equal(t, Open, b.State())
	assert.ErrorIs(t, denied(b), ErrOpen)
	assert.Equal(t, []string{"closed->open"}, *moves)
}

func TestBreaker_SuccessResetsRun(t *testing.T) {
	b, _, _ := newTestBreaker(3, time.Minute)

	fail(t, b, 2)
	succeed(t, b)
	fail(t, b, 2)

	assert.Equal(t, Closed, b.State())
	assert.Equal(t, 2, b.Failures())
}

func TestBreaker_IgnoresStatementErrors(t *testing.T) {
	b, _, _ := newTestBreaker(1, time.Minute)

	for _, err := range []error{pgx.ErrNoRows, errors.New(`syntax error at or near "FORM"`)} {
		tk, aerr := b.Allow()
		require.NoError(t, aerr)
		b.Record(tk, err)
	}
	assert.Equal(t, Closed, b.State())
	assert.Zero(t, b.Failures())
}

func TestBreaker_ProbeClosesOnSuccess(t *testing.T) {
	b, c, moves := newTestBreaker(1, time.Minute)
	fail(t, b, 1)

	c.advance(59 * time.Second)
	assert.ErrorIs(t, denied(b), ErrOpen)

	c.advance(time.Second)
	assert.Equal(t, Probing, b.State())
	tk, err := b.Allow()
	require.NoError(t, err)
	assert.ErrorIs(t, denied(b), ErrOpen, "only one probe at a time")

	b.Record(tk, nil)
	assert.Equal(t, Closed, b.State())
	assert.NoError(t, denied(b))
	assert.Equal(t, []string{"closed->open", "open->probing", "probing->closed"}, *moves)
}

func TestBreaker_ProbeFailureReopens(t *testing.T) {
	b, c, _ := newTestBreaker(2, time.Minute)
	fail(t, b, 2)

	c.advance(time.Minute)
	fail(t, b, 1)

	assert.Equal(t, Open, b.State())
	assert.ErrorIs(t, denied(b), ErrOpen)

	c.advance(time.Minute)
	assert.NoError(t, denied(b), "cooldown restarts from the failed probe")
}

func TestBreaker_StaleSuccessDoesNotClose(t *testing.T) {
	b, c, moves := newTestBreaker(1, time.Minute)

	slow, err := b.Allow()
	require.NoError(t, err)
	fail(t, b, 1)
	require.Equal(t, Open, b.State())

	b.Record(slow, nil)
	assert.Equal(t, Open, b.State())
	assert.Equal(t, 1, b.Failures())
	assert.ErrorIs(t, denied(b), ErrOpen)

	c.advance(time.Minute)
	probe, err := b.Allow()
	require.NoError(t, err)
	b.Record(slow, nil)
	assert.Equal(t, Probing, b.State(), "stale outcome must not settle the probe")
	b.Record(probe, nil)
	assert.Equal(t, Closed, b.State())
	assert.Equal(t, []string{"closed->open", "open->probing", "probing->closed"}, *moves)
}

func TestBreaker_Defaults(t *testing.T) {
	b := NewBreaker(BreakerConfig{})
	assert.Equal(t, 5, b.cfg.Threshold)
	assert.Equal(t, 30*time.Second, b.cfg.Cooldown)
	assert.NotNil(t, b.cfg.Trips)
}

func TestBreaker_Concurrent(t *testing.T) {
	b := NewBreaker(BreakerConfig{Threshold: 1000, Cooldown: time.Hour})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tk, err := b.Allow()
			if err != nil {
				return
			}
			if i%2 == 0 {
				b.Record(tk, errConnLost)
			} else {
				b.Record(tk, nil)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, Closed, b.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "open", Open.String())
	assert.Equal(t, "probing", Probing.String())
	assert.Equal(t, "unknown", State(9).String())
}
