package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBusy = errors.New("host is in a modal state")

// recorder is a Sleep that records waits instead of sleeping.
type recorder struct {
	waits []time.Duration
}

func (r *recorder) sleep(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return ctx.Err()
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFixed(t *testing.T) {
	b := Fixed(600 * time.Millisecond)
	for i := 1; i < 5; i++ {
		assert.Equal(t, 600*time.Millisecond, b(i))
	}
}

func TestExponential(t *testing.T) {
	b := Exponential(time.Second, 8*time.Second)
	var got []time.Duration
	for i := 1; i <= 7; i++ {
		got = append(got, b(i))
	}
	assert.Equal(t, []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second,
		8 * time.Second, 8 * time.Second, 8 * time.Second, 8 * time.Second,
	}, got)

	// Large failure counts never overflow past the cap.
	assert.Equal(t, 8*time.Second, b(500))
}

func TestDoSucceedsFirstTry(t *testing.T) {
	rec := &recorder{}
	p := HostConflict(3, 600*time.Millisecond, nil)
	p.Sleep, p.Logger = rec.sleep, quiet()

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.waits)
}

func TestHostConflictRecovers(t *testing.T) {
	rec := &recorder{}
	p := HostConflict(3, 600*time.Millisecond, func(err error) bool { return errors.Is(err, errBusy) })
	p.Sleep, p.Logger = rec.sleep, quiet()

	calls := 0
	got, err := Value(context.Background(), p, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errBusy
		}
		return "layer-7", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "layer-7", got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{600 * time.Millisecond, 600 * time.Millisecond}, rec.waits)
}

func TestHostConflictExhausted(t *testing.T) {
	rec := &recorder{}
	p := HostConflict(3, 600*time.Millisecond, func(err error) bool { return errors.Is(err, errBusy) })
	p.Sleep, p.Logger = rec.sleep, quiet()

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return errBusy
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errBusy)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, calls)
	assert.Len(t, rec.waits, 2)
}

func TestNonRetryableFailsImmediately(t *testing.T) {
	rec := &recorder{}
	p := HostConflict(3, time.Second, func(err error) bool { return errors.Is(err, errBusy) })
	p.Sleep, p.Logger = rec.sleep, quiet()

	boom := errors.New("layer not found")
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return boom
	})
	assert.Same(t, boom, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.waits)
}

func TestPersistentWriteRetriesPastAnyBound(t *testing.T) {
	rec := &recorder{}
	p := PersistentWrite(time.Second, 8*time.Second)
	p.Sleep, p.Logger = rec.sleep, quiet()

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls <= 20 {
			return errors.New("disk busy")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 21, calls)
	require.Len(t, rec.waits, 20)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second}, rec.waits[:5])
	assert.Equal(t, 8*time.Second, rec.waits[19])
}

func TestPersistentWriteStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := PersistentWrite(time.Millisecond, 4*time.Millisecond)
	p.Logger = quiet()

	calls := 0
	err := p.Do(ctx, func(context.Context) error {
		calls++
		if calls == 3 {
			cancel()
		}
		return errors.New("disk busy")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "disk busy")
	assert.Equal(t, 3, calls)
}

func TestDoHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := PersistentWrite(time.Second, time.Second).Do(ctx, func(context.Context) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, sleepContext(context.Background(), time.Millisecond))
	require.NoError(t, sleepContext(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := sleepContext(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRetryLogsAttempts(t *testing.T) {
	var buf strings.Builder
	rec := &recorder{}
	p := Policy{
		Name:        "create layer",
		MaxAttempts: 2,
		Backoff:     Fixed(600 * time.Millisecond),
		Logger:      slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})),
		Sleep:       rec.sleep,
	}
	_ = p.Do(context.Background(), func(context.Context) error { return errBusy })

	out := buf.String()
	assert.Contains(t, out, "policy=\"create layer\"")
	assert.Contains(t, out, "attempt=1")
	assert.Contains(t, out, "wait_ms=600")
	assert.NotContains(t, out, "attempt=2")
}
