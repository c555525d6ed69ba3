package testutil

import (
	"image/color"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicClock_StartsAtEpoch(t *testing.T) {
	clock := NewDeterministicClock()
	assert.Equal(t, Epoch, clock.Now())
	assert.Equal(t, Epoch.Add(time.Millisecond), clock.Now())
	assert.Equal(t, int64(2), clock.Calls())
}

func TestDeterministicClock_Reset(t *testing.T) {
	clock := NewSteppingClock(Epoch, time.Second)
	clock.Now()
	clock.Now()
	clock.Reset()
	assert.Equal(t, Epoch, clock.Now())
}

func TestDeterministicClock_Frozen(t *testing.T) {
	clock := NewSteppingClock(Epoch, 0)
	assert.Equal(t, clock.Now(), clock.Now())
}

func TestDeterministicClock_ThreadSafe(t *testing.T) {
	clock := NewDeterministicClock()
	const workers, calls = 50, 40

	var mu sync.Mutex
	seen := make(map[time.Time]bool)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < calls; j++ {
				now := clock.Now()
				mu.Lock()
				seen[now] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*calls, "every instant must be unique")
}

func TestSequenceGenerator(t *testing.T) {
	gen := NewSequenceGenerator("preset")
	assert.Equal(t, "preset-1", gen.Generate())
	assert.Equal(t, "preset-2", gen.Generate())

	assert.Equal(t, "id-1", NewSequenceGenerator("").Generate())
}

func TestPNGRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.png")
	src := SolidImage(3, 2, color.NRGBA{R: 10, G: 20, B: 30, A: 128})
	WritePNG(t, path, src)

	got := ReadPNG(t, path)
	require.Equal(t, src.Bounds(), got.Bounds())
	assert.Equal(t, color.NRGBA{R: 10, G: 20, B: 30, A: 128}, got.NRGBAAt(2, 1))
}

func TestGradientImage(t *testing.T) {
	img := GradientImage(5, 3)
	assert.Equal(t, color.NRGBA{A: 255}, img.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{R: 255, G: 255, A: 255}, img.NRGBAAt(4, 2))
}
