package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ordertracker/internal/metrics"
)

type fakeInfo struct {
	size int64
	mode fs.FileMode
}

func (f fakeInfo) Name() string       { return "order.json" }
func (f fakeInfo) Size() int64        { return f.size }
func (f fakeInfo) Mode() fs.FileMode  { return f.mode }
func (f fakeInfo) ModTime() time.Time { return time.Time{} }
func (f fakeInfo) IsDir() bool        { return f.mode.IsDir() }
func (f fakeInfo) Sys() any           { return nil }

// recordingSleeper не ждёт, а только запоминает запрошенные задержки.
type recordingSleeper struct {
	delays []time.Duration
	err    error
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	if s.err != nil {
		return s.err
	}
	return ctx.Err()
}

func TestProbe_NeverReadyStopsAfterFiveAttempts(t *testing.T) {
	attempts := 0
	sleeper := &recordingSleeper{}
	m := metrics.NewTrackerMetricsWithRegisterer(prometheus.NewRegistry())
	probe := NewProbe(
		WithOpener(func(string) (fs.FileInfo, error) {
			attempts++
			return nil, fs.ErrPermission
		}),
		WithProbeSleeper(sleeper),
		WithProbeMetrics(m),
	)

	ready := probe.IsReadable(context.Background(), "/in/order.json", 200*time.Millisecond)

	assert.False(t, ready)
	assert.Equal(t, MaxProbeAttempts, attempts)
	assert.Equal(t, []time.Duration{
		200 * time.Millisecond,
		400 * time.Millisecond,
		600 * time.Millisecond,
		800 * time.Millisecond,
	}, sleeper.delays)
}

func TestProbe_ReadyOnThirdAttempt(t *testing.T) {
	attempts := 0
	sleeper := &recordingSleeper{}
	probe := NewProbe(
		WithOpener(func(string) (fs.FileInfo, error) {
			attempts++
			if attempts < 3 {
				return fakeInfo{size: 0}, nil
			}
			return fakeInfo{size: 42}, nil
		}),
		WithProbeSleeper(sleeper),
	)

	ready := probe.IsReadable(context.Background(), "/in/order.json", 100*time.Millisecond)

	assert.True(t, ready)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, sleeper.delays)
}

func TestProbe_EmptyFileReadyAfterLastAttempt(t *testing.T) {
	attempts := 0
	sleeper := &recordingSleeper{}
	reg := prometheus.NewRegistry()
	probe := NewProbe(
		WithOpener(func(string) (fs.FileInfo, error) {
			attempts++
			return fakeInfo{size: 0}, nil
		}),
		WithProbeSleeper(sleeper),
		WithProbeMetrics(metrics.NewTrackerMetricsWithRegisterer(reg)),
	)

	assert.True(t, probe.IsReadable(context.Background(), "/in/empty.json", 10*time.Millisecond))
	assert.Equal(t, MaxProbeAttempts, attempts)
	assert.Len(t, sleeper.delays, MaxProbeAttempts-1)
}

func TestProbe_EmptyThenMissingIsNotReady(t *testing.T) {
	attempts := 0
	probe := NewProbe(
		WithOpener(func(string) (fs.FileInfo, error) {
			attempts++
			if attempts < MaxProbeAttempts {
				return fakeInfo{size: 0}, nil
			}
			return nil, fs.ErrNotExist
		}),
		WithProbeSleeper(&recordingSleeper{}),
	)

	assert.False(t, probe.IsReadable(context.Background(), "/in/gone.json", time.Millisecond))
}

func TestProbe_DirectoryIsNotReady(t *testing.T) {
	probe := NewProbe(
		WithOpener(func(string) (fs.FileInfo, error) {
			return fakeInfo{size: 4096, mode: fs.ModeDir}, nil
		}),
		WithProbeSleeper(&recordingSleeper{}),
	)

	assert.False(t, probe.IsReadable(context.Background(), "/in/sub.json", time.Millisecond))
}

func TestProbe_CancelledDuringSleep(t *testing.T) {
	attempts := 0
	sleeper := &recordingSleeper{err: context.Canceled}
	probe := NewProbe(
		WithOpener(func(string) (fs.FileInfo, error) {
			attempts++
			return nil, errors.New("locked")
		}),
		WithProbeSleeper(sleeper),
	)

	ready := probe.IsReadable(context.Background(), "/in/order.json", time.Second)

	assert.False(t, ready)
	assert.Equal(t, 1, attempts)
	assert.Len(t, sleeper.delays, 1)
}

func TestProbe_RealFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "order1.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"order":{}}`), 0o644))

	probe := NewProbe()
	assert.True(t, probe.IsReadable(context.Background(), path, time.Millisecond))
	assert.False(t, probe.IsReadable(context.Background(), filepath.Join(dir, "missing.json"), time.Millisecond))
}

func TestTimerSleeper_RespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := timerSleeper{}.Sleep(ctx, time.Minute)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestProbeState_NoDelayAfterLastAttempt(t *testing.T) {
	state := probeState{maxAttempts: 2, baseDelay: 10 * time.Millisecond}

	state.attempt = 1
	delay, ok := state.next()
	require.True(t, ok)
	assert.Equal(t, 10*time.Millisecond, delay)

	state.attempt = 2
	_, ok = state.next()
	assert.False(t, ok)
	assert.Equal(t, 10*time.Millisecond, state.waited)
}
