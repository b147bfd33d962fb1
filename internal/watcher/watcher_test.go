package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ordertracker/internal/domain"
	"github.com/vladislavdragonenkov/ordertracker/internal/metrics"
)

// collector записывает имена файлов, переданные обработчику.
type collector struct {
	mu    sync.Mutex
	names []string
}

func (c *collector) OnNewOrderFile(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = append(c.names, filepath.Base(path))
}

func (c *collector) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := append([]string(nil), c.names...)
	sort.Strings(out)
	return out
}

// inlineDispatcher выполняет задачу сразу.
type inlineDispatcher struct{}

func (inlineDispatcher) Dispatch(fn func()) error {
	fn()
	return nil
}

// queueDispatcher откладывает задачи до явного Drain.
type queueDispatcher struct {
	mu    sync.Mutex
	tasks []func()
}

func (q *queueDispatcher) Dispatch(fn func()) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, fn)
	return nil
}

func (q *queueDispatcher) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *queueDispatcher) Drain() {
	q.mu.Lock()
	tasks := q.tasks
	q.tasks = nil
	q.mu.Unlock()
	for _, fn := range tasks {
		fn()
	}
}

var noSleep = SleeperFunc(func(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
})

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func metricValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metricLoop:
		for _, metric := range family.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if labels[pair.GetName()] != pair.GetValue() {
					continue metricLoop
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func TestWatcher_StartFailsForMissingDirectory(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "absent"), &collector{}, inlineDispatcher{})

	err := w.Start(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrWatchSetup)
	assert.Equal(t, StateStopped, w.State())
}

func TestWatcher_StartFailsForRegularFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "file.json", "{}")
	w := New(path, &collector{}, inlineDispatcher{})

	assert.ErrorIs(t, w.Start(context.Background()), domain.ErrWatchSetup)
}

func TestWatcher_StartTwice(t *testing.T) {
	w := New(t.TempDir(), &collector{}, inlineDispatcher{})
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop() })

	assert.ErrorIs(t, w.Start(context.Background()), domain.ErrWatcherRunning)
	assert.Equal(t, StateRunning, w.State())
}

func TestWatcher_StopWhenStoppedIsNoop(t *testing.T) {
	w := New(t.TempDir(), &collector{}, inlineDispatcher{})
	assert.NoError(t, w.Stop())
}

func TestWatcher_StartupScanReportsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "order1.json", `{"order":{}}`)
	writeFile(t, dir, "order2.XML", `<Order`)
	writeFile(t, dir, "notes.txt", "ignored")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.json"), 0o755))

	got := &collector{}
	w := New(dir, got, inlineDispatcher{}, WithProbeDelays(time.Millisecond, time.Millisecond))
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop() })

	require.Eventually(t, func() bool { return len(got.Names()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"order1.json", "order2.XML"}, got.Names())

	processed := w.Processed()
	sort.Strings(processed)
	assert.Equal(t, []string{"order1.json", "order2.XML"}, processed)
}

func TestWatcher_NewFileReportedOnce(t *testing.T) {
	dir := t.TempDir()
	got := &collector{}
	w := New(dir, got, inlineDispatcher{},
		WithGracePeriod(5*time.Millisecond),
		WithProbeDelays(time.Millisecond, 5*time.Millisecond),
	)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop() })

	path := writeFile(t, dir, "order3.json", `{"order":{"id":10}}`)
	require.Eventually(t, func() bool { return len(got.Names()) == 1 }, 2*time.Second, 10*time.Millisecond)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []string{"order3.json"}, got.Names())
}

func TestWatcher_HandleEventDeduplicatesByName(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "order1.json", `{"order":{}}`)

	reg := prometheus.NewRegistry()
	got := &collector{}
	w := New(dir, got, inlineDispatcher{},
		WithSleeper(noSleep),
		WithMetrics(metrics.NewTrackerMetricsWithRegisterer(reg)),
	)
	r := &run{}

	w.handleEvent(context.Background(), r, fsnotify.Event{Name: path, Op: fsnotify.Create})
	w.handleEvent(context.Background(), r, fsnotify.Event{Name: path, Op: fsnotify.Write})

	assert.Equal(t, []string{"order1.json"}, got.Names())
	assert.Equal(t, 1.0, metricValue(t, reg, "ordertracker_files_dropped_total", map[string]string{"reason": "duplicate"}))
}

func TestWatcher_HandleEventFilters(t *testing.T) {
	dir := t.TempDir()
	jsonPath := writeFile(t, dir, "order1.json", `{"order":{}}`)
	txtPath := writeFile(t, dir, "readme.txt", "hello")

	got := &collector{}
	w := New(dir, got, inlineDispatcher{}, WithSleeper(noSleep))
	r := &run{}

	w.handleEvent(context.Background(), r, fsnotify.Event{Name: jsonPath, Op: fsnotify.Remove})
	w.handleEvent(context.Background(), r, fsnotify.Event{Name: jsonPath, Op: fsnotify.Chmod})
	w.handleEvent(context.Background(), r, fsnotify.Event{Name: txtPath, Op: fsnotify.Create})

	assert.Empty(t, got.Names())
	assert.Empty(t, w.Processed())
}

func TestWatcher_EmptyFileIsReportedForParsing(t *testing.T) {
	dir := t.TempDir()
	emptyPath := writeFile(t, dir, "empty.json", "")

	got := &collector{}
	w := New(dir, got, inlineDispatcher{}, WithSleeper(noSleep))

	w.handleEvent(context.Background(), &run{}, fsnotify.Event{Name: emptyPath, Op: fsnotify.Create})

	assert.Equal(t, []string{"empty.json"}, got.Names())
}

func TestWatcher_OverflowIsCountedAndIgnored(t *testing.T) {
	reg := prometheus.NewRegistry()
	w := New(t.TempDir(), &collector{}, inlineDispatcher{},
		WithMetrics(metrics.NewTrackerMetricsWithRegisterer(reg)),
	)

	w.handleError(fsnotify.ErrEventOverflow)

	assert.Equal(t, 1.0, metricValue(t, reg, "ordertracker_watcher_overflows_total", nil))
	assert.Empty(t, w.Processed())
}

func TestWatcher_StopDuringProbeSleep(t *testing.T) {
	dir := t.TempDir()
	// Пустой файл никогда не проходит probe, цикл застревает в ожидании.
	writeFile(t, dir, "pending.json", "")

	got := &collector{}
	w := New(dir, got, inlineDispatcher{})
	require.NoError(t, w.Start(context.Background()))

	time.Sleep(150 * time.Millisecond)

	start := time.Now()
	require.NoError(t, w.Stop())
	assert.Less(t, time.Since(start), DefaultStopTimeout)
	assert.Equal(t, StateStopped, w.State())

	writeFile(t, dir, "late.json", `{"order":{}}`)
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, got.Names())
}

func TestWatcher_DispatchedAfterStopIsDiscarded(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "order1.json", `{"order":{}}`)

	got := &collector{}
	queue := &queueDispatcher{}
	w := New(dir, got, queue, WithProbeDelays(time.Millisecond, time.Millisecond))
	require.NoError(t, w.Start(context.Background()))

	require.Eventually(t, func() bool { return queue.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, w.Stop())

	queue.Drain()
	assert.Empty(t, got.Names())
}

func TestWatcher_StopTimeout(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pending.json", "")

	// Sleeper игнорирует отмену, фоновый цикл не успевает выйти.
	stubborn := SleeperFunc(func(ctx context.Context, _ time.Duration) error {
		time.Sleep(300 * time.Millisecond)
		return ctx.Err()
	})
	w := New(dir, &collector{}, inlineDispatcher{},
		WithSleeper(stubborn),
		WithStopTimeout(20*time.Millisecond),
	)
	require.NoError(t, w.Start(context.Background()))
	time.Sleep(20 * time.Millisecond)

	err := w.Stop()

	assert.ErrorIs(t, err, domain.ErrStopTimeout)
	assert.Equal(t, StateStopped, w.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopping", StateStopping.String())
	assert.Equal(t, "state(9)", State(9).String())
}
