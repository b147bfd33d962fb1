package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TrackerMetrics содержит метрики конвейера импорта и реестра заказов.
// Все методы безопасны для nil-получателя: компоненты без метрик просто их не пишут.
type TrackerMetrics struct {
	// Watcher
	filesDetected    *prometheus.CounterVec
	filesDropped     *prometheus.CounterVec
	probeTimeouts    prometheus.Counter
	watcherOverflows prometheus.Counter

	// Разбор и реестр
	parseResults  *prometheus.CounterVec
	ordersAdded   prometheus.Counter
	transitions   *prometheus.CounterVec
	activeOrders  prometheus.Gauge
	loopQueueSize prometheus.Gauge

	// Снапшоты
	snapshotWrites *prometheus.CounterVec
	snapshotLoad   prometheus.Histogram
	timelineEvents *prometheus.CounterVec

	// Kafka
	orderEvents *prometheus.CounterVec
}

// NewTrackerMetrics создаёт метрики в prometheus.DefaultRegisterer.
func NewTrackerMetrics() *TrackerMetrics {
	return NewTrackerMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewTrackerMetricsWithRegisterer создаёт метрики в указанном registerer.
// Повторная регистрация возвращает уже зарегистрированные коллекторы.
func NewTrackerMetricsWithRegisterer(registerer prometheus.Registerer) *TrackerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &TrackerMetrics{
		filesDetected: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ordertracker_files_detected_total",
			Help: "Order files reported by the directory watcher grouped by source (scan, event).",
		}, []string{"source"}),
		filesDropped: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ordertracker_files_dropped_total",
			Help: "File notifications dropped by the watcher grouped by reason.",
		}, []string{"reason"}),
		probeTimeouts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ordertracker_probe_timeouts_total",
			Help: "Files that never became readable within the probe attempts.",
		}),
		watcherOverflows: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ordertracker_watcher_overflows_total",
			Help: "Native notification queue overflows observed by the watcher.",
		}),
		parseResults: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ordertracker_parse_total",
			Help: "Order file parse attempts grouped by result.",
		}, []string{"result"}),
		ordersAdded: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ordertracker_orders_added_total",
			Help: "Orders registered in the registry.",
		}),
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ordertracker_transitions_total",
			Help: "Order status transitions grouped by transition and result.",
		}, []string{"transition", "result"}),
		activeOrders: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "ordertracker_orders",
			Help: "Number of orders currently held by the registry.",
		}),
		loopQueueSize: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "ordertracker_event_loop_queue",
			Help: "Tasks waiting in the consumer event loop.",
		}),
		snapshotWrites: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ordertracker_snapshot_writes_total",
			Help: "Snapshot writes grouped by result (ok, retry, failed).",
		}, []string{"result"}),
		snapshotLoad: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "ordertracker_snapshot_load_seconds",
			Help:    "Duration of the startup snapshot load.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		timelineEvents: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ordertracker_timeline_events_total",
			Help: "Timeline appends grouped by result.",
		}, []string{"result"}),
		orderEvents: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ordertracker_order_events_total",
			Help: "Order events forwarded to Kafka grouped by result (published, failed, dropped).",
		}, []string{"result"}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordFileDetected учитывает файл, переданный потребителю.
func (m *TrackerMetrics) RecordFileDetected(source string) {
	if m == nil {
		return
	}
	m.filesDetected.WithLabelValues(source).Inc()
}

// RecordFileDropped учитывает отброшенное уведомление.
func (m *TrackerMetrics) RecordFileDropped(reason string) {
	if m == nil {
		return
	}
	m.filesDropped.WithLabelValues(reason).Inc()
}

// RecordProbeTimeout учитывает файл, который так и не стал читаемым.
func (m *TrackerMetrics) RecordProbeTimeout() {
	if m == nil {
		return
	}
	m.probeTimeouts.Inc()
}

// RecordWatcherOverflow учитывает переполнение очереди уведомлений.
func (m *TrackerMetrics) RecordWatcherOverflow() {
	if m == nil {
		return
	}
	m.watcherOverflows.Inc()
}

// RecordParse учитывает результат разбора файла.
func (m *TrackerMetrics) RecordParse(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.parseResults.WithLabelValues(result).Inc()
}

// RecordOrderAdded увеличивает счётчик заказов и gauge текущих заказов.
func (m *TrackerMetrics) RecordOrderAdded() {
	if m == nil {
		return
	}
	m.ordersAdded.Inc()
	m.activeOrders.Inc()
}

// RecordTransition учитывает попытку перехода статуса.
func (m *TrackerMetrics) RecordTransition(transition string, applied bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !applied {
		result = "rejected"
	}
	m.transitions.WithLabelValues(transition, result).Inc()
}

// SetActiveOrders выставляет число заказов в реестре.
func (m *TrackerMetrics) SetActiveOrders(n int) {
	if m == nil {
		return
	}
	m.activeOrders.Set(float64(n))
}

// SetLoopQueueSize выставляет глубину очереди потребителя.
func (m *TrackerMetrics) SetLoopQueueSize(n int) {
	if m == nil {
		return
	}
	m.loopQueueSize.Set(float64(n))
}

// RecordSnapshotWrite учитывает запись снапшота: ok, retry или failed.
func (m *TrackerMetrics) RecordSnapshotWrite(result string) {
	if m == nil {
		return
	}
	m.snapshotWrites.WithLabelValues(result).Inc()
}

// RecordSnapshotLoad записывает длительность загрузки снапшотов.
func (m *TrackerMetrics) RecordSnapshotLoad(duration time.Duration) {
	if m == nil {
		return
	}
	m.snapshotLoad.Observe(duration.Seconds())
}

// RecordTimelineEvent учитывает запись события в timeline.
func (m *TrackerMetrics) RecordTimelineEvent(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.timelineEvents.WithLabelValues(result).Inc()
}

// RecordOrderEvent учитывает событие заказа, переданное в Kafka.
func (m *TrackerMetrics) RecordOrderEvent(result string) {
	if m == nil {
		return
	}
	m.orderEvents.WithLabelValues(result).Inc()
}
