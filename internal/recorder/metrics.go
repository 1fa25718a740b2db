package recorder

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics Prometheus-метрики записи и воспроизведения
type Metrics struct {
	bufferBytes    prometheus.Gauge
	bufferPackets  prometheus.Gauge
	captured       *prometheus.CounterVec
	replayed       prometheus.Counter
	evicted        prometheus.Counter
	snapshots      prometheus.Counter
	filesWritten   prometheus.Counter
	malformedLoads prometheus.Counter
}

// NewMetrics создаёт метрики; при reg == nil они не регистрируются
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		bufferBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "recorder",
			Name:      "buffer_bytes",
			Help:      "Байт в буфере записи.",
		}),
		bufferPackets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "recorder",
			Name:      "buffer_packets",
			Help:      "Пакетов в буфере записи.",
		}),
		captured: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recorder",
			Name:      "packets_captured_total",
			Help:      "Записанные пакеты по типу (live/synthetic).",
		}, []string{"kind"}),
		replayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "recorder",
			Name:      "packets_replayed_total",
			Help:      "Пакеты, извлечённые из буфера воспроизведения.",
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "recorder",
			Name:      "packets_evicted_total",
			Help:      "Пакеты, вытесненные из буфера записи.",
		}),
		snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "recorder",
			Name:      "snapshots_total",
			Help:      "Полные снимки состояния.",
		}),
		filesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "recorder",
			Name:      "files_written_total",
			Help:      "Закрытые файлы записи.",
		}),
		malformedLoads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "recorder",
			Name:      "malformed_loads_total",
			Help:      "Файлы, отклонённые при загрузке.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.bufferBytes, m.bufferPackets, m.captured, m.replayed,
			m.evicted, m.snapshots, m.filesWritten, m.malformedLoads)
	}
	return m
}

func (m *Metrics) observeBuffer(b *Buffer) {
	m.bufferBytes.Set(float64(b.TotalBytes()))
	m.bufferPackets.Set(float64(b.Count()))
}

func (m *Metrics) packetCaptured(synthetic bool) {
	kind := "live"
	if synthetic {
		kind = "synthetic"
	}
	m.captured.WithLabelValues(kind).Inc()
}
