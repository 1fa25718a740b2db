package network

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/mmo-replay/internal/protocol"
)

// Metrics метрики сетевой подсистемы
type Metrics struct {
	connections prometheus.Gauge
	playing     prometheus.Gauge
	frames      *prometheus.CounterVec
	bytes       *prometheus.CounterVec
	rejects     *prometheus.CounterVec
	sendDrops   prometheus.Counter
}

// NewMetrics создаёт метрики; reg == nil оставляет их незарегистрированными
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replay_net_connections",
			Help: "Open client connections",
		}),
		playing: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replay_net_playing_clients",
			Help: "Clients that completed MsgEnter",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replay_net_frames_total",
			Help: "Frames by direction and message code",
		}, []string{"direction", "code"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replay_net_bytes_total",
			Help: "Payload bytes by direction",
		}, []string{"direction"}),
		rejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replay_net_rejects_total",
			Help: "Rejected MsgEnter requests by reason code",
		}, []string{"reason"}),
		sendDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replay_net_send_drops_total",
			Help: "Frames refused because a client send queue was full; the client is disconnected",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.connections, m.playing, m.frames, m.bytes, m.rejects, m.sendDrops)
	}
	return m
}

func (m *Metrics) frame(direction string, code protocol.MessageCode, size int) {
	label := "unknown"
	if code.Known() {
		label = code.String()
	}
	m.frames.WithLabelValues(direction, label).Inc()
	m.bytes.WithLabelValues(direction).Add(float64(size))
}
