package commands

import "github.com/prometheus/client_golang/prometheus"

// Metrics счётчики выполненных команд
type Metrics struct {
	commands *prometheus.CounterVec
}

// NewMetrics создаёт счётчики; reg == nil оставляет их незарегистрированными
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "replay_chat_commands_total",
			Help: "Chat commands by name and outcome",
		}, []string{"command", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.commands)
	}
	return m
}

func (m *Metrics) observe(command, result string) {
	m.commands.WithLabelValues(command, result).Inc()
}
