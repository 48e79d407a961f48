// Package metrics emits DogStatsD metrics for device commands and live dials.
package metrics

import (
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/rs/zerolog"

	"github.com/strefethen/sonos-dial-go/internal/sonos/soap"
)

const (
	CommandDuration = "sonos.command.duration"
	CommandError    = "sonos.command.error"
	DialInstances   = "dial.instances"
)

// sink is the part of the statsd client used here.
type sink interface {
	Timing(name string, value time.Duration, tags []string, rate float64) error
	Count(name string, value int64, tags []string, rate float64) error
	Gauge(name string, value float64, tags []string, rate float64) error
	Close() error
}

// Metrics records command timings and the dial count. A Metrics without an
// agent address discards everything.
type Metrics struct {
	sink   sink
	logger zerolog.Logger
}

// New connects to the agent at addr. An empty addr yields a no-op Metrics.
func New(addr, namespace string, logger zerolog.Logger) (*Metrics, error) {
	m := &Metrics{logger: logger.With().Str("component", "metrics").Logger()}
	if addr == "" {
		return m, nil
	}

	client, err := statsd.New(addr, statsd.WithNamespace(namespace))
	if err != nil {
		return nil, err
	}
	m.sink = client

	m.logger.Info().
		Str("addr", addr).
		Str("namespace", namespace).
		Msg("Datadog metrics initialized")
	return m, nil
}

// Enabled reports whether metrics reach an agent.
func (m *Metrics) Enabled() bool {
	return m.sink != nil
}

// ObserveAction records the duration of every SOAP action and counts failures.
func (m *Metrics) ObserveAction(record soap.ActionRecord) {
	if m.sink == nil {
		return
	}
	tags := []string{"action:" + record.Action, "service:" + string(record.Service)}
	if err := m.sink.Timing(CommandDuration, record.Duration, tags, 1); err != nil {
		m.logger.Warn().Err(err).Str("metric", CommandDuration).Msg("Failed to emit timing metric")
	}
	if record.Err == nil {
		return
	}
	if err := m.sink.Count(CommandError, 1, tags, 1); err != nil {
		m.logger.Warn().Err(err).Str("metric", CommandError).Msg("Failed to emit count metric")
	}
}

// InstanceCount reports the number of live dials.
func (m *Metrics) InstanceCount(count int) {
	if m.sink == nil {
		return
	}
	if err := m.sink.Gauge(DialInstances, float64(count), nil, 1); err != nil {
		m.logger.Warn().Err(err).Str("metric", DialInstances).Msg("Failed to emit gauge metric")
	}
}

// Close flushes and closes the client.
func (m *Metrics) Close() error {
	if m.sink == nil {
		return nil
	}
	return m.sink.Close()
}
