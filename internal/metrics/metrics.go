// Package metrics exposes Prometheus collectors fed from the event bus.
package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/deskpilot/deskpilot/internal/event"
	"github.com/deskpilot/deskpilot/internal/logging"
)

// Metrics holds the collectors. Each instance has its own registry.
type Metrics struct {
	registry *prometheus.Registry

	SessionsActive  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsRemoved *prometheus.CounterVec
	Compactions     prometheus.Counter
	ModelChanges    prometheus.Counter

	ToolCalls    *prometheus.CounterVec
	Widgets      *prometheus.CounterVec
	Screenshots  prometheus.Counter
	StreamDeltas prometheus.Counter

	Tokens *prometheus.CounterVec
	Cost   *prometheus.CounterVec

	Chats        *prometheus.CounterVec
	ChatDuration prometheus.Histogram
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "deskpilot_sessions_active",
			Help: "Number of live backend sessions",
		}),
		SessionsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "deskpilot_sessions_created_total",
			Help: "Total number of backend sessions created",
		}),
		SessionsRemoved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "deskpilot_sessions_removed_total",
			Help: "Total number of sessions removed, by reason",
		}, []string{"reason"}),
		Compactions: f.NewCounter(prometheus.CounterOpts{
			Name: "deskpilot_compactions_total",
			Help: "Total number of successful compactions",
		}),
		ModelChanges: f.NewCounter(prometheus.CounterOpts{
			Name: "deskpilot_model_changes_total",
			Help: "Total number of model changes that recreated sessions",
		}),

		ToolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "deskpilot_tool_calls_total",
			Help: "Total number of completed tool calls",
		}, []string{"tool", "status"}),
		Widgets: f.NewCounterVec(prometheus.CounterOpts{
			Name: "deskpilot_widgets_total",
			Help: "Total number of widgets rendered",
		}, []string{"type"}),
		Screenshots: f.NewCounter(prometheus.CounterOpts{
			Name: "deskpilot_screenshots_total",
			Help: "Total number of screenshots captured",
		}),
		StreamDeltas: f.NewCounter(prometheus.CounterOpts{
			Name: "deskpilot_stream_deltas_total",
			Help: "Total number of streamed text chunks",
		}),

		Tokens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "deskpilot_model_tokens_total",
			Help: "Tokens used, by model and direction",
		}, []string{"model", "direction"}),
		Cost: f.NewCounterVec(prometheus.CounterOpts{
			Name: "deskpilot_model_cost_total",
			Help: "Reported model cost in USD",
		}, []string{"model"}),

		Chats: f.NewCounterVec(prometheus.CounterOpts{
			Name: "deskpilot_chats_total",
			Help: "Total number of chat requests",
		}, []string{"status"}),
		ChatDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "deskpilot_chat_duration_seconds",
			Help:    "Chat round trip duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveChat records one chat round trip.
func (m *Metrics) ObserveChat(d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Chats.WithLabelValues(status).Inc()
	m.ChatDuration.Observe(d.Seconds())
}

// Record updates the collectors for one event. Events it does not track
// and payloads that fail to decode are ignored.
func (m *Metrics) Record(t event.EventType, data json.RawMessage) {
	switch t {
	case event.SessionCreated:
		m.SessionsCreated.Inc()
		m.SessionsActive.Inc()

	case event.SessionRemoved:
		var d event.SessionRemovedData
		if json.Unmarshal(data, &d) != nil {
			return
		}
		m.SessionsRemoved.WithLabelValues(string(d.Reason)).Inc()
		m.SessionsActive.Dec()

	case event.SessionCompacted:
		m.Compactions.Inc()

	case event.ModelChanged:
		m.ModelChanges.Inc()

	case event.ToolCompleted:
		var d event.ToolEvent
		if json.Unmarshal(data, &d) != nil {
			return
		}
		status := "error"
		if d.Success != nil && *d.Success {
			status = "success"
		}
		m.ToolCalls.WithLabelValues(d.ToolName, status).Inc()

	case event.WidgetRender:
		var d event.WidgetEvent
		if json.Unmarshal(data, &d) != nil {
			return
		}
		m.Widgets.WithLabelValues(d.Type).Inc()

	case event.Screenshot:
		m.Screenshots.Inc()

	case event.StreamDelta:
		m.StreamDeltas.Inc()

	case event.ModelUsage:
		var d event.ModelUsageEvent
		if json.Unmarshal(data, &d) != nil {
			return
		}
		if d.InputTokens != nil {
			m.Tokens.WithLabelValues(d.Model, "input").Add(float64(*d.InputTokens))
		}
		if d.OutputTokens != nil {
			m.Tokens.WithLabelValues(d.Model, "output").Add(float64(*d.OutputTokens))
		}
		if d.Cost != nil && *d.Cost > 0 {
			m.Cost.WithLabelValues(d.Model).Add(*d.Cost)
		}
	}
}

// Consume subscribes to bus and records every event until ctx is done or
// the bus closes. The returned channel closes when consumption stops.
func (m *Metrics) Consume(ctx context.Context, bus *event.Bus) (<-chan struct{}, error) {
	msgs, err := bus.Messages(ctx)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range msgs {
			t, data, err := event.Decode(msg)
			if err != nil {
				logging.Debug().Err(err).Msg("metrics: undecodable event")
			} else {
				m.Record(t, data)
			}
			msg.Ack()
		}
	}()
	return done, nil
}
