// Package metrics holds the Prometheus collectors for the orchestrator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics exported by the API and the recording agent
type Metrics struct {
	BookingsTotal          *prometheus.CounterVec
	TranscriptionJobsTotal *prometheus.CounterVec
	PropagationsTotal      *prometheus.CounterVec
	JobsPending            prometheus.Gauge
	RecordingCommandsTotal *prometheus.CounterVec
}

// New registers the metrics with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		BookingsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetingroom_bookings_total",
				Help: "Booking attempts by result (created, conflict, invalid, error, cancelled)",
			},
			[]string{"result"},
		),
		TranscriptionJobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetingroom_transcription_jobs_total",
				Help: "Transcription jobs registered by source kind",
			},
			[]string{"source"},
		),
		PropagationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetingroom_job_propagations_total",
				Help: "Transcript propagation attempts by trigger (poll, webhook) and result",
			},
			[]string{"trigger", "result"},
		),
		JobsPending: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "meetingroom_jobs_pending",
				Help: "Transcription jobs currently awaiting a terminal status",
			},
		),
		RecordingCommandsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetingroom_recording_commands_total",
				Help: "Recording agent commands by command and result",
			},
			[]string{"command", "result"},
		),
	}
}

// Nop returns metrics registered against a throwaway registry, for tests and
// components constructed without a registry
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}
