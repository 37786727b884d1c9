// Package metrics exposes prometheus collectors for exercise provisioning.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ExerciseMetrics counts imports, provisioning failures and access commands.
// It satisfies the observer interfaces of the provision, access and service
// packages.
type ExerciseMetrics struct {
	operations  *prometheus.CounterVec
	stepFailure *prometheus.CounterVec
	commands    *prometheus.CounterVec
}

func NewExerciseMetrics(reg prometheus.Registerer) *ExerciseMetrics {
	m := &ExerciseMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exforge",
			Subsystem: "exercise",
			Name:      "operations_total",
			Help:      "Exercise imports and creations by outcome.",
		}, []string{"operation", "outcome"}),
		stepFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exforge",
			Subsystem: "provision",
			Name:      "step_failures_total",
			Help:      "Failed provisioning steps, fatal or not.",
		}, []string{"step"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exforge",
			Subsystem: "access",
			Name:      "commands_total",
			Help:      "Lock and unlock commands handed to the messenger.",
		}, []string{"command", "result"}),
	}
	reg.MustRegister(m.operations, m.stepFailure, m.commands)
	return m
}

func (m *ExerciseMetrics) Finished(operation, outcome string) {
	m.operations.WithLabelValues(operation, outcome).Inc()
}

func (m *ExerciseMetrics) StepFailed(step string) {
	m.stepFailure.WithLabelValues(step).Inc()
}

func (m *ExerciseMetrics) CommandIssued(kind string, err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.commands.WithLabelValues(kind, result).Inc()
}
