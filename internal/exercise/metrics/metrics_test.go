package metrics_test

import (
	"errors"
	"strings"
	"testing"

	"exforge/internal/exercise/access"
	"exforge/internal/exercise/metrics"
	"exforge/internal/exercise/provision"
	"exforge/internal/exercise/service"
	"exforge/internal/testutil"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
)

var (
	_ provision.Observer      = (*metrics.ExerciseMetrics)(nil)
	_ access.CommandObserver  = (*metrics.ExerciseMetrics)(nil)
	_ service.OutcomeObserver = (*metrics.ExerciseMetrics)(nil)
)

func TestExerciseMetricsOperations(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewExerciseMetrics(reg)

	m.Finished(service.OperationImport, service.OutcomeSuccess)
	m.Finished(service.OperationImport, service.OutcomeSuccess)
	m.Finished(service.OperationProvision, service.OutcomeFailed)

	expected := `
# HELP exforge_exercise_operations_total Exercise imports and creations by outcome.
# TYPE exforge_exercise_operations_total counter
exforge_exercise_operations_total{operation="import",outcome="success"} 2
exforge_exercise_operations_total{operation="provision",outcome="failed"} 1
`
	err := promtest.GatherAndCompare(reg, strings.NewReader(expected), "exforge_exercise_operations_total")
	testutil.AssertNil(t, err)
}

func TestExerciseMetricsStepsAndCommands(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewExerciseMetrics(reg)

	m.StepFailed(provision.StepPlaceholders)
	m.CommandIssued(string(access.LockAllRepositories), nil)
	m.CommandIssued(string(access.LockAllRepositories), errors.New("queue down"))

	expected := `
# HELP exforge_access_commands_total Lock and unlock commands handed to the messenger.
# TYPE exforge_access_commands_total counter
exforge_access_commands_total{command="LOCK_ALL_REPOSITORIES",result="failed"} 1
exforge_access_commands_total{command="LOCK_ALL_REPOSITORIES",result="sent"} 1
# HELP exforge_provision_step_failures_total Failed provisioning steps, fatal or not.
# TYPE exforge_provision_step_failures_total counter
exforge_provision_step_failures_total{step="placeholders"} 1
`
	err := promtest.GatherAndCompare(reg, strings.NewReader(expected),
		"exforge_access_commands_total", "exforge_provision_step_failures_total")
	testutil.AssertNil(t, err)

	count, err := promtest.GatherAndCount(reg)
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, count, 3)
}
