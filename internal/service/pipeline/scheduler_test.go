package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raillake/internal/domain"
)

func TestSchedulerRejectsInvalidSpec(t *testing.T) {
	src := stationsSource(writeExtract(t, "stations.csv", stationsCSV))
	env := newEnv(t, []domain.Source{src}, nil)

	sched := NewScheduler(env.svc, "every full moon", testLogger())
	err := sched.Start()
	require.Error(t, err)
	var v *domain.ValidationError
	assert.ErrorAs(t, err, &v)
}

func TestSchedulerTriggersRuns(t *testing.T) {
	src := stationsSource(writeExtract(t, "stations.csv", stationsCSV))
	env := newEnv(t, []domain.Source{src}, []domain.Rule{cleanStationsRule()})
	ctx := context.Background()

	sched := NewScheduler(env.svc, "@every 25ms", testLogger())
	require.NoError(t, sched.Start())

	require.Eventually(t, func() bool {
		runs, _, err := env.svc.ListRuns(ctx, domain.PageRequest{})
		return err == nil && len(runs) > 0
	}, 10*time.Second, 20*time.Millisecond)
	sched.Stop()

	runs, _, err := env.svc.ListRuns(ctx, domain.PageRequest{})
	require.NoError(t, err)
	require.NotEmpty(t, runs)
	assert.Equal(t, domain.TriggerTypeScheduled, runs[0].TriggerType)

	// Drain in-flight runs before the databases close.
	require.Eventually(t, func() bool {
		runs, _, err := env.svc.ListRuns(ctx, domain.PageRequest{})
		if err != nil {
			return false
		}
		for _, r := range runs {
			if !runFinished(r.Status) {
				return false
			}
		}
		return true
	}, 10*time.Second, 20*time.Millisecond)
}

func TestSchedulerReload(t *testing.T) {
	src := stationsSource(writeExtract(t, "stations.csv", stationsCSV))
	env := newEnv(t, []domain.Source{src}, nil)

	sched := NewScheduler(env.svc, "@every 1h", testLogger())
	require.NoError(t, sched.Start())
	defer sched.Stop()

	// An invalid spec leaves the current schedule armed.
	err := sched.Reload("not a schedule")
	require.Error(t, err)
	var v *domain.ValidationError
	assert.ErrorAs(t, err, &v)

	require.NoError(t, sched.Reload("@every 2h"))
}

func TestSchedulerStopBeforeStart(t *testing.T) {
	src := stationsSource(writeExtract(t, "stations.csv", stationsCSV))
	env := newEnv(t, []domain.Source{src}, nil)

	sched := NewScheduler(env.svc, "@every 1h", testLogger())
	sched.Stop()
}
