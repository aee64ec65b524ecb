package guidelines

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecutionLifecycleSuccess(t *testing.T) {
	e := newExecution("security-review", "sig-1")
	m := &Metrics{}

	assert.Equal(t, ExecutionPending, e.Status)
	e.Start()
	assert.Equal(t, ExecutionRunning, e.Status)

	e.Complete(m, 120, nil)
	assert.Equal(t, ExecutionCompleted, e.Status)
	assert.Equal(t, 1, m.TotalExecutions)
	assert.Equal(t, 1, m.Successful)
	assert.Equal(t, 0, m.Failed)
	assert.Equal(t, float64(1), m.SuccessRate())
}

func TestExecutionLifecycleFailure(t *testing.T) {
	e := newExecution("security-review", "sig-1")
	m := &Metrics{}

	e.Start()
	e.Complete(m, 50, errors.New("boom"))

	assert.Equal(t, ExecutionFailed, e.Status)
	assert.Equal(t, 1, m.Failed)
	assert.Equal(t, float64(0), m.SuccessRate())
}

func TestMetricsSuccessRateAveragesAcrossRuns(t *testing.T) {
	m := &Metrics{}
	e1 := newExecution("g", "s1")
	e1.Start()
	e1.Complete(m, 100, nil)

	e2 := newExecution("g", "s2")
	e2.Start()
	e2.Complete(m, 200, errors.New("fail"))

	assert.Equal(t, 2, m.TotalExecutions)
	assert.Equal(t, 0.5, m.SuccessRate())
}
