package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordTaskIncrementsCounterAndHistogram(t *testing.T) {
	m := New("test_" + t.Name())
	m.RecordTask("source", "completed", 10*time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TasksTotal.WithLabelValues("completed")))
}

func TestRecordWorkflowIncrementsCounter(t *testing.T) {
	m := New("test_" + t.Name())
	m.RecordWorkflow("failed", 5*time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.WorkflowsTotal.WithLabelValues("failed")))
}

func TestRecordMessageIncrementsCounter(t *testing.T) {
	m := New("test_" + t.Name())
	m.RecordMessage("add_object")
	m.RecordMessage("add_object")
	assert.Equal(t, float64(2), testutil.ToFloat64(m.MessagesRouted.WithLabelValues("add_object")))
}

func TestRecordCollectiveIncrementsCounter(t *testing.T) {
	m := New("test_" + t.Name())
	m.RecordCollective("broadcast")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CollectiveOps.WithLabelValues("broadcast")))
}
