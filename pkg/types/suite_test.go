package types

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGradeFor(t *testing.T) {
	tests := []struct {
		score float64
		want  Grade
	}{
		{100, GradeA},
		{90, GradeA},
		{89.99, GradeB},
		{80, GradeB},
		{70, GradeC},
		{60, GradeD},
		{59.9, GradeF},
		{0, GradeF},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GradeFor(tt.score), "score %v", tt.score)
	}
}

func TestScenarioType_IsValid(t *testing.T) {
	for _, typ := range AllScenarioTypes() {
		assert.True(t, typ.IsValid())
	}
	assert.False(t, ScenarioType("soak").IsValid())
}

func TestNewFailedResult(t *testing.T) {
	r := NewFailedResult("db", ScenarioDatabase, time.Now(), "setup", errors.New("connection refused"))

	assert.False(t, r.Success)
	assert.True(t, r.HasCritical())
	assert.Equal(t, "connection refused", r.Issues[0].Message)
	assert.NotNil(t, r.Metrics)
}

func TestMetricSnapshot_Values(t *testing.T) {
	snap := MetricSnapshot{Count: 10, Failures: 1, AvgLatency: 12, RPS: 50, ErrorRate: 10}
	values := snap.Values()

	assert.Equal(t, 12.0, values[MetricAvgResponseTime])
	assert.Equal(t, 50.0, values[MetricThroughput])
	assert.InDelta(t, 90.0, values[MetricAvailability], 1e-9)
	assert.Equal(t, 100.0, MetricSnapshot{}.Values()[MetricAvailability])
}
