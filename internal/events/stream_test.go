package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/bench-engine/pkg/types"
)

func TestStream_PreservesOrder(t *testing.T) {
	s := NewStream(8)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Stage(ctx, "load", types.StageProgress{Percent: float64(i)}))
	}
	s.Close()

	var got []float64
	for ev := range s.C() {
		assert.Equal(t, types.EventStage, ev.Type)
		assert.False(t, ev.Timestamp.IsZero())
		got = append(got, ev.Payload.(types.StageProgress).Percent)
	}
	assert.Equal(t, []float64{0, 1, 2, 3, 4}, got)
}

func TestStream_Backpressure(t *testing.T) {
	s := NewStream(1)
	require.NoError(t, s.Metrics(context.Background(), "load", types.MetricSnapshot{}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.Alert(ctx, types.Alert{Metric: "error_rate"})
	assert.ErrorIs(t, err, context.DeadlineExceeded, "publish blocks while the buffer is full")

	<-s.C()
	assert.NoError(t, s.Alert(context.Background(), types.Alert{Metric: "error_rate"}))
}

func TestStream_Closed(t *testing.T) {
	s := NewStream(1)
	s.Close()
	s.Close()
	assert.ErrorIs(t, s.Scenario(context.Background(), "x", types.ScenarioStatus{}), ErrClosed)
}

func TestStream_NilIsNoop(t *testing.T) {
	var s *Stream
	assert.NoError(t, s.Publish(context.Background(), types.Event{}))
	assert.Nil(t, s.C())
	s.Close()
}
