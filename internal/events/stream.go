// Package events carries progress and alert notifications from a running suite to its consumers.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"yqhp/bench-engine/pkg/types"
)

// DefaultBuffer is the stream capacity used when none is configured.
const DefaultBuffer = 256

// ErrClosed is returned when publishing to a closed stream.
var ErrClosed = errors.New("event stream closed")

// Stream 有界事件流。Publish 在缓冲区满时阻塞，保证顺序和背压。
// nil *Stream 上的所有方法都是空操作。
type Stream struct {
	ch     chan types.Event
	mu     sync.RWMutex
	closed bool
	now    func() time.Time
}

// NewStream 创建容量为 buffer 的事件流。
func NewStream(buffer int) *Stream {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Stream{ch: make(chan types.Event, buffer), now: time.Now}
}

// Publish 发布事件，缓冲区满时等待直到有空间或 ctx 结束。
func (s *Stream) Publish(ctx context.Context, ev types.Event) error {
	if s == nil {
		return nil
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	select {
	case s.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Metrics 发布指标快照事件。
func (s *Stream) Metrics(ctx context.Context, scenario string, snap types.MetricSnapshot) error {
	return s.Publish(ctx, types.Event{Type: types.EventMetrics, Scenario: scenario, Payload: snap})
}

// Alert 发布告警事件。
func (s *Stream) Alert(ctx context.Context, alert types.Alert) error {
	return s.Publish(ctx, types.Event{Type: types.EventAlert, Scenario: alert.Scenario, Payload: alert})
}

// Stage 发布阶段进度事件。
func (s *Stream) Stage(ctx context.Context, scenario string, progress types.StageProgress) error {
	return s.Publish(ctx, types.Event{Type: types.EventStage, Scenario: scenario, Payload: progress})
}

// Scenario 发布场景状态事件。
func (s *Stream) Scenario(ctx context.Context, scenario string, status types.ScenarioStatus) error {
	return s.Publish(ctx, types.Event{Type: types.EventScenario, Scenario: scenario, Payload: status})
}

// C 返回只读事件通道，Close 后通道关闭。
func (s *Stream) C() <-chan types.Event {
	if s == nil {
		return nil
	}
	return s.ch
}

// Close 关闭事件流。等待中的 Publish 返回后才会关闭通道。
func (s *Stream) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
