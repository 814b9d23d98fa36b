package alert

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"yqhp/bench-engine/pkg/types"
)

// Default timings.
const (
	DefaultCooldown = 5 * time.Minute
	DefaultAckGrace = 2 * time.Minute
)

var (
	ErrAlertNotFound   = errors.New("alert not found")
	ErrAlreadyResolved = errors.New("alert already resolved")
)

// Publisher 接收新告警，events.Stream 满足该接口。
type Publisher interface {
	Alert(ctx context.Context, alert types.Alert) error
}

// Counter 统计告警次数，metrics.Collector 满足该接口。
type Counter interface {
	IncAlert(alert types.Alert)
}

// Option 配置 Manager
type Option func(*Manager)

// WithCooldown 设置同一场景同一指标的最短告警间隔。
func WithCooldown(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.cooldown = d
		}
	}
}

// WithAckGrace 设置 warning/info 告警自动确认的宽限期。
func WithAckGrace(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.ackGrace = d
		}
	}
}

// WithClock 替换时钟，测试使用。
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithPublisher 新告警会立即推送给 p。
func WithPublisher(p Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// WithCounter 设置告警计数器。
func WithCounter(c Counter) Option {
	return func(m *Manager) { m.counter = c }
}

// WithLogger 设置日志。
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// Manager 告警管理器，可被多个场景并发调用。
type Manager struct {
	mu        sync.Mutex
	rules     []Rule
	cooldown  time.Duration
	ackGrace  time.Duration
	now       func() time.Time
	publisher Publisher
	counter   Counter
	logger    *zap.Logger

	alerts    []*types.Alert
	byID      map[string]*types.Alert
	lastFired map[string]fired
}

type fired struct {
	at       time.Time
	severity types.Severity
}

// NewManager 创建告警管理器。规则按严重程度从高到低评估。
func NewManager(rules []Rule, opts ...Option) *Manager {
	m := &Manager{
		rules:     slices.Clone(rules),
		cooldown:  DefaultCooldown,
		ackGrace:  DefaultAckGrace,
		now:       time.Now,
		logger:    zap.NewNop(),
		byID:      make(map[string]*types.Alert),
		lastFired: make(map[string]fired),
	}
	for _, opt := range opts {
		opt(m)
	}
	slices.SortStableFunc(m.rules, func(a, b Rule) int {
		return severityRank(b.Severity) - severityRank(a.Severity)
	})
	return m
}

// Rules 返回规则副本。
func (m *Manager) Rules() []Rule {
	return slices.Clone(m.rules)
}

func dedupKey(scope, metric string) string {
	return scope + "\x00" + metric
}

// CheckThresholds 用 metrics 评估所有适用于 scope 的规则，返回新产生的告警。
// 同一指标一次只产生最严重的一条告警；冷却期内同一 scope+metric 不重复告警，
// 严重程度升级除外。
func (m *Manager) CheckThresholds(ctx context.Context, scope string, metrics map[string]float64) []types.Alert {
	now := m.now()

	m.mu.Lock()
	m.sweepLocked(now)
	var raised []types.Alert
	seen := make(map[string]bool)
	for _, rule := range m.rules {
		if !rule.appliesTo(scope) || seen[rule.Metric] {
			continue
		}
		actual, ok := metrics[rule.Metric]
		if !ok || !rule.Operator.Violated(actual, rule.Threshold) {
			continue
		}
		seen[rule.Metric] = true

		key := dedupKey(scope, rule.Metric)
		if last, ok := m.lastFired[key]; ok && now.Sub(last.at) < m.cooldown &&
			severityRank(rule.Severity) <= severityRank(last.severity) {
			continue
		}
		m.lastFired[key] = fired{at: now, severity: rule.Severity}

		a := &types.Alert{
			ID:          uuid.NewString(),
			Severity:    rule.Severity,
			Metric:      rule.Metric,
			Scenario:    scope,
			Threshold:   rule.Threshold,
			ActualValue: actual,
			Message:     rule.message(scope, actual),
			Timestamp:   now,
			State:       types.AlertActive,
		}
		m.alerts = append(m.alerts, a)
		m.byID[a.ID] = a
		raised = append(raised, *a)
	}
	m.mu.Unlock()

	for _, a := range raised {
		m.logger.Warn("threshold alert",
			zap.String("scenario", a.Scenario),
			zap.String("metric", a.Metric),
			zap.String("severity", string(a.Severity)),
			zap.Float64("threshold", a.Threshold),
			zap.Float64("actual", a.ActualValue))
		if m.counter != nil {
			m.counter.IncAlert(a)
		}
		if m.publisher != nil {
			if err := m.publisher.Alert(ctx, a); err != nil {
				m.logger.Debug("alert event dropped", zap.String("id", a.ID), zap.Error(err))
			}
		}
	}
	return raised
}

// sweepLocked 自动确认超过宽限期的非严重告警。
func (m *Manager) sweepLocked(now time.Time) {
	for _, a := range m.alerts {
		if a.State != types.AlertActive || a.Severity == types.SeverityCritical {
			continue
		}
		at := a.Timestamp.Add(m.ackGrace)
		if !now.Before(at) {
			a.State = types.AlertAcknowledged
			a.Acknowledged = true
			a.AcknowledgedAt = &at
		}
	}
}

// Acknowledge 手动确认告警。
func (m *Manager) Acknowledge(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return ErrAlertNotFound
	}
	if a.State == types.AlertResolved {
		return ErrAlreadyResolved
	}
	if a.State == types.AlertActive {
		now := m.now()
		a.State = types.AlertAcknowledged
		a.Acknowledged = true
		a.AcknowledgedAt = &now
	}
	return nil
}

// Resolve 关闭告警，严重告警只能通过 Resolve 结束。
func (m *Manager) Resolve(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return ErrAlertNotFound
	}
	if a.State == types.AlertResolved {
		return ErrAlreadyResolved
	}
	now := m.now()
	a.State = types.AlertResolved
	a.ResolvedAt = &now
	return nil
}

// Alerts 返回全部告警的快照，按产生顺序排列。
func (m *Manager) Alerts() []types.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked(m.now())
	out := make([]types.Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		out = append(out, *a)
	}
	return out
}

// Active 返回仍处于 active 状态的告警。
func (m *Manager) Active() []types.Alert {
	var out []types.Alert
	for _, a := range m.Alerts() {
		if a.State == types.AlertActive {
			out = append(out, a)
		}
	}
	return out
}
