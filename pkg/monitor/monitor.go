// Package monitor 请求结果度量。
// 执行引擎在每次请求终态时上报一条度量，由 Recorder 落地。
package monitor

import (
	"time"

	"github.com/sirupsen/logrus"

	"stockquery/pkg/logger"
	"stockquery/pkg/provider/core"
)

// Metric 单次请求的完成度量
type Metric struct {
	RequestID string        `json:"request_id"`   // 请求标识
	Operation string        `json:"operation"`    // 操作名，如 quote/history/company_info
	Symbol    string        `json:"symbol"`       // 规范化符号
	Source    core.Source   `json:"source"`       // 最终使用的数据源，失败时为最后尝试的源
	State     string        `json:"state"`        // 终态，succeeded 或 failed
	Attempts  int           `json:"attempts"`     // 提供商调用总次数，含重试与回退
	Fallbacks int           `json:"fallbacks"`    // 数据源切换次数
	Duration  time.Duration `json:"duration_ms"`  // 全程耗时
	Err       error         `json:"-"`            // 终态错误
	Timestamp time.Time     `json:"timestamp"`    // 完成时间
}

// Recorder 接收请求完成度量
type Recorder interface {
	Record(m Metric)
	Close() error
}

// NullRecorder 丢弃全部度量
type NullRecorder struct{}

// Record 实现 Recorder 接口
func (NullRecorder) Record(m Metric) {}

// Close 实现 Recorder 接口
func (NullRecorder) Close() error { return nil }

// LogRecorder 将度量写入结构化日志
type LogRecorder struct {
	log *logrus.Entry
}

// NewLogRecorder 创建日志度量记录器
func NewLogRecorder() *LogRecorder {
	return &LogRecorder{log: logger.WithComponent("Monitor")}
}

// Record 实现 Recorder 接口
func (r *LogRecorder) Record(m Metric) {
	entry := r.log.WithFields(logrus.Fields{
		"request_id": m.RequestID,
		"operation":  m.Operation,
		"symbol":     m.Symbol,
		"source":     m.Source,
		"state":      m.State,
		"attempts":   m.Attempts,
		"fallbacks":  m.Fallbacks,
		"duration":   m.Duration.String(),
	})

	if m.Err != nil {
		entry.WithError(m.Err).Warn("request failed")
		return
	}
	entry.Info("request completed")
}

// Close 实现 Recorder 接口
func (r *LogRecorder) Close() error { return nil }

// MultiRecorder 将度量广播给多个记录器
type MultiRecorder struct {
	recorders []Recorder
}

// NewMultiRecorder 创建广播记录器
func NewMultiRecorder(recorders ...Recorder) *MultiRecorder {
	return &MultiRecorder{recorders: recorders}
}

// Record 实现 Recorder 接口
func (r *MultiRecorder) Record(m Metric) {
	for _, rec := range r.recorders {
		rec.Record(m)
	}
}

// Close 关闭全部记录器，返回首个错误
func (r *MultiRecorder) Close() error {
	var first error
	for _, rec := range r.recorders {
		if err := rec.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var (
	_ Recorder = NullRecorder{}
	_ Recorder = (*LogRecorder)(nil)
	_ Recorder = (*MultiRecorder)(nil)
)
