// Package executor 重试与回退执行引擎。
// 单次请求在数据源内按退避策略重试瞬时失败，
// 重试耗尽或遇到永久失败后沿覆盖链回退到下一数据源，
// 全部失败时聚合各数据源的最后错误。
package executor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"stockquery/pkg/config"
	"stockquery/pkg/limiter"
	"stockquery/pkg/logger"
	"stockquery/pkg/monitor"
	"stockquery/pkg/provider/core"
	"stockquery/pkg/timing"
)

// State 执行状态
type State int

const (
	StateAttempting  State = iota // 正在调用当前数据源
	StateRetrying                 // 瞬时失败，退避后重试
	StateFallingBack              // 当前数据源放弃，切换下一个
	StateSucceeded                // 成功终态
	StateFailed                   // 失败终态
)

func (s State) String() string {
	switch s {
	case StateAttempting:
		return "attempting"
	case StateRetrying:
		return "retrying"
	case StateFallingBack:
		return "falling_back"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Candidate 一个候选数据源及其调用
type Candidate struct {
	Source core.Source                                    // 数据源
	Symbol string                                         // 提供商方言符号
	Call   func(ctx context.Context) (interface{}, error) // 实际抓取调用
}

// Plan 一次请求的执行计划
type Plan struct {
	Operation     string      // 操作名，如 quote/history/company_info
	Symbol        string      // 展示符号
	Candidates    []Candidate // 候选数据源，按覆盖质量排序
	AllowFallback bool        // 是否允许回退到后续候选
}

// Attempt 执行轨迹中的一次调用或切换
type Attempt struct {
	Source  core.Source   `json:"source"`
	Attempt int           `json:"attempt"` // 该数据源内的调用序号，从1计；0表示未调用即跳过
	State   State         `json:"state"`   // 该步之后的状态
	Err     error         `json:"-"`
	Wait    time.Duration `json:"wait"` // 重试前的退避时长
}

// Result 执行结果
type Result struct {
	Value     interface{} // 成功时的数据记录
	Source    core.Source // 胜出的数据源
	RequestID string      // 请求标识
	State     State       // 终态
	Trace     []Attempt   // 完整执行轨迹
}

// AvailabilityChecker 数据源可用性查询
type AvailabilityChecker interface {
	Available(ctx context.Context, source core.Source) error
}

// Option 执行引擎构建选项
type Option func(*Executor)

// WithClock 注入时钟，测试用
func WithClock(clock timing.Clock) Option {
	return func(e *Executor) {
		e.clock = clock
	}
}

// WithRecorder 注入度量记录器
func WithRecorder(rec monitor.Recorder) Option {
	return func(e *Executor) {
		e.recorder = rec
	}
}

// WithAvailability 注入可用性查询，回退时跳过不可用数据源
func WithAvailability(checker AvailabilityChecker) Option {
	return func(e *Executor) {
		e.checker = checker
	}
}

// Executor 执行引擎
type Executor struct {
	policy       limiter.RetryPolicy
	fetchTimeout time.Duration
	concurrency  int
	clock        timing.Clock
	recorder     monitor.Recorder
	checker      AvailabilityChecker
	log          *logrus.Entry
}

// New 按配置创建执行引擎
func New(cfg config.ExecutorConfig, opts ...Option) *Executor {
	policy := limiter.RetryPolicy{
		MaxRetries: cfg.MaxRetries,
		Base:       cfg.BackoffBase,
		Max:        cfg.BackoffMax,
	}
	if policy.Base <= 0 {
		policy.Base = 1 * time.Second
	}
	if policy.Max < policy.Base {
		policy.Max = 8 * time.Second
	}

	e := &Executor{
		policy:       policy,
		fetchTimeout: cfg.FetchTimeout,
		concurrency:  cfg.BatchConcurrency,
		clock:        timing.Default(),
		recorder:     monitor.NullRecorder{},
		log:          logger.WithComponent("Executor"),
	}
	if e.fetchTimeout <= 0 {
		e.fetchTimeout = 10 * time.Second
	}
	if e.concurrency <= 0 {
		e.concurrency = 5
	}

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute 执行一个计划。
// 成功返回携带数据的 Result；失败返回带完整轨迹的 Result 与终态错误，
// 总体截止时间到期返回 deadline_exceeded，其余失败聚合为 AllSourcesFailedError。
func (e *Executor) Execute(ctx context.Context, plan Plan) (*Result, error) {
	result := &Result{
		RequestID: uuid.NewString(),
		State:     StateAttempting,
	}
	started := e.clock.Now()

	log := e.log.WithFields(logrus.Fields{
		"request_id": result.RequestID,
		"operation":  plan.Operation,
		"symbol":     plan.Symbol,
	})

	candidates := plan.Candidates
	if len(candidates) == 0 {
		err := core.Permanent("", "no candidate source covers this symbol", nil)
		result.State = StateFailed
		e.record(plan, result, started, err)
		return result, err
	}
	// 关闭回退时只使用首个候选
	if !plan.AllowFallback {
		candidates = candidates[:1]
	}

	var (
		failures []core.SourceFailure
		dlErr    error
	)

walk:
	for ci, cand := range candidates {
		clog := log.WithField("source", cand.Source)

		if e.checker != nil {
			if aerr := e.checker.Available(ctx, cand.Source); aerr != nil {
				clog.WithError(aerr).Debug("数据源不可用，跳过")
				failures = appendFailure(failures, cand.Source, aerr)
				result.Trace = append(result.Trace, Attempt{Source: cand.Source, State: StateFallingBack, Err: aerr})
				continue
			}
		}

		for attempt := 1; ; attempt++ {
			if ctx.Err() != nil {
				dlErr = core.DeadlineExceeded("overall deadline exceeded", ctx.Err())
				break walk
			}

			result.State = StateAttempting
			callCtx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
			value, err := cand.Call(callCtx)
			cancel()

			if err == nil {
				result.Value = value
				result.Source = cand.Source
				result.State = StateSucceeded
				result.Trace = append(result.Trace, Attempt{Source: cand.Source, Attempt: attempt, State: StateSucceeded})
				clog.WithField("attempt", attempt).Debug("请求成功")
				e.record(plan, result, started, nil)
				return result, nil
			}

			failures = appendFailure(failures, cand.Source, err)

			// 总体截止时间到期后放弃重试与回退
			if ctx.Err() != nil {
				result.Trace = append(result.Trace, Attempt{Source: cand.Source, Attempt: attempt, State: StateFailed, Err: err})
				dlErr = core.DeadlineExceeded("overall deadline exceeded", ctx.Err())
				break walk
			}

			retry, wait := e.policy.ShouldRetry(err, attempt)
			if retry {
				result.State = StateRetrying
				result.Trace = append(result.Trace, Attempt{Source: cand.Source, Attempt: attempt, State: StateRetrying, Err: err, Wait: wait})
				clog.WithFields(logrus.Fields{
					"attempt": attempt,
					"wait":    wait.String(),
				}).WithError(err).Debug("瞬时失败，退避后重试")

				select {
				case <-ctx.Done():
					dlErr = core.DeadlineExceeded("overall deadline exceeded", ctx.Err())
					break walk
				case <-e.clock.After(wait):
				}
				continue
			}

			// 此数据源放弃
			last := StateFailed
			if ci+1 < len(candidates) {
				last = StateFallingBack
			}
			result.Trace = append(result.Trace, Attempt{Source: cand.Source, Attempt: attempt, State: last, Err: err})
			clog.WithField("attempt", attempt).WithError(err).Debug("数据源失败")
			break
		}

		if ci+1 < len(candidates) {
			result.State = StateFallingBack
			log.WithField("next", candidates[ci+1].Source).Debug("回退到下一数据源")
		}
	}

	result.State = StateFailed
	var err error
	if dlErr != nil {
		err = dlErr
	} else {
		err = &core.AllSourcesFailedError{Symbol: plan.Symbol, Failures: failures}
	}
	log.WithError(err).Debug("请求失败")
	e.record(plan, result, started, err)
	return result, err
}

// appendFailure 记录数据源的最后一个错误
func appendFailure(failures []core.SourceFailure, source core.Source, err error) []core.SourceFailure {
	for i := range failures {
		if failures[i].Source == source {
			failures[i].Err = err
			return failures
		}
	}
	return append(failures, core.SourceFailure{Source: source, Err: err})
}

// record 上报一条请求度量
func (e *Executor) record(plan Plan, result *Result, started time.Time, err error) {
	attempts := 0
	fallbacks := 0
	for _, a := range result.Trace {
		if a.Attempt > 0 {
			attempts++
		}
		if a.State == StateFallingBack {
			fallbacks++
		}
	}

	source := result.Source
	if source == "" && len(result.Trace) > 0 {
		source = result.Trace[len(result.Trace)-1].Source
	}

	e.recorder.Record(monitor.Metric{
		RequestID: result.RequestID,
		Operation: plan.Operation,
		Symbol:    plan.Symbol,
		Source:    source,
		State:     result.State.String(),
		Attempts:  attempts,
		Fallbacks: fallbacks,
		Duration:  e.clock.Now().Sub(started),
		Err:       err,
		Timestamp: time.Now(),
	})
}
